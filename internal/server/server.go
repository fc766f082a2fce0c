// Package server exposes the analytics endpoints and the strategy and
// exclusion documents over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/sells-group/ultradar/internal/catalog"
	"github.com/sells-group/ultradar/internal/docstore"
	"github.com/sells-group/ultradar/internal/metrics"
	"github.com/sells-group/ultradar/internal/shape"
)

// Analytics answers the slot-curve endpoints. *analytics.Service implements it.
type Analytics interface {
	Stores(ctx context.Context) ([]string, error)
	SlotOfDay(ctx context.Context, store, day string) ([]shape.SlotRecord, error)
	CurvesByDay(ctx context.Context, day string) (shape.Curves, error)
	ByWeek(ctx context.Context, week int) ([]shape.WeekRecord, error)
	Heatmap(ctx context.Context, week int) (shape.Heatmap, error)
}

// Deps wires a Server. Catalog and Metrics may be nil.
type Deps struct {
	Analytics        Analytics
	Docs             *docstore.Store
	Catalog          *catalog.Cache
	Metrics          *metrics.Registry
	StrategiesPrefix string
	ExclusionsPrefix string
	Region           string
	Database         string

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Server holds the handler dependencies.
type Server struct {
	analytics Analytics
	docs      *docstore.Store
	catalog   *catalog.Cache
	resolver  *catalog.Resolver
	metrics   *metrics.Registry

	strategiesPrefix string
	exclusionsPrefix string
	region           string
	database         string

	now   func() time.Time
	newID func() string
}

// New builds a Server from d.
func New(d Deps) *Server {
	s := &Server{
		analytics:        d.Analytics,
		docs:             d.Docs,
		catalog:          d.Catalog,
		resolver:         catalog.NewResolver(d.Catalog),
		metrics:          d.Metrics,
		strategiesPrefix: d.StrategiesPrefix,
		exclusionsPrefix: d.ExclusionsPrefix,
		region:           d.Region,
		database:         d.Database,
		now:              d.Now,
		newID:            d.NewID,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(s.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type"},
		OptionsPassthrough: true,
	}))
	r.Use(preflight)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Analytics
	r.Get("/stores", s.handleStores)
	r.Get("/slot-of-day", s.handleSlotOfDay)
	r.Get("/curves-by-day", s.handleCurvesByDay)
	r.Get("/by-week", s.handleByWeek)

	// Documents
	r.Route("/strategies", func(r chi.Router) {
		r.Get("/", s.handleListStrategies)
		r.Post("/", s.handlePutStrategy)
		r.Post("/preview", s.handlePreviewStrategy)
	})
	r.Get("/strategy", s.handleGetStrategy)
	r.Route("/exclusions", func(r chi.Router) {
		r.Get("/", s.handleListExclusions)
		r.Post("/", s.handlePutExclusion)
	})

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"ok": true, "region": s.region, "db": s.database}
	if s.catalog != nil {
		resp["catalog"] = s.catalog.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}
