package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/sells-group/ultradar/internal/validation"
)

func (s *Server) handleStores(w http.ResponseWriter, r *http.Request) {
	stores, err := s.analytics.Stores(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stores)
}

func (s *Server) handleSlotOfDay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	store, day := strings.TrimSpace(q.Get("store")), strings.TrimSpace(q.Get("day"))
	if store == "" || day == "" {
		fail(w, r, validation.Required("store", "store and day required"))
		return
	}
	recs, err := s.analytics.SlotOfDay(r.Context(), store, day)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleCurvesByDay(w http.ResponseWriter, r *http.Request) {
	day := strings.TrimSpace(r.URL.Query().Get("day"))
	if day == "" {
		fail(w, r, validation.Required("day", "day required"))
		return
	}
	curves, err := s.analytics.CurvesByDay(r.Context(), day)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, curves)
}

func (s *Server) handleByWeek(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := strings.TrimSpace(q.Get("weeknum"))
	if raw == "" {
		fail(w, r, validation.Required("weeknum", "weeknum required"))
		return
	}
	week, err := strconv.Atoi(raw)
	if err != nil {
		fail(w, r, validation.Required("weeknum", "weeknum must be 1-53"))
		return
	}

	if strings.EqualFold(q.Get("view"), "heatmap") {
		hm, err := s.analytics.Heatmap(r.Context(), week)
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, hm)
		return
	}

	recs, err := s.analytics.ByWeek(r.Context(), week)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
