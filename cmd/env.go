package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ultradar/internal/analytics"
	"github.com/sells-group/ultradar/internal/docstore"
	"github.com/sells-group/ultradar/internal/metrics"
	"github.com/sells-group/ultradar/internal/query"
	"github.com/sells-group/ultradar/internal/resilience"
	"github.com/sells-group/ultradar/internal/server"
	"github.com/sells-group/ultradar/pkg/athena"
	"github.com/sells-group/ultradar/pkg/ultradar"
)

// initService wires the Athena client, the query bridge and the analytics
// service.
func initService(ctx context.Context, m *metrics.Registry) (*analytics.Service, error) {
	if err := cfg.Validate("query"); err != nil {
		return nil, err
	}
	client, err := athena.New(ctx, cfg.Query.Region)
	if err != nil {
		return nil, eris.Wrap(err, "init athena client")
	}
	bridge := query.NewFromConfig(client, cfg.Query,
		query.WithBreaker(resilience.NewBreaker("athena", 5, 30*time.Second)),
		query.WithMetrics(m),
	)
	return analytics.NewService(bridge, cfg.Query.Database, cfg.Analytics), nil
}

// initAnalytics returns the API client when --api (or server.base_url) is
// set, otherwise a direct Athena-backed service.
func initAnalytics(ctx context.Context) (server.Analytics, error) {
	base := apiURL
	if base == "" {
		base = cfg.Server.BaseURL
	}
	if base != "" {
		return ultradar.NewClient(base), nil
	}
	svc, err := initService(ctx, nil)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// initDocStore opens the configured document store. Callers should defer
// docstore.Close(st.Backend()).
func initDocStore(ctx context.Context, m *metrics.Registry) (*docstore.Store, error) {
	if err := cfg.Validate("docstore"); err != nil {
		return nil, err
	}
	st, err := docstore.Open(ctx, cfg.DocStore, cfg.Query.Region, m)
	if err != nil {
		return nil, eris.Wrap(err, "open docstore")
	}
	return st, nil
}
