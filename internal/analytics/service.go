package analytics

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ultradar/internal/config"
	"github.com/sells-group/ultradar/internal/query"
	"github.com/sells-group/ultradar/internal/shape"
)

// Runner executes one statement to completion. *query.Bridge implements it.
type Runner interface {
	Run(ctx context.Context, sql string) (*query.Result, error)
}

// Service answers the analytics endpoints. Inputs are validated before any
// SQL is built, so a bad request never reaches the engine.
type Service struct {
	runner Runner
	db     string
	daily  string
	weekly string
}

// NewService binds r to database db and the configured views.
func NewService(r Runner, db string, cfg config.AnalyticsConfig) *Service {
	return &Service{runner: r, db: db, daily: cfg.DailyView, weekly: cfg.WeeklyView}
}

// Stores returns every store name in the daily view.
func (s *Service) Stores(ctx context.Context) ([]string, error) {
	rows, err := s.run(ctx, "stores", StoresSQL(s.db, s.daily))
	if err != nil {
		return nil, err
	}
	return shape.Stores(rows), nil
}

// SlotOfDay returns the slot records of store on day.
func (s *Service) SlotOfDay(ctx context.Context, store, day string) ([]shape.SlotRecord, error) {
	sql, err := SlotOfDaySQL(s.db, s.daily, store, day)
	if err != nil {
		return nil, err
	}
	rows, err := s.run(ctx, "slot-of-day", sql)
	if err != nil {
		return nil, err
	}
	return shape.SlotOfDay(rows), nil
}

// CurvesByDay returns the per-store chart series for day.
func (s *Service) CurvesByDay(ctx context.Context, day string) (shape.Curves, error) {
	sql, err := CurvesByDaySQL(s.db, s.daily, day)
	if err != nil {
		return shape.Curves{}, err
	}
	rows, err := s.run(ctx, "curves-by-day", sql)
	if err != nil {
		return shape.Curves{}, err
	}
	return shape.CurvesByDay(rows), nil
}

// ByWeek returns the flat weekly records for week.
func (s *Service) ByWeek(ctx context.Context, week int) ([]shape.WeekRecord, error) {
	sql, err := ByWeekSQL(s.db, s.weekly, week)
	if err != nil {
		return nil, err
	}
	rows, err := s.run(ctx, "by-week", sql)
	if err != nil {
		return nil, err
	}
	return shape.ByWeek(rows), nil
}

// Heatmap returns week grouped for heatmap rendering.
func (s *Service) Heatmap(ctx context.Context, week int) (shape.Heatmap, error) {
	recs, err := s.ByWeek(ctx, week)
	if err != nil {
		return shape.Heatmap{}, err
	}
	return shape.GroupByWeek(recs), nil
}

func (s *Service) run(ctx context.Context, endpoint, sql string) ([]query.Row, error) {
	res, err := s.runner.Run(query.WithLabel(ctx, endpoint), sql)
	if err != nil {
		return nil, eris.Wrapf(err, "analytics: %s", endpoint)
	}
	return res.Rows, nil
}
