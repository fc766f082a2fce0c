package ultradar

import (
	"context"

	"github.com/sells-group/ultradar/internal/query"
	"github.com/sells-group/ultradar/internal/shape"
)

// Session loads views the way an interactive dashboard does: a new load for
// the same view cancels the previous one, and a superseded result is
// reported as stale instead of being returned.
type Session struct {
	client *Client
	latest *query.Latest
}

// NewSession wraps c.
func NewSession(c *Client) *Session {
	return &Session{client: c, latest: query.NewLatest()}
}

// Week loads the heatmap for week. ok is false when a newer Week call
// superseded this one.
func (s *Session) Week(ctx context.Context, week int) (shape.Heatmap, bool, error) {
	return query.Do(ctx, s.latest, "week", func(ctx context.Context) (shape.Heatmap, error) {
		return s.client.Heatmap(ctx, week)
	})
}

// Curves loads the curves of day.
func (s *Session) Curves(ctx context.Context, day string) (shape.Curves, bool, error) {
	return query.Do(ctx, s.latest, "curves", func(ctx context.Context) (shape.Curves, error) {
		return s.client.CurvesByDay(ctx, day)
	})
}

// Slots loads one store's slots on day.
func (s *Session) Slots(ctx context.Context, store, day string) ([]shape.SlotRecord, bool, error) {
	return query.Do(ctx, s.latest, "slots", func(ctx context.Context) ([]shape.SlotRecord, error) {
		return s.client.SlotOfDay(ctx, store, day)
	})
}
