package ultradar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/ultradar/internal/analytics"
	"github.com/sells-group/ultradar/internal/config"
	"github.com/sells-group/ultradar/internal/docstore"
	"github.com/sells-group/ultradar/internal/query"
	"github.com/sells-group/ultradar/internal/resilience"
	"github.com/sells-group/ultradar/internal/server"
	"github.com/sells-group/ultradar/internal/validation"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func fastRetry() Option {
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = time.Millisecond
	return WithRetry(cfg)
}

type fakeRunner struct {
	calls atomic.Int32
	rows  []query.Row
}

func (f *fakeRunner) Run(_ context.Context, _ string) (*query.Result, error) {
	f.calls.Add(1)
	return &query.Result{Rows: f.rows}, nil
}

func row(cells ...string) query.Row {
	out := make(query.Row, len(cells))
	for i := range cells {
		v := cells[i]
		out[i] = &v
	}
	return out
}

func newAPI(t *testing.T, runner *fakeRunner) *httptest.Server {
	t.Helper()
	svc := analytics.NewService(runner, "db", config.AnalyticsConfig{DailyView: "daily", WeeklyView: "weekly"})
	s := server.New(server.Deps{
		Analytics:        svc,
		Docs:             docstore.New(docstore.NewMemory("bucket")),
		StrategiesPrefix: "strategies/",
		ExclusionsPrefix: "exclusions/",
		Region:           "eu-central-1",
		Database:         "db",
	})
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		path   string
		params map[string]string
		want   string
	}{
		{"plain", "https://api.example.com", "/stores", nil, "https://api.example.com/stores"},
		{"trailing slashes", " https://api.example.com// ", "stores", nil, "https://api.example.com/stores"},
		{"empty params omitted", "https://x", "/strategies", map[string]string{"prefix": "", "summary": "true"}, "https://x/strategies?summary=true"},
		{"escaped and sorted", "https://x", "/slot-of-day", map[string]string{"store": "O'Hare & Co", "day": "2024-03-04"}, "https://x/slot-of-day?day=2024-03-04&store=O%27Hare+%26+Co"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, BuildURL(tc.base, tc.path, tc.params))
		})
	}
}

func TestClient_EndToEnd(t *testing.T) {
	runner := &fakeRunner{rows: []query.Row{
		row("A", "00:00-00:30", "0", "0.1"),
		row("A", "00:30-01:00", "30", "0.2"),
	}}
	ts := newAPI(t, runner)
	c := NewClient(ts.URL+"/", fastRetry())
	ctx := context.Background()

	curves, err := c.CurvesByDay(ctx, "2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, []string{"00:00-00:30", "00:30-01:00"}, curves.Labels)
	require.Len(t, curves.Datasets, 1)
	assert.Equal(t, "A", curves.Datasets[0].Label)

	health, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "db", health["db"])

	alpha := 0.5
	put, err := c.PutStrategy(ctx, server.StrategyRequest{Form: &validation.StrategyForm{
		Name: "Decay", CreatedBy: "ana", LookbackWeeks: 3, DecayMode: "alpha", Alpha: &alpha,
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, put.Version)

	list, err := c.Strategies(ctx, "", true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, put.Key, list[0].Key)
	require.NotNil(t, list[0].Summary)
	assert.Equal(t, "Decay", list[0].Summary.Name)

	obj, err := c.Strategy(ctx, put.Key)
	require.NoError(t, err)
	assert.Equal(t, put.ETag, obj.ETag)

	ex, err := c.PutExclusion(ctx, validation.ExclusionForm{Dates: []string{"2024-03-04"}})
	require.NoError(t, err)
	assert.NotEmpty(t, ex.ID)
}

func TestClient_ValidatesBeforeNetwork(t *testing.T) {
	runner := &fakeRunner{}
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer ts.Close()
	c := NewClient(ts.URL)

	_, err := c.SlotOfDay(context.Background(), "A", "2024-13-40")
	var fe *validation.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "day must be YYYY-MM-DD", fe.Message)

	_, err = c.ByWeek(context.Background(), 54)
	require.ErrorAs(t, err, &fe)

	assert.Zero(t, hits.Load())
	assert.Zero(t, runner.calls.Load())
}

func TestClient_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"day must be YYYY-MM-DD"}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).Stores(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "day must be YYYY-MM-DD", apiErr.Message)
}

func TestClient_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`["A"]`))
	}))
	defer ts.Close()

	got, err := NewClient(ts.URL, fastRetry()).Stores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_MalformedVsEmpty(t *testing.T) {
	body := ""
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer ts.Close()
	c := NewClient(ts.URL)
	ctx := context.Background()

	got, err := c.Stores(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	body = "<html>gateway</html>"
	_, err = c.Stores(ctx)
	var mal *MalformedResponseError
	require.ErrorAs(t, err, &mal)
	assert.Equal(t, http.StatusOK, mal.Status)

	_, err = c.Strategies(ctx, "", false)
	require.True(t, errors.As(err, &mal))
}

func TestClient_ListWrappers(t *testing.T) {
	body := `{"body":"{\"strategies\":[{\"key\":\"strategies/a.json\",\"etag\":\"e\"}]}"}`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/strategies", r.URL.Path)
		_, _ = w.Write([]byte(body))
	}))
	defer ts.Close()

	got, err := NewClient(ts.URL).Strategies(context.Background(), "", false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "strategies/a.json", got[0].Key)
}

func TestNormalizeList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"array", `[1,2]`, 2},
		{"empty body", ``, 0},
		{"null", `null`, 0},
		{"items", `{"items":[1]}`, 1},
		{"exclusions", `{"exclusions":[1,2,3]}`, 3},
		{"records", `{"records":[1]}`, 1},
		{"nested data", `{"data":{"results":[1,2]}}`, 2},
		{"string body", `{"body":"[1,2]"}`, 2},
		{"unknown object", `{"other":[1]}`, 0},
		{"scalar", `42`, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeList([]byte(tc.raw))
			require.NoError(t, err)
			assert.Len(t, got, tc.want)
		})
	}

	_, err := NormalizeList([]byte(`{"items":`))
	assert.Error(t, err)
	_, err = NormalizeList([]byte(`{"body":"not json"}`))
	assert.Error(t, err)
}

func TestSession_LatestWins(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"days": []string{}, "intervals": []string{}, "stores": []any{}})
	}))
	defer ts.Close()
	defer close(release)

	s := NewSession(NewClient(ts.URL, WithRetry(resilience.WithAttempts(1))))
	ctx := context.Background()

	type outcome struct {
		ok  bool
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		_, ok, err := s.Week(ctx, 10)
		first <- outcome{ok, err}
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, ok, err := s.Week(ctx, 11)
	require.NoError(t, err)
	assert.True(t, ok)

	got := <-first
	assert.False(t, got.ok, "superseded load must be reported stale")
	assert.NoError(t, got.err)
}
