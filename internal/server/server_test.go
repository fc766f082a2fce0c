package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/ultradar/internal/analytics"
	"github.com/sells-group/ultradar/internal/catalog"
	"github.com/sells-group/ultradar/internal/config"
	"github.com/sells-group/ultradar/internal/docstore"
	"github.com/sells-group/ultradar/internal/metrics"
	"github.com/sells-group/ultradar/internal/query"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeRunner struct {
	sqls []string
	rows []query.Row
	err  error
}

func (f *fakeRunner) Run(_ context.Context, sql string) (*query.Result, error) {
	f.sqls = append(f.sqls, sql)
	if f.err != nil {
		return nil, f.err
	}
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

type fixture struct {
	runner  *fakeRunner
	mem     *docstore.Memory
	docs    *docstore.Store
	metrics *metrics.Registry
	handler http.Handler
}

func newFixture(t *testing.T, opts ...docstore.Option) *fixture {
	t.Helper()
	f := &fixture{runner: &fakeRunner{}, mem: docstore.NewMemory("ds-store-shapes-mvp3"), metrics: metrics.New()}
	f.docs = docstore.New(f.mem, opts...)
	svc := analytics.NewService(f.runner, "store_shapes_mvp3", config.AnalyticsConfig{
		DailyView:  "v_gold_daily_shape_by_day",
		WeeklyView: "v_gold_slot_curves_by_week",
	})
	ids := 0
	s := New(Deps{
		Analytics:        svc,
		Docs:             f.docs,
		Catalog:          catalog.NewCache(catalog.DocStoreSource(f.docs, "strategies/"), 0),
		Metrics:          f.metrics,
		StrategiesPrefix: "strategies/",
		ExclusionsPrefix: "exclusions/",
		Region:           "eu-central-1",
		Database:         "store_shapes_mvp3",
		Now:              func() time.Time { return time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC) },
		NewID: func() string {
			ids++
			return "id-" + string(rune('0'+ids))
		},
	})
	f.handler = s.Router()
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "eu-central-1", body["region"])
	assert.Equal(t, "store_shapes_mvp3", body["db"])
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, rec.Body.String())
}

func TestPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/curves-by-day", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, f.runner.sqls)
}

func TestStores(t *testing.T) {
	f := newFixture(t)
	f.runner.rows = []query.Row{row("Store A"), row("Store B")}

	rec := f.do(t, http.MethodGet, "/stores", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["Store A","Store B"]`, rec.Body.String())
}

func TestStores_TrailingSlash(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/stores/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSlotOfDay_MalformedDay(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/slot-of-day?store=Store+A&day=2024-13-40", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "day must be YYYY-MM-DD", body["error"])
	assert.Empty(t, f.runner.sqls, "engine must not be contacted")
}

func TestSlotOfDay_MissingParams(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/slot-of-day?store=Store+A", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "store and day required", decodeBody[ErrorResponse](t, rec).Error)
}

func TestSlotOfDay_EscapesStore(t *testing.T) {
	f := newFixture(t)
	f.runner.rows = []query.Row{row("00:00-00:30", "0", "3", "40", "0.075", "0.075", "O'Hare", "2024-03-04", "10", "3", "Monday")}

	rec := f.do(t, http.MethodGet, "/slot-of-day?store=O%27Hare&day=2024-03-04", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.runner.sqls, 1)
	assert.Contains(t, f.runner.sqls[0], "store_name = 'O''Hare'")

	recs := decodeBody[[]map[string]any](t, rec)
	require.Len(t, recs, 1)
	assert.Equal(t, "O'Hare", recs[0]["store_name"])
	assert.Equal(t, 0.075, recs[0]["pct_of_day"])
}

func TestCurvesByDay_Sparse(t *testing.T) {
	f := newFixture(t)
	f.runner.rows = []query.Row{
		row("A", "00:00-00:30", "0", "0.1"),
		row("B", "00:00-00:30", "0", "0.2"),
		row("A", "00:30-01:00", "30", "0.3"),
	}

	rec := f.do(t, http.MethodGet, "/curves-by-day?day=2024-03-04", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"labels": ["00:00-00:30", "00:30-01:00"],
		"datasets": [
			{"label": "A", "data": [10, 30]},
			{"label": "B", "data": [20]}
		]
	}`, rec.Body.String())
}

func TestCurvesByDay_EngineFailure(t *testing.T) {
	f := newFixture(t)
	f.runner.err = &query.ExecutionError{ExecutionID: "q-1", State: "FAILED", Reason: "SYNTAX_ERROR"}

	rec := f.do(t, http.MethodGet, "/curves-by-day?day=2024-03-04", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error, "SYNTAX_ERROR")
}

func TestByWeek_EmptyIsArray(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/by-week?weeknum=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestByWeek_BadWeek(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"weeknum=0", "weeknum=54", "weeknum=abc"} {
		rec := f.do(t, http.MethodGet, "/by-week?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	assert.Empty(t, f.runner.sqls)
}

func TestByWeek_Heatmap(t *testing.T) {
	f := newFixture(t)
	f.runner.rows = []query.Row{
		row("A", "m-1", "Monday", "00:00-00:30", "0.5"),
		row("A", "m-1", "Tuesday", "00:00-00:30", "0.25"),
	}
	rec := f.do(t, http.MethodGet, "/by-week?weeknum=10&view=heatmap", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	stores, ok := body["stores"].([]any)
	require.True(t, ok)
	assert.Len(t, stores, 1)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/health", nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "ultradar_http_requests_total"))
}
