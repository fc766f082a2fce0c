// Package query runs SQL against the analytical engine: submit, poll until a
// terminal state, then read result rows with the header row removed.
package query

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ultradar/internal/config"
	"github.com/sells-group/ultradar/internal/metrics"
	"github.com/sells-group/ultradar/internal/resilience"
	"github.com/sells-group/ultradar/pkg/athena"
)

// Row is one result tuple in column order. A nil cell is SQL NULL.
type Row []*string

// Handle identifies a submitted execution.
type Handle struct {
	ExecutionID string
	Submitted   time.Time
}

// Result holds the data rows of a finished execution.
type Result struct {
	ExecutionID string
	Rows        []Row
	// Truncated is set when more rows existed than were read.
	Truncated bool
	Polls     int
}

// Bridge submits statements to one database and output location.
type Bridge struct {
	client         athena.Client
	database       string
	outputLocation string
	workgroup      string

	pollInterval   time.Duration
	pollMultiplier float64
	pollCap        time.Duration
	maxWait        time.Duration

	maxResults int
	paginate   bool
	maxRows    int

	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
	metrics *metrics.Registry
}

// NewBridge returns a Bridge with a fixed 600ms poll delay, a two minute
// maximum wait and single-page (1000 row) results.
func NewBridge(client athena.Client, database, outputLocation string, opts ...Option) *Bridge {
	b := &Bridge{
		client:         client,
		database:       database,
		outputLocation: outputLocation,
		pollInterval:   defaultPollInterval,
		pollMultiplier: 1,
		pollCap:        defaultPollCap,
		maxWait:        defaultMaxWait,
		maxResults:     defaultMaxResults,
		maxRows:        defaultMaxRows,
		retry:          resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewFromConfig maps the query config section onto bridge options. Extra
// options are applied last.
func NewFromConfig(client athena.Client, cfg config.QueryConfig, opts ...Option) *Bridge {
	base := []Option{
		WithPollInterval(cfg.PollInterval()),
		WithPollMultiplier(cfg.PollMultiplier),
		WithPollCap(cfg.PollCap()),
		WithMaxWait(cfg.MaxWait()),
		WithMaxResults(cfg.MaxResults),
		WithSubmitRate(cfg.SubmitRPS),
		WithRetry(resilience.WithAttempts(cfg.RetryAttempts)),
	}
	if cfg.Paginate {
		base = append(base, WithPagination(cfg.MaxRows))
	}
	b := NewBridge(client, cfg.Database, cfg.OutputLocation, append(base, opts...)...)
	b.workgroup = cfg.Workgroup
	return b
}

// Database is the database every statement runs against.
func (b *Bridge) Database() string { return b.database }

// Submit starts sql and returns without waiting for it.
func (b *Bridge) Submit(ctx context.Context, sql string) (Handle, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return Handle{}, eris.Wrap(err, "query: submit rate limit")
		}
	}

	req := athena.StartQueryRequest{
		SQL:            sql,
		Database:       b.database,
		OutputLocation: b.outputLocation,
		Workgroup:      b.workgroup,
	}
	id, err := call(ctx, b, "start_query", func(ctx context.Context) (string, error) {
		return b.client.StartQuery(ctx, req)
	})
	if err != nil {
		return Handle{}, eris.Wrap(err, "query: submit")
	}

	zap.L().Debug("query: submitted", zap.String("execution_id", id), zap.String("database", b.database))
	return Handle{ExecutionID: id, Submitted: time.Now()}, nil
}

// Poll reads the current state of h once.
func (b *Bridge) Poll(ctx context.Context, h Handle) (athena.Status, error) {
	st, err := call(ctx, b, "get_status", func(ctx context.Context) (*athena.Status, error) {
		return b.client.GetStatus(ctx, h.ExecutionID)
	})
	if err != nil {
		return athena.Status{}, eris.Wrapf(err, "query: poll %s", h.ExecutionID)
	}
	return *st, nil
}

// Await polls h until it succeeds. FAILED and CANCELLED return
// *ExecutionError; exceeding the maximum wait returns *TimeoutError.
// It reports how many polls were issued.
func (b *Bridge) Await(ctx context.Context, h Handle) (int, error) {
	deadline := time.NewTimer(b.maxWait)
	defer deadline.Stop()

	interval := b.pollInterval
	polls := 0
	for {
		st, err := b.Poll(ctx, h)
		polls++
		if err != nil {
			return polls, err
		}

		switch st.State {
		case athena.StateSucceeded:
			return polls, nil
		case athena.StateFailed, athena.StateCancelled:
			return polls, &ExecutionError{ExecutionID: h.ExecutionID, State: string(st.State), Reason: st.Reason}
		}

		wait := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return polls, eris.Wrapf(ctx.Err(), "query: poll %s", h.ExecutionID)
		case <-deadline.C:
			wait.Stop()
			return polls, &TimeoutError{ExecutionID: h.ExecutionID, Waited: time.Since(h.Submitted)}
		case <-wait.C:
		}

		interval = time.Duration(math.Min(float64(interval)*b.pollMultiplier, float64(b.pollCap)))
		if interval < b.pollInterval {
			interval = b.pollInterval
		}
	}
}

// FetchRows reads the rows of a succeeded execution, dropping the header row.
// Without pagination only the first page of up to maxResults rows is read and
// Truncated reports whether the engine had more.
func (b *Bridge) FetchRows(ctx context.Context, h Handle, maxResults int) (*Result, error) {
	if maxResults <= 0 || maxResults > defaultMaxResults {
		maxResults = b.maxResults
	}
	limit := math.MaxInt
	if b.paginate {
		limit = b.maxRows
	}

	res := &Result{ExecutionID: h.ExecutionID, Rows: []Row{}}
	token := ""
	for first := true; ; first = false {
		page, err := call(ctx, b, "get_results", func(ctx context.Context) (*athena.ResultPage, error) {
			return b.client.GetResults(ctx, h.ExecutionID, int32(maxResults), token)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "query: fetch rows %s", h.ExecutionID)
		}

		rows := page.Rows
		if first && len(rows) > 0 {
			rows = rows[1:]
		}
		for _, r := range rows {
			if len(res.Rows) >= limit {
				res.Truncated = true
				break
			}
			res.Rows = append(res.Rows, Row(r))
		}

		if res.Truncated || page.NextToken == "" {
			break
		}
		if !b.paginate || len(res.Rows) >= limit {
			res.Truncated = true
			break
		}
		token = page.NextToken
	}

	if res.Truncated {
		zap.L().Warn("query: result truncated",
			zap.String("execution_id", h.ExecutionID),
			zap.Int("rows", len(res.Rows)),
			zap.Bool("paginate", b.paginate),
		)
	}
	return res, nil
}

// Run submits sql, waits for it and returns its rows.
func (b *Bridge) Run(ctx context.Context, sql string) (*Result, error) {
	started := time.Now()
	label := labelFrom(ctx)

	h, err := b.Submit(ctx, sql)
	if err != nil {
		b.metrics.ObserveQuery(label, "error", started, 0, 0, false)
		return nil, err
	}

	polls, err := b.Await(ctx, h)
	if err != nil {
		b.metrics.ObserveQuery(label, outcome(err), started, polls, 0, false)
		zap.L().Warn("query: execution did not succeed",
			zap.String("execution_id", h.ExecutionID),
			zap.String("endpoint", label),
			zap.Int("polls", polls),
			zap.Error(err),
		)
		return nil, err
	}

	res, err := b.FetchRows(ctx, h, b.maxResults)
	if err != nil {
		b.metrics.ObserveQuery(label, "error", started, polls, 0, false)
		return nil, err
	}
	res.Polls = polls
	b.metrics.ObserveQuery(label, "ok", started, polls, len(res.Rows), res.Truncated)

	zap.L().Debug("query: finished",
		zap.String("execution_id", h.ExecutionID),
		zap.String("endpoint", label),
		zap.Int("rows", len(res.Rows)),
		zap.Int("polls", polls),
		zap.Duration("elapsed", time.Since(started)),
	)
	return res, nil
}

func call[T any](ctx context.Context, b *Bridge, op string, fn func(context.Context) (T, error)) (T, error) {
	cfg := b.retry
	cfg.OnRetry = resilience.RetryLogger("athena", op)
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		return resilience.Call(ctx, b.breaker, fn)
	})
}

func outcome(err error) string {
	var ee *ExecutionError
	var te *TimeoutError
	switch {
	case errors.As(err, &ee):
		return "failed"
	case errors.As(err, &te):
		return "timeout"
	}
	return "error"
}

type labelKey struct{}

// WithLabel names the endpoint a query runs for, used as the metrics label.
func WithLabel(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, labelKey{}, name)
}

func labelFrom(ctx context.Context) string {
	if s, ok := ctx.Value(labelKey{}).(string); ok && s != "" {
		return s
	}
	return "adhoc"
}
