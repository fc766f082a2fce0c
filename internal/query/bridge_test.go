package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/ultradar/internal/config"
	"github.com/sells-group/ultradar/internal/metrics"
	"github.com/sells-group/ultradar/internal/resilience"
	"github.com/sells-group/ultradar/pkg/athena"
	"github.com/sells-group/ultradar/pkg/athena/mocks"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func s(v string) *string { return &v }

func page(token string, rows ...[]*string) *athena.ResultPage {
	return &athena.ResultPage{Rows: rows, NextToken: token}
}

func fastBridge(c athena.Client, opts ...Option) *Bridge {
	base := []Option{
		WithPollInterval(time.Millisecond),
		WithRetry(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}),
	}
	return NewBridge(c, "store_shapes_mvp3", "s3://out/", append(base, opts...)...)
}

func TestRun_SucceedsAndDropsHeader(t *testing.T) {
	c := mocks.NewMockClient(t)
	c.On("StartQuery", mock.Anything, athena.StartQueryRequest{
		SQL: "SELECT 1", Database: "store_shapes_mvp3", OutputLocation: "s3://out/",
	}).Return("qe-1", nil)
	c.On("GetStatus", mock.Anything, "qe-1").Return(&athena.Status{State: athena.StateRunning}, nil).Twice()
	c.On("GetStatus", mock.Anything, "qe-1").Return(&athena.Status{State: athena.StateSucceeded}, nil).Once()
	c.On("GetResults", mock.Anything, "qe-1", int32(1000), "").Return(page("",
		[]*string{s("store_name")},
		[]*string{s("Store A")},
		[]*string{nil},
	), nil)

	res, err := fastBridge(c).Run(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "qe-1", res.ExecutionID)
	assert.Equal(t, 3, res.Polls)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Store A", *res.Rows[0][0])
	assert.Nil(t, res.Rows[1][0])
	assert.False(t, res.Truncated)
}

func TestRun_HeaderOnlyIsEmpty(t *testing.T) {
	c := mocks.NewMockClient(t)
	c.On("StartQuery", mock.Anything, mock.Anything).Return("qe-1", nil)
	c.On("GetStatus", mock.Anything, "qe-1").Return(&athena.Status{State: athena.StateSucceeded}, nil)
	c.On("GetResults", mock.Anything, "qe-1", int32(1000), "").Return(page("", []*string{s("weeknum")}), nil)

	res, err := fastBridge(c).Run(context.Background(), "SELECT weeknum")
	require.NoError(t, err)
	assert.NotNil(t, res.Rows)
	assert.Empty(t, res.Rows)
}

func TestRun_FailedIsExecutionError(t *testing.T) {
	c := mocks.NewMockClient(t)
	c.On("StartQuery", mock.Anything, mock.Anything).Return("qe-9", nil)
	c.On("GetStatus", mock.Anything, "qe-9").Return(&athena.Status{
		State: athena.StateFailed, Reason: "SYNTAX_ERROR: line 3:14",
	}, nil).Once()

	_, err := fastBridge(c).Run(context.Background(), "SELEC 1")
	require.Error(t, err)

	var ee *ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "FAILED", ee.State)
	assert.Equal(t, "FAILED: SYNTAX_ERROR: line 3:14", ee.Error())
	c.AssertNotCalled(t, "GetResults", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_CancelledIsExecutionError(t *testing.T) {
	c := mocks.NewMockClient(t)
	c.On("StartQuery", mock.Anything, mock.Anything).Return("qe-2", nil)
	c.On("GetStatus", mock.Anything, "qe-2").Return(&athena.Status{State: athena.StateCancelled, Reason: "user"}, nil)

	_, err := fastBridge(c).Run(context.Background(), "SELECT 1")
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "CANCELLED", ee.State)
}

func TestAwait_TimeoutIsDistinct(t *testing.T) {
	c := mocks.NewMockClient(t)
	c.On("GetStatus", mock.Anything, "qe-3").Return(&athena.Status{State: athena.StateQueued}, nil)

	b := fastBridge(c, WithPollInterval(5*time.Millisecond), WithMaxWait(30*time.Millisecond))
	polls, err := b.Await(context.Background(), Handle{ExecutionID: "qe-3", Submitted: time.Now()})

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "qe-3", te.ExecutionID)
	assert.Greater(t, polls, 1)

	var ee *ExecutionError
	assert.False(t, errors.As(err, &ee))
}

func TestAwait_ContextCancel(t *testing.T) {
	c := mocks.NewMockClient(t)
	c.On("GetStatus", mock.Anything, "qe-4").Return(&athena.Status{State: athena.StateRunning}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	b := fastBridge(c, WithPollInterval(5*time.Millisecond))
	_, err := b.Await(ctx, Handle{ExecutionID: "qe-4", Submitted: time.Now()})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var te *TimeoutError
	assert.False(t, errors.As(err, &te))
}

func TestAwait_BackoffCapped(t *testing.T) {
	c := mocks.NewMockClient(t)
	c.On("GetStatus", mock.Anything, "qe-5").Return(&athena.Status{State: athena.StateRunning}, nil).Times(3)
	c.On("GetStatus", mock.Anything, "qe-5").Return(&athena.Status{State: athena.StateSucceeded}, nil).Once()

	b := fastBridge(c, WithPollInterval(time.Millisecond), WithPollMultiplier(4), WithPollCap(3*time.Millisecond))
	polls, err := b.Await(context.Background(), Handle{ExecutionID: "qe-5"})
	require.NoError(t, err)
	assert.Equal(t, 4, polls)
}

func TestPoll_RetriesTransient(t *testing.T) {
	c := mocks.NewMockClient(t)
	c.On("GetStatus", mock.Anything, "qe-6").Return(nil, resilience.NewTransientError(errors.New("ThrottlingException"), 400)).Once()
	c.On("GetStatus", mock.Anything, "qe-6").Return(&athena.Status{State: athena.StateRunning}, nil).Once()

	st, err := fastBridge(c).Poll(context.Background(), Handle{ExecutionID: "qe-6"})
	require.NoError(t, err)
	assert.Equal(t, athena.StateRunning, st.State)
}

func TestSubmit_PermanentErrorNotRetried(t *testing.T) {
	c := mocks.NewMockClient(t)
	c.On("StartQuery", mock.Anything, mock.Anything).Return("", errors.New("InvalidRequestException")).Once()

	_, err := fastBridge(c).Submit(context.Background(), "SELECT 1")
	assert.ErrorContains(t, err, "query: submit")
}

func TestFetchRows_SinglePageFlagsTruncation(t *testing.T) {
	c := mocks.NewMockClient(t)
	c.On("GetResults", mock.Anything, "qe-7", int32(3), "").Return(page("more",
		[]*string{s("h")}, []*string{s("a")}, []*string{s("b")},
	), nil).Once()

	b := fastBridge(c, WithMaxResults(3))
	res, err := b.FetchRows(context.Background(), Handle{ExecutionID: "qe-7"}, 0)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	assert.True(t, res.Truncated)
}

func TestFetchRows_PaginatesUpToMaxRows(t *testing.T) {
	c := mocks.NewMockClient(t)
	c.On("GetResults", mock.Anything, "qe-8", int32(1000), "").Return(page("p2",
		[]*string{s("h")}, []*string{s("1")}, []*string{s("2")},
	), nil).Once()
	c.On("GetResults", mock.Anything, "qe-8", int32(1000), "p2").Return(page("p3",
		[]*string{s("3")}, []*string{s("4")},
	), nil).Once()

	b := fastBridge(c, WithPagination(3))
	res, err := b.FetchRows(context.Background(), Handle{ExecutionID: "qe-8"}, 1000)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "3", *res.Rows[2][0])
	assert.True(t, res.Truncated)
}

func TestFetchRows_PaginatesToEnd(t *testing.T) {
	c := mocks.NewMockClient(t)
	c.On("GetResults", mock.Anything, "qe-9", int32(1000), "").Return(page("p2",
		[]*string{s("h")}, []*string{s("1")},
	), nil).Once()
	c.On("GetResults", mock.Anything, "qe-9", int32(1000), "p2").Return(page("",
		[]*string{s("2")},
	), nil).Once()

	b := fastBridge(c, WithPagination(0))
	res, err := b.FetchRows(context.Background(), Handle{ExecutionID: "qe-9"}, 1000)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	assert.False(t, res.Truncated)
}

func TestRun_RecordsMetrics(t *testing.T) {
	c := mocks.NewMockClient(t)
	c.On("StartQuery", mock.Anything, mock.Anything).Return("qe-1", nil)
	c.On("GetStatus", mock.Anything, "qe-1").Return(&athena.Status{State: athena.StateSucceeded}, nil)
	c.On("GetResults", mock.Anything, "qe-1", int32(1000), "").Return(page("", []*string{s("h")}), nil)

	reg := metrics.New()
	_, err := fastBridge(c, WithMetrics(reg)).Run(WithLabel(context.Background(), "stores"), "SELECT 1")
	require.NoError(t, err)

	mfs, err := reg.Gatherer().Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range mfs {
		if mf.GetName() == "ultradar_query_polls_total" {
			found = true
			assert.InDelta(t, 1, mf.GetMetric()[0].GetCounter().GetValue(), 0.001)
		}
	}
	assert.True(t, found)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.QueryConfig{
		Database:       "db",
		OutputLocation: "s3://o/",
		Workgroup:      "wg",
		PollIntervalMs: 250,
		PollMultiplier: 1.5,
		PollCapMs:      2000,
		MaxWaitSecs:    10,
		MaxResults:     500,
		Paginate:       true,
		MaxRows:        2000,
		SubmitRPS:      2,
		RetryAttempts:  4,
	}
	b := NewFromConfig(mocks.NewMockClient(t), cfg)

	assert.Equal(t, "db", b.Database())
	assert.Equal(t, "wg", b.workgroup)
	assert.Equal(t, 250*time.Millisecond, b.pollInterval)
	assert.InDelta(t, 1.5, b.pollMultiplier, 0.001)
	assert.Equal(t, 2*time.Second, b.pollCap)
	assert.Equal(t, 10*time.Second, b.maxWait)
	assert.Equal(t, 500, b.maxResults)
	assert.True(t, b.paginate)
	assert.Equal(t, 2000, b.maxRows)
	assert.NotNil(t, b.limiter)
	assert.Equal(t, 4, b.retry.MaxAttempts)
}

func TestNewBridgeDefaults(t *testing.T) {
	b := NewBridge(mocks.NewMockClient(t), "db", "s3://o/")
	assert.Equal(t, 600*time.Millisecond, b.pollInterval)
	assert.Equal(t, 2*time.Minute, b.maxWait)
	assert.Equal(t, 1000, b.maxResults)
	assert.False(t, b.paginate)
	assert.Nil(t, b.limiter)
}
