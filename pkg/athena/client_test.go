package athena

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sdk "github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	start   *sdk.StartQueryExecutionInput
	results *sdk.GetQueryResultsInput

	startOut  *sdk.StartQueryExecutionOutput
	execOut   *sdk.GetQueryExecutionOutput
	resultOut *sdk.GetQueryResultsOutput
	err       error
}

func (f *fakeAPI) StartQueryExecution(_ context.Context, in *sdk.StartQueryExecutionInput, _ ...func(*sdk.Options)) (*sdk.StartQueryExecutionOutput, error) {
	f.start = in
	return f.startOut, f.err
}

func (f *fakeAPI) GetQueryExecution(_ context.Context, _ *sdk.GetQueryExecutionInput, _ ...func(*sdk.Options)) (*sdk.GetQueryExecutionOutput, error) {
	return f.execOut, f.err
}

func (f *fakeAPI) GetQueryResults(_ context.Context, in *sdk.GetQueryResultsInput, _ ...func(*sdk.Options)) (*sdk.GetQueryResultsOutput, error) {
	f.results = in
	return f.resultOut, f.err
}

func TestStartQuery(t *testing.T) {
	api := &fakeAPI{startOut: &sdk.StartQueryExecutionOutput{QueryExecutionId: aws.String("qe-1")}}
	c := NewFromAPI(api)

	id, err := c.StartQuery(context.Background(), StartQueryRequest{
		SQL:            "SELECT 1",
		Database:       "store_shapes_mvp3",
		OutputLocation: "s3://bucket/athena_results/",
	})
	require.NoError(t, err)
	assert.Equal(t, "qe-1", id)
	assert.Equal(t, "SELECT 1", aws.ToString(api.start.QueryString))
	assert.Equal(t, "store_shapes_mvp3", aws.ToString(api.start.QueryExecutionContext.Database))
	assert.Equal(t, "s3://bucket/athena_results/", aws.ToString(api.start.ResultConfiguration.OutputLocation))
	assert.Nil(t, api.start.WorkGroup)
}

func TestStartQuery_Workgroup(t *testing.T) {
	api := &fakeAPI{startOut: &sdk.StartQueryExecutionOutput{QueryExecutionId: aws.String("qe-2")}}
	_, err := NewFromAPI(api).StartQuery(context.Background(), StartQueryRequest{SQL: "SELECT 1", Workgroup: "analytics"})
	require.NoError(t, err)
	assert.Equal(t, "analytics", aws.ToString(api.start.WorkGroup))
}

func TestStartQuery_MissingID(t *testing.T) {
	api := &fakeAPI{startOut: &sdk.StartQueryExecutionOutput{}}
	_, err := NewFromAPI(api).StartQuery(context.Background(), StartQueryRequest{SQL: "SELECT 1"})
	assert.ErrorContains(t, err, "returned no id")
}

func TestStartQuery_Error(t *testing.T) {
	api := &fakeAPI{err: errors.New("AccessDenied")}
	_, err := NewFromAPI(api).StartQuery(context.Background(), StartQueryRequest{SQL: "SELECT 1"})
	assert.ErrorContains(t, err, "athena: start query execution")
}

func TestGetStatus(t *testing.T) {
	api := &fakeAPI{execOut: &sdk.GetQueryExecutionOutput{
		QueryExecution: &types.QueryExecution{
			Status: &types.QueryExecutionStatus{
				State:             types.QueryExecutionStateFailed,
				StateChangeReason: aws.String("SYNTAX_ERROR: line 1:8"),
			},
		},
	}}
	st, err := NewFromAPI(api).GetStatus(context.Background(), "qe-1")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "SYNTAX_ERROR: line 1:8", st.Reason)
	assert.True(t, st.State.Terminal())
}

func TestGetStatus_NoStatus(t *testing.T) {
	api := &fakeAPI{execOut: &sdk.GetQueryExecutionOutput{}}
	_, err := NewFromAPI(api).GetStatus(context.Background(), "qe-1")
	assert.ErrorContains(t, err, "has no status")
}

func TestGetResults(t *testing.T) {
	api := &fakeAPI{resultOut: &sdk.GetQueryResultsOutput{
		NextToken: aws.String("tok-2"),
		ResultSet: &types.ResultSet{Rows: []types.Row{
			{Data: []types.Datum{{VarCharValue: aws.String("store_name")}}},
			{Data: []types.Datum{{VarCharValue: aws.String("Store A")}}},
			{Data: []types.Datum{{}}},
		}},
	}}
	page, err := NewFromAPI(api).GetResults(context.Background(), "qe-1", 1000, "tok-1")
	require.NoError(t, err)

	assert.Equal(t, int32(1000), aws.ToInt32(api.results.MaxResults))
	assert.Equal(t, "tok-1", aws.ToString(api.results.NextToken))
	assert.Equal(t, "tok-2", page.NextToken)
	require.Len(t, page.Rows, 3)
	assert.Equal(t, "Store A", *page.Rows[1][0])
	assert.Nil(t, page.Rows[2][0])
}

func TestGetResults_EmptyResultSet(t *testing.T) {
	api := &fakeAPI{resultOut: &sdk.GetQueryResultsOutput{}}
	page, err := NewFromAPI(api).GetResults(context.Background(), "qe-1", 0, "")
	require.NoError(t, err)
	assert.Empty(t, page.Rows)
	assert.Nil(t, api.results.MaxResults)
	assert.Nil(t, api.results.NextToken)
}

func TestStateTerminal(t *testing.T) {
	assert.False(t, StateQueued.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateSucceeded.Terminal())
	assert.True(t, StateCancelled.Terminal())
}
