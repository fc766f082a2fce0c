// Package athena is a narrow client for the Amazon Athena query API: start a
// statement, read its state, page through its results.
package athena

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	sdk "github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/rotisserie/eris"
)

// Client defines the engine operations the query bridge depends on.
type Client interface {
	StartQuery(ctx context.Context, req StartQueryRequest) (string, error)
	GetStatus(ctx context.Context, executionID string) (*Status, error)
	GetResults(ctx context.Context, executionID string, maxResults int32, nextToken string) (*ResultPage, error)
}

// StartQueryRequest carries one SQL submission.
type StartQueryRequest struct {
	SQL            string
	Database       string
	OutputLocation string
	// Workgroup is optional; empty uses the account's primary workgroup.
	Workgroup string
}

// State is an execution state as reported by the engine.
type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further transitions will happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Status is the state of an execution and, for failures, the engine's reason.
type Status struct {
	State  State
	Reason string
}

// ResultPage is one page of GetQueryResults. Cells are nil for SQL NULL.
type ResultPage struct {
	Rows      [][]*string
	NextToken string
}

// API is the subset of the SDK client used here.
type API interface {
	StartQueryExecution(ctx context.Context, in *sdk.StartQueryExecutionInput, optFns ...func(*sdk.Options)) (*sdk.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, in *sdk.GetQueryExecutionInput, optFns ...func(*sdk.Options)) (*sdk.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, in *sdk.GetQueryResultsInput, optFns ...func(*sdk.Options)) (*sdk.GetQueryResultsOutput, error)
}

type sdkClient struct {
	api API
}

// New loads the default AWS credential chain for region and returns a Client.
func New(ctx context.Context, region string) (Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, eris.Wrap(err, "athena: load aws config")
	}
	return NewFromAPI(sdk.NewFromConfig(cfg)), nil
}

// NewFromAPI wraps an existing SDK client (or a fake of one).
func NewFromAPI(api API) Client {
	return &sdkClient{api: api}
}

func (c *sdkClient) StartQuery(ctx context.Context, req StartQueryRequest) (string, error) {
	in := &sdk.StartQueryExecutionInput{
		QueryString:           aws.String(req.SQL),
		QueryExecutionContext: &types.QueryExecutionContext{Database: aws.String(req.Database)},
		ResultConfiguration:   &types.ResultConfiguration{OutputLocation: aws.String(req.OutputLocation)},
	}
	if req.Workgroup != "" {
		in.WorkGroup = aws.String(req.Workgroup)
	}

	out, err := c.api.StartQueryExecution(ctx, in)
	if err != nil {
		return "", eris.Wrap(err, "athena: start query execution")
	}
	id := aws.ToString(out.QueryExecutionId)
	if id == "" {
		return "", eris.New("athena: start query execution returned no id")
	}
	return id, nil
}

func (c *sdkClient) GetStatus(ctx context.Context, executionID string) (*Status, error) {
	out, err := c.api.GetQueryExecution(ctx, &sdk.GetQueryExecutionInput{
		QueryExecutionId: aws.String(executionID),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "athena: get query execution %s", executionID)
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return nil, eris.Errorf("athena: query execution %s has no status", executionID)
	}
	st := out.QueryExecution.Status
	return &Status{
		State:  State(st.State),
		Reason: aws.ToString(st.StateChangeReason),
	}, nil
}

func (c *sdkClient) GetResults(ctx context.Context, executionID string, maxResults int32, nextToken string) (*ResultPage, error) {
	in := &sdk.GetQueryResultsInput{
		QueryExecutionId: aws.String(executionID),
	}
	if maxResults > 0 {
		in.MaxResults = aws.Int32(maxResults)
	}
	if nextToken != "" {
		in.NextToken = aws.String(nextToken)
	}

	out, err := c.api.GetQueryResults(ctx, in)
	if err != nil {
		return nil, eris.Wrapf(err, "athena: get query results %s", executionID)
	}

	page := &ResultPage{NextToken: aws.ToString(out.NextToken)}
	if out.ResultSet == nil {
		return page, nil
	}
	page.Rows = make([][]*string, 0, len(out.ResultSet.Rows))
	for _, r := range out.ResultSet.Rows {
		cells := make([]*string, len(r.Data))
		for i, d := range r.Data {
			cells[i] = d.VarCharValue
		}
		page.Rows = append(page.Rows, cells)
	}
	return page, nil
}
