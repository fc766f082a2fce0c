// Package mocks provides test doubles for the athena client.
package mocks

import (
	"context"

	athena "github.com/sells-group/ultradar/pkg/athena"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// StartQuery provides a mock function with given fields: ctx, req
func (_m *MockClient) StartQuery(ctx context.Context, req athena.StartQueryRequest) (string, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for StartQuery")
	}

	if rf, ok := ret.Get(0).(func(context.Context, athena.StartQueryRequest) (string, error)); ok {
		return rf(ctx, req)
	}
	return ret.String(0), ret.Error(1)
}

// GetStatus provides a mock function with given fields: ctx, executionID
func (_m *MockClient) GetStatus(ctx context.Context, executionID string) (*athena.Status, error) {
	ret := _m.Called(ctx, executionID)

	if len(ret) == 0 {
		panic("no return value specified for GetStatus")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string) (*athena.Status, error)); ok {
		return rf(ctx, executionID)
	}

	var r0 *athena.Status
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*athena.Status)
	}
	return r0, ret.Error(1)
}

// GetResults provides a mock function with given fields: ctx, executionID, maxResults, nextToken
func (_m *MockClient) GetResults(ctx context.Context, executionID string, maxResults int32, nextToken string) (*athena.ResultPage, error) {
	ret := _m.Called(ctx, executionID, maxResults, nextToken)

	if len(ret) == 0 {
		panic("no return value specified for GetResults")
	}

	if rf, ok := ret.Get(0).(func(context.Context, string, int32, string) (*athena.ResultPage, error)); ok {
		return rf(ctx, executionID, maxResults, nextToken)
	}

	var r0 *athena.ResultPage
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*athena.ResultPage)
	}
	return r0, ret.Error(1)
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
