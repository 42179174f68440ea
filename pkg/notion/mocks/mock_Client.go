// Package mocks provides test doubles for the notion client.
package mocks

import (
	"context"

	notionapi "github.com/jomei/notionapi"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// CreatePage provides a mock function with given fields: ctx, req
func (_m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for CreatePage")
	}

	var r0 *notionapi.Page
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*notionapi.Page)
	}
	return r0, ret.Error(1)
}

// QueryDatabase provides a mock function with given fields: ctx, dbID, req
func (_m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	ret := _m.Called(ctx, dbID, req)

	if len(ret) == 0 {
		panic("no return value specified for QueryDatabase")
	}

	var r0 *notionapi.DatabaseQueryResponse
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*notionapi.DatabaseQueryResponse)
	}
	return r0, ret.Error(1)
}

// UpdatePage provides a mock function with given fields: ctx, pageID, req
func (_m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	ret := _m.Called(ctx, pageID, req)

	if len(ret) == 0 {
		panic("no return value specified for UpdatePage")
	}

	var r0 *notionapi.Page
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*notionapi.Page)
	}
	return r0, ret.Error(1)
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
