// Package mocks provides test doubles for the firecrawl client.
package mocks

import (
	"context"

	firecrawl "github.com/sells-group/catalog-sync/pkg/firecrawl"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Scrape provides a mock function with given fields: ctx, req
func (_m *MockClient) Scrape(ctx context.Context, req firecrawl.ScrapeRequest) (*firecrawl.ScrapeResponse, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Scrape")
	}

	var r0 *firecrawl.ScrapeResponse
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, firecrawl.ScrapeRequest) (*firecrawl.ScrapeResponse, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, firecrawl.ScrapeRequest) *firecrawl.ScrapeResponse); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*firecrawl.ScrapeResponse)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, firecrawl.ScrapeRequest) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
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
