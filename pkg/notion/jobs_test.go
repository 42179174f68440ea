package notion_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-sync/pkg/notion"
	"github.com/sells-group/catalog-sync/pkg/notion/mocks"
)

func runFilter(runID string) any {
	return mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		pf, ok := req.Filter.(notionapi.PropertyFilter)
		return ok && pf.Property == notion.PropRunID && pf.RichText != nil && pf.RichText.Equals == runID
	})
}

func TestJobPageProperties(t *testing.T) {
	started := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	props := notion.JobPage{
		Title:     "price_refresh run-1",
		RunID:     "run-1",
		JobType:   "price_refresh",
		Status:    "completed",
		Processed: 10,
		Succeeded: 9,
		Failed:    1,
		Values:    7,
		LastError: strings.Repeat("x", 2500),
		StartedAt: &started,
	}.Properties()

	title, ok := props[notion.PropName].(notionapi.TitleProperty)
	require.True(t, ok)
	assert.Equal(t, "price_refresh run-1", title.Title[0].Text.Content)

	processed, ok := props[notion.PropProcessed].(notionapi.NumberProperty)
	require.True(t, ok)
	assert.Equal(t, 10.0, processed.Number)

	lastErr, ok := props[notion.PropLastError].(notionapi.RichTextProperty)
	require.True(t, ok)
	assert.Len(t, lastErr.RichText[0].Text.Content, 2000)

	assert.Contains(t, props, notion.PropStarted)
	assert.NotContains(t, props, notion.PropFinished)
}

func TestJobPageProperties_OmitsEmptyError(t *testing.T) {
	props := notion.JobPage{RunID: "run-1", Status: "running"}.Properties()
	assert.NotContains(t, props, notion.PropLastError)
}

func TestUpsertJobPage_Creates(t *testing.T) {
	c := mocks.NewMockClient(t)
	ctx := context.Background()

	c.On("QueryDatabase", ctx, "db-1", runFilter("run-1")).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	c.On("CreatePage", ctx, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		return req.Parent.DatabaseID == notionapi.DatabaseID("db-1")
	})).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	id, err := notion.UpsertJobPage(ctx, c, "db-1", notion.JobPage{RunID: "run-1", Status: "running"})
	require.NoError(t, err)
	assert.Equal(t, "page-1", id)
}

func TestUpsertJobPage_Updates(t *testing.T) {
	c := mocks.NewMockClient(t)
	ctx := context.Background()

	c.On("QueryDatabase", ctx, "db-1", runFilter("run-1")).
		Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "page-1"}}}, nil).Once()
	c.On("UpdatePage", ctx, "page-1", mock.AnythingOfType("*notionapi.PageUpdateRequest")).
		Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	id, err := notion.UpsertJobPage(ctx, c, "db-1", notion.JobPage{RunID: "run-1", Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, "page-1", id)
}

func TestUpsertJobPage_QueryError(t *testing.T) {
	c := mocks.NewMockClient(t)
	ctx := context.Background()

	c.On("QueryDatabase", ctx, "db-1", runFilter("run-1")).
		Return(nil, assert.AnError).Once()

	_, err := notion.UpsertJobPage(ctx, c, "db-1", notion.JobPage{RunID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: find job page run-1")
}

func TestUpsertJobPage_CreateError(t *testing.T) {
	c := mocks.NewMockClient(t)
	ctx := context.Background()

	c.On("QueryDatabase", ctx, "db-1", runFilter("run-1")).
		Return(&notionapi.DatabaseQueryResponse{}, nil).Once()
	c.On("CreatePage", ctx, mock.AnythingOfType("*notionapi.PageCreateRequest")).
		Return(nil, assert.AnError).Once()

	_, err := notion.UpsertJobPage(ctx, c, "db-1", notion.JobPage{RunID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create job page")
}
