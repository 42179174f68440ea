package notion

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Property names of the job-log database.
const (
	PropName      = "Name"
	PropRunID     = "Run ID"
	PropJobType   = "Job Type"
	PropStatus    = "Status"
	PropProcessed = "Processed"
	PropSucceeded = "Succeeded"
	PropFailed    = "Failed"
	PropValues    = "Values Collected"
	PropLastError = "Last Error"
	PropStarted   = "Started"
	PropFinished  = "Finished"
)

// maxRichText bounds rich-text values; Notion rejects longer text blocks.
const maxRichText = 2000

// JobPage is one row of the job-log database.
type JobPage struct {
	Title      string
	RunID      string
	JobType    string
	Status     string
	Processed  int
	Succeeded  int
	Failed     int
	Values     int
	LastError  string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Properties converts the row into Notion page properties.
func (p JobPage) Properties() notionapi.Properties {
	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(p.Title),
		},
		PropRunID: notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(p.RunID),
		},
		PropJobType: notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: p.JobType},
		},
		PropStatus: notionapi.StatusProperty{
			Status: notionapi.Status{Name: p.Status},
		},
		PropProcessed: notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: float64(p.Processed)},
		PropSucceeded: notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: float64(p.Succeeded)},
		PropFailed:    notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: float64(p.Failed)},
		PropValues:    notionapi.NumberProperty{Type: notionapi.PropertyTypeNumber, Number: float64(p.Values)},
	}
	if p.LastError != "" {
		props[PropLastError] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(p.LastError),
		}
	}
	if p.StartedAt != nil {
		props[PropStarted] = dateProperty(*p.StartedAt)
	}
	if p.FinishedAt != nil {
		props[PropFinished] = dateProperty(*p.FinishedAt)
	}
	return props
}

// FindJobPage returns the ID of the page logging runID, or "" when none
// exists.
func FindJobPage(ctx context.Context, c Client, dbID, runID string) (string, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropRunID,
			RichText: &notionapi.TextFilterCondition{Equals: runID},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", eris.Wrapf(err, "notion: find job page %s", runID)
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

// UpsertJobPage updates the page logging the row's run, creating it when
// missing. It returns the page ID.
func UpsertJobPage(ctx context.Context, c Client, dbID string, row JobPage) (string, error) {
	pageID, err := FindJobPage(ctx, c, dbID, row.RunID)
	if err != nil {
		return "", err
	}

	if pageID != "" {
		if _, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: row.Properties()}); err != nil {
			return "", eris.Wrapf(err, "notion: update job page %s", row.RunID)
		}
		return pageID, nil
	}

	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: row.Properties(),
	})
	if err != nil {
		return "", eris.Wrapf(err, "notion: create job page %s", row.RunID)
	}
	return string(page.ID), nil
}

func richText(s string) []notionapi.RichText {
	if r := []rune(s); len(r) > maxRichText {
		s = string(r[:maxRichText])
	}
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
	}
}

func dateProperty(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t)
	return notionapi.DateProperty{
		Type: notionapi.PropertyTypeDate,
		Date: &notionapi.DateObject{Start: &d},
	}
}
