package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestCatalogItemLabel(t *testing.T) {
	item := &CatalogItem{Name: "Batman", Series: "DC Comics", Number: strPtr("123")}
	assert.Equal(t, "Batman #123", item.Label())
	assert.Equal(t, "123", item.NumberValue())

	item.Number = nil
	assert.Equal(t, "Batman", item.Label())
	assert.Equal(t, "", item.NumberValue())
}

func TestNaturalKeyEqual(t *testing.T) {
	a := NaturalKey{Name: "Batman", Series: "DC Comics", Number: strPtr("123")}
	b := (&CatalogItem{Name: "Batman", Series: "DC Comics", Number: strPtr("123")}).Key()
	assert.True(t, a.Equal(b))

	assert.False(t, a.Equal(NaturalKey{Name: "Batman", Series: "DC Comics"}))
	assert.False(t, a.Equal(NaturalKey{Name: "Batman", Series: "Marvel", Number: strPtr("123")}))

	// Absent and empty numbers compare equal.
	assert.True(t, NaturalKey{Name: "x"}.Equal(NaturalKey{Name: "x", Number: strPtr("")}))
	assert.Equal(t, "Batman|DC Comics|123", a.String())
}

func TestMergeSources(t *testing.T) {
	assert.Equal(t, []string{"funko.com", "hobbydb.com"},
		MergeSources([]string{"hobbydb.com"}, []string{" funko.com ", "hobbydb.com", ""}))
	assert.Empty(t, MergeSources(nil, nil))
}

func TestMoney(t *testing.T) {
	m := NewMoney(47.499, "GBP")
	assert.InDelta(t, 47.50, m.Amount, 0.0001)
	assert.Equal(t, "47.50 GBP", m.String())
	assert.InDelta(t, 0.13, RoundMinor(0.125), 0.0001)
}

func TestJobTypeValid(t *testing.T) {
	assert.True(t, JobTypePriceRefresh.Valid())
	assert.True(t, JobTypeDiscovery.Valid())
	assert.False(t, JobType("backfill").Valid())
}

func TestJobStatusTerminal(t *testing.T) {
	tests := map[JobStatus]bool{
		JobStatusIdle:      false,
		JobStatusRunning:   false,
		JobStatusPaused:    true,
		JobStatusCompleted: true,
		JobStatusError:     true,
	}
	for s, want := range tests {
		assert.Equal(t, want, s.Terminal(), s)
	}
}

func TestIdleProgress(t *testing.T) {
	p := IdleProgress(JobTypeDiscovery)
	assert.Equal(t, JobStatusIdle, p.Status)
	assert.Equal(t, JobTypeDiscovery, p.JobType)
	assert.Empty(t, p.RunID)
}

func TestExtractionResultHasPrice(t *testing.T) {
	var nilRes *ExtractionResult
	assert.False(t, nilRes.HasPrice())
	assert.False(t, (&ExtractionResult{}).HasPrice())
	assert.True(t, (&ExtractionResult{Price: &Money{Amount: 1, Currency: "GBP"}}).HasPrice())
}
