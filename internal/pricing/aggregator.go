// Package pricing turns raw price observations into price history rows and
// a canonical estimated value per catalog item.
package pricing

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/currency"

	"github.com/sells-group/catalog-sync/internal/extract"
	"github.com/sells-group/catalog-sync/internal/model"
)

// PriceStore is the persistence the aggregator needs.
type PriceStore interface {
	AppendObservations(ctx context.Context, obs []model.PriceObservation) error
	SetEstimatedValue(ctx context.Context, itemID string, value model.Money, at time.Time) error
}

// Result summarizes one aggregation call.
type Result struct {
	Accepted int          `json:"accepted"`
	Rejected int          `json:"rejected"`
	Median   *model.Money `json:"median,omitempty"`
	Updated  bool         `json:"updated"`
}

// Aggregator filters raw prices through the sanity band, appends the
// survivors to history and writes their median as the estimated value.
type Aggregator struct {
	store           PriceStore
	band            extract.Band
	defaultCurrency string
	log             *zap.Logger
	now             func() time.Time
}

// New creates an Aggregator. Observations that name no currency are tagged
// with defaultCurrency.
func New(st PriceStore, band extract.Band, defaultCurrency string) *Aggregator {
	cur := "GBP"
	if u, err := currency.ParseISO(strings.TrimSpace(defaultCurrency)); err == nil {
		cur = u.String()
	}
	return &Aggregator{
		store:           st,
		band:            band,
		defaultCurrency: cur,
		log:             zap.L().With(zap.String("component", "aggregator")),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Aggregate processes raw observations for one item. With zero survivors
// nothing is written and the prior estimated value is left untouched.
func (a *Aggregator) Aggregate(ctx context.Context, itemID string, raw []model.RawPrice) (*Result, error) {
	now := a.now()
	res := &Result{}

	var survivors []model.PriceObservation
	for _, rp := range raw {
		p, ok := extract.ParseInBand(rp.Value, a.band)
		if !ok {
			res.Rejected++
			a.log.Debug("rejected price",
				zap.String("item_id", itemID),
				zap.String("value", rp.Value),
				zap.String("source", rp.SourceName),
				zap.Stringer("band", a.band),
			)
			continue
		}
		cur := p.Currency
		if cur == "" {
			cur = a.defaultCurrency
		}
		survivors = append(survivors, model.PriceObservation{
			CatalogItemID: itemID,
			SourceName:    rp.SourceName,
			Price:         model.NewMoney(p.Amount, cur),
			Condition:     rp.Condition,
			ListingURL:    rp.ListingURL,
			ObservedAt:    now,
		})
	}
	res.Accepted = len(survivors)
	if len(survivors) == 0 {
		return res, nil
	}

	if err := a.store.AppendObservations(ctx, survivors); err != nil {
		return nil, eris.Wrapf(err, "pricing: append history for %s", itemID)
	}

	median := MedianOf(survivors)
	if err := a.store.SetEstimatedValue(ctx, itemID, median, now); err != nil {
		return nil, eris.Wrapf(err, "pricing: set estimated value for %s", itemID)
	}
	res.Median = &median
	res.Updated = true

	a.log.Debug("aggregated prices",
		zap.String("item_id", itemID),
		zap.Int("accepted", res.Accepted),
		zap.Int("rejected", res.Rejected),
		zap.Stringer("median", median),
	)
	return res, nil
}

// MedianOf returns the median amount of the observations in their dominant
// currency, the one carried by most observations (earliest wins a tie).
// Observations in other currencies are excluded from the median.
func MedianOf(obs []model.PriceObservation) model.Money {
	counts := make(map[string]int)
	dominant := ""
	for _, o := range obs {
		counts[o.Price.Currency]++
		if dominant == "" || counts[o.Price.Currency] > counts[dominant] {
			dominant = o.Price.Currency
		}
	}

	var amounts []float64
	for _, o := range obs {
		if o.Price.Currency == dominant {
			amounts = append(amounts, o.Price.Amount)
		}
	}
	return model.NewMoney(Median(amounts), dominant)
}

// Median returns the median of values, averaging the two middle values for
// an even count. It returns 0 for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
