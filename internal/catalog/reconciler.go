// Package catalog maps extraction results onto catalog items without
// creating duplicates or discarding known data.
package catalog

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-sync/internal/model"
	"github.com/sells-group/catalog-sync/internal/store"
)

// ErrMissingName is returned when a result has no usable title.
var ErrMissingName = eris.New("catalog: result has no name")

// ItemStore is the persistence the reconciler needs.
type ItemStore interface {
	FindByNaturalKey(ctx context.Context, key model.NaturalKey) (*model.CatalogItem, error)
	GetItem(ctx context.Context, id string) (*model.CatalogItem, error)
	InsertItem(ctx context.Context, item *model.CatalogItem) error
	UpdateItem(ctx context.Context, item *model.CatalogItem) error
}

// Result reports the outcome of reconciling one extraction result.
type Result struct {
	ItemID   string           `json:"item_id"`
	Inserted bool             `json:"inserted"`
	Key      model.NaturalKey `json:"key"`
}

// Reconciler upserts catalog items by natural key.
type Reconciler struct {
	store ItemStore
	log   *zap.Logger
	now   func() time.Time
}

// New creates a Reconciler.
func New(st ItemStore) *Reconciler {
	return &Reconciler{
		store: st,
		log:   zap.L().With(zap.String("component", "reconciler")),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile looks up the result's natural key and merges into the existing
// item, or inserts a new one. A concurrent insert of the same key is retried
// once as a merge.
func (r *Reconciler) Reconcile(ctx context.Context, res *model.ExtractionResult) (*Result, error) {
	if res == nil {
		return nil, ErrMissingName
	}
	key := KeyFor(res)
	if key.Name == "" {
		return nil, eris.Wrapf(ErrMissingName, "catalog: %s", res.SourceURL)
	}
	tag := Provenance(res.SourceURL)

	existing, err := r.store.FindByNaturalKey(ctx, key)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: lookup")
	}
	if existing != nil {
		return r.update(ctx, existing, res, key, tag)
	}

	item := NewItem(res, key, tag, r.now())
	err = r.store.InsertItem(ctx, item)
	if errors.Is(err, store.ErrDuplicate) {
		r.log.Debug("natural key inserted concurrently, merging", zap.Stringer("key", key))
		existing, err = r.store.FindByNaturalKey(ctx, key)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: lookup after duplicate")
		}
		if existing == nil {
			return nil, eris.Errorf("catalog: %s reported duplicate but not found", key)
		}
		return r.update(ctx, existing, res, key, tag)
	}
	if err != nil {
		return nil, eris.Wrap(err, "catalog: insert")
	}

	r.log.Debug("inserted catalog item", zap.String("id", item.ID), zap.Stringer("key", key))
	return &Result{ItemID: item.ID, Inserted: true, Key: key}, nil
}

// ReconcileKnown reconciles a result fetched for the stored item itemID.
// When the result's natural key matches no item, the result is merged into
// itemID instead of inserting a new item, so a page whose title drifted
// still refreshes the item it was fetched for. The stored key is kept.
func (r *Reconciler) ReconcileKnown(ctx context.Context, res *model.ExtractionResult, itemID string) (*Result, error) {
	if itemID == "" {
		return r.Reconcile(ctx, res)
	}
	if res == nil {
		return nil, ErrMissingName
	}
	key := KeyFor(res)
	if key.Name == "" {
		return nil, eris.Wrapf(ErrMissingName, "catalog: %s", res.SourceURL)
	}
	tag := Provenance(res.SourceURL)

	existing, err := r.store.FindByNaturalKey(ctx, key)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: lookup")
	}
	if existing != nil {
		return r.update(ctx, existing, res, key, tag)
	}

	known, err := r.store.GetItem(ctx, itemID)
	if errors.Is(err, store.ErrNotFound) {
		return r.Reconcile(ctx, res)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: get %s", itemID)
	}
	r.log.Debug("natural key drifted, merging into known item",
		zap.String("id", known.ID),
		zap.Stringer("stored_key", known.Key()),
		zap.Stringer("extracted_key", key),
	)
	return r.update(ctx, known, res, known.Key(), tag)
}

func (r *Reconciler) update(ctx context.Context, existing *model.CatalogItem, res *model.ExtractionResult, key model.NaturalKey, tag string) (*Result, error) {
	merged := Merge(existing, res, tag, r.now())
	if err := r.store.UpdateItem(ctx, merged); err != nil {
		return nil, eris.Wrapf(err, "catalog: update %s", existing.ID)
	}
	r.log.Debug("merged catalog item", zap.String("id", merged.ID), zap.Stringer("key", key))
	return &Result{ItemID: merged.ID, Key: key}, nil
}

// NewItem builds a catalog item for a key seen for the first time.
func NewItem(res *model.ExtractionResult, key model.NaturalKey, tag string, now time.Time) *model.CatalogItem {
	item := &model.CatalogItem{
		Name:        key.Name,
		Series:      key.Series,
		Number:      key.Number,
		Category:    CleanText(res.Category),
		Description: CleanText(res.Description),
		ImageURL:    res.ImageURL,
		SourceURL:   res.SourceURL,
		IsExclusive: res.IsExclusive,
		IsChase:     res.IsChase,
		IsVaulted:   res.IsVaulted,
		Variant:     CleanText(res.Variant),
		DataSources: model.MergeSources(nil, []string{tag}),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return item
}

// Merge returns a copy of existing updated with the fields present in res.
// Absent fields keep their stored value and flags are only ever set.
func Merge(existing *model.CatalogItem, res *model.ExtractionResult, tag string, now time.Time) *model.CatalogItem {
	merged := *existing
	merged.DataSources = slices.Clone(existing.DataSources)

	setIfPresent(&merged.Category, CleanText(res.Category))
	setIfPresent(&merged.Description, CleanText(res.Description))
	setIfPresent(&merged.ImageURL, res.ImageURL)
	setIfPresent(&merged.SourceURL, res.SourceURL)
	setIfPresent(&merged.Variant, CleanText(res.Variant))

	merged.IsExclusive = existing.IsExclusive || res.IsExclusive
	merged.IsChase = existing.IsChase || res.IsChase
	merged.IsVaulted = existing.IsVaulted || res.IsVaulted

	merged.DataSources = model.MergeSources(merged.DataSources, []string{tag})
	merged.UpdatedAt = now
	return &merged
}

func setIfPresent(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
