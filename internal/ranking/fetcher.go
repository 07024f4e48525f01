package ranking

import (
	"context"
	"encoding/json"
	"strconv"
)

// Fetcher resolves raw field bundles for a list of entity ids in one
// pipelined round trip against the detail store, regardless of how many
// ids are requested.
type Fetcher struct {
	store DetailStore
}

// NewFetcher creates a fetcher over the given detail store.
func NewFetcher(store DetailStore) *Fetcher {
	return &Fetcher{store: store}
}

// pendingBundle holds the seven queued reads for one entity id.
type pendingBundle struct {
	primary    HashFuture
	legacy     HashFuture
	summary    StringFuture
	threat     StringFuture
	critical   StringFuture
	warning    StringFuture
	categories StringFuture
}

// FetchMany fetches the raw bundles for ids, one-to-one with input order.
//
// Per-field failures are isolated: a missing or erroring read yields the
// zero value for that field only and never affects other ids. A
// transport-level failure of the whole exchange is returned as an error.
func (f *Fetcher) FetchMany(ctx context.Context, ids []string) ([]RawBundle, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	batch := f.store.NewBatch()
	pending := make([]pendingBundle, 0, len(ids))
	for _, id := range ids {
		pending = append(pending, pendingBundle{
			primary:    batch.QueuePrimary(id),
			legacy:     batch.QueueLegacy(id),
			summary:    batch.QueueSummary(id),
			threat:     batch.QueueThreat(id),
			critical:   batch.QueueCritical(id),
			warning:    batch.QueueWarning(id),
			categories: batch.QueueCategories(id),
		})
	}

	if err := batch.Exec(ctx); err != nil {
		return nil, err
	}

	bundles := make([]RawBundle, 0, len(ids))
	for _, p := range pending {
		bundles = append(bundles, materialize(p))
	}
	return bundles, nil
}

// materialize turns the seven settled futures into one bundle, defaulting
// every failed or absent field.
func materialize(p pendingBundle) RawBundle {
	primary, err := p.primary.Result()
	if err != nil {
		primary = nil
	}
	legacy, err := p.legacy.Result()
	if err != nil {
		legacy = nil
	}

	var b RawBundle
	b.Fields = mergeFields(legacy, primary)

	if raw, err := p.summary.Result(); err == nil && raw != "" {
		var m map[string]any
		if json.Unmarshal([]byte(raw), &m) == nil {
			b.Summary = m
		}
	}

	if raw, err := p.threat.Result(); err == nil && raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			b.Threat = &v
		}
	}

	b.Critical = parseCount(p.critical)
	b.Warning = parseCount(p.warning)

	if raw, err := p.categories.Result(); err == nil && raw != "" && json.Valid([]byte(raw)) {
		b.Categories = json.RawMessage(raw)
	}

	return b
}

// mergeFields overlays the primary hash onto the legacy hash, with the
// primary record winning per field.
func mergeFields(legacy, primary map[string]string) map[string]string {
	if len(legacy) == 0 && len(primary) == 0 {
		return map[string]string{}
	}
	merged := make(map[string]string, len(legacy)+len(primary))
	for k, v := range legacy {
		merged[k] = v
	}
	for k, v := range primary {
		merged[k] = v
	}
	return merged
}

func parseCount(fut StringFuture) int {
	raw, err := fut.Result()
	if err != nil || raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
