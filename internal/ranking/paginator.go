package ranking

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"threatwatch/internal/config"
)

// Engine answers "top-N right now" and "current status of this entity"
// over the ranking index and the detail store. It spawns no background
// workers; concurrent requests share nothing but the stores themselves.
type Engine struct {
	index    RankingIndex
	details  DetailStore
	fetcher  *Fetcher
	resolver *Resolver
	cfg      config.RankingConfig
}

// NewEngine wires an engine over the given stores.
func NewEngine(index RankingIndex, details DetailStore, cfg config.RankingConfig) *Engine {
	return &Engine{
		index:    index,
		details:  details,
		fetcher:  NewFetcher(details),
		resolver: NewResolver(cfg.ActiveWindow, cfg.HighRiskThreshold),
		cfg:      cfg,
	}
}

// Resolver exposes the engine's fusion resolver, mainly so callers can
// pin the clock in tests.
func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

// GetPage returns one window of the ranked view.
//
// The read window starts min(offset, limit) entries before the requested
// offset, so rank shifts caused by the post-filter are absorbed without a
// second round trip in the common case. Any store failure converts to the
// empty page here; errors never propagate past this boundary. Callers
// cannot distinguish "no data" from "store down", only the log line can.
func (e *Engine) GetPage(ctx context.Context, limit, offset int) Page {
	start := time.Now()
	defer func() { pageFetchDuration.Observe(time.Since(start).Seconds()) }()

	if limit < 1 {
		limit = 1
	}
	if offset < 0 {
		offset = 0
	}

	card, err := e.index.Card(ctx)
	if err != nil {
		log.Printf("⚠️ Ranking index unavailable: %v", err)
		return emptyPage(limit, offset)
	}
	indexSize.Set(float64(card))

	if card == 0 {
		return e.Rebuild(ctx, limit)
	}

	buffer := min(offset, limit)
	startIndex := offset - buffer
	relativeOffset := buffer
	chunk := max(limit*e.cfg.ChunkMultiplier, e.cfg.ChunkMinimum)
	target := relativeOffset + limit + buffer

	var collected []RankedEntry
	pos := int64(startIndex)
	for {
		entries, err := e.index.TopRange(ctx, pos, pos+int64(chunk)-1)
		if err != nil {
			if len(collected) == 0 {
				log.Printf("⚠️ Range read failed at rank %d: %v", pos, err)
				return emptyPage(limit, offset)
			}
			// No retries: proceed with what was already collected.
			log.Printf("⚠️ Range read failed at rank %d, serving partial window: %v", pos, err)
			break
		}
		collected = append(collected, entries...)
		if len(entries) < chunk || len(collected) >= target {
			break
		}
		pos += int64(chunk)
	}

	// Offset beyond the end of the index: serve the tail window instead
	// of nothing.
	tail := false
	if len(collected) == 0 && startIndex > 0 {
		from := max(card-int64(chunk), 0)
		entries, err := e.index.TopRange(ctx, from, card-1)
		if err != nil {
			log.Printf("⚠️ Tail range read failed: %v", err)
			return emptyPage(limit, offset)
		}
		collected = entries
		tail = true
	}
	if len(collected) == 0 {
		return emptyPage(limit, offset)
	}

	fused, err := e.resolveEntries(ctx, collected)
	if err != nil {
		log.Printf("⚠️ Detail fetch failed for %d ids: %v", len(collected), err)
		return emptyPage(limit, offset)
	}

	visible := filterVisible(fused)
	sortEntities(visible)
	total := len(visible)

	lo := relativeOffset
	if tail {
		lo = max(total-limit, 0)
	}
	lo = min(lo, total)
	hi := min(lo+limit, total)

	page := Page{
		Entities: visible[lo:hi],
		Offset:   offset,
		Limit:    limit,
		Total:    total,
	}
	page.HasMore = offset+len(page.Entities) < total
	return page
}

// GetEntity fetches and fuses a single entity. The second return value is
// false when nothing in the stores knows this id.
func (e *Engine) GetEntity(ctx context.Context, id string) (Entity, bool) {
	score, err := e.index.Score(ctx, id)
	if err != nil {
		score = 0
	}
	bundles, err := e.fetcher.FetchMany(ctx, []string{id})
	if err != nil || len(bundles) == 0 {
		return Entity{}, false
	}
	b := bundles[0]
	if len(b.Fields) == 0 && b.Summary == nil && b.Threat == nil && score <= 0 {
		return Entity{}, false
	}
	return e.resolver.Fuse(id, b, score), true
}

// IndexSize returns the current ranking-index cardinality, 0 on error.
func (e *Engine) IndexSize(ctx context.Context) int64 {
	n, err := e.index.Card(ctx)
	if err != nil {
		return 0
	}
	return n
}

// resolveEntries batch-fetches and fuses the collected index entries,
// preserving rank order. If fewer bundles than ids come back, the
// unresolved tail is skipped rather than indexed out of range.
func (e *Engine) resolveEntries(ctx context.Context, entries []RankedEntry) ([]Entity, error) {
	ids := make([]string, len(entries))
	for i, en := range entries {
		ids[i] = en.ID
	}
	bundles, err := e.fetcher.FetchMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	fetchBatchSize.Observe(float64(len(ids)))

	n := min(len(entries), len(bundles))
	fused := make([]Entity, 0, n)
	for i := 0; i < n; i++ {
		fused = append(fused, e.resolver.Fuse(entries[i].ID, bundles[i], entries[i].Score))
	}
	return fused, nil
}

// filterVisible drops entities that are offline with no evidence of ever
// having mattered: zero fused threat and zero index score.
func filterVisible(entities []Entity) []Entity {
	visible := make([]Entity, 0, len(entities))
	for _, ent := range entities {
		if !ent.Online && ent.ThreatLevel == 0 && ent.RankScore == 0 {
			continue
		}
		visible = append(visible, ent)
	}
	return visible
}

// sortEntities orders online-first, then threat level descending, then
// name ascending case-insensitively. Stable for a fixed snapshot.
func sortEntities(entities []Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		a, b := entities[i], entities[j]
		if a.Online != b.Online {
			return a.Online
		}
		if a.ThreatLevel != b.ThreatLevel {
			return a.ThreatLevel > b.ThreatLevel
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}

func emptyPage(limit, offset int) Page {
	return Page{Entities: []Entity{}, Offset: offset, Limit: limit}
}
