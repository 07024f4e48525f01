package ranking

import (
	"context"
	"log"
)

// Rebuild reconstructs the ranking index from the raw detail records and
// returns the top of the rebuilt view. It is invoked when the index
// reports zero cardinality and is safe to run concurrently: upserts are
// keyed by id, so two racing rebuilds converge on the same index.
//
// Entities that are offline with zero threat are dropped from the rebuilt
// index; this is the index's implicit garbage collection.
func (e *Engine) Rebuild(ctx context.Context, limit int) Page {
	rebuildTotal.Inc()
	if limit < 1 {
		limit = 1
	}

	ids, err := e.details.ScanIDs(ctx)
	if err != nil {
		log.Printf("⚠️ Rebuild scan failed: %v", err)
		return emptyPage(limit, 0)
	}
	if len(ids) == 0 {
		return emptyPage(limit, 0)
	}

	bundles, err := e.fetcher.FetchMany(ctx, ids)
	if err != nil {
		log.Printf("⚠️ Rebuild detail fetch failed for %d ids: %v", len(ids), err)
		return emptyPage(limit, 0)
	}

	// No index entries exist yet, so every bundle fuses with score 0.
	n := min(len(ids), len(bundles))
	kept := make([]Entity, 0, n)
	var threat, lastSeen []RankedEntry
	for i := 0; i < n; i++ {
		ent := e.resolver.Fuse(ids[i], bundles[i], 0)
		if ent.ThreatLevel <= 0 && !ent.Online {
			continue
		}
		kept = append(kept, ent)
		threat = append(threat, RankedEntry{ID: ent.ID, Score: float64(ent.ThreatLevel)})
		lastSeen = append(lastSeen, RankedEntry{ID: ent.ID, Score: float64(ent.LastSeen) * 1000})
	}

	if len(threat) > 0 {
		if err := e.index.RebuildBatch(ctx, threat, lastSeen); err != nil {
			log.Printf("⚠️ Rebuild index write failed: %v", err)
			return emptyPage(limit, 0)
		}
	}
	log.Printf("🔧 Ranking index rebuilt: %d of %d entities kept", len(kept), len(ids))
	indexSize.Set(float64(len(kept)))

	sortEntities(kept)
	total := len(kept)
	top := kept[:min(limit, total)]

	return Page{
		Entities: top,
		Offset:   0,
		Limit:    limit,
		Total:    total,
		HasMore:  len(top) < total,
	}
}
