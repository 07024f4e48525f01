// Package ranking implements the ranking-and-fusion aggregation engine:
// a score-ordered view over monitored players/devices, windowed pagination
// through it, batched detail fetches, and reconciliation of conflicting
// per-entity records into one authoritative status.
//
// The engine holds no state between requests. Every page fetch re-derives
// its answer from the ranking index and the detail store, tolerating the
// two drifting apart between writes.
package ranking

import (
	"context"
	"encoding/json"
)

// Status labels produced by the fusion resolver.
const (
	StatusOnline     = "online"
	StatusOffline    = "offline"
	StatusSuspicious = "suspicious"
)

// Entity is the fused, authoritative view of one monitored player/device.
// It is recomputed on every read and never persisted.
type Entity struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	ThreatLevel int             `json:"threatLevel"`
	Online      bool            `json:"isOnline"`
	Status      string          `json:"status"`
	LastSeen    int64           `json:"lastSeen"` // epoch seconds, 0 = never seen
	IPAddress   string          `json:"ipAddress,omitempty"`
	RankScore   float64         `json:"rankScore"`
	Detections  Detections      `json:"detections"`
	Categories  json.RawMessage `json:"categories,omitempty"`
}

// Detections holds the per-entity detection counters.
type Detections struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
}

// Page is one window of the ranked view.
//
// Total reflects the count after the online/threat post-filter over the
// fetched window, not the raw index cardinality. Callers must not assume
// Total equals the index size.
type Page struct {
	Entities []Entity `json:"entities"`
	Offset   int      `json:"offset"`
	Limit    int      `json:"limit"`
	Total    int      `json:"total"`
	HasMore  bool     `json:"hasMore"`
}

// RawBundle is the set of independently-updated fields fetched for one
// entity in a single batched round trip. Any field may be missing; the
// fusion resolver has a defined default for every access.
type RawBundle struct {
	// Fields is the primary hash merged over the legacy hash, with the
	// primary record taking precedence per field.
	Fields map[string]string

	// Summary is the decoded summary blob. Nil when absent or malformed.
	Summary map[string]any

	// Threat is the dedicated threat scalar. Nil when absent or unparseable.
	Threat *float64

	// Critical and Warning are the detection counters.
	Critical int
	Warning  int

	// Categories is the category-summary blob, passed through verbatim.
	// Nil when absent or malformed.
	Categories json.RawMessage
}

// RankedEntry is one (id, score) pair from a ranked set.
type RankedEntry struct {
	ID    string
	Score float64
}

// RankingIndex is the score-ordered membership structure answering
// "who is top-N" without scanning all entities.
type RankingIndex interface {
	// Card returns the number of entries in the index.
	Card(ctx context.Context) (int64, error)

	// TopRange returns entries [start, stop] by rank, highest score first.
	TopRange(ctx context.Context, start, stop int64) ([]RankedEntry, error)

	// Score returns the current score for an id, 0 when absent.
	Score(ctx context.Context, id string) (float64, error)

	// RebuildBatch upserts the threat and last-seen ranked sets in one
	// pipelined write. Upserts are keyed by id, so replays are idempotent.
	RebuildBatch(ctx context.Context, threat, lastSeen []RankedEntry) error
}

// HashFuture and StringFuture are pending results of queued batch reads.
// The go-redis command types satisfy these directly.
type HashFuture interface {
	Result() (map[string]string, error)
}

// StringFuture is the pending result of a queued scalar read.
type StringFuture interface {
	Result() (string, error)
}

// DetailBatch queues heterogeneous per-entity reads and executes them as a
// single pipelined network exchange. Each future carries its own error, so
// one failed read never poisons the rest of the batch.
type DetailBatch interface {
	QueuePrimary(id string) HashFuture
	QueueLegacy(id string) HashFuture
	QueueSummary(id string) StringFuture
	QueueThreat(id string) StringFuture
	QueueCritical(id string) StringFuture
	QueueWarning(id string) StringFuture
	QueueCategories(id string) StringFuture

	// Exec runs the batch. It returns an error only for transport-level
	// failures; per-operation misses are reported by the futures.
	Exec(ctx context.Context) error
}

// DetailStore provides access to the raw per-entity records.
type DetailStore interface {
	// NewBatch starts an empty pipelined batch.
	NewBatch() DetailBatch

	// ScanIDs enumerates all known entity ids (full scan, rebuild only).
	ScanIDs(ctx context.Context) ([]string, error)
}
