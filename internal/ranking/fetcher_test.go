package ranking

import (
	"context"
	"errors"
	"testing"
)

// Fakes for exercising the fetcher without a backing store. Each future
// settles immediately with canned data or a canned error.

type fakeHash struct {
	m   map[string]string
	err error
}

func (f fakeHash) Result() (map[string]string, error) { return f.m, f.err }

type fakeString struct {
	s   string
	err error
}

func (f fakeString) Result() (string, error) { return f.s, f.err }

// fakeRecord is the canned per-id detail data.
type fakeRecord struct {
	primary    fakeHash
	legacy     fakeHash
	summary    fakeString
	threat     fakeString
	critical   fakeString
	warning    fakeString
	categories fakeString
}

type fakeDetailStore struct {
	records map[string]fakeRecord
	execErr error
}

func (s *fakeDetailStore) NewBatch() DetailBatch { return &fakeBatch{store: s} }

func (s *fakeDetailStore) ScanIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}

type fakeBatch struct {
	store *fakeDetailStore
}

func (b *fakeBatch) QueuePrimary(id string) HashFuture      { return b.store.records[id].primary }
func (b *fakeBatch) QueueLegacy(id string) HashFuture       { return b.store.records[id].legacy }
func (b *fakeBatch) QueueSummary(id string) StringFuture    { return b.store.records[id].summary }
func (b *fakeBatch) QueueThreat(id string) StringFuture     { return b.store.records[id].threat }
func (b *fakeBatch) QueueCritical(id string) StringFuture   { return b.store.records[id].critical }
func (b *fakeBatch) QueueWarning(id string) StringFuture    { return b.store.records[id].warning }
func (b *fakeBatch) QueueCategories(id string) StringFuture { return b.store.records[id].categories }
func (b *fakeBatch) Exec(ctx context.Context) error         { return b.store.execErr }

var errMiss = errors.New("key miss")

// emptyRecord models an id with no records at all: every future misses.
func emptyRecord() fakeRecord {
	return fakeRecord{
		primary:    fakeHash{err: errMiss},
		legacy:     fakeHash{err: errMiss},
		summary:    fakeString{err: errMiss},
		threat:     fakeString{err: errMiss},
		critical:   fakeString{err: errMiss},
		warning:    fakeString{err: errMiss},
		categories: fakeString{err: errMiss},
	}
}

// TestFetchManyOrderPreserved tests one-to-one ordering with the input ids
func TestFetchManyOrderPreserved(t *testing.T) {
	store := &fakeDetailStore{records: map[string]fakeRecord{
		"a": {primary: fakeHash{m: map[string]string{"device_name": "alpha"}}},
		"b": {primary: fakeHash{m: map[string]string{"device_name": "bravo"}}},
		"c": {primary: fakeHash{m: map[string]string{"device_name": "charlie"}}},
	}}
	f := NewFetcher(store)

	bundles, err := f.FetchMany(context.Background(), []string{"c", "a", "b"})
	if err != nil {
		t.Fatalf("FetchMany failed: %v", err)
	}
	if len(bundles) != 3 {
		t.Fatalf("Expected 3 bundles, got %d", len(bundles))
	}

	want := []string{"charlie", "alpha", "bravo"}
	for i, name := range want {
		if bundles[i].Fields["device_name"] != name {
			t.Errorf("Bundle %d: Expected device_name '%s', got '%s'", i, name, bundles[i].Fields["device_name"])
		}
	}
}

// TestFetchManyFieldIsolation tests that one failed read defaults its own
// field without touching the rest of the bundle or other ids
func TestFetchManyFieldIsolation(t *testing.T) {
	store := &fakeDetailStore{records: map[string]fakeRecord{
		"broken": {
			primary: fakeHash{m: map[string]string{"player_nickname": "still-here"}},
			summary: fakeString{err: errMiss},
			threat:  fakeString{s: "12"},
		},
		"healthy": {
			summary: fakeString{s: `{"avg_score": 50}`},
		},
	}}
	f := NewFetcher(store)

	bundles, err := f.FetchMany(context.Background(), []string{"broken", "healthy"})
	if err != nil {
		t.Fatalf("FetchMany failed: %v", err)
	}

	broken := bundles[0]
	if broken.Summary != nil {
		t.Error("Failed summary read should default to nil")
	}
	if broken.Fields["player_nickname"] != "still-here" {
		t.Error("Hash read should survive a failed summary read on the same id")
	}
	if broken.Threat == nil || *broken.Threat != 12 {
		t.Error("Threat scalar should survive a failed summary read on the same id")
	}

	healthy := bundles[1]
	if healthy.Summary == nil || healthy.Summary["avg_score"] != 50.0 {
		t.Error("Healthy id should be unaffected by another id's failed read")
	}
}

// TestFetchManyLegacyMerge tests that the primary hash wins per field over
// the legacy hash
func TestFetchManyLegacyMerge(t *testing.T) {
	store := &fakeDetailStore{records: map[string]fakeRecord{
		"x": {
			primary: fakeHash{m: map[string]string{"device_name": "new-name"}},
			legacy:  fakeHash{m: map[string]string{"device_name": "old-name", "ip_address": "10.0.0.1"}},
		},
	}}
	f := NewFetcher(store)

	bundles, err := f.FetchMany(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("FetchMany failed: %v", err)
	}

	fields := bundles[0].Fields
	if fields["device_name"] != "new-name" {
		t.Errorf("Expected primary 'new-name' to win, got '%s'", fields["device_name"])
	}
	if fields["ip_address"] != "10.0.0.1" {
		t.Errorf("Expected legacy-only field retained, got '%s'", fields["ip_address"])
	}
}

// TestFetchManyMalformedBlobs tests that broken JSON never raises
func TestFetchManyMalformedBlobs(t *testing.T) {
	store := &fakeDetailStore{records: map[string]fakeRecord{
		"x": {
			summary:    fakeString{s: `{not json`},
			categories: fakeString{s: `[broken`},
			threat:     fakeString{s: "not-a-number"},
			critical:   fakeString{s: "-5"},
			warning:    fakeString{s: "abc"},
		},
	}}
	f := NewFetcher(store)

	bundles, err := f.FetchMany(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("FetchMany failed: %v", err)
	}

	b := bundles[0]
	if b.Summary != nil {
		t.Error("Malformed summary should default to nil")
	}
	if b.Categories != nil {
		t.Error("Malformed categories should default to nil")
	}
	if b.Threat != nil {
		t.Error("Unparseable threat scalar should default to nil")
	}
	if b.Critical != 0 || b.Warning != 0 {
		t.Errorf("Bad counters should default to 0, got %d/%d", b.Critical, b.Warning)
	}
}

// TestFetchManyAllMissing tests an id with no records at all
func TestFetchManyAllMissing(t *testing.T) {
	store := &fakeDetailStore{records: map[string]fakeRecord{"ghost": emptyRecord()}}
	f := NewFetcher(store)

	bundles, err := f.FetchMany(context.Background(), []string{"ghost"})
	if err != nil {
		t.Fatalf("FetchMany failed: %v", err)
	}
	b := bundles[0]
	if len(b.Fields) != 0 || b.Summary != nil || b.Threat != nil || b.Categories != nil {
		t.Errorf("All-missing id should yield an empty bundle, got %+v", b)
	}
}

// TestFetchManyExecError tests that a transport failure fails the batch
func TestFetchManyExecError(t *testing.T) {
	store := &fakeDetailStore{
		records: map[string]fakeRecord{"x": {}},
		execErr: errors.New("connection refused"),
	}
	f := NewFetcher(store)

	if _, err := f.FetchMany(context.Background(), []string{"x"}); err == nil {
		t.Error("Expected transport-level error to propagate")
	}
}

// TestFetchManyEmptyInput tests the no-ids fast path
func TestFetchManyEmptyInput(t *testing.T) {
	f := NewFetcher(&fakeDetailStore{})

	bundles, err := f.FetchMany(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchMany failed: %v", err)
	}
	if bundles != nil {
		t.Errorf("Expected nil bundles for empty input, got %v", bundles)
	}
}
