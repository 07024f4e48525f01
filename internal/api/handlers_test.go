package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"threatwatch/internal/ranking"
)

// mockEngine records the arguments of the last call and serves canned data.
type mockEngine struct {
	page      ranking.Page
	entity    ranking.Entity
	known     bool
	indexSize int64

	lastLimit  int
	lastOffset int
}

func (m *mockEngine) GetPage(ctx context.Context, limit, offset int) ranking.Page {
	m.lastLimit = limit
	m.lastOffset = offset
	return m.page
}

func (m *mockEngine) GetEntity(ctx context.Context, id string) (ranking.Entity, bool) {
	return m.entity, m.known
}

func (m *mockEngine) IndexSize(ctx context.Context) int64 {
	return m.indexSize
}

func newTestServer(t *testing.T, engine EngineInterface) *httptest.Server {
	t.Helper()
	router := NewRouter(RouterConfig{
		Engine:         engine,
		DisableLogging: true,
		RateLimitConfig: &RateLimitConfig{
			RequestsPerSecond: 1000, // High limit for tests
			Burst:             1000,
		},
	})
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

// TestHandleGetPlayers tests the page endpoint returns the engine's page
func TestHandleGetPlayers(t *testing.T) {
	engine := &mockEngine{page: ranking.Page{
		Entities: []ranking.Entity{{ID: "A", Name: "Anton", ThreatLevel: 80, Online: true, Status: "suspicious"}},
		Offset:   0,
		Limit:    25,
		Total:    1,
	}}
	ts := newTestServer(t, engine)

	resp, err := http.Get(ts.URL + "/api/players")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var page ranking.Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("Decoding page failed: %v", err)
	}
	if len(page.Entities) != 1 || page.Entities[0].ID != "A" {
		t.Errorf("Expected page with entity A, got %+v", page.Entities)
	}
	if engine.lastLimit != 25 || engine.lastOffset != 0 {
		t.Errorf("Expected defaults limit=25 offset=0, engine saw limit=%d offset=%d", engine.lastLimit, engine.lastOffset)
	}
}

// TestHandleGetPlayersClampsLimit tests the caller-side clamps before the engine
func TestHandleGetPlayersClampsLimit(t *testing.T) {
	engine := &mockEngine{}
	ts := newTestServer(t, engine)

	resp, err := http.Get(ts.URL + "/api/players?limit=100000&offset=-3")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if engine.lastLimit != 100 {
		t.Errorf("Expected limit clamped to 100, engine saw %d", engine.lastLimit)
	}
	if engine.lastOffset != 0 {
		t.Errorf("Expected negative offset clamped to 0, engine saw %d", engine.lastOffset)
	}

	resp, err = http.Get(ts.URL + "/api/players?limit=0")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if engine.lastLimit != 1 {
		t.Errorf("Expected limit floored to 1, engine saw %d", engine.lastLimit)
	}
}

// TestHandleGetPlayer tests the single-entity endpoint
func TestHandleGetPlayer(t *testing.T) {
	engine := &mockEngine{
		entity: ranking.Entity{ID: "A", Name: "Anton", ThreatLevel: 42},
		known:  true,
	}
	ts := newTestServer(t, engine)

	resp, err := http.Get(ts.URL + "/api/players/A")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var ent ranking.Entity
	if err := json.NewDecoder(resp.Body).Decode(&ent); err != nil {
		t.Fatalf("Decoding entity failed: %v", err)
	}
	if ent.ID != "A" || ent.ThreatLevel != 42 {
		t.Errorf("Expected entity A with threat 42, got %+v", ent)
	}
}

// TestHandleGetPlayerNotFound tests the 404 path for unknown entities
func TestHandleGetPlayerNotFound(t *testing.T) {
	ts := newTestServer(t, &mockEngine{known: false})

	resp, err := http.Get(ts.URL + "/api/players/nobody")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}

// TestHandleGetStats tests the stats endpoint
func TestHandleGetStats(t *testing.T) {
	ts := newTestServer(t, &mockEngine{indexSize: 7})

	resp, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var stats map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("Decoding stats failed: %v", err)
	}
	if stats["indexSize"] != 7 {
		t.Errorf("Expected indexSize 7, got %v", stats["indexSize"])
	}
}

// TestHealthEndpoint tests the health check
func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, &mockEngine{})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

// TestRateLimitRejects tests that a tight limiter returns 429
func TestRateLimitRejects(t *testing.T) {
	router := NewRouter(RouterConfig{
		Engine:         &mockEngine{},
		DisableLogging: true,
		RateLimitConfig: &RateLimitConfig{
			RequestsPerSecond: 1,
			Burst:             1,
		},
	})
	ts := httptest.NewServer(router)
	defer ts.Close()

	// First request consumes the burst, second must be rejected
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", resp.StatusCode)
	}
}
