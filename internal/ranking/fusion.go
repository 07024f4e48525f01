package ranking

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Resolver reconciles one entity's raw field bundle with its ranking-index
// score into a single authoritative status. It performs no I/O and is
// deterministic for fixed inputs and a fixed clock.
//
// Each fused value comes from an ordered list of sources; the first source
// that yields a usable value wins. The index score is the final fallback
// for the threat level and also drives two stale-record overrides:
//
//   - a threat level of 0 with a positive index score is treated as a
//     stale detail record, and the index score is used instead;
//   - a last-seen of 0 with a positive index score means the liveness
//     write failed while a scoring write succeeded, so the entity is
//     reported as online now.
type Resolver struct {
	// ActiveWindow is the maximum gap between liveness signals before an
	// entity counts as offline.
	ActiveWindow time.Duration

	// HighRiskThreshold is the threat level at or above which an online
	// entity is labeled suspicious.
	HighRiskThreshold int

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// NewResolver returns a resolver with the given classification constants.
func NewResolver(activeWindow time.Duration, highRiskThreshold int) *Resolver {
	return &Resolver{
		ActiveWindow:      activeWindow,
		HighRiskThreshold: highRiskThreshold,
	}
}

// numberSource names one place a numeric field may come from.
type numberSource struct {
	name    string
	extract func(b RawBundle) (float64, bool)
}

// stringSource names one place a string field may come from.
type stringSource struct {
	name    string
	extract func(b RawBundle) (string, bool)
}

// threatSources is the threat-level priority order. The summary blob beats
// the dedicated scalar, which beats the hash field. The index score is
// applied as the final fallback in Fuse, not listed here.
var threatSources = []numberSource{
	{"summary.avg_bot_probability", func(b RawBundle) (float64, bool) {
		return summaryNumber(b.Summary, "avg_bot_probability")
	}},
	{"summary.avg_score", func(b RawBundle) (float64, bool) {
		return summaryNumber(b.Summary, "avg_score")
	}},
	{"threat_scalar", func(b RawBundle) (float64, bool) {
		if b.Threat != nil && isFinite(*b.Threat) {
			return *b.Threat, true
		}
		return 0, false
	}},
	{"hash.threat_level", func(b RawBundle) (float64, bool) {
		return hashNumber(b.Fields, "threat_level")
	}},
}

// lastSeenSources is the last-seen priority order. A source only wins with
// a nonzero parseable value, so a zeroed hash field falls through to the
// summary blob.
var lastSeenSources = []numberSource{
	{"hash.last_seen", func(b RawBundle) (float64, bool) {
		return hashNumber(b.Fields, "last_seen")
	}},
	{"summary.last_seen", func(b RawBundle) (float64, bool) {
		return summaryNumber(b.Summary, "last_seen")
	}},
	{"summary.updated_at", func(b RawBundle) (float64, bool) {
		return summaryNumber(b.Summary, "updated_at")
	}},
}

// nameSources is the display-name priority order. Fuse falls back to a
// name derived from the id, so the resolved name is never empty.
var nameSources = []stringSource{
	{"summary.device_name", func(b RawBundle) (string, bool) {
		if b.Summary == nil {
			return "", false
		}
		s, ok := b.Summary["device_name"].(string)
		return s, ok && s != ""
	}},
	{"hash.player_nickname", func(b RawBundle) (string, bool) {
		s := b.Fields["player_nickname"]
		return s, s != ""
	}},
	{"hash.device_name", func(b RawBundle) (string, bool) {
		s := b.Fields["device_name"]
		return s, s != ""
	}},
}

// Fuse produces the authoritative entity view for one raw bundle and its
// current index score.
func (r *Resolver) Fuse(id string, b RawBundle, rankScore float64) Entity {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	threat := rankScore
	for _, src := range threatSources {
		if v, ok := src.extract(b); ok {
			threat = v
			break
		}
	}
	level := clampLevel(math.Round(threat))
	if level == 0 && rankScore > 0 {
		// Zero threat with a positive index score means the detail
		// records lag behind the index; trust the index.
		level = clampLevel(math.Round(rankScore))
	}

	lastSeen := resolveLastSeen(b)
	online := false
	switch {
	case lastSeen == 0 && rankScore > 0:
		// Liveness write lost, scoring write landed. Prefer showing
		// activity over showing staleness.
		online = true
		lastSeen = now().Unix()
	case lastSeen > 0:
		online = now().UnixMilli()-lastSeen*1000 < r.ActiveWindow.Milliseconds()
	}

	status := StatusOffline
	if online {
		status = StatusOnline
		if level >= r.HighRiskThreshold {
			status = StatusSuspicious
		}
	}

	name := ""
	for _, src := range nameSources {
		if s, ok := src.extract(b); ok {
			name = s
			break
		}
	}
	if name == "" {
		name = fallbackName(id)
	}

	return Entity{
		ID:          id,
		Name:        name,
		ThreatLevel: level,
		Online:      online,
		Status:      status,
		LastSeen:    lastSeen,
		IPAddress:   b.Fields["ip_address"],
		RankScore:   rankScore,
		Detections:  Detections{Critical: b.Critical, Warning: b.Warning},
		Categories:  b.Categories,
	}
}

// resolveLastSeen picks and normalizes the last-seen timestamp in epoch
// seconds. Values above 1e12 are treated as milliseconds; non-finite or
// non-positive values normalize to 0, meaning "never seen".
func resolveLastSeen(b RawBundle) int64 {
	raw := 0.0
	for _, src := range lastSeenSources {
		if v, ok := src.extract(b); ok && v != 0 {
			raw = v
			break
		}
	}
	if !isFinite(raw) || raw <= 0 {
		return 0
	}
	if raw > 1e12 {
		raw = raw / 1000
	}
	return int64(raw)
}

func clampLevel(v float64) int {
	if !isFinite(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return int(v)
}

// fallbackName derives a stable display name from the entity id.
func fallbackName(id string) string {
	tail := id
	if len(tail) > 6 {
		tail = tail[len(tail)-6:]
	}
	return fmt.Sprintf("Player-%s", tail)
}

func summaryNumber(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		if isFinite(v) {
			return v, true
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil && isFinite(f) {
			return f, true
		}
	}
	return 0, false
}

func hashNumber(fields map[string]string, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok || v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || !isFinite(f) {
		return 0, false
	}
	return f, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
