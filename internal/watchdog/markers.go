package watchdog

import (
	"sync"
	"time"

	"github.com/leighmacdonald/watchdog/internal/clock"
	"github.com/leighmacdonald/watchdog/internal/store"
)

// Marker records why a player was flagged.
type Marker struct {
	Label  string
	Admin  store.PlayerIdentity
	Bans   int
	Server string
}

// MarkerSet is a concurrency safe set of flagged players keyed by player id. Markers older
// than the ttl are treated as absent, a zero ttl keeps them until taken.
type MarkerSet struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	markers map[string]markerEntry
}

type markerEntry struct {
	marker  Marker
	expires time.Time
}

func NewMarkerSet(clk clock.Clock, ttl time.Duration) *MarkerSet {
	return &MarkerSet{clock: clk, ttl: ttl, markers: map[string]markerEntry{}}
}

func (m *MarkerSet) Set(id string, marker Marker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := markerEntry{marker: marker}
	if m.ttl > 0 {
		entry.expires = m.clock.Now().Add(m.ttl)
	}

	m.markers[id] = entry
}

// lookup returns the live entry for id, dropping it when expired. Callers hold mu.
func (m *MarkerSet) lookup(id string) (markerEntry, bool) {
	entry, found := m.markers[id]
	if !found {
		return markerEntry{}, false
	}

	if !entry.expires.IsZero() && !m.clock.Now().Before(entry.expires) {
		delete(m.markers, id)

		return markerEntry{}, false
	}

	return entry, true
}

func (m *MarkerSet) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, found := m.lookup(id)

	return found
}

// Take removes and returns the marker, consuming it.
func (m *MarkerSet) Take(id string) (Marker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, found := m.lookup(id)
	if found {
		delete(m.markers, id)
	}

	return entry.marker, found
}

func (m *MarkerSet) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.markers, id)
}

// inflight tracks commands issued by the watchdog so their broadcast echoes are ignored. A key
// stays active while any command holding it is pending and for the window after one succeeded.
type inflight struct {
	mu     sync.Mutex
	window time.Duration
	keys   map[string]*inflightEntry
}

type inflightEntry struct {
	pending int
	expires time.Time
}

func newInflight(window time.Duration) *inflight {
	return &inflight{window: window, keys: map[string]*inflightEntry{}}
}

// begin marks a command as pending, it must be paired with a call to done.
func (f *inflight) begin(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, found := f.keys[key]
	if !found {
		entry = &inflightEntry{}
		f.keys[key] = entry
	}

	entry.pending++
}

// done releases a pending command. Only a successful command extends the window, a failed one
// leaves the state of the other holders untouched.
func (f *inflight) done(key string, now time.Time, succeeded bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, found := f.keys[key]
	if !found {
		return
	}

	if entry.pending > 0 {
		entry.pending--
	}

	if succeeded {
		entry.expires = now.Add(f.window)
	}

	if entry.pending == 0 && !now.Before(entry.expires) {
		delete(f.keys, key)
	}
}

func (f *inflight) active(key string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for k, entry := range f.keys {
		if entry.pending == 0 && !now.Before(entry.expires) {
			delete(f.keys, k)
		}
	}

	_, found := f.keys[key]

	return found
}

func inflightKey(server string, action store.Action, playerID string) string {
	return server + ":" + string(action) + ":" + playerID
}
