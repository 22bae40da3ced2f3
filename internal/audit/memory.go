package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback trail used when no database is
// configured. Bounded by max events and a retention window; retention
// sweeps are rate-limited to once per hour.
type MemoryStore struct {
	mu          sync.Mutex
	events      []*Event
	maxEvents   int
	retention   time.Duration
	lastCleanup time.Time
	nextID      int64
	signer      *Signer
}

// NewMemoryStore creates a bounded in-memory audit store.
func NewMemoryStore(cfg *Config) *MemoryStore {
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 10000
	}
	return &MemoryStore{
		maxEvents:   maxEvents,
		retention:   retention,
		lastCleanup: time.Now(),
		signer:      NewSigner(cfg.SigningKey),
	}
}

// Record signs and appends an event.
func (m *MemoryStore) Record(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e.ID = m.nextID
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	m.signer.Sign(e)
	m.events = append(m.events, e)

	m.cleanupLocked(false)
	return nil
}

// Query returns events matching the filter, oldest first.
func (m *MemoryStore) Query(_ context.Context, f Filter) ([]*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Event
	for _, e := range m.events {
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Severity != "" && e.Severity != f.Severity {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Stats summarizes the stored events.
func (m *MemoryStore) Stats(_ context.Context) (*Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := &Stats{
		TotalEvents: int64(len(m.events)),
		ByType:      make(map[string]int64),
		BySeverity:  make(map[string]int64),
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	for _, e := range m.events {
		if e.Timestamp.After(cutoff) {
			stats.Last24h++
			stats.ByType[e.Type]++
			stats.BySeverity[e.Severity]++
		}
	}
	return stats, nil
}

// Verify checks an event's signature against the store's signer.
func (m *MemoryStore) Verify(e *Event) bool {
	return m.signer.Verify(e)
}

// Cleanup applies the retention policy immediately.
func (m *MemoryStore) Cleanup(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupLocked(true)
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error { return nil }

// cleanupLocked drops events past retention and trims to max size.
// Callers hold m.mu. Retention sweeps are hourly unless forced; the
// size cap is enforced on every call.
func (m *MemoryStore) cleanupLocked(force bool) {
	now := time.Now()

	if force || now.Sub(m.lastCleanup) >= time.Hour {
		cutoff := now.Add(-m.retention)
		kept := m.events[:0]
		for _, e := range m.events {
			if e.Timestamp.After(cutoff) {
				kept = append(kept, e)
			}
		}
		m.events = kept
		m.lastCleanup = now
	}

	if len(m.events) > m.maxEvents {
		m.events = append([]*Event(nil), m.events[len(m.events)-m.maxEvents:]...)
	}
}
