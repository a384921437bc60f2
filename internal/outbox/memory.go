package outbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps notifications in process; used by tests and local tooling.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]Notification
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]Notification)}
}

// Insert stages n.
func (m *MemoryStore) Insert(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[n.ID] = n
	return nil
}

// Get implements NotificationStore.
func (m *MemoryStore) Get(_ context.Context, id string) (Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return Notification{}, ErrNotFound
	}
	return n, nil
}

// MarkSent implements NotificationStore.
func (m *MemoryStore) MarkSent(_ context.Context, id, providerMessageID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	n.Status = StatusSent
	n.Attempts++
	n.ProviderMessageID = providerMessageID
	n.LastError = ""
	n.SentAt = &at
	m.rows[id] = n
	return nil
}

// MarkFailed implements NotificationStore.
func (m *MemoryStore) MarkFailed(_ context.Context, id, reason string, final bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	n.Attempts++
	n.LastError = reason
	if final {
		n.Status = StatusFailed
	}
	m.rows[id] = n
	return nil
}

// ListStale implements StaleLister.
func (m *MemoryStore) ListStale(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []Notification
	for _, n := range m.rows {
		if n.Status == StatusPending && n.CreatedAt.Before(cutoff) {
			stale = append(stale, n)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	ids := make([]string, 0, len(stale))
	for i, n := range stale {
		if limit > 0 && i >= limit {
			break
		}
		ids = append(ids, n.ID)
	}
	return ids, nil
}

// Deliveries returns delivery status keyed by id.
func (m *MemoryStore) Deliveries(_ context.Context, ids []string) (map[string]Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Delivery, len(ids))
	for _, id := range ids {
		if n, ok := m.rows[id]; ok {
			out[id] = n.Delivery()
		}
	}
	return out, nil
}
