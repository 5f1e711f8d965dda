package rebalance

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryPlanStore keeps encoded plans in process memory. Entries expire
// lazily and are swept on every Save.
type MemoryPlanStore struct {
	mu    sync.RWMutex
	plans map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryPlanStore creates an empty store.
func NewMemoryPlanStore() *MemoryPlanStore {
	return &MemoryPlanStore{plans: make(map[string]memoryEntry), now: time.Now}
}

// Save implements PlanStore.
func (m *MemoryPlanStore) Save(_ context.Context, plan *Plan, ttl time.Duration) error {
	payload, err := encodePlan(plan)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for token, entry := range m.plans {
		if !now.Before(entry.expiresAt) {
			delete(m.plans, token)
		}
	}
	m.plans[plan.Token] = memoryEntry{payload: payload, expiresAt: now.Add(ttl)}
	return nil
}

// Load implements PlanStore.
func (m *MemoryPlanStore) Load(_ context.Context, token string) (*Plan, error) {
	m.mu.RLock()
	entry, ok := m.plans[token]
	now := m.now()
	m.mu.RUnlock()

	if !ok || !now.Before(entry.expiresAt) {
		return nil, ErrPlanNotFound
	}
	return decodePlan(entry.payload)
}

// Len reports the number of stored, possibly expired, plans.
func (m *MemoryPlanStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plans)
}

// Close implements PlanStore.
func (m *MemoryPlanStore) Close() error { return nil }
