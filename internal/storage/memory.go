package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory InstanceStore and EmbeddingCache, used in tests
// and when no DATABASE_URL is configured.
type MemoryStore struct {
	mu         sync.RWMutex
	instances  map[string]AlertInstance
	order      []string
	embeddings []EmbeddingRecord
	byID       map[string]int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]AlertInstance),
		byID:      make(map[string]int),
	}
}

func (m *MemoryStore) Insert(_ context.Context, instance *AlertInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.instances[instance.ID]; exists {
		return fmt.Errorf("alert instance %s already exists", instance.ID)
	}
	m.instances[instance.ID] = cloneInstance(instance)
	m.order = append(m.order, instance.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*AlertInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	instance, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	out := cloneInstance(&instance)
	return &out, nil
}

func (m *MemoryStore) Update(_ context.Context, instance *AlertInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[instance.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrInstanceNotFound, instance.ID)
	}
	m.instances[instance.ID] = cloneInstance(instance)
	return nil
}

func (m *MemoryStore) List(_ context.Context, status AlertStatus, limit int) ([]AlertInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]AlertInstance, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		instance := m.instances[m.order[i]]
		if status != "" && instance.Status != status {
			continue
		}
		out = append(out, instance)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TriggeredAt.After(out[j].TriggeredAt)
	})
	return out, nil
}

func (m *MemoryStore) ListUnresolved(_ context.Context) ([]AlertInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []AlertInstance
	for _, id := range m.order {
		instance := m.instances[id]
		if instance.Status != StatusResolved {
			out = append(out, instance)
		}
	}
	return out, nil
}

func (m *MemoryStore) Save(_ context.Context, record EmbeddingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveLocked(record)
	return nil
}

func (m *MemoryStore) SaveBatch(_ context.Context, records []EmbeddingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range records {
		m.saveLocked(record)
	}
	return nil
}

func (m *MemoryStore) saveLocked(record EmbeddingRecord) {
	record.Vector = append([]float32(nil), record.Vector...)
	if i, ok := m.byID[record.EmbeddingID]; ok {
		m.embeddings[i] = record
		return
	}
	m.byID[record.EmbeddingID] = len(m.embeddings)
	m.embeddings = append(m.embeddings, record)
}

func (m *MemoryStore) All(_ context.Context) ([]EmbeddingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]EmbeddingRecord, len(m.embeddings))
	for i, record := range m.embeddings {
		record.Vector = append([]float32(nil), record.Vector...)
		out[i] = record
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.embeddings), nil
}

func (m *MemoryStore) DeactivatePerson(_ context.Context, personID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.embeddings {
		if m.embeddings[i].OwnerPersonID == personID {
			m.embeddings[i].Active = false
		}
	}
	return nil
}

func cloneInstance(instance *AlertInstance) AlertInstance {
	out := *instance
	out.NotificationChannels = append([]string(nil), instance.NotificationChannels...)
	if instance.AcknowledgedAt != nil {
		ts := *instance.AcknowledgedAt
		out.AcknowledgedAt = &ts
	}
	if instance.ResolvedAt != nil {
		ts := *instance.ResolvedAt
		out.ResolvedAt = &ts
	}
	return out
}

// Verify interface compliance
var _ InstanceStore = (*MemoryStore)(nil)
var _ EmbeddingCache = (*MemoryStore)(nil)
