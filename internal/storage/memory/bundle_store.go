package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/storage"
)

// BundleStore is an in-memory implementation of storage.BundleStore.
type BundleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RunBundle
}

// NewBundleStore creates a new in-memory bundle store.
func NewBundleStore() *BundleStore {
	return &BundleStore{
		data: make(map[string]*domain.RunBundle),
	}
}

// Put stores or fully replaces the bundle for runID.
func (s *BundleStore) Put(_ context.Context, runID string, bundle *domain.RunBundle) error {
	if runID == "" || bundle == nil || bundle.Record == nil {
		return storage.ErrInvalidInput
	}

	cp, err := cloneBundle(bundle)
	if err != nil {
		return fmt.Errorf("clone bundle: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[runID] = cp
	return nil
}

// Get retrieves the bundle for runID. Returns ErrNotFound if not exists.
func (s *BundleStore) Get(_ context.Context, runID string) (*domain.RunBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bundle, ok := s.data[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneBundle(bundle)
}

// GetAll retrieves every stored bundle, ordered by creation time ASC.
func (s *BundleStore) GetAll(_ context.Context) ([]*domain.RunBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.RunBundle, 0, len(s.data))
	for _, bundle := range s.data {
		cp, err := cloneBundle(bundle)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Record.CreatedAt != out[j].Record.CreatedAt {
			return out[i].Record.CreatedAt < out[j].Record.CreatedAt
		}
		return out[i].Record.RunID < out[j].Record.RunID
	})
	return out, nil
}

// cloneBundle deep-copies via the same JSON encoding the durable stores
// use, so memory and database round trips are interchangeable.
func cloneBundle(b *domain.RunBundle) (*domain.RunBundle, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	var cp domain.RunBundle
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

var _ storage.BundleStore = (*BundleStore)(nil)
