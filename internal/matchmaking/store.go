package matchmaking

import (
	"context"
	"sort"
	"sync"

	"github.com/playchess/backend/internal/models"
)

// QueueStore holds one rating-ordered queue per mode. Every method must be
// atomic with respect to concurrent callers.
type QueueStore interface {
	// Add inserts or replaces the player's entry in mode.
	Add(ctx context.Context, mode string, entry models.QueueEntry) error
	// Remove deletes the player's entry and reports whether one existed.
	Remove(ctx context.Context, mode, playerID string) (bool, error)
	// RemovePair deletes both entries only if both are present.
	RemovePair(ctx context.Context, mode, a, b string) (bool, error)
	// List returns a snapshot ordered by rating, ties by player id.
	List(ctx context.Context, mode string) ([]models.QueueEntry, error)
	Ping(ctx context.Context) error
}

// MemoryQueueStore keeps queues in process memory.
type MemoryQueueStore struct {
	mu     sync.Mutex
	queues map[string]map[string]models.QueueEntry
}

func NewMemoryQueueStore() *MemoryQueueStore {
	return &MemoryQueueStore{queues: make(map[string]map[string]models.QueueEntry)}
}

func (s *MemoryQueueStore) Add(ctx context.Context, mode string, entry models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[mode]
	if !ok {
		q = make(map[string]models.QueueEntry)
		s.queues[mode] = q
	}
	q[entry.PlayerID] = entry
	return nil
}

func (s *MemoryQueueStore) Remove(ctx context.Context, mode, playerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[mode]
	if _, ok := q[playerID]; !ok {
		return false, nil
	}
	delete(q, playerID)
	return true, nil
}

func (s *MemoryQueueStore) RemovePair(ctx context.Context, mode, a, b string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queues[mode]
	_, okA := q[a]
	_, okB := q[b]
	if !okA || !okB || a == b {
		return false, nil
	}
	delete(q, a)
	delete(q, b)
	return true, nil
}

func (s *MemoryQueueStore) List(ctx context.Context, mode string) ([]models.QueueEntry, error) {
	s.mu.Lock()
	q := s.queues[mode]
	out := make([]models.QueueEntry, 0, len(q))
	for _, e := range q {
		out = append(out, e)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating < out[j].Rating
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out, nil
}

func (s *MemoryQueueStore) Ping(ctx context.Context) error { return nil }
