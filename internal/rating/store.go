package rating

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/playchess/backend/internal/models"
)

// ErrNotFound is returned when a player has no rating state.
var ErrNotFound = errors.New("rating: not found")

// Store persists per-(player, pool) rating state and the append-only result
// history. Only the Engine mutates it.
type Store interface {
	// GetRating returns the state or nil when the player has none in pool.
	GetRating(ctx context.Context, playerID, pool string) (*models.RatingRecord, error)
	// GetOrCreateRating returns the stored state, or the default state for an
	// unseen player. The default is not persisted until SetRating.
	GetOrCreateRating(ctx context.Context, playerID, pool string) (*models.RatingRecord, error)
	SetRating(ctx context.Context, rec models.RatingRecord) error
	// GetRatingsByUser returns nil when the player has no pools.
	GetRatingsByUser(ctx context.Context, playerID string) ([]models.RatingRecord, error)
	AddHistory(ctx context.Context, rec models.HistoryRecord) error
	// GetHistory returns records in insertion order. An empty pool means all.
	GetHistory(ctx context.Context, pool string) ([]models.HistoryRecord, error)
	// ClearRatings deletes current state for pool, or every pool when empty.
	ClearRatings(ctx context.Context, pool string) error
	// Atomic runs fn as one unit of work: its writes land together or not at
	// all, and locks taken through tx are held until it ends. The locks live
	// in the store, so every engine sharing it is serialised.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is the view of a Store inside Atomic.
type Tx interface {
	// LockPool takes pool's lock, shared for results and exclusive for a
	// recalculation. An empty pool stands for every pool. Call it before
	// LockRatings.
	LockPool(ctx context.Context, pool string, exclusive bool) error
	// LockRatings locks each player's state in pool and returns it in the
	// order given, with the default state for unseen players.
	LockRatings(ctx context.Context, pool string, playerIDs ...string) ([]models.RatingRecord, error)
	SetRating(ctx context.Context, rec models.RatingRecord) error
	AddHistory(ctx context.Context, rec models.HistoryRecord) error
	GetHistory(ctx context.Context, pool string) ([]models.HistoryRecord, error)
	ClearRatings(ctx context.Context, pool string) error
}

// NewDefaultRecord returns the lazily-initialised state of an unseen player.
func NewDefaultRecord(playerID, pool string) *models.RatingRecord {
	d := DefaultState()
	return &models.RatingRecord{
		PlayerID:   playerID,
		Pool:       pool,
		Rating:     d.Rating,
		RD:         d.RD,
		Volatility: d.Volatility,
	}
}

type ratingKey struct {
	playerID string
	pool     string
}

// MemoryStore is an in-process Store. It is not durable.
type MemoryStore struct {
	mu      sync.RWMutex
	ratings map[ratingKey]models.RatingRecord
	history []models.HistoryRecord
	nextID  int64

	keys  *keyLocker
	pools *poolLocks
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ratings: make(map[ratingKey]models.RatingRecord),
		keys:    newKeyLocker(),
		pools:   newPoolLocks(),
	}
}

func (s *MemoryStore) GetRating(ctx context.Context, playerID, pool string) (*models.RatingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.ratings[ratingKey{playerID, pool}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) GetOrCreateRating(ctx context.Context, playerID, pool string) (*models.RatingRecord, error) {
	rec, err := s.GetRating(ctx, playerID, pool)
	if err != nil || rec != nil {
		return rec, err
	}
	return NewDefaultRecord(playerID, pool), nil
}

func (s *MemoryStore) SetRating(ctx context.Context, rec models.RatingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.UpdatedAt = time.Now()
	s.ratings[ratingKey{rec.PlayerID, rec.Pool}] = rec
	return nil
}

func (s *MemoryStore) GetRatingsByUser(ctx context.Context, playerID string) ([]models.RatingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.RatingRecord
	for k, rec := range s.ratings {
		if k.playerID == playerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pool < out[j].Pool })
	return out, nil
}

func (s *MemoryStore) AddHistory(ctx context.Context, rec models.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec.ID = s.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.history = append(s.history, rec)
	return nil
}

func (s *MemoryStore) GetHistory(ctx context.Context, pool string) ([]models.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.HistoryRecord, 0, len(s.history))
	for _, rec := range s.history {
		if pool == "" || rec.Pool == pool {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) ClearRatings(ctx context.Context, pool string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.ratings {
		if pool == "" || k.pool == pool {
			delete(s.ratings, k)
		}
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Atomic buffers fn's writes and applies them under the store mutex only when
// fn succeeds.
func (s *MemoryStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memoryTx{
		store:   s,
		held:    make(map[string]bool),
		pending: make(map[ratingKey]models.RatingRecord),
	}
	defer tx.unlock()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

type memoryTx struct {
	store    *MemoryStore
	releases []func()
	held     map[string]bool

	clearAll   bool
	clearPools map[string]bool
	pending    map[ratingKey]models.RatingRecord
	history    []models.HistoryRecord
}

func (tx *memoryTx) LockPool(ctx context.Context, pool string, exclusive bool) error {
	if exclusive {
		tx.releases = append(tx.releases, tx.store.pools.Lock(pool))
	} else {
		tx.releases = append(tx.releases, tx.store.pools.RLock(pool))
	}
	return nil
}

func (tx *memoryTx) LockRatings(ctx context.Context, pool string, playerIDs ...string) ([]models.RatingRecord, error) {
	// Keys already held by this tx are skipped; the mutexes are not reentrant.
	var keys []string
	for _, id := range playerIDs {
		k := pool + "\x00" + id
		if !tx.held[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		tx.releases = append(tx.releases, tx.store.keys.Lock(keys...))
		for _, k := range keys {
			tx.held[k] = true
		}
	}

	out := make([]models.RatingRecord, 0, len(playerIDs))
	for _, id := range playerIDs {
		out = append(out, tx.read(ratingKey{id, pool}))
	}
	return out, nil
}

func (tx *memoryTx) read(k ratingKey) models.RatingRecord {
	if rec, ok := tx.pending[k]; ok {
		return rec
	}
	if !tx.clearAll && !tx.clearPools[k.pool] {
		tx.store.mu.RLock()
		rec, ok := tx.store.ratings[k]
		tx.store.mu.RUnlock()
		if ok {
			return rec
		}
	}
	return *NewDefaultRecord(k.playerID, k.pool)
}

func (tx *memoryTx) SetRating(ctx context.Context, rec models.RatingRecord) error {
	rec.UpdatedAt = time.Now()
	tx.pending[ratingKey{rec.PlayerID, rec.Pool}] = rec
	return nil
}

func (tx *memoryTx) AddHistory(ctx context.Context, rec models.HistoryRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	tx.history = append(tx.history, rec)
	return nil
}

func (tx *memoryTx) GetHistory(ctx context.Context, pool string) ([]models.HistoryRecord, error) {
	out, err := tx.store.GetHistory(ctx, pool)
	if err != nil {
		return nil, err
	}
	for _, rec := range tx.history {
		if pool == "" || rec.Pool == pool {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (tx *memoryTx) ClearRatings(ctx context.Context, pool string) error {
	if pool == "" {
		tx.clearAll = true
		tx.pending = make(map[ratingKey]models.RatingRecord)
		return nil
	}
	if tx.clearPools == nil {
		tx.clearPools = make(map[string]bool)
	}
	tx.clearPools[pool] = true
	for k := range tx.pending {
		if k.pool == pool {
			delete(tx.pending, k)
		}
	}
	return nil
}

func (tx *memoryTx) commit() {
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.ratings {
		if tx.clearAll || tx.clearPools[k.pool] {
			delete(s.ratings, k)
		}
	}
	for k, rec := range tx.pending {
		s.ratings[k] = rec
	}
	for _, rec := range tx.history {
		s.nextID++
		rec.ID = s.nextID
		s.history = append(s.history, rec)
	}
}

func (tx *memoryTx) unlock() {
	for i := len(tx.releases) - 1; i >= 0; i-- {
		tx.releases[i]()
	}
}
