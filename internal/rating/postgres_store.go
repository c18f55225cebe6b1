package rating

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/playchess/backend/internal/models"
)

// PostgresStore keeps ratings and history in the ratings / rating_history
// tables. History order is the BIGSERIAL id.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetRating(ctx context.Context, playerID, pool string) (*models.RatingRecord, error) {
	var rec models.RatingRecord
	err := s.db.GetContext(ctx, &rec, `
		SELECT player_id, pool, rating, rd, volatility, updated_at
		FROM ratings
		WHERE player_id = $1 AND pool = $2
	`, playerID, pool)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rating %s/%s: %w", playerID, pool, err)
	}
	return &rec, nil
}

func (s *PostgresStore) GetOrCreateRating(ctx context.Context, playerID, pool string) (*models.RatingRecord, error) {
	rec, err := s.GetRating(ctx, playerID, pool)
	if err != nil || rec != nil {
		return rec, err
	}
	return NewDefaultRecord(playerID, pool), nil
}

const upsertRatingSQL = `
	INSERT INTO ratings (player_id, pool, rating, rd, volatility, updated_at)
	VALUES (:player_id, :pool, :rating, :rd, :volatility, NOW())
	ON CONFLICT (player_id, pool) DO UPDATE
	SET rating = EXCLUDED.rating,
	    rd = EXCLUDED.rd,
	    volatility = EXCLUDED.volatility,
	    updated_at = NOW()
`

func (s *PostgresStore) SetRating(ctx context.Context, rec models.RatingRecord) error {
	return setRating(ctx, s.db, rec)
}

func setRating(ctx context.Context, ex sqlx.ExtContext, rec models.RatingRecord) error {
	_, err := sqlx.NamedExecContext(ctx, ex, upsertRatingSQL, rec)
	if err != nil {
		return fmt.Errorf("set rating %s/%s: %w", rec.PlayerID, rec.Pool, err)
	}
	return nil
}

func (s *PostgresStore) GetRatingsByUser(ctx context.Context, playerID string) ([]models.RatingRecord, error) {
	var recs []models.RatingRecord
	err := s.db.SelectContext(ctx, &recs, `
		SELECT player_id, pool, rating, rd, volatility, updated_at
		FROM ratings
		WHERE player_id = $1
		ORDER BY pool
	`, playerID)
	if err != nil {
		return nil, fmt.Errorf("get ratings for %s: %w", playerID, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs, nil
}

func (s *PostgresStore) AddHistory(ctx context.Context, rec models.HistoryRecord) error {
	return addHistory(ctx, s.db, rec)
}

func addHistory(ctx context.Context, ex sqlx.ExecerContext, rec models.HistoryRecord) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO rating_history (player_id, opponent_id, pool, score, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, rec.PlayerID, rec.OpponentID, rec.Pool, rec.Score)
	if err != nil {
		return fmt.Errorf("add history %s vs %s: %w", rec.PlayerID, rec.OpponentID, err)
	}
	return nil
}

func (s *PostgresStore) GetHistory(ctx context.Context, pool string) ([]models.HistoryRecord, error) {
	return getHistory(ctx, s.db, pool)
}

func getHistory(ctx context.Context, q sqlx.QueryerContext, pool string) ([]models.HistoryRecord, error) {
	var recs []models.HistoryRecord
	var err error
	if pool == "" {
		err = sqlx.SelectContext(ctx, q, &recs, `
			SELECT id, player_id, opponent_id, pool, score, created_at
			FROM rating_history
			ORDER BY id
		`)
	} else {
		err = sqlx.SelectContext(ctx, q, &recs, `
			SELECT id, player_id, opponent_id, pool, score, created_at
			FROM rating_history
			WHERE pool = $1
			ORDER BY id
		`, pool)
	}
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return recs, nil
}

func (s *PostgresStore) ClearRatings(ctx context.Context, pool string) error {
	return clearRatings(ctx, s.db, pool)
}

func clearRatings(ctx context.Context, ex sqlx.ExecerContext, pool string) error {
	var err error
	if pool == "" {
		_, err = ex.ExecContext(ctx, `DELETE FROM ratings`)
	} else {
		_, err = ex.ExecContext(ctx, `DELETE FROM ratings WHERE pool = $1`, pool)
	}
	if err != nil {
		return fmt.Errorf("clear ratings: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Advisory lock classes, the first key of pg_advisory_xact_lock(int, int).
const (
	lockClassAllPools int32 = 0x52540001
	lockClassPool     int32 = 0x52540002
	lockClassRating   int32 = 0x52540003
)

func lockKey(parts ...string) int32 {
	h := fnv.New32a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return int32(h.Sum32())
}

// Atomic runs fn in one transaction. Locks are transaction-scoped advisory
// locks, so they hold across every process sharing the database and are
// released by commit or rollback.
func (s *PostgresStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rating tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rating tx: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx *sqlx.Tx
}

func (t *postgresTx) advisoryLock(ctx context.Context, class, key int32, shared bool) error {
	fn := "pg_advisory_xact_lock"
	if shared {
		fn = "pg_advisory_xact_lock_shared"
	}
	if _, err := t.tx.ExecContext(ctx, `SELECT `+fn+`($1::int, $2::int)`, class, key); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}

// LockPool mirrors the in-process scheme: every unit takes the all-pools lock
// (exclusive only for a full recalculation), then its pool's lock.
func (t *postgresTx) LockPool(ctx context.Context, pool string, exclusive bool) error {
	if pool == "" {
		return t.advisoryLock(ctx, lockClassAllPools, 0, !exclusive)
	}
	if err := t.advisoryLock(ctx, lockClassAllPools, 0, true); err != nil {
		return err
	}
	return t.advisoryLock(ctx, lockClassPool, lockKey(pool), !exclusive)
}

func (t *postgresTx) LockRatings(ctx context.Context, pool string, playerIDs ...string) ([]models.RatingRecord, error) {
	// Rows may not exist yet, so lock on the key rather than FOR UPDATE.
	// Sorted order keeps two transactions from deadlocking.
	keys := make([]int32, 0, len(playerIDs))
	for _, id := range playerIDs {
		keys = append(keys, lockKey(pool, id))
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for i, k := range keys {
		if i > 0 && keys[i-1] == k {
			continue
		}
		if err := t.advisoryLock(ctx, lockClassRating, k, false); err != nil {
			return nil, err
		}
	}

	out := make([]models.RatingRecord, 0, len(playerIDs))
	for _, id := range playerIDs {
		var rec models.RatingRecord
		err := t.tx.GetContext(ctx, &rec, `
			SELECT player_id, pool, rating, rd, volatility, updated_at
			FROM ratings
			WHERE player_id = $1 AND pool = $2
		`, id, pool)
		if errors.Is(err, sql.ErrNoRows) {
			out = append(out, *NewDefaultRecord(id, pool))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock rating %s/%s: %w", id, pool, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (t *postgresTx) SetRating(ctx context.Context, rec models.RatingRecord) error {
	return setRating(ctx, t.tx, rec)
}

func (t *postgresTx) AddHistory(ctx context.Context, rec models.HistoryRecord) error {
	return addHistory(ctx, t.tx, rec)
}

func (t *postgresTx) GetHistory(ctx context.Context, pool string) ([]models.HistoryRecord, error) {
	return getHistory(ctx, t.tx, pool)
}

func (t *postgresTx) ClearRatings(ctx context.Context, pool string) error {
	return clearRatings(ctx, t.tx, pool)
}
