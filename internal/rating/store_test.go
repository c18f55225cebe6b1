package rating

import (
	"context"
	"testing"

	"github.com/playchess/backend/internal/models"
)

func TestMemoryStoreLazyDefault(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec, err := s.GetRating(ctx, "p1", "rapid")
	if err != nil || rec != nil {
		t.Fatalf("expected nil for unseen player, got %+v err=%v", rec, err)
	}

	rec, err = s.GetOrCreateRating(ctx, "p1", "rapid")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Rating != 1500 || rec.RD != 350 || rec.Volatility != 0.06 {
		t.Errorf("unexpected defaults: %+v", rec)
	}

	// The default is not persisted until SetRating.
	if recs, _ := s.GetRatingsByUser(ctx, "p1"); recs != nil {
		t.Errorf("default state should not be persisted, got %+v", recs)
	}
}

func TestMemoryStoreHistoryOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.AddHistory(ctx, models.HistoryRecord{PlayerID: "a", OpponentID: "b", Score: 1, Pool: "rapid"})
	s.AddHistory(ctx, models.HistoryRecord{PlayerID: "c", OpponentID: "d", Score: 0, Pool: "blitz"})
	s.AddHistory(ctx, models.HistoryRecord{PlayerID: "b", OpponentID: "a", Score: 0.5, Pool: "rapid"})

	all, _ := s.GetHistory(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Errorf("history not in insertion order: %+v", all)
		}
	}

	rapid, _ := s.GetHistory(ctx, "rapid")
	if len(rapid) != 2 || rapid[0].PlayerID != "a" || rapid[1].PlayerID != "b" {
		t.Errorf("unexpected rapid history: %+v", rapid)
	}
}

func TestMemoryStoreClearRatingsKeepsHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.SetRating(ctx, models.RatingRecord{PlayerID: "p1", Pool: "rapid", Rating: 1600, RD: 200, Volatility: 0.06})
	s.SetRating(ctx, models.RatingRecord{PlayerID: "p1", Pool: "blitz", Rating: 1400, RD: 200, Volatility: 0.06})
	s.AddHistory(ctx, models.HistoryRecord{PlayerID: "p1", OpponentID: "p2", Score: 1, Pool: "rapid"})

	s.ClearRatings(ctx, "rapid")
	recs, _ := s.GetRatingsByUser(ctx, "p1")
	if len(recs) != 1 || recs[0].Pool != "blitz" {
		t.Errorf("expected only blitz to remain, got %+v", recs)
	}

	s.ClearRatings(ctx, "")
	if recs, _ := s.GetRatingsByUser(ctx, "p1"); recs != nil {
		t.Errorf("expected no ratings, got %+v", recs)
	}
	if h, _ := s.GetHistory(ctx, ""); len(h) != 1 {
		t.Errorf("history must survive clears, got %d", len(h))
	}
}

func TestKeyLockerDeduplicatesKeys(t *testing.T) {
	l := newKeyLocker()
	release := l.Lock("b", "a", "b")
	release()

	if len(l.locks) != 0 {
		t.Errorf("locks should be dropped after release, %d left", len(l.locks))
	}
}

func TestMemoryStoreAtomicSeesOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.SetRating(ctx, models.RatingRecord{PlayerID: "a", Pool: "rapid", Rating: 1800, RD: 100, Volatility: 0.06})

	err := s.Atomic(ctx, func(tx Tx) error {
		if err := tx.LockPool(ctx, "rapid", true); err != nil {
			return err
		}
		if err := tx.ClearRatings(ctx, "rapid"); err != nil {
			return err
		}
		recs, _ := tx.LockRatings(ctx, "rapid", "a")
		if recs[0].Rating != 1500 {
			t.Errorf("cleared state should read as default, got %.1f", recs[0].Rating)
		}
		recs[0].Rating = 1600
		tx.SetRating(ctx, recs[0])

		// Locking the same key again in one unit must not block.
		recs, _ = tx.LockRatings(ctx, "rapid", "a", "b")
		if recs[0].Rating != 1600 || recs[1].Rating != 1500 {
			t.Errorf("unexpected reads inside unit: %+v", recs)
		}

		// Nothing is visible outside until commit.
		if rec, _ := s.GetRating(ctx, "a", "rapid"); rec == nil || rec.Rating != 1800 {
			t.Errorf("uncommitted write leaked: %+v", rec)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	rec, _ := s.GetRating(ctx, "a", "rapid")
	if rec == nil || rec.Rating != 1600 {
		t.Errorf("expected committed 1600, got %+v", rec)
	}
	if len(s.keys.locks) != 0 {
		t.Errorf("locks leaked after commit: %d", len(s.keys.locks))
	}
}
