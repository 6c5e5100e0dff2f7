package bid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"fuelflow/db"
	"fuelflow/migrations"
)

// TestBidRepository_Integration connects to a real PostgreSQL via DATABASE_URL
// and exercises the full status lifecycle including the atomic updates keyed
// by external_bid_id.
func TestBidRepository_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	repo := NewRepository(pool)
	lotID := fmt.Sprintf("lot-%d", time.Now().UnixNano())

	create := func(t *testing.T) ProducerBid {
		t.Helper()
		b, err := repo.Create(ctx, CreateParams{
			ExternalBidID: NewExternalBidID(time.Now()),
			LotID:         lotID,
			VolumeAmount:  500,
			VolumeUnit:    "MT",
			Price:         450000,
			PricePerUnit:  900,
			Currency:      "USD",
		})
		if err != nil {
			t.Fatalf("create bid: %v", err)
		}
		return b
	}

	first := create(t)
	if first.Status != StatusDraft {
		t.Fatalf("new bid status = %q, want draft", first.Status)
	}
	if first.ID == "" {
		t.Fatal("new bid has empty id")
	}

	// The correlation key is unique.
	_, err = repo.Create(ctx, CreateParams{
		ExternalBidID: first.ExternalBidID,
		LotID:         lotID,
		VolumeAmount:  1,
		Price:         1,
		PricePerUnit:  1,
	})
	if !errors.Is(err, ErrDuplicateExternalID) {
		t.Fatalf("duplicate create err = %v, want ErrDuplicateExternalID", err)
	}

	if _, err := repo.MarkSubmitted(ctx, first.ExternalBidID); err != nil {
		t.Fatalf("mark submitted: %v", err)
	}

	won, err := repo.MarkWon(ctx, first.ExternalBidID, "buyer-bid-42")
	if err != nil {
		t.Fatalf("mark won: %v", err)
	}
	if won.Status != StatusWon || won.BuyerBidID != "buyer-bid-42" {
		t.Fatalf("won = %+v", won)
	}

	if _, err := repo.MarkSubmitted(ctx, "bid_0_missing"); !errors.Is(err, ErrBidNotFound) {
		t.Fatalf("update of unknown bid err = %v, want ErrBidNotFound", err)
	}
}

func TestBidRepository_CounterOfferRoundTrip_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	repo := NewRepository(pool)
	b, err := repo.Create(ctx, CreateParams{
		ExternalBidID: NewExternalBidID(time.Now()),
		LotID:         fmt.Sprintf("lot-%d", time.Now().UnixNano()),
		VolumeAmount:  2500,
		VolumeUnit:    "MT",
		Price:         2250000,
		PricePerUnit:  900,
		Currency:      "USD",
	})
	if err != nil {
		t.Fatalf("create bid: %v", err)
	}

	received := time.Date(2026, 8, 15, 9, 30, 0, 0, time.UTC)
	offer := CounterOffer{
		Volume:       2200,
		PricePerUnit: 910,
		Message:      "can take 2200 MT at 910",
		BuyerBidID:   "buyer-bid-77",
		ReceivedAt:   received,
	}

	if _, err := repo.RecordCounterOffer(ctx, b.ExternalBidID, offer); err != nil {
		t.Fatalf("record counter offer: %v", err)
	}

	stored, err := repo.GetByExternalID(ctx, b.ExternalBidID)
	if err != nil {
		t.Fatalf("get by external id: %v", err)
	}
	if stored.Status != StatusCounterOffer {
		t.Fatalf("status = %q, want counter_offer", stored.Status)
	}
	if stored.CounterOffer == nil {
		t.Fatal("counter offer not stored")
	}
	if stored.CounterOffer.Volume != 2200 || stored.CounterOffer.PricePerUnit != 910 {
		t.Fatalf("counter offer = %+v", stored.CounterOffer)
	}
	if !stored.CounterOffer.ReceivedAt.Equal(received) {
		t.Fatalf("receivedAt = %v, want %v", stored.CounterOffer.ReceivedAt, received)
	}
	if stored.BuyerBidID != "buyer-bid-77" {
		t.Fatalf("buyerBidId = %q", stored.BuyerBidID)
	}
}

func TestBidRepository_SupersedePrevious_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	repo := NewRepository(pool)
	lotID := fmt.Sprintf("lot-%d", time.Now().UnixNano())

	submit := func(t *testing.T) ProducerBid {
		t.Helper()
		b, err := repo.Create(ctx, CreateParams{
			ExternalBidID: NewExternalBidID(time.Now()),
			LotID:         lotID,
			VolumeAmount:  100,
			Price:         90000,
			PricePerUnit:  900,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		submitted, err := repo.MarkSubmitted(ctx, b.ExternalBidID)
		if err != nil {
			t.Fatalf("mark submitted: %v", err)
		}
		return submitted
	}

	old := submit(t)
	replacement := submit(t)

	n, err := repo.SupersedePrevious(ctx, lotID, replacement.ExternalBidID)
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}
	if n != 1 {
		t.Fatalf("superseded count = %d, want 1", n)
	}

	oldStored, err := repo.GetByExternalID(ctx, old.ExternalBidID)
	if err != nil {
		t.Fatalf("get old: %v", err)
	}
	if oldStored.Status != StatusSuperseded {
		t.Fatalf("old status = %q, want superseded", oldStored.Status)
	}

	kept, err := repo.GetByExternalID(ctx, replacement.ExternalBidID)
	if err != nil {
		t.Fatalf("get kept: %v", err)
	}
	if kept.Status != StatusSubmitted {
		t.Fatalf("kept status = %q, want submitted", kept.Status)
	}
}

// TestBidRepository_FastCallbackOrdering_Integration covers the delivery race
// where the counterpart's acceptance webhook lands before the submitter marks
// the bid submitted: the acceptance must survive, and later conflicting
// events must not move the bid out of its terminal status.
func TestBidRepository_FastCallbackOrdering_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	repo := NewRepository(pool)
	b, err := repo.Create(ctx, CreateParams{
		ExternalBidID: NewExternalBidID(time.Now()),
		LotID:         fmt.Sprintf("lot-%d", time.Now().UnixNano()),
		VolumeAmount:  100,
		Price:         90000,
		PricePerUnit:  900,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Acceptance arrives while the bid is still draft.
	if _, err := repo.MarkWon(ctx, b.ExternalBidID, "buyer-fast"); err != nil {
		t.Fatalf("mark won: %v", err)
	}

	// The late MarkSubmitted must not overwrite the resolved status.
	got, err := repo.MarkSubmitted(ctx, b.ExternalBidID)
	if err != nil {
		t.Fatalf("mark submitted: %v", err)
	}
	if got.Status != StatusWon {
		t.Fatalf("status = %q, want won preserved", got.Status)
	}

	// A conflicting rejection after the terminal status is refused.
	if _, err := repo.MarkLost(ctx, b.ExternalBidID, "late rejection"); !errors.Is(err, ErrTerminalStatus) {
		t.Fatalf("mark lost err = %v, want ErrTerminalStatus", err)
	}

	// Redelivered acceptance stays idempotent.
	again, err := repo.MarkWon(ctx, b.ExternalBidID, "buyer-fast")
	if err != nil {
		t.Fatalf("redelivered mark won: %v", err)
	}
	if again.Status != StatusWon {
		t.Fatalf("redelivery status = %q", again.Status)
	}
}
