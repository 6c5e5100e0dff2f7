package contract

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"fuelflow/db"
	"fuelflow/migrations"
)

// TestContractIdempotency_Integration verifies that a redelivered acceptance
// event cannot create a second contract for the same bid.
func TestContractIdempotency_Integration(t *testing.T) {
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
	params := CreateParams{
		ProducerBidID:   fmt.Sprintf("bid_%d_inttest", time.Now().UnixNano()),
		BuyerContractID: "buyer-contract-7",
		BuyerBidID:      "buyer-bid-7",
		VolumeAmount:    500,
		VolumeUnit:      "MT",
		PricePerUnit:    900,
	}

	first, created, err := repo.CreateFromAcceptance(ctx, params)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if !created {
		t.Fatal("first create reported created=false")
	}
	if first.ContractNumber == "" {
		t.Fatal("contract number not generated")
	}
	if first.Currency != DefaultCurrency || first.PricingType != DefaultPricingType {
		t.Fatalf("defaults not applied: %+v", first)
	}

	second, created, err := repo.CreateFromAcceptance(ctx, params)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Fatal("redelivery reported created=true")
	}
	if second.ID != first.ID {
		t.Fatalf("redelivery returned different contract: %s vs %s", second.ID, first.ID)
	}
}
