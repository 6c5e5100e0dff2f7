package contract

import (
	"strings"
	"testing"
	"time"
)

func TestCreateParams_ApplyDefaults(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	p := CreateParams{ProducerBidID: "bid-1"}
	p.applyDefaults(now)

	if p.Currency != DefaultCurrency {
		t.Fatalf("expected default currency %s got %s", DefaultCurrency, p.Currency)
	}
	if p.PricingType != DefaultPricingType {
		t.Fatalf("expected default pricing type %s got %s", DefaultPricingType, p.PricingType)
	}
	if !p.StartDate.Equal(now) {
		t.Fatalf("expected start date %s got %s", now, p.StartDate)
	}
	if !p.EndDate.Equal(now.AddDate(0, 0, 365)) {
		t.Fatalf("expected end date one year out, got %s", p.EndDate)
	}
	if !strings.HasPrefix(p.ContractNumber, "CT-2025-") {
		t.Fatalf("expected generated contract number, got %q", p.ContractNumber)
	}
}

func TestCreateParams_KeepsExplicitValues(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p := CreateParams{
		ProducerBidID:  "bid-1",
		Currency:       "EUR",
		PricingType:    "indexed",
		StartDate:      start,
		EndDate:        end,
		ContractNumber: "CT-CUSTOM-1",
		VolumeUnit:     "gal",
	}
	p.applyDefaults(now)

	if p.Currency != "EUR" || p.PricingType != "indexed" || p.ContractNumber != "CT-CUSTOM-1" {
		t.Fatalf("explicit values overridden: %+v", p)
	}
	if !p.StartDate.Equal(start) || !p.EndDate.Equal(end) {
		t.Fatalf("explicit dates overridden: %+v", p)
	}
	if p.VolumeUnit != "gal" {
		t.Fatalf("explicit unit overridden: %q", p.VolumeUnit)
	}
}
