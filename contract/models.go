package contract

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Defaults applied when the counterpart's contract payload omits fields.
const (
	DefaultCurrency    = "USD"
	DefaultPricingType = "fixed"
	DefaultTermDays    = 365
)

// Contract mirrors the contracts table. It is materialized once per accepted
// bid and never mutated by this subsystem afterwards.
type Contract struct {
	ID              string
	ProducerBidID   string
	BuyerContractID string
	BuyerBidID      string
	ContractNumber  string
	VolumeAmount    float64
	VolumeUnit      string
	PricePerUnit    float64
	Currency        string
	PricingType     string
	StartDate       time.Time
	EndDate         time.Time
	CreatedAt       time.Time
}

// CreateParams carries the counterpart's contract payload mapped to local
// fields. Zero values are filled with documented defaults.
type CreateParams struct {
	ProducerBidID   string
	BuyerContractID string
	BuyerBidID      string
	ContractNumber  string
	VolumeAmount    float64
	VolumeUnit      string
	PricePerUnit    float64
	Currency        string
	PricingType     string
	StartDate       time.Time
	EndDate         time.Time
}

func (p *CreateParams) applyDefaults(now time.Time) {
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	if p.PricingType == "" {
		p.PricingType = DefaultPricingType
	}
	if p.StartDate.IsZero() {
		p.StartDate = now
	}
	if p.EndDate.IsZero() {
		p.EndDate = p.StartDate.AddDate(0, 0, DefaultTermDays)
	}
	if p.ContractNumber == "" {
		p.ContractNumber = newContractNumber(now)
	}
	if p.VolumeUnit == "" {
		p.VolumeUnit = "MT"
	}
}

func newContractNumber(now time.Time) string {
	return fmt.Sprintf("CT-%d-%.8s", now.Year(), uuid.NewString())
}
