package lot

import "time"

// VolumeUnit is the canonical unit a lot's volume is expressed in.
type VolumeUnit string

const (
	UnitMT  VolumeUnit = "MT"
	UnitGal VolumeUnit = "gal"
)

// Currency is the canonical pricing currency.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// Sentinel for text fields whose fallback chain is exhausted.
const FieldTBD = "TBD"

// CanonicalLot is the single internal representation every upstream payload
// variant is normalized into. The buyer dashboard owns lot identity; this is
// derived, read-mostly data and never the system of record.
type CanonicalLot struct {
	ID             string
	Airline        string
	LotName        string
	Volume         float64
	VolumeUnit     VolumeUnit
	PricePerUnit   float64
	Currency       Currency
	CIScore        float64
	Location       string
	DeliveryWindow string
	LongTerm       bool
	PostedOn       time.Time
}
