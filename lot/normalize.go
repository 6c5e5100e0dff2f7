package lot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnidentifiedLot signals a record carrying neither an id nor any of
	// title/volume/pricing. Absence of identity is not recoverable, so the
	// record is rejected instead of defaulted.
	ErrUnidentifiedLot = errors.New("lot: record has no identity")
	// ErrMalformedRecord signals JSON that does not decode as a lot at all.
	ErrMalformedRecord = errors.New("lot: malformed record")
)

// schemaVariant tags the known upstream payload shapes.
type schemaVariant string

const (
	// variantRich nests volume.amount/unit, pricing.*, delivery.*, compliance.*.
	variantRich schemaVariant = "rich"
	// variantFlat carries top-level volume, pricePerUnit, location.
	variantFlat schemaVariant = "flat"
	// variantLegacy has only a numeric volume and a total price.
	variantLegacy schemaVariant = "legacy"
)

// volumeField decodes either a bare number or an {amount, unit} object.
type volumeField struct {
	Amount float64
	Unit   string
	object bool
	set    bool
}

func (v *volumeField) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		v.Amount = n
		v.set = true
		return nil
	}
	var obj struct {
		Amount float64 `json:"amount"`
		Unit   string  `json:"unit"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	v.Amount = obj.Amount
	v.Unit = obj.Unit
	v.object = true
	v.set = true
	return nil
}

// flexTime decodes RFC3339 strings, bare dates, or epoch milliseconds.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	var millis int64
	if err := json.Unmarshal(data, &millis); err == nil {
		t.Time = time.UnixMilli(millis).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	// Unparseable timestamps fall back down the chain.
	return nil
}

// upstreamRecord is the loose superset of all known variants. Variant
// detection and per-field fallback chains run over this decoded form.
type upstreamRecord struct {
	ID      string `json:"id"`
	MongoID string `json:"_id"`

	Title   string `json:"title"`
	LotName string `json:"lotName"`
	Airline string `json:"airline"`

	Organization *struct {
		Name string `json:"name"`
	} `json:"organization"`

	Volume     *volumeField `json:"volume"`
	VolumeUnit string       `json:"volumeUnit"`

	PricePerUnit float64 `json:"pricePerUnit"`
	TotalPrice   float64 `json:"totalPrice"`
	Currency     string  `json:"currency"`

	Pricing *struct {
		PricePerUnit float64 `json:"pricePerUnit"`
		TotalPrice   float64 `json:"totalPrice"`
		Currency     string  `json:"currency"`
	} `json:"pricing"`

	Delivery *struct {
		Location string    `json:"location"`
		Window   string    `json:"window"`
		Start    *flexTime `json:"start"`
	} `json:"delivery"`

	Compliance *struct {
		SustainabilityScore float64 `json:"sustainabilityScore"`
		GHGReduction        float64 `json:"ghgReduction"`
	} `json:"compliance"`

	SustainabilityScore float64 `json:"sustainabilityScore"`
	GHGReduction        float64 `json:"ghgReductionPercent"`

	Location       string `json:"location"`
	DeliveryWindow string `json:"deliveryWindow"`
	LongTerm       bool   `json:"longTerm"`

	PostedOn  *flexTime `json:"postedOn"`
	CreatedAt *flexTime `json:"createdAt"`
}

func (r upstreamRecord) variant() schemaVariant {
	if r.Pricing != nil || r.Delivery != nil || r.Compliance != nil || (r.Volume != nil && r.Volume.object) {
		return variantRich
	}
	if r.PricePerUnit > 0 || r.Location != "" || r.VolumeUnit != "" {
		return variantFlat
	}
	return variantLegacy
}

func (r upstreamRecord) identity() string {
	if r.ID != "" {
		return r.ID
	}
	return r.MongoID
}

// Normalizer converts upstream lot payloads into CanonicalLot values.
type Normalizer struct {
	logger *log.Logger
	now    func() time.Time
}

// NewNormalizer builds a Normalizer.
func NewNormalizer(logger *log.Logger) *Normalizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Normalizer{logger: logger, now: time.Now}
}

// Normalize converts one upstream record. A record with no id and none of
// title/volume/pricing fails with ErrUnidentifiedLot.
func (n *Normalizer) Normalize(raw json.RawMessage) (CanonicalLot, error) {
	var rec upstreamRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return CanonicalLot{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	hasBody := rec.Title != "" || rec.LotName != "" || rec.Volume != nil || rec.Pricing != nil
	if rec.identity() == "" && !hasBody {
		return CanonicalLot{}, ErrUnidentifiedLot
	}

	// The variant is detected once; the nested rich-shape fields are only
	// consulted when the record actually is that shape.
	v := rec.variant()

	out := CanonicalLot{
		ID:             rec.identity(),
		Airline:        firstNonEmpty(rec.Airline, orgName(rec), FieldTBD),
		LotName:        firstNonEmpty(rec.LotName, rec.Title, FieldTBD),
		LongTerm:       rec.LongTerm,
		Location:       FieldTBD,
		DeliveryWindow: FieldTBD,
	}

	if rec.Volume != nil {
		out.Volume = rec.Volume.Amount
	}
	out.VolumeUnit = normalizeUnit(volumeUnitToken(rec))
	out.PricePerUnit = derivePricePerUnit(v, rec)
	out.Currency = normalizeCurrency(currencyToken(v, rec))
	out.CIScore = deriveCIScore(v, rec)

	if v == variantRich && rec.Delivery != nil && rec.Delivery.Location != "" {
		out.Location = rec.Delivery.Location
	} else if rec.Location != "" {
		out.Location = rec.Location
	}

	if v == variantRich && rec.Delivery != nil && rec.Delivery.Window != "" {
		out.DeliveryWindow = rec.Delivery.Window
	} else if rec.DeliveryWindow != "" {
		out.DeliveryWindow = rec.DeliveryWindow
	}

	out.PostedOn = derivePostedOn(v, rec, n.now)

	return out, nil
}

// NormalizeBatch runs Normalize per record. A failing record is logged and
// dropped; it never aborts the rest of the batch.
func (n *Normalizer) NormalizeBatch(raws []json.RawMessage) []CanonicalLot {
	out := make([]CanonicalLot, 0, len(raws))
	for i, raw := range raws {
		lot, err := n.Normalize(raw)
		if err != nil {
			n.logger.Printf("lot normalize dropped index=%d err=%v", i, err)
			continue
		}
		out = append(out, lot)
	}
	return out
}

// derivePricePerUnit follows the priority: explicit per-unit price,
// total/volume, raw total, zero. The rich variant reads the nested pricing
// block first; flat and legacy only carry top-level fields. Division goes
// through decimal to avoid float artifacts.
func derivePricePerUnit(v schemaVariant, rec upstreamRecord) float64 {
	perUnit := rec.PricePerUnit
	total := rec.TotalPrice
	if v == variantRich && rec.Pricing != nil {
		if rec.Pricing.PricePerUnit > 0 {
			perUnit = rec.Pricing.PricePerUnit
		}
		if rec.Pricing.TotalPrice > 0 {
			total = rec.Pricing.TotalPrice
		}
	}
	if perUnit > 0 {
		return perUnit
	}

	volume := 0.0
	if rec.Volume != nil {
		volume = rec.Volume.Amount
	}
	if total > 0 && volume > 0 {
		result, _ := decimal.NewFromFloat(total).
			Div(decimal.NewFromFloat(volume)).
			Round(4).
			Float64()
		return result
	}
	if total > 0 {
		return total
	}
	return 0
}

func deriveCIScore(v schemaVariant, rec upstreamRecord) float64 {
	if v == variantRich && rec.Compliance != nil {
		if rec.Compliance.SustainabilityScore > 0 {
			return rec.Compliance.SustainabilityScore
		}
		if rec.Compliance.GHGReduction > 0 {
			return rec.Compliance.GHGReduction
		}
	}
	if rec.SustainabilityScore > 0 {
		return rec.SustainabilityScore
	}
	if rec.GHGReduction > 0 {
		return rec.GHGReduction
	}
	return 0
}

func derivePostedOn(v schemaVariant, rec upstreamRecord, now func() time.Time) time.Time {
	if rec.PostedOn != nil && !rec.PostedOn.IsZero() {
		return rec.PostedOn.Time
	}
	if rec.CreatedAt != nil && !rec.CreatedAt.IsZero() {
		return rec.CreatedAt.Time
	}
	if v == variantRich && rec.Delivery != nil && rec.Delivery.Start != nil && !rec.Delivery.Start.IsZero() {
		return rec.Delivery.Start.Time
	}
	return now()
}

func volumeUnitToken(rec upstreamRecord) string {
	if rec.Volume != nil && rec.Volume.Unit != "" {
		return rec.Volume.Unit
	}
	return rec.VolumeUnit
}

// normalizeUnit matches known unit tokens by substring, case-insensitive.
// Unrecognized units default to MT.
func normalizeUnit(token string) VolumeUnit {
	lower := strings.ToLower(token)
	switch {
	case strings.Contains(lower, "gal"):
		return UnitGal
	case strings.Contains(lower, "mt"),
		strings.Contains(lower, "tonne"),
		strings.Contains(lower, "metric-ton"),
		strings.Contains(lower, "metric ton"):
		return UnitMT
	default:
		return UnitMT
	}
}

func currencyToken(v schemaVariant, rec upstreamRecord) string {
	if v == variantRich && rec.Pricing != nil && rec.Pricing.Currency != "" {
		return rec.Pricing.Currency
	}
	return rec.Currency
}

func normalizeCurrency(token string) Currency {
	switch strings.ToUpper(token) {
	case "EUR":
		return CurrencyEUR
	case "GBP":
		return CurrencyGBP
	default:
		return CurrencyUSD
	}
}

func orgName(rec upstreamRecord) string {
	if rec.Organization != nil {
		return rec.Organization.Name
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
