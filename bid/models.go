package bid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a producer bid.
type Status string

const (
	StatusDraft        Status = "draft"
	StatusSubmitted    Status = "submitted"
	StatusWon          Status = "won"
	StatusLost         Status = "lost"
	StatusCounterOffer Status = "counter_offer"
	StatusSuperseded   Status = "superseded"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusWon, StatusLost, StatusSuperseded:
		return true
	default:
		return false
	}
}

// CounterOffer holds the buyer's revision of price and volume. BuyerBidID is
// retained so a later accept-counter action can reference the buyer-side bid.
type CounterOffer struct {
	Volume       float64   `json:"volume"`
	PricePerUnit float64   `json:"pricePerUnit"`
	Message      string    `json:"message,omitempty"`
	BuyerBidID   string    `json:"buyerBidId,omitempty"`
	ReceivedAt   time.Time `json:"receivedAt"`
}

// ProducerBid is the local record of a bid this system submitted. Until a
// callback populates BuyerBidID, ExternalBidID is the only reliable join key
// between the two dashboards.
type ProducerBid struct {
	ID              string
	ExternalBidID   string
	LotID           string
	VolumeAmount    float64
	VolumeUnit      string
	Price           float64
	PricePerUnit    float64
	Currency        string
	Status          Status
	BuyerBidID      string
	RejectionReason string
	CounterOffer    *CounterOffer
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewExternalBidID generates the correlation key assigned at submission time,
// before the outbound call is made. Format: bid_<epochMillis>_<random>.
func NewExternalBidID(now time.Time) string {
	return fmt.Sprintf("bid_%d_%.8s", now.UnixMilli(), uuid.NewString())
}
