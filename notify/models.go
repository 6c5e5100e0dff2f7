package notify

import "time"

// Kind labels the user-visible notification category.
type Kind string

const (
	KindBidAccepted     Kind = "bid_accepted"
	KindBidRejected     Kind = "bid_rejected"
	KindCounterOffer    Kind = "counter_offer"
	KindContractCreated Kind = "contract_created"
)

// Notification is an append-only user-facing record. It is never mutated by
// this subsystem after creation.
type Notification struct {
	ID          string
	Kind        Kind
	Title       string
	Message     string
	RelatedID   string
	RelatedType string
	Metadata    map[string]any
	Read        bool
	CreatedAt   time.Time
}
