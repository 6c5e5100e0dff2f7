package bid

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"fuelflow/contract"
	"fuelflow/notify"
)

// Event names raised by the buyer dashboard. The set is closed; anything else
// is logged and acknowledged without a state change.
type Event string

const (
	EventAccepted     Event = "bid.accepted"
	EventRejected     Event = "bid.rejected"
	EventCounterOffered Event = "bid.counter_offer"
)

// ErrInvalidEvent signals a malformed envelope (missing event name or bid
// correlation key). No partial writes happen for these.
var ErrInvalidEvent = errors.New("bid: invalid event payload")

// EventEnvelope is the inbound webhook body for bid lifecycle events.
type EventEnvelope struct {
	Event        string             `json:"event"`
	Bid          EventBid           `json:"bid"`
	Lot          *EventLot          `json:"lot,omitempty"`
	Contract     *EventContract     `json:"contract,omitempty"`
	CounterOffer *EventCounterOffer `json:"counterOffer,omitempty"`
}

// EventBid carries the buyer's view of the bid.
type EventBid struct {
	ID            string `json:"_id"`
	ExternalBidID string `json:"externalBidId"`
	Pricing       struct {
		Price        float64 `json:"price"`
		PricePerUnit float64 `json:"pricePerUnit"`
		Currency     string  `json:"currency"`
	} `json:"pricing"`
	Volume struct {
		Amount float64 `json:"amount"`
		Unit   string  `json:"unit"`
	} `json:"volume"`
	RejectionReason string             `json:"rejectionReason,omitempty"`
	CounterOffer    *EventCounterOffer `json:"counterOffer,omitempty"`
}

// EventLot identifies the lot the bid was placed against.
type EventLot struct {
	Title        string `json:"title"`
	Organization struct {
		Name    string `json:"name"`
		Contact string `json:"contact"`
		Email   string `json:"email"`
	} `json:"organization"`
}

// EventContract is the buyer's contract payload attached to bid.accepted.
type EventContract struct {
	ID             string `json:"_id"`
	ContractNumber string `json:"contractNumber,omitempty"`
	Pricing        struct {
		PricePerUnit float64 `json:"pricePerUnit"`
		Currency     string  `json:"currency"`
		Type         string  `json:"type"`
	} `json:"pricing"`
	Volume struct {
		Amount float64 `json:"amount"`
		Unit   string  `json:"unit"`
	} `json:"volume"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// EventCounterOffer is the buyer's proposed revision.
type EventCounterOffer struct {
	Price   float64 `json:"price"`
	Volume  float64 `json:"volume"`
	Message string  `json:"message,omitempty"`
}

// Outcome summarizes what the processor did with an event.
type Outcome struct {
	Event     string
	BidID     string
	Processed bool
}

// StatusStore is the subset of Repository the processor needs.
type StatusStore interface {
	MarkWon(ctx context.Context, externalBidID, buyerBidID string) (ProducerBid, error)
	MarkLost(ctx context.Context, externalBidID, reason string) (ProducerBid, error)
	RecordCounterOffer(ctx context.Context, externalBidID string, offer CounterOffer) (ProducerBid, error)
}

// ContractCreator materializes contracts for accepted bids.
type ContractCreator interface {
	CreateFromAcceptance(ctx context.Context, params contract.CreateParams) (contract.Contract, bool, error)
}

// Notifier emits best-effort user notifications.
type Notifier interface {
	Emit(ctx context.Context, n notify.Notification) bool
}

// Processor applies inbound lifecycle events to local bid, contract, and
// notification state. Each side effect is attempted independently: a failed
// contract or notification write never rolls back the bid status update.
type Processor struct {
	bids      StatusStore
	contracts ContractCreator
	notifier  Notifier
	logger    *log.Logger
	now       func() time.Time
}

// NewProcessor wires a Processor. contracts and notifier may be nil in tests.
func NewProcessor(bids StatusStore, contracts ContractCreator, notifier Notifier, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{
		bids:      bids,
		contracts: contracts,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Process dispatches one inbound event. A missing local bid is not a protocol
// error: the event was validly received, so the outcome still reports
// success for the caller to acknowledge with 2xx.
func (p *Processor) Process(ctx context.Context, env EventEnvelope) (Outcome, error) {
	if env.Event == "" {
		return Outcome{}, fmt.Errorf("%w: missing event name", ErrInvalidEvent)
	}
	if env.Bid.ExternalBidID == "" {
		return Outcome{}, fmt.Errorf("%w: missing bid.externalBidId", ErrInvalidEvent)
	}

	outcome := Outcome{Event: env.Event, BidID: env.Bid.ExternalBidID}

	switch Event(env.Event) {
	case EventAccepted:
		if err := p.handleAccepted(ctx, env); err != nil {
			return Outcome{}, err
		}
		outcome.Processed = true
	case EventRejected:
		if err := p.handleRejected(ctx, env); err != nil {
			return Outcome{}, err
		}
		outcome.Processed = true
	case EventCounterOffered:
		if err := p.handleCounterOffer(ctx, env); err != nil {
			return Outcome{}, err
		}
		outcome.Processed = true
	default:
		p.logger.Printf("bid event ignored event=%s external_bid_id=%s", env.Event, env.Bid.ExternalBidID)
	}

	return outcome, nil
}

func (p *Processor) handleAccepted(ctx context.Context, env EventEnvelope) error {
	b, err := p.bids.MarkWon(ctx, env.Bid.ExternalBidID, env.Bid.ID)
	if err != nil {
		if errors.Is(err, ErrBidNotFound) {
			p.logger.Printf("bid event unmatched event=%s external_bid_id=%s", env.Event, env.Bid.ExternalBidID)
			return nil
		}
		if errors.Is(err, ErrTerminalStatus) {
			p.logger.Printf("bid event ignored event=%s external_bid_id=%s err=%v", env.Event, env.Bid.ExternalBidID, err)
			return nil
		}
		return err
	}

	p.emit(ctx, notify.Notification{
		Kind:        notify.KindBidAccepted,
		Title:       "Bid accepted",
		Message:     fmt.Sprintf("Your bid %s was accepted", b.ExternalBidID),
		RelatedID:   b.ID,
		RelatedType: "bid",
		Metadata:    map[string]any{"buyerBidId": b.BuyerBidID},
	})

	if env.Contract == nil {
		return nil
	}

	params := contractParams(b, env.Contract)
	c, created, err := p.contracts.CreateFromAcceptance(ctx, params)
	if err != nil {
		// The authoritative status update already landed; the contract can be
		// reconciled from a redelivered event.
		p.logger.Printf("contract create failed external_bid_id=%s err=%v", b.ExternalBidID, err)
		return nil
	}
	if created {
		p.emit(ctx, notify.Notification{
			Kind:        notify.KindContractCreated,
			Title:       "Contract created",
			Message:     fmt.Sprintf("Contract %s was created for bid %s", c.ContractNumber, b.ExternalBidID),
			RelatedID:   c.ID,
			RelatedType: "contract",
			Metadata:    map[string]any{"contractNumber": c.ContractNumber},
		})
	}
	return nil
}

func (p *Processor) handleRejected(ctx context.Context, env EventEnvelope) error {
	b, err := p.bids.MarkLost(ctx, env.Bid.ExternalBidID, env.Bid.RejectionReason)
	if err != nil {
		if errors.Is(err, ErrBidNotFound) {
			p.logger.Printf("bid event unmatched event=%s external_bid_id=%s", env.Event, env.Bid.ExternalBidID)
			return nil
		}
		if errors.Is(err, ErrTerminalStatus) {
			p.logger.Printf("bid event ignored event=%s external_bid_id=%s err=%v", env.Event, env.Bid.ExternalBidID, err)
			return nil
		}
		return err
	}

	message := fmt.Sprintf("Your bid %s was rejected", b.ExternalBidID)
	if b.RejectionReason != "" {
		message = fmt.Sprintf("Your bid %s was rejected: %s", b.ExternalBidID, b.RejectionReason)
	}
	p.emit(ctx, notify.Notification{
		Kind:        notify.KindBidRejected,
		Title:       "Bid rejected",
		Message:     message,
		RelatedID:   b.ID,
		RelatedType: "bid",
	})
	return nil
}

func (p *Processor) handleCounterOffer(ctx context.Context, env EventEnvelope) error {
	offer := env.CounterOffer
	if offer == nil {
		offer = env.Bid.CounterOffer
	}
	if offer == nil {
		return fmt.Errorf("%w: counter offer event without counterOffer payload", ErrInvalidEvent)
	}

	b, err := p.bids.RecordCounterOffer(ctx, env.Bid.ExternalBidID, CounterOffer{
		Volume:       offer.Volume,
		PricePerUnit: offer.Price,
		Message:      offer.Message,
		BuyerBidID:   env.Bid.ID,
		ReceivedAt:   p.now(),
	})
	if err != nil {
		if errors.Is(err, ErrBidNotFound) {
			p.logger.Printf("bid event unmatched event=%s external_bid_id=%s", env.Event, env.Bid.ExternalBidID)
			return nil
		}
		if errors.Is(err, ErrTerminalStatus) {
			p.logger.Printf("bid event ignored event=%s external_bid_id=%s err=%v", env.Event, env.Bid.ExternalBidID, err)
			return nil
		}
		return err
	}

	p.emit(ctx, notify.Notification{
		Kind:        notify.KindCounterOffer,
		Title:       "Counter offer received",
		Message:     fmt.Sprintf("The buyer proposed %.2f at %.2f/unit for bid %s", offer.Volume, offer.Price, b.ExternalBidID),
		RelatedID:   b.ID,
		RelatedType: "bid",
		Metadata:    map[string]any{"price": offer.Price, "volume": offer.Volume},
	})
	return nil
}

func (p *Processor) emit(ctx context.Context, n notify.Notification) {
	if p.notifier == nil {
		return
	}
	p.notifier.Emit(ctx, n)
}

func contractParams(b ProducerBid, ec *EventContract) contract.CreateParams {
	params := contract.CreateParams{
		ProducerBidID:   b.ID,
		BuyerContractID: ec.ID,
		BuyerBidID:      b.BuyerBidID,
		ContractNumber:  ec.ContractNumber,
		VolumeAmount:    ec.Volume.Amount,
		VolumeUnit:      ec.Volume.Unit,
		PricePerUnit:    ec.Pricing.PricePerUnit,
		Currency:        ec.Pricing.Currency,
		PricingType:     ec.Pricing.Type,
	}
	if ec.StartDate != nil {
		params.StartDate = *ec.StartDate
	}
	if ec.EndDate != nil {
		params.EndDate = *ec.EndDate
	}
	if params.VolumeAmount == 0 {
		params.VolumeAmount = b.VolumeAmount
	}
	if params.VolumeUnit == "" {
		params.VolumeUnit = b.VolumeUnit
	}
	if params.PricePerUnit == 0 {
		params.PricePerUnit = b.PricePerUnit
	}
	return params
}
