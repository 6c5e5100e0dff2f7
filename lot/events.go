package lot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
)

// Lot lifecycle event names raised by the buyer dashboard.
type Event string

const (
	EventCreated Event = "lot.created"
	EventUpdated Event = "lot.updated"
	EventDeleted Event = "lot.deleted"
)

// ErrInvalidLotEvent signals a malformed lot event envelope.
var ErrInvalidLotEvent = errors.New("lot: invalid event payload")

// EventEnvelope is the inbound webhook body for lot events. The lot payload
// stays raw so the normalizer's variant detection applies to it unchanged.
type EventEnvelope struct {
	Event string          `json:"event"`
	Lot   json.RawMessage `json:"lot"`
}

// EventOutcome summarizes what the processor did with a lot event.
type EventOutcome struct {
	Event     string
	LotID     string
	Processed bool
}

// Processor applies inbound lot events: created/updated upsert the canonical
// form, deleted soft-deletes it.
type Processor struct {
	normalizer *Normalizer
	repo       Repository
	logger     *log.Logger
}

// NewProcessor wires a lot event processor.
func NewProcessor(normalizer *Normalizer, repo Repository, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.Default()
	}
	return &Processor{normalizer: normalizer, repo: repo, logger: logger}
}

// Process dispatches one lot event. Unknown event names are logged and
// acknowledged without a state change.
func (p *Processor) Process(ctx context.Context, env EventEnvelope) (EventOutcome, error) {
	if env.Event == "" {
		return EventOutcome{}, fmt.Errorf("%w: missing event name", ErrInvalidLotEvent)
	}
	if len(env.Lot) == 0 {
		return EventOutcome{}, fmt.Errorf("%w: missing lot payload", ErrInvalidLotEvent)
	}

	normalized, err := p.normalizer.Normalize(env.Lot)
	if err != nil {
		return EventOutcome{}, fmt.Errorf("%w: %v", ErrInvalidLotEvent, err)
	}

	outcome := EventOutcome{Event: env.Event, LotID: normalized.ID}

	switch Event(env.Event) {
	case EventCreated, EventUpdated:
		if _, err := p.repo.Upsert(ctx, normalized); err != nil {
			return EventOutcome{}, err
		}
		outcome.Processed = true
	case EventDeleted:
		if err := p.repo.SoftDelete(ctx, normalized); err != nil {
			if errors.Is(err, ErrLotNotFound) {
				p.logger.Printf("lot delete unmatched lot_id=%s name=%q", normalized.ID, normalized.LotName)
				outcome.Processed = true
				return outcome, nil
			}
			return EventOutcome{}, err
		}
		outcome.Processed = true
	default:
		p.logger.Printf("lot event ignored event=%s lot_id=%s", env.Event, normalized.ID)
	}

	return outcome, nil
}
