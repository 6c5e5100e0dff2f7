package bid

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrInvalidSubmission flags caller input rejected before any state change.
var ErrInvalidSubmission = errors.New("bid: invalid submission")

// Submitter abstracts the outbound client for testability.
type Submitter interface {
	Submit(ctx context.Context, b ProducerBid) (SubmitReceipt, error)
}

// SubmitParams carries the fields a local actor provides when bidding on a
// lot.
type SubmitParams struct {
	LotID        string
	VolumeAmount float64
	VolumeUnit   string
	Price        float64
	PricePerUnit float64
	Currency     string
}

// Service drives the submission flow: create the local record, generate the
// correlation key before the outbound call, submit, then mark submitted.
type Service struct {
	repo   Repository
	client Submitter
	logger *log.Logger
	now    func() time.Time
}

// NewService builds a Service using the provided repository and client.
func NewService(repo Repository, client Submitter, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		repo:   repo,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Submit places a bid against a lot. On outbound failure the draft record is
// kept and the classified *SubmitError is returned so the caller can decide
// whether to retry. On success older submitted bids on the same lot are
// superseded.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (ProducerBid, error) {
	if params.LotID == "" {
		return ProducerBid{}, fmt.Errorf("%w: lot id required", ErrInvalidSubmission)
	}
	if params.VolumeAmount <= 0 {
		return ProducerBid{}, fmt.Errorf("%w: volume must be positive", ErrInvalidSubmission)
	}
	if params.Price <= 0 && params.PricePerUnit <= 0 {
		return ProducerBid{}, fmt.Errorf("%w: price required", ErrInvalidSubmission)
	}
	if params.VolumeUnit == "" {
		params.VolumeUnit = "MT"
	}
	if params.Currency == "" {
		params.Currency = "USD"
	}

	externalID := NewExternalBidID(s.now())

	b, err := s.repo.Create(ctx, CreateParams{
		ExternalBidID: externalID,
		LotID:         params.LotID,
		VolumeAmount:  params.VolumeAmount,
		VolumeUnit:    params.VolumeUnit,
		Price:         params.Price,
		PricePerUnit:  params.PricePerUnit,
		Currency:      params.Currency,
	})
	if err != nil {
		return ProducerBid{}, err
	}

	if _, err := s.client.Submit(ctx, b); err != nil {
		// The draft stays; retrying submits a new bid with a new key.
		return b, err
	}

	submitted, err := s.repo.MarkSubmitted(ctx, externalID)
	if err != nil {
		return b, fmt.Errorf("bid: mark submitted: %w", err)
	}

	if n, err := s.repo.SupersedePrevious(ctx, params.LotID, externalID); err != nil {
		s.logger.Printf("supersede failed lot_id=%s err=%v", params.LotID, err)
	} else if n > 0 {
		s.logger.Printf("superseded previous bids lot_id=%s count=%d", params.LotID, n)
	}

	return submitted, nil
}
