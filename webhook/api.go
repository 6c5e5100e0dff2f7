package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"fuelflow/bid"
	"fuelflow/lot"
)

// BidSubmitter drives the outbound submission flow.
type BidSubmitter interface {
	Submit(ctx context.Context, params bid.SubmitParams) (bid.ProducerBid, error)
}

// LotLister serves the locally cached open lots.
type LotLister interface {
	OpenLots(ctx context.Context) (lot.OpenLotsResult, error)
}

type submitRequest struct {
	LotID        string  `json:"lotId"`
	VolumeAmount float64 `json:"volumeAmount"`
	VolumeUnit   string  `json:"volumeUnit"`
	Price        float64 `json:"price"`
	PricePerUnit float64 `json:"pricePerUnit"`
	Currency     string  `json:"currency"`
}

type submitResponse struct {
	ExternalBidID string `json:"externalBidId"`
	Status        string `json:"status"`
	BuyerBidID    string `json:"buyerBidId,omitempty"`
	FailureKind   string `json:"failureKind,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

// HandleSubmitBid returns the handler for POST /api/bids/submit. Outbound
// failures keep the draft record and report the classified failure to the
// caller instead of a bare 5xx.
func HandleSubmitBid(svc BidSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		b, err := svc.Submit(r.Context(), bid.SubmitParams{
			LotID:        req.LotID,
			VolumeAmount: req.VolumeAmount,
			VolumeUnit:   req.VolumeUnit,
			Price:        req.Price,
			PricePerUnit: req.PricePerUnit,
			Currency:     req.Currency,
		})
		if err != nil {
			var submitErr *bid.SubmitError
			switch {
			case errors.As(err, &submitErr):
				writeJSON(w, http.StatusBadGateway, submitResponse{
					ExternalBidID: b.ExternalBidID,
					Status:        string(b.Status),
					FailureKind:   string(submitErr.Kind),
					FailureReason: submitErr.Message,
				})
			case errors.Is(err, bid.ErrInvalidSubmission):
				writeError(w, http.StatusBadRequest, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, "bid submission failed")
			}
			return
		}

		writeJSON(w, http.StatusOK, submitResponse{
			ExternalBidID: b.ExternalBidID,
			Status:        string(b.Status),
			BuyerBidID:    b.BuyerBidID,
		})
	}
}

type openLotView struct {
	ID             string    `json:"id,omitempty"`
	Airline        string    `json:"airline"`
	LotName        string    `json:"lotName"`
	Volume         float64   `json:"volume"`
	VolumeUnit     string    `json:"volumeUnit"`
	PricePerUnit   float64   `json:"pricePerUnit"`
	Currency       string    `json:"currency"`
	CIScore        float64   `json:"ciScore"`
	Location       string    `json:"location"`
	DeliveryWindow string    `json:"deliveryWindow"`
	LongTerm       bool      `json:"longTerm"`
	PostedOn       time.Time `json:"postedOn"`
}

type openLotsResponse struct {
	Lots          []openLotView `json:"lots"`
	UpstreamError string        `json:"upstreamError,omitempty"`
}

// HandleOpenLots returns the handler for GET /api/lots/open. When the
// counterpart is unreachable the cached lots are still served, with the
// upstream error noted in the body.
func HandleOpenLots(svc LotLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		result, err := svc.OpenLots(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "listing lots failed")
			return
		}

		views := make([]openLotView, 0, len(result.Lots))
		for _, l := range result.Lots {
			views = append(views, openLotView{
				ID:             l.ID,
				Airline:        l.Airline,
				LotName:        l.LotName,
				Volume:         l.Volume,
				VolumeUnit:     string(l.VolumeUnit),
				PricePerUnit:   l.PricePerUnit,
				Currency:       string(l.Currency),
				CIScore:        l.CIScore,
				Location:       l.Location,
				DeliveryWindow: l.DeliveryWindow,
				LongTerm:       l.LongTerm,
				PostedOn:       l.PostedOn,
			})
		}

		writeJSON(w, http.StatusOK, openLotsResponse{
			Lots:          views,
			UpstreamError: result.UpstreamError,
		})
	}
}
