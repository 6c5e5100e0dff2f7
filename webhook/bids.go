package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"fuelflow/bid"
)

// BidEventProcessor is the minimal interface needed to apply bid events.
type BidEventProcessor interface {
	Process(ctx context.Context, env bid.EventEnvelope) (bid.Outcome, error)
}

type bidEventResponse struct {
	Success   bool   `json:"success"`
	Event     string `json:"event"`
	BidID     string `json:"bidId"`
	Processed bool   `json:"processed"`
}

// HandleBidEvents returns the handler for POST /webhooks/bids. A missing
// local bid is not a protocol error; the response is 200 as long as the
// event itself was validly received and applied.
func HandleBidEvents(proc BidEventProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var env bid.EventEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		outcome, err := proc.Process(r.Context(), env)
		if err != nil {
			if errors.Is(err, bid.ErrInvalidEvent) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "event processing failed")
			return
		}

		writeJSON(w, http.StatusOK, bidEventResponse{
			Success:   true,
			Event:     outcome.Event,
			BidID:     outcome.BidID,
			Processed: outcome.Processed,
		})
	}
}
