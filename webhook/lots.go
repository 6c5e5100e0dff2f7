package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"fuelflow/lot"
)

// LotEventProcessor is the minimal interface needed to apply lot events.
type LotEventProcessor interface {
	Process(ctx context.Context, env lot.EventEnvelope) (lot.EventOutcome, error)
}

type lotEventResponse struct {
	Success   bool   `json:"success"`
	Event     string `json:"event"`
	LotID     string `json:"lotId"`
	Processed bool   `json:"processed"`
}

// HandleLotEvents returns the handler for POST /webhooks/lots.
func HandleLotEvents(proc LotEventProcessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var env lot.EventEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		outcome, err := proc.Process(r.Context(), env)
		if err != nil {
			if errors.Is(err, lot.ErrInvalidLotEvent) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "event processing failed")
			return
		}

		writeJSON(w, http.StatusOK, lotEventResponse{
			Success:   true,
			Event:     outcome.Event,
			LotID:     outcome.LotID,
			Processed: outcome.Processed,
		})
	}
}
