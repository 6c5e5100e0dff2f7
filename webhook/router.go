package webhook

import (
	"log"
	"net/http"

	"fuelflow/auth"
)

// NewRouter assembles the HTTP surface. Every endpoint except the health
// check sits behind the auth gate and request logging.
func NewRouter(gate *auth.Gate, bids BidEventProcessor, lots LotEventProcessor, submitter BidSubmitter, lister LotLister, logger *log.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/webhooks/bids", RequireAuth(gate, HandleBidEvents(bids), logger))
	mux.Handle("/webhooks/lots", RequireAuth(gate, HandleLotEvents(lots), logger))
	mux.Handle("/api/bids/submit", RequireAuth(gate, HandleSubmitBid(submitter), logger))
	mux.Handle("/api/lots/open", RequireAuth(gate, HandleOpenLots(lister), logger))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return RequestLogger(mux, logger)
}
