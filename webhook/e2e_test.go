package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fuelflow/auth"
	"fuelflow/bid"
	"fuelflow/contract"
	"fuelflow/notify"
)

// memBidStore is an in-memory StatusStore covering the full callback flow.
type memBidStore struct {
	mu   sync.Mutex
	bids map[string]*bid.ProducerBid
}

func (m *memBidStore) MarkWon(_ context.Context, externalBidID, buyerBidID string) (bid.ProducerBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[externalBidID]
	if !ok {
		return bid.ProducerBid{}, bid.ErrBidNotFound
	}
	b.Status = bid.StatusWon
	b.BuyerBidID = buyerBidID
	return *b, nil
}

func (m *memBidStore) MarkLost(_ context.Context, externalBidID, reason string) (bid.ProducerBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[externalBidID]
	if !ok {
		return bid.ProducerBid{}, bid.ErrBidNotFound
	}
	b.Status = bid.StatusLost
	b.RejectionReason = reason
	return *b, nil
}

func (m *memBidStore) RecordCounterOffer(_ context.Context, externalBidID string, offer bid.CounterOffer) (bid.ProducerBid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bids[externalBidID]
	if !ok {
		return bid.ProducerBid{}, bid.ErrBidNotFound
	}
	b.Status = bid.StatusCounterOffer
	b.CounterOffer = &offer
	return *b, nil
}

type memContracts struct{}

func (memContracts) CreateFromAcceptance(_ context.Context, params contract.CreateParams) (contract.Contract, bool, error) {
	return contract.Contract{ID: "c-1", ProducerBidID: params.ProducerBidID}, true, nil
}

type memNotifier struct {
	mu      sync.Mutex
	emitted []notify.Notification
}

func (m *memNotifier) Emit(_ context.Context, n notify.Notification) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitted = append(m.emitted, n)
	return true
}

// Full loop: a submitted bid receives a rejection callback through the real
// router, gate, and processor; the local record ends up lost with the
// buyer's reason.
func TestRejectionCallback_EndToEnd(t *testing.T) {
	const externalID = "bid_1700000000000_abc123"

	store := &memBidStore{bids: map[string]*bid.ProducerBid{
		externalID: {
			ID:            "local-1",
			ExternalBidID: externalID,
			LotID:         "lot-7",
			Status:        bid.StatusSubmitted,
		},
	}}
	notifier := &memNotifier{}
	proc := bid.NewProcessor(store, memContracts{}, notifier, quietLogger())

	codec := auth.NewCodec("e2e-secret", 300*time.Second)
	gate := auth.NewGate(codec, "hook-secret", "", quietLogger())
	router := NewRouter(gate, proc, &stubLotProcessor{}, &stubSubmitter{}, &stubLister{}, quietLogger())

	srv := httptest.NewServer(router)
	defer srv.Close()

	token, err := codec.Issue(auth.IssueParams{Action: "bid_callback"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	body := `{
		"event": "bid.rejected",
		"bid": {
			"_id": "buyer-55",
			"externalBidId": "` + externalID + `",
			"rejectionReason": "price too low"
		}
	}`

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/bids", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var decoded bidEventResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Success || !decoded.Processed || decoded.BidID != externalID {
		t.Fatalf("unexpected response: %+v", decoded)
	}

	b := store.bids[externalID]
	if b.Status != bid.StatusLost {
		t.Fatalf("expected status lost, got %s", b.Status)
	}
	if b.RejectionReason != "price too low" {
		t.Fatalf("expected rejection reason stored, got %q", b.RejectionReason)
	}
	if len(notifier.emitted) != 1 || notifier.emitted[0].Kind != notify.KindBidRejected {
		t.Fatalf("expected one rejection notification, got %+v", notifier.emitted)
	}
}
