package lot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"fuelflow/auth"
)

// ErrUpstreamUnavailable signals the counterpart's lot feed could not be
// reached or answered non-2xx. Callers degrade to already-known lots.
var ErrUpstreamUnavailable = errors.New("lot: counterpart unavailable")

// Fetcher pulls the counterpart's published lots.
type Fetcher struct {
	baseURL    string
	apiKey     string
	codec      *auth.Codec
	httpClient *http.Client
}

// NewFetcher builds a Fetcher against the counterpart base URL.
func NewFetcher(baseURL string, codec *auth.Codec, apiKey string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		baseURL:    baseURL,
		apiKey:     apiKey,
		codec:      codec,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch returns the raw lot records from the counterpart. The feed may wrap
// records in {"lots": [...]} or send a bare array.
func (f *Fetcher) Fetch(ctx context.Context) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		f.baseURL+"/api/lots/external?status=published", nil)
	if err != nil {
		return nil, fmt.Errorf("lot: build fetch request: %w", err)
	}

	token, err := f.codec.Issue(auth.IssueParams{Action: "fetch_lots"})
	if err != nil {
		return nil, fmt.Errorf("lot: issue token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-API-Key", f.apiKey)
	req.Header.Set("X-Source", "producer-dashboard")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}

	var wrapped struct {
		Lots []json.RawMessage `json:"lots"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Lots != nil {
		return wrapped.Lots, nil
	}

	var bare []json.RawMessage
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, fmt.Errorf("lot: decode feed: %w", err)
	}
	return bare, nil
}

// OpenLotsResult carries the lots to display plus a non-fatal upstream error
// message when the refresh degraded.
type OpenLotsResult struct {
	Lots          []CanonicalLot
	UpstreamError string
}

// Service combines fetching, normalization, and storage.
type Service struct {
	fetcher    *Fetcher
	normalizer *Normalizer
	repo       Repository
	logger     *log.Logger
}

// NewService wires the lot sync service.
func NewService(fetcher *Fetcher, normalizer *Normalizer, repo Repository, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		fetcher:    fetcher,
		normalizer: normalizer,
		repo:       repo,
		logger:     logger,
	}
}

// Refresh pulls the counterpart's published lots and upserts the normalized
// records. Upserts fan out with bounded concurrency; a single record's
// failure is logged and skipped. Returns how many lots were stored.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	raws, err := s.fetcher.Fetch(ctx)
	if err != nil {
		return 0, err
	}

	lots := s.normalizer.NormalizeBatch(raws)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	stored := make([]bool, len(lots))
	for i := range lots {
		g.Go(func() error {
			if _, err := s.repo.Upsert(gctx, lots[i]); err != nil {
				s.logger.Printf("lot refresh upsert failed lot_id=%s err=%v", lots[i].ID, err)
				return nil
			}
			stored[i] = true
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, ok := range stored {
		if ok {
			count++
		}
	}
	return count, nil
}

// OpenLots refreshes from the counterpart and returns every known open lot.
// When the counterpart is unreachable the already-known lots are returned
// with the upstream error attached; locally held data is never discarded
// because a remote fetch failed.
func (s *Service) OpenLots(ctx context.Context) (OpenLotsResult, error) {
	var result OpenLotsResult

	if _, err := s.Refresh(ctx); err != nil {
		if !errors.Is(err, ErrUpstreamUnavailable) {
			return OpenLotsResult{}, err
		}
		s.logger.Printf("lot refresh degraded err=%v", err)
		result.UpstreamError = "could not reach counterpart"
	}

	lots, err := s.repo.List(ctx)
	if err != nil {
		return OpenLotsResult{}, err
	}
	result.Lots = lots
	return result, nil
}
