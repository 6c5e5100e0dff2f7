package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"fuelflow/auth"
	"fuelflow/bid"
	"fuelflow/config"
	"fuelflow/contract"
	"fuelflow/db"
	"fuelflow/lot"
	"fuelflow/migrations"
	"fuelflow/notify"
	"fuelflow/webhook"
)

func main() {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	if err := run(logger); err != nil {
		logger.Fatalf("bootstrap: %v", err)
	}
}

func run(logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return err
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		return err
	}

	codec := auth.NewCodec(cfg.TokenSecret, cfg.TokenTTL)
	gate := auth.NewGate(codec, cfg.WebhookSecret, cfg.APISecret, logger)

	notifier := notify.NewEmitter(notify.NewRepository(pool), logger)
	contracts := contract.NewRepository(pool)

	bidRepo := bid.NewRepository(pool)
	bidProcessor := bid.NewProcessor(bidRepo, contracts, notifier, logger)
	bidClient := bid.NewClient(cfg.CounterpartURL, codec, cfg.APISecret, cfg.OutboundTimeout)
	bidService := bid.NewService(bidRepo, bidClient, logger)

	normalizer := lot.NewNormalizer(logger)
	lotRepo := lot.NewRepository(pool)
	lotProcessor := lot.NewProcessor(normalizer, lotRepo, logger)
	fetcher := lot.NewFetcher(cfg.CounterpartURL, codec, cfg.APISecret, cfg.OutboundTimeout)
	lotService := lot.NewService(fetcher, normalizer, lotRepo, logger)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      webhook.NewRouter(gate, bidProcessor, lotProcessor, bidService, lotService, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Printf("listening addr=%s env=%s", cfg.ListenAddr, cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Periodic refresh keeps the local lot cache warm between webhook
	// deliveries. Failures here are logged, not fatal.
	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n, err := lotService.Refresh(gctx); err != nil {
					logger.Printf("lot refresh failed err=%v", err)
				} else {
					logger.Printf("lot refresh stored=%d", n)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
