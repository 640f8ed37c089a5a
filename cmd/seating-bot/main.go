package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wedding-seating/internal/config"
	"wedding-seating/internal/handler"
	"wedding-seating/internal/metrics"
	"wedding-seating/internal/seating"
	"wedding-seating/internal/storage"
	"wedding-seating/internal/whatsapp"
	"wedding-seating/pkg/logger"
)

func main() {
	fmt.Println("🎉 Wedding Seating Planner")
	fmt.Println("==========================")

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}

	repo, err := openStorage(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer repo.Close()

	policy := seating.DefaultPolicy()
	if cfg.PolicyFile != "" {
		if policy, err = seating.LoadPolicy(cfg.PolicyFile); err != nil {
			log.Fatal().Err(err).Msg("Failed to load seating policy")
		}
	}

	registry := prometheus.NewRegistry()
	seatingMetrics := metrics.New(registry)
	if cfg.PrometheusPort != "" {
		go serveMetrics(cfg.PrometheusPort, registry, log)
	}

	seatingService := seating.NewService(repo, newLocker(ctx, cfg, log), policy, seatingMetrics, log)

	var (
		messenger handler.Messenger
		waService *whatsapp.Service
	)
	if cfg.WhatsAppEnabled {
		waService, err = whatsapp.NewService(ctx, &whatsapp.Config{DataDir: cfg.DataDir}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize WhatsApp service")
		}
		messenger = waService
	} else {
		messenger = whatsapp.NewOfflineSender(log)
	}

	rsvpHandler := handler.NewRSVPHandler(messenger, repo, seatingService, &handler.Config{
		EventID:         cfg.EventID,
		WeddingDate:     cfg.WeddingDate,
		WeddingLocation: cfg.WeddingLocation,
		BrideName:       cfg.BrideName,
		GroomName:       cfg.GroomName,
	}, log)

	if waService != nil {
		waService.SetMessageHandler(rsvpHandler.HandleMessage)

		fmt.Println("Connecting to WhatsApp...")
		if err := waService.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to WhatsApp")
		}
		defer waService.Disconnect()
		fmt.Println("\n✅ Connected to WhatsApp! Listening for RSVP responses.")
	}

	cli := &CLI{
		cfg:     cfg,
		repo:    repo,
		seating: seatingService,
		rsvp:    rsvpHandler,
	}
	go func() {
		cli.Run(ctx)
		cancel()
	}()

	<-ctx.Done()
	fmt.Println("\n\nShutting down...")
	fmt.Println("Goodbye! 👋")
}

func openStorage(cfg *config.Config, log zerolog.Logger) (storage.Repository, error) {
	if cfg.StorageDriver == "memory" {
		return storage.NewMemoryStore(filepath.Join(cfg.DataDir, "seating.json"))
	}

	store, err := storage.NewSQLStore(cfg.StorageDriver, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// newLocker uses Redis when configured and reachable, otherwise an
// in-process lock.
func newLocker(ctx context.Context, cfg *config.Config, log zerolog.Logger) seating.EventLocker {
	if cfg.RedisURL == "" {
		return seating.NewMemoryLocker()
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid REDIS_URL, using in-process seating lock")
		return seating.NewMemoryLocker()
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("Redis not available, using in-process seating lock")
		client.Close()
		return seating.NewMemoryLocker()
	}

	log.Info().Msg("Using Redis seating lock")
	return seating.NewRedisLocker(client, cfg.LockTTL, log)
}

func serveMetrics(port string, registry *prometheus.Registry, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))

	log.Info().Str("port", port).Msg("Metrics server listening")
	if err := http.ListenAndServe(":"+port, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Metrics server error")
	}
}
