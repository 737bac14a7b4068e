package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"expohub/internal/app"
	"expohub/internal/auth"
	"expohub/internal/db"
	"expohub/internal/events"
	httpx "expohub/internal/http"
	"expohub/internal/listing"
	"expohub/internal/logger"
	"expohub/internal/mailer"
	"expohub/internal/metrics"
	"expohub/internal/models"
	"expohub/internal/reaction"
	"expohub/internal/storage"
	"expohub/internal/tracing"
)

func main() {
	cfg, err := app.LoadConfig()
	app.Must(err)

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, "expohub", cfg.OTLPEndpoint)
	app.Must(err)

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	app.Must(err)
	defer pool.Close()
	app.Must(db.Migrate(ctx, pool))

	var pub events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		n, err := events.NewNATS(cfg.NATSURL)
		app.Must(err)
		defer n.Close()
		pub = n
	}

	var blobs storage.Blobs
	if cfg.MinIOEndpoint != "" {
		m, err := storage.NewMinIO(ctx, cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL, log)
		app.Must(err)
		blobs = m
	} else {
		log.Warn("MINIO_ENDPOINT not set, uploads disabled")
	}

	var welcome auth.Welcomer
	if cfg.SMTPHost != "" {
		welcome = mailer.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	}

	authSvc := auth.NewService(pool, auth.NewTokens(cfg.JWTSecret), cfg.SessionLifetime(), pub, welcome, log)
	go authSvc.Run(ctx)

	m := metrics.New("expohub")
	notices, unsubscribe := authSvc.Subscribe(64)
	defer unsubscribe()
	go func() {
		for n := range notices {
			m.AuthEvents.WithLabelValues(n.Subject).Inc()
		}
	}()

	srv := httpx.NewServer(cfg, httpx.Deps{
		Auth: authSvc,
		Listings: []httpx.Listings{
			listing.NewGateway(pool, models.Expositions),
			listing.NewGateway(pool, models.SaleAds),
		},
		Reactions: reaction.NewService(pool),
		Blobs:     blobs,
		Events:    pub,
		Metrics:   m,
		Log:       log,
	})

	hs := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpx.WithTimeout(srv, cfg.Timeout()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown", zap.Error(err))
	}
}
