package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/outreachpass/passhub/internal/config"
	"github.com/outreachpass/passhub/internal/db"
	"github.com/outreachpass/passhub/internal/email"
	"github.com/outreachpass/passhub/internal/issuance"
	"github.com/outreachpass/passhub/internal/observability"
	"github.com/outreachpass/passhub/internal/queue/redisclient"
	"github.com/outreachpass/passhub/internal/queue/worker"
	"github.com/outreachpass/passhub/internal/repo/postgres"
	"github.com/outreachpass/passhub/internal/storage"
	"github.com/outreachpass/passhub/internal/tracking"
	"github.com/outreachpass/passhub/internal/wallet"
	"github.com/outreachpass/passhub/internal/wallet/applewallet"
	"github.com/outreachpass/passhub/internal/wallet/googlewallet"
)

// emailAdapter bridges the pipeline's delivery view onto the concrete
// dispatcher without the issuance package importing email.
type emailAdapter struct {
	dispatcher *email.Dispatcher
}

func (a emailAdapter) Dispatch(ctx context.Context, in issuance.EmailDispatch) (string, error) {
	return a.dispatcher.Dispatch(ctx, email.DispatchInput{
		JobID: in.JobID,
		Compose: email.ComposeInput{
			Card:          in.Card,
			Event:         in.Event,
			CardURL:       in.CardURL,
			GoogleSaveURL: in.GoogleSaveURL,
			ApplePass:     in.ApplePass,
		},
	})
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "passhub-worker", cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(cfg.DBURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redisclient.New(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	store, err := storage.New(ctx, cfg.ObjectStore)
	if err != nil {
		log.Error("object store init failed", "err", err)
		os.Exit(1)
	}

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	jobsRepo := postgres.NewJobsRepo(pool, prom)
	cardsRepo := postgres.NewCardsRepo(pool, prom)

	var builders []wallet.PassBuilder

	if cfg.Google.Enabled {
		gb, err := googlewallet.New(ctx, cfg.Google)
		if err != nil {
			log.Error("google wallet init failed", "err", err)
			os.Exit(1)
		}
		builders = append(builders, gb)
	}

	if cfg.Apple.Enabled {
		ab, err := applewallet.New(cfg.Apple, store)
		if err != nil {
			log.Error("apple wallet init failed", "err", err)
			os.Exit(1)
		}
		builders = append(builders, ab)
	}

	if len(builders) == 0 {
		log.Warn("no wallet platforms enabled; jobs will produce artifacts only")
	}

	dispatches := tracking.NewStore(rdb.Raw(), cfg.TrackingTTL)

	sender := email.NewProtectedSender(
		email.NewSMTPSender(cfg.SMTP),
		email.ProtectedSenderConfig{},
	)
	dispatcher := email.NewDispatcher(sender, dispatches, cfg.PublicBaseURL)

	pipeline := issuance.NewPipeline(
		cardsRepo,
		store,
		jobsRepo,
		builders,
		emailAdapter{dispatcher: dispatcher},
		cfg.PublicBaseURL,
	).WithMetrics(prom)

	w := worker.New(worker.Config{
		PollInterval: cfg.Worker.PollInterval,
		Concurrency:  cfg.Worker.Concurrency,
		LockTTL:      cfg.Worker.LockTTL,
	}, jobsRepo, pipeline, prom, nil)

	sweeps := w.StartSweeps(ctx)

	// health and metrics sidecar
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", w.HealthHandler(pool))

	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.HealthPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health server failed", "err", err)
		}
	}()

	log.Info("worker has started", "health_port", cfg.Worker.HealthPort)

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	// drain the sweeps and the sidecar within the shutdown grace
	sctx, cancel := config.WithTimeout(cfg.Worker.ShutdownGrace)
	defer cancel()

	<-sweeps.Stop().Done()

	if err := healthSrv.Shutdown(sctx); err != nil {
		log.Error("health server shutdown failed", "err", err)
	}
	if err := shutdownTracer(sctx); err != nil {
		log.Error("tracer shutdown failed", "err", err)
	}

	log.Info("worker shutdown complete")
}
