package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rhowell/potstash/internal/config"
	"github.com/rhowell/potstash/internal/events/kafka"
	"github.com/rhowell/potstash/internal/interfaces"
	"github.com/rhowell/potstash/internal/ledger"
	"github.com/rhowell/potstash/internal/logger"
	"github.com/rhowell/potstash/internal/materialize"
	"github.com/rhowell/potstash/internal/notify"
	"github.com/rhowell/potstash/internal/storage/memory"
	"github.com/rhowell/potstash/internal/storage/postgres"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()
	cfg := config.Load(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := buildStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("storage initialization failed")
	}
	defer cleanup()

	notifier, notifierClose := buildNotifier(cfg, log)
	defer notifierClose()

	service := ledger.NewService(store, log)
	runner := materialize.NewRunner(store, notifier, log)

	if cfg.MaterializeEnabled {
		scheduler := materialize.NewScheduler(runner, cfg.MaterializeSchedule, log)
		go scheduler.Run(ctx)
	} else {
		log.Info().Msg("materializer disabled by configuration")
	}

	srv := &server{store: store, service: service, runner: runner, log: log}
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: requestLogger(log, srv.routes()),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("starting server")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func buildStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (interfaces.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Info().Msg("no DATABASE_URL set, using in-memory store")
		return memory.NewStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	store := postgres.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info().Msg("using postgres store")
	return store, func() { db.Close() }, nil
}

func buildNotifier(cfg config.Config, log zerolog.Logger) (interfaces.Notifier, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		log.Info().Msg("no KAFKA_BROKERS set, logging notifications")
		return notify.NewLogNotifier(log), func() {}
	}

	publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.NotificationTopic)
	log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.NotificationTopic).
		Msg("publishing notifications to kafka")
	return notify.NewKafkaNotifier(publisher), func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("kafka publisher close failed")
		}
	}
}

func requestLogger(log zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
