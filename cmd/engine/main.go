package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/Remindus/internal/api"
	"github.com/NordCoder/Remindus/internal/channel"
	config "github.com/NordCoder/Remindus/internal/config/engine"
	"github.com/NordCoder/Remindus/internal/dedup"
	"github.com/NordCoder/Remindus/internal/domain/notification"
	"github.com/NordCoder/Remindus/internal/obs"
	pg "github.com/NordCoder/Remindus/internal/repository/postgres"
	"github.com/NordCoder/Remindus/internal/schedule"
	"github.com/NordCoder/Remindus/internal/services/ack"
	"github.com/NordCoder/Remindus/internal/services/dispatch"
	"github.com/NordCoder/Remindus/internal/services/eventscan"
	"github.com/NordCoder/Remindus/internal/services/materializer"
	"github.com/NordCoder/Remindus/internal/services/retention"
)

func main() {
	cfgPath := flag.String("config", "", "path to yaml config")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	l.Info("starting engine",
		zap.String("api_addr", cfg.API.Addr),
		zap.String("metrics_addr", cfg.Engine.MetricsAddr),
		zap.Duration("tick", cfg.Engine.Tick),
	)

	otelCloser, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	db, err := pg.NewDB(ctx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	clock := notification.SystemClock{}

	// channels
	senders := []channel.Sender{channel.NewEmailSender(cfg.SMTP, l)}
	tctx, tcancel := context.WithTimeout(ctx, 30*time.Second)
	if err := channel.EnsureRealtimeTopic(tctx, cfg.Realtime, l); err != nil {
		l.Warn("realtime topic bootstrap failed", zap.Error(err))
	}
	tcancel()
	realtime := channel.NewRealtimeSender(cfg.Realtime, l)
	senders = append(senders, realtime)
	defer func() { _ = realtime.Close() }()
	if cfg.Push.CredentialsFile != "" {
		push, err := channel.NewPushSender(ctx, cfg.Push, l)
		if err != nil {
			l.Fatal("push init", zap.Error(err))
		}
		senders = append(senders, push)
	} else {
		l.Warn("push channel disabled: no credentials file")
	}
	registry := channel.NewRegistry(senders...)

	// repositories
	store := pg.NewNotificationRepo(db)
	users := pg.NewUserRepo(db)
	events := pg.NewEventRepo(db)
	prefs := pg.NewPreferenceRepo(db)

	// services
	dispatcher := &dispatch.Dispatcher{
		Store:       store,
		Users:       users,
		Registry:    registry,
		Clock:       clock,
		Log:         l,
		SendTimeout: cfg.Engine.SendTimeout,
	}
	ticker := &dispatch.Ticker{
		Store:      store,
		Dispatch:   dispatcher,
		Clock:      clock,
		Log:        l,
		BatchLimit: cfg.Engine.BatchLimit,
		Workers:    cfg.Engine.DispatchWorkers,
	}
	retrier := &retention.RetryCoordinator{
		Store:     store,
		Dispatch:  dispatcher,
		Clock:     clock,
		Log:       l,
		Window:    cfg.Engine.RetryWindow,
		MaxPerRun: cfg.Engine.RetryBatch,
	}
	sweeper := &retention.Sweeper{
		Store:     store,
		Clock:     clock,
		Log:       l,
		Retention: cfg.Engine.Retention,
	}
	guard := dedup.NewGuard(cfg.Engine.GuardTTL, clock)
	mat := &materializer.Handler{Prefs: prefs, Store: store, Clock: clock, Log: l}
	scanner := &eventscan.Scanner{
		Events:  events,
		Store:   store,
		Mat:     mat,
		Guard:   guard,
		Clock:   clock,
		Log:     l,
		Horizon: cfg.Engine.ScanHorizon,
	}
	acker := &ack.Handler{Store: store, Events: events, Clock: clock, Log: l, Echo: realtime}

	// periodic jobs
	sched := schedule.New(l, clock)
	sched.Add("dispatch", cfg.Engine.Tick, func(ctx context.Context) error {
		_, _, err := ticker.Tick(ctx)
		return err
	})
	sched.Add("retry", cfg.Engine.RetryInterval, func(ctx context.Context) error {
		_, err := retrier.Tick(ctx)
		return err
	})
	sched.Add("sweep", cfg.Engine.SweepInterval, func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx)
		return err
	})
	sched.Add("event-scan", cfg.Engine.ScanInterval, func(ctx context.Context) error {
		_, err := scanner.Scan(ctx)
		return err
	})
	sched.Add("guard-clear", cfg.Engine.GuardClearInterval, func(context.Context) error {
		guard.Clear()
		return nil
	})

	// metrics server
	ms := obs.BootstrapMetricsServer(cfg.Engine.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l)

	// api server
	handlers := &api.Handlers{Store: store, Ack: acker, Clock: clock, Log: l}
	apiSrv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.NewRouter(handlers, cfg.API.JWTSecret, l),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("api server", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- sched.Run(ctx) }()

	l.Info("engine started")

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("scheduler error", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shCtx)
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
