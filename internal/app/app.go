package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"sentinelflow/internal/alerts"
	"sentinelflow/internal/config"
	"sentinelflow/internal/db"
	"sentinelflow/internal/metrics"
	"sentinelflow/internal/notifier"
	"sentinelflow/internal/retention"
	"sentinelflow/internal/risk"
	"sentinelflow/internal/web"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db *db.Repository

	engine     *risk.Engine
	metrics    *metrics.Recorder
	dispatcher *alerts.Dispatcher
	retention  *retention.Service
	notify     *notifier.Telegram
	web        *web.Server

	httpSrv *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	sqldb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	repo := db.NewRepository(sqldb)

	token, chatID, _ := repo.LoadTelegramSettings(context.Background())
	if token == "" {
		token = cfg.TelegramBotToken
	}
	if chatID == "" {
		chatID = cfg.TelegramChatID
	}
	n := notifier.NewTelegram(token, chatID)

	nodes := risk.NewRegistry()
	engine := risk.NewEngine(nodes, cfg.Rules, logger.With("module", "risk"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewRecorder(reg, nodes.Len)

	dispatcher := alerts.NewDispatcher(repo, n, logger.With("module", "alerts"), alerts.Options{
		MinRisk:   cfg.NotifyMinRisk,
		Cooldown:  cfg.NotifyCooldown,
		QueueSize: cfg.DispatchQueue,
		OnDrop:    rec.DispatchDropped,
	})
	hub := web.NewHub(logger.With("module", "ws"))

	engine.Subscribe(rec)
	engine.Subscribe(dispatcher)
	engine.Subscribe(hub)

	w := web.NewServer(web.Deps{
		Engine:   engine,
		Alerts:   repo,
		DB:       sqldb,
		Notify:   n,
		Observer: rec,
		Gatherer: reg,
		Hub:      hub,
	}, logger.With("module", "web"))

	app := &App{
		cfg:        cfg,
		log:        logger,
		db:         repo,
		engine:     engine,
		metrics:    rec,
		dispatcher: dispatcher,
		retention:  retention.NewService(repo, engine, cfg.RetentionDays, cfg.NodeTTL, logger.With("module", "retention")),
		notify:     n,
		web:        w,
	}
	app.httpSrv = &http.Server{Addr: cfg.Addr, Handler: w.Routes(), ReadHeaderTimeout: 10 * time.Second}
	return app, nil
}

func (a *App) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.dispatcher.Run(dispatchCtx)
	}()

	a.log.Info("risk engine ready", "rules", a.engine.Rules())

	retentionTicker := time.NewTicker(a.cfg.RetentionInterval)
	defer retentionTicker.Stop()

	// Immediate first run
	a.retention.Run(ctx)

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-serveErr:
			a.log.Error("http server failed", "err", err)
			runErr = err
			break loop
		case <-retentionTicker.C:
			a.retention.Run(ctx)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", "err", err)
	}
	// Ingest has stopped; let the dispatcher flush its queue before the db closes.
	stopDispatch()
	wg.Wait()
	return errors.Join(runErr, a.db.DB().Close())
}
