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

	"go.uber.org/zap"

	"YieldKeeper/internal/api"
	"YieldKeeper/internal/config"
	"YieldKeeper/internal/custody"
	"YieldKeeper/internal/keys"
	"YieldKeeper/internal/ledger"
	"YieldKeeper/internal/logging"
	"YieldKeeper/internal/metrics"
	"YieldKeeper/internal/model"
	"YieldKeeper/internal/notifier"
	"YieldKeeper/internal/scheduler"
	"YieldKeeper/internal/store"
	"YieldKeeper/internal/venue"
)

func main() {
	boot, _ := zap.NewProduction()

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		boot.Fatal("load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatal("config validation", zap.Error(err))
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		boot.Fatal("init logger", zap.Error(err))
	}
	logger.Info("YieldKeeper starting", zap.String("config", cfgPath))

	if err := run(cfg, logger); err != nil {
		logger.Error("YieldKeeper exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("YieldKeeper stopped")
	_ = logger.Sync()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mc := metrics.New("yieldkeeper")

	st, err := openStore(cfg.Database.SQLitePath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// Token movements are simulated in process; the custodian is the pool's
	// mint authority.
	poolID := model.Address(cfg.Pool.ID)
	cust := custody.NewMemory(keys.MintAuthority(poolID))

	mgr, err := ledger.NewManager(ctx, st, cust, ledger.Genesis{
		ID:           poolID,
		Admin:        model.Address(cfg.Pool.Admin),
		BaseAsset:    model.Asset(cfg.Pool.BaseAsset),
		BaseDecimals: cfg.Pool.BaseDecimals,
	}, ledger.WithLogger(logger), ledger.WithMetrics(mc))
	if err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	admin, err := keeperAdmin(cfg, mgr.Pool())
	if err != nil {
		return err
	}

	for _, m := range cfg.Markets {
		asset := model.Asset(m.Asset)
		if _, ok := mgr.Market(asset); ok {
			continue
		}
		if _, err := mgr.CreateMarket(ctx, admin, asset, m.Decimals); err != nil {
			return fmt.Errorf("create market %s: %w", m.Asset, err)
		}
	}

	targets := buildTargets(cfg)
	for _, t := range targets {
		logger.Info("venue registered", zap.String("venue", t.Venue.Name()), zap.String("market", string(t.Market)))
	}

	// Init notifier
	var n notifier.Notifier = notifier.Nop{}
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)
		n = tn
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, mgr, admin, targets, n, mc, logger)
	if err := sched.RegisterAll(cfg.Schedule.HarvestCron, cfg.Schedule.SweepCron, cfg.Schedule.ReportCron); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info("telegram polling started")
	}

	// Read-only API
	srv := &http.Server{
		Addr:              cfg.API.Addr,
		Handler:           api.NewRouter(mgr, mc, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	logger.Info("api listening", zap.String("addr", cfg.API.Addr))

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		logger.Info("RUN_ON_START enabled, harvesting now")
		go sched.RunHarvestNow()
	}

	logger.Info("YieldKeeper is running. Press Ctrl+C to stop.")
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping...")
	case err := <-serveErr:
		runErr = fmt.Errorf("api server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown", zap.Error(err))
	}
	return runErr
}

// openStore returns the SQLite store at path, or an in-memory store when path
// is empty.
func openStore(path string, logger *zap.Logger) (store.Store, error) {
	if path == "" {
		logger.Warn("no sqlite_path configured, state is kept in memory only")
		return store.NewMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("init sqlite store: %w", err)
	}
	return st, nil
}

// keeperAdmin returns the configured admin the keeper acts as. It must still
// hold the pool's admin key; a rotated key revokes the keeper.
func keeperAdmin(cfg *config.Config, pool model.GlobalPool) (model.Address, error) {
	admin := model.Address(cfg.Pool.Admin)
	if admin != pool.Admin {
		return "", fmt.Errorf("configured admin %s is not the pool admin %s", admin, pool.Admin)
	}
	return admin, nil
}

func buildTargets(cfg *config.Config) []scheduler.Target {
	targets := make([]scheduler.Target, 0, len(cfg.Venues))
	for _, v := range cfg.Venues {
		var vn venue.Venue
		switch v.Kind {
		case "http":
			vn = venue.NewHTTPVenue(v.Name, v.BaseURL, v.APIKey, cfg.Proxy, v.Decimals, cfg.Pool.BaseDecimals)
		default:
			vn = &venue.StaticVenue{VenueName: v.Name, Yield: v.StaticYield}
		}
		targets = append(targets, scheduler.Target{Venue: vn, Market: model.Asset(v.Market)})
	}
	return targets
}
