package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/wingzero/mt5bridge/internal/api"
	"github.com/wingzero/mt5bridge/internal/bridge"
	"github.com/wingzero/mt5bridge/internal/broadcast"
	"github.com/wingzero/mt5bridge/internal/journal"
	"github.com/wingzero/mt5bridge/internal/terminal"
	"github.com/wingzero/mt5bridge/internal/terminal/rpc"
	"github.com/wingzero/mt5bridge/internal/terminal/sim"
	"github.com/wingzero/mt5bridge/internal/tickstore"
	"github.com/wingzero/mt5bridge/internal/wsgateway"
	"github.com/wingzero/mt5bridge/pkg/config"
	"github.com/wingzero/mt5bridge/pkg/logger"
)

func main() {
	// Load .env best-effort; real env vars win either way.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("MT5BRIDGE_CONFIG"), "config file path (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
	}); err != nil {
		logrus.Fatalf("init logger: %v", err)
	}
	log := logrus.WithField("component", "main")

	var session terminal.Session
	switch cfg.Terminal.Mode {
	case "sim":
		session = sim.New(sim.Config{})
		log.Warn("using simulated terminal session; no real trades will be placed")
	default:
		session = rpc.New(cfg.Terminal.GatewayURL, cfg.Terminal.CallTimeout)
	}

	caster := broadcast.New()
	b := bridge.New(session, caster, bridge.Config{
		WatchList:      cfg.Stream.WatchList,
		SampleInterval: cfg.Stream.SampleInterval,
		SnapshotEvery:  cfg.Stream.SnapshotEvery,
		CallTimeout:    cfg.Terminal.CallTimeout,
	})

	var deals *journal.Journal
	if j, err := journal.Open(filepath.Join(cfg.DataDir, "journal.db")); err != nil {
		log.Warnf("deal journal disabled: %v", err)
	} else {
		deals = j
		defer deals.Close()
		b.UseJournal(deals)
	}

	if ticks, err := tickstore.Open(filepath.Join(cfg.DataDir, "ticks")); err != nil {
		log.Warnf("tick persistence disabled: %v", err)
	} else {
		defer ticks.Close()
		b.UseTickStore(ticks)
	}

	hub := wsgateway.NewHub(caster)
	srv := api.New(api.Config{APIKey: cfg.APIKey}, b, hub, deals)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("bridge listening on %s", cfg.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh
	log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)

	// Terminal last: stops the scheduler and releases the session.
	b.Disconnect()
	log.Info("bridge stopped")
}
