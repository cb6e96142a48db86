// Package main runs the sync daemon: the durable request queue, the
// connection monitor, and the realtime channel, wired together the way
// an embedding admin application would wire them.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/evoria/adminsync/internal/auth"
	"github.com/evoria/adminsync/internal/cache"
	"github.com/evoria/adminsync/internal/config"
	"github.com/evoria/adminsync/internal/db"
	"github.com/evoria/adminsync/internal/events"
	"github.com/evoria/adminsync/internal/logging"
	"github.com/evoria/adminsync/internal/netmon"
	"github.com/evoria/adminsync/internal/queue"
	"github.com/evoria/adminsync/internal/realtime"
	"github.com/evoria/adminsync/internal/store"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	token := flag.String("token", os.Getenv("ADMINSYNC_TOKEN"), "initial bearer credential")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logging.Error("Failed to load config", err, map[string]interface{}{"path": *configPath})
			os.Exit(1)
		}
		cfg = loaded
	}

	logging.Init(os.Stdout, cfg.LogLevel)
	logging.Info("adminsync daemon starting", map[string]interface{}{
		"version":  Version,
		"data_dir": cfg.DataDir,
	})

	bus := events.NewMemoryBus()
	database := db.New(cfg.DataDir)
	defer database.Close()

	queueStore := store.NewQueueStore(database)
	deadLetters := store.NewDeadLetterStore(database)
	creds := auth.NewStaticProvider(*token, bus)

	monitor := netmon.NewMonitor(bus, cfg.HealthURL,
		cfg.Monitor.ProbeInterval(), cfg.Monitor.ProbeTimeout(), cfg.Monitor.BannerAutoHide())

	processor := queue.NewProcessor(queueStore, deadLetters, creds, bus,
		monitor.State, cfg.Queue.DrainPause(), cfg.Queue.SendTimeout())

	entityCache := cache.NewStore()
	monitor.SetHooks(processor, entityCache)

	reconciler := cache.NewReconciler(entityCache)
	channel := realtime.NewChannel(cfg.RealtimeURL, creds, reconciler, bus,
		cfg.Realtime.HeartbeatInterval(), cfg.Realtime.BackoffBase(),
		cfg.Realtime.BackoffCap(), cfg.Realtime.SettleDelay())

	bus.Subscribe(events.TopicQueueChanged, func(_ string, payload map[string]interface{}) {
		logging.Debug("Queue changed", payload)
	})
	bus.Subscribe(events.TopicQueueItemFailed, func(_ string, payload map[string]interface{}) {
		logging.Warn("Request permanently failed", payload)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor.Start(ctx)
	channel.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logging.Info("adminsync daemon stopping", nil)
	channel.Stop()
	monitor.Stop()
}
