package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/KiteMCP/internal/api"
	"github.com/router-for-me/KiteMCP/internal/config"
	"github.com/router-for-me/KiteMCP/internal/journal"
	"github.com/router-for-me/KiteMCP/internal/kite"
	"github.com/router-for-me/KiteMCP/internal/logging"
	"github.com/router-for-me/KiteMCP/internal/orders"
	"github.com/router-for-me/KiteMCP/internal/session"
	"github.com/router-for-me/KiteMCP/internal/stream"
	"github.com/router-for-me/KiteMCP/internal/watcher"
)

// shutdownTimeout bounds how long in-flight requests may drain on exit.
const shutdownTimeout = 10 * time.Second

// StartService wires the full server (session manager, order engine, journal,
// event hub, HTTP surface, config watcher) and blocks until a shutdown signal
// arrives or the listener fails.
func StartService(cfg *config.Config, configFilePath string) {
	requestLogger := logging.NewFileRequestLogger(cfg.RequestLog, logging.ResolveLogDirectory(cfg))

	client := kite.NewClient(cfg, requestLogger)
	manager, err := session.NewManager(cfg, client)
	if err != nil {
		log.Errorf("service: %v", err)
		return
	}

	j := journal.New(cfg.Orders.JournalFile)
	defer func() {
		if errClose := j.Close(); errClose != nil {
			log.Warnf("service: failed to close order journal: %v", errClose)
		}
	}()

	engine := orders.NewEngine(cfg, manager, j)
	hub := stream.NewHub()
	server := api.New(cfg, manager, engine, hub, requestLogger)

	// Hot reload applies the runtime-safe subset of the config; credential,
	// base-URL and listener changes need a restart and are only logged.
	reload := func(newCfg *config.Config) {
		requestLogger.SetEnabled(newCfg.RequestLog)
		server.UpdateConfig(newCfg)
		engine.UpdateConfig(newCfg)
		j.SetPath(newCfg.Orders.JournalFile)
	}

	w, err := watcher.NewWatcher(configFilePath, manager.TokenFile(), reload)
	if err != nil {
		log.Warnf("service: file watcher unavailable: %v", err)
	} else {
		w.SetConfig(cfg)
		w.OnTokenChange(manager.ReloadTokenRecord)

		watchCtx, cancelWatch := context.WithCancel(context.Background())
		defer cancelWatch()
		if err = w.Start(watchCtx); err != nil {
			log.Warnf("service: failed to start file watcher: %v", err)
		} else {
			defer func() {
				if errStop := w.Stop(); errStop != nil {
					log.Warnf("service: failed to stop file watcher: %v", errStop)
				}
			}()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-errCh:
		if err != nil {
			log.Errorf("service: server failed: %v", err)
		}
	case sig := <-sigCh:
		log.Infof("service: received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = server.Stop(shutdownCtx); err != nil {
		log.Errorf("service: shutdown failed: %v", err)
	}
}
