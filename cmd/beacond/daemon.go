package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dougsko/cwbeacon/pkg/config"
	"github.com/dougsko/cwbeacon/pkg/engine"
	"github.com/dougsko/cwbeacon/pkg/logging"
)

// BeaconDaemon runs the beacon engine and its HTTP API
type BeaconDaemon struct {
	config     *config.Config
	configPath string
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	engine    *engine.Engine
	webServer *http.Server
}

// NewBeaconDaemon creates a new daemon instance
func NewBeaconDaemon(cfg *config.Config, configPath string) (*BeaconDaemon, error) {
	eng, err := engine.New(cfg, configPath, engine.Components{})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return newDaemon(cfg, configPath, eng), nil
}

func newDaemon(cfg *config.Config, configPath string, eng *engine.Engine) *BeaconDaemon {
	ctx, cancel := context.WithCancel(context.Background())

	d := &BeaconDaemon{
		config:     cfg,
		configPath: configPath,
		ctx:        ctx,
		cancel:     cancel,
		engine:     eng,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Web.BindAddress, cfg.Web.Port)
	d.webServer = &http.Server{
		Addr:    addr,
		Handler: d.setupRouter(),
	}
	return d
}

// Start starts the engine and, when enabled, the web server
func (d *BeaconDaemon) Start() error {
	logging.Info("daemon", "Starting beacond daemon...")

	if err := d.engine.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	// a failed task leaves the watchdog unfed; report it as soon as the
	// remaining tasks have also returned
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.engine.Wait(); err != nil {
			logging.Errorf("daemon", "Engine stopped with error: %v", err)
		}
	}()

	if d.config.Web.Enabled {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			logging.Infof("daemon", "Starting web server on %s", d.webServer.Addr)
			if err := d.webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Errorf("daemon", "Web server error: %v", err)
			}
		}()
	}

	return nil
}

// Stop stops the daemon gracefully
func (d *BeaconDaemon) Stop() error {
	logging.Info("daemon", "Stopping daemon...")

	d.cancel()

	if d.config.Web.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.webServer.Shutdown(ctx); err != nil {
			logging.Warnf("daemon", "Web server shutdown error: %v", err)
		}
	}

	err := d.engine.Stop()
	if err != nil {
		logging.Warnf("daemon", "Engine shutdown error: %v", err)
	}

	d.wg.Wait()

	logging.Info("daemon", "Daemon stopped")
	return err
}

// setupRouter builds the API routes
func (d *BeaconDaemon) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/status", d.handleGetStatus)
		api.GET("/config", d.handleGetConfig)
		api.POST("/command", d.handleCommand)
		api.GET("/journal/commands", d.handleGetCommands)
		api.GET("/journal/cycles", d.handleGetCycles)
		api.GET("/journal/stats", d.handleGetJournalStats)
		api.GET("/ws", d.handleMonitorWebSocket)
	}

	return router
}
