package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dougsko/ftxcat/pkg/client"
	"github.com/dougsko/ftxcat/pkg/config"
	"github.com/dougsko/ftxcat/pkg/engine"
	"github.com/dougsko/ftxcat/pkg/logging"
	"github.com/dougsko/ftxcat/pkg/storage"
)

// FTXDaemon runs the core engine behind a Unix socket and a web API
type FTXDaemon struct {
	config *config.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Core components
	coreEngine   *engine.CoreEngine
	socketClient *client.SocketClient
	store        *storage.StateStore
	router       *gin.Engine
	webServer    *http.Server

	socketPath string
}

// NewFTXDaemon creates a new daemon instance
func NewFTXDaemon(cfg *config.Config) (*FTXDaemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	socketPath := cfg.API.UnixSocket
	if socketPath == "" {
		socketPath = "/tmp/ftxd.sock"
	}

	daemon := &FTXDaemon{
		config:       cfg,
		ctx:          ctx,
		cancel:       cancel,
		socketPath:   socketPath,
		socketClient: client.NewSocketClient(socketPath),
	}

	if cfg.Storage.DatabasePath != "" {
		store, err := storage.NewStateStore(cfg.Storage.DatabasePath, cfg.Storage.MaxSnapshots)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to open state store: %w", err)
		}
		daemon.store = store
	}

	daemon.coreEngine = engine.NewCoreEngine(cfg, socketPath, daemon.store)

	if err := daemon.setupWebServer(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to setup web server: %w", err)
	}

	return daemon, nil
}

// Start starts the daemon
func (d *FTXDaemon) Start() error {
	logging.Info("daemon", "Starting ftxd daemon...")

	if err := d.coreEngine.Start(); err != nil {
		return fmt.Errorf("failed to start core engine: %w", err)
	}

	if !d.socketClient.IsConnected() {
		return fmt.Errorf("failed to connect to core engine socket")
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		logging.Infof("daemon", "Starting web server on %s", d.webServer.Addr)
		if err := d.webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Errorf("daemon", "Web server error: %v", err)
		}
	}()

	return nil
}

// Stop stops the daemon gracefully
func (d *FTXDaemon) Stop() error {
	logging.Info("daemon", "Stopping daemon...")

	// Ends open websocket streams
	d.cancel()

	if d.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.webServer.Shutdown(ctx); err != nil {
			logging.Warnf("daemon", "Web server shutdown error: %v", err)
		}
	}

	if d.coreEngine != nil {
		if err := d.coreEngine.Stop(); err != nil {
			logging.Warnf("daemon", "Core engine shutdown error: %v", err)
		}
	}

	d.wg.Wait()

	if d.store != nil {
		if err := d.store.Close(); err != nil {
			logging.Warnf("daemon", "State store close error: %v", err)
		}
	}

	logging.Info("daemon", "Daemon stopped")
	return nil
}

// setupWebServer initializes the web server and routes
func (d *FTXDaemon) setupWebServer() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(), gin.Recovery())

	api := router.Group("/api/v1")
	{
		api.GET("/status", d.handleGetStatus)
		api.GET("/state", d.handleGetState)
		api.GET("/frequency", d.handleGetFrequency)
		api.PUT("/frequency", d.handleSetFrequency)
		api.GET("/power", d.handleGetPower)
		api.PUT("/power", d.handleSetPower)
		api.GET("/mode", d.handleGetMode)
		api.PUT("/mode", d.handleSetMode)
		api.GET("/ptt", d.handleGetPTT)
		api.PUT("/ptt", d.handleSetPTT)
		api.GET("/clarifier", d.handleGetClarifier)
		api.PUT("/clarifier", d.handleSetClarifier)
		api.PUT("/band", d.handleSetBand)
		api.GET("/meter", d.handleGetMeter)
		api.GET("/firmware", d.handleGetFirmware)
		api.GET("/history", d.handleGetHistory)
		api.GET("/operations", d.handleGetOperations)
		api.GET("/stats", d.handleGetStats)
		api.GET("/ports", d.handleGetSerialDevices)
		api.GET("/config", d.handleGetConfig)
	}
	router.GET("/ws/state", d.handleStateWebSocket)

	d.router = router
	d.webServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", d.config.Web.BindAddress, d.config.Web.Port),
		Handler: router,
	}

	return nil
}

// requestLogger sends gin request logs through the component logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("web", "request", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}
