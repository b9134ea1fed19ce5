package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dougsko/ftxcat/pkg/config"
	"github.com/dougsko/ftxcat/pkg/engine"
	"github.com/dougsko/ftxcat/pkg/logging"
	"github.com/dougsko/ftxcat/pkg/verbose"
)

var (
	configPath = flag.String("config", "config.yaml", "Configuration file path")
	device     = flag.String("device", "", "Override radio device (serial path, tcp://host:port or sim://)")
	trace      = flag.Bool("verbose", false, "Trace every CAT frame and transaction")
	version    = flag.Bool("version", false, "Show version information")
)

const (
	Version = engine.Version
	Build   = "development"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("ftxd version %s (%s)\n", Version, Build)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *device != "" {
		cfg.Radio.Device = *device
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logging.InitGlobalLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()

	verbose.SetEnabled(*trace)

	logging.Info("main", fmt.Sprintf("ftxd version %s starting...", Version))
	logging.Info("main", fmt.Sprintf("Radio: %s", cfg.GetRadioName()))
	logging.Info("main", fmt.Sprintf("Web interface: http://%s:%d", cfg.Web.BindAddress, cfg.Web.Port))

	daemon, err := NewFTXDaemon(cfg)
	if err != nil {
		logging.Error("main", fmt.Sprintf("Failed to create daemon: %v", err))
		os.Exit(1)
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := daemon.Start(); err != nil {
		logging.Error("main", fmt.Sprintf("Failed to start daemon: %v", err))
		daemon.Stop()
		os.Exit(1)
	}

	logging.Info("main", "ftxd started successfully")

	<-sigChan
	logging.Info("main", "Shutting down...")

	if err := daemon.Stop(); err != nil {
		logging.Error("main", fmt.Sprintf("Error during shutdown: %v", err))
	}

	logging.Info("main", "ftxd stopped")
}
