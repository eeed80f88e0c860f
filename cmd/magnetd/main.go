package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"magnetd/internal/config"
	"magnetd/internal/core"
	"magnetd/internal/database"
	"magnetd/internal/engine"
	"magnetd/internal/handlers"
	"magnetd/internal/utils"
	"magnetd/internal/websocket"
)

func main() {
	configPath := flag.String("config", "config.yml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger, mirroring output to a log file under the data path
	logOut := io.Writer(os.Stdout)
	if err := os.MkdirAll(cfg.App.DataPath, 0755); err == nil {
		logFile, err := os.OpenFile(filepath.Join(cfg.App.DataPath, "magnetd.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			defer logFile.Close()
			logOut = io.MultiWriter(os.Stdout, logFile)
		}
	}
	logger := utils.NewLogger(cfg.App.Debug, logOut)

	// Initialize database
	db, err := database.NewSQLite(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		logger.Fatal("Failed to run migrations: %v", err)
	}

	// Select the torrent engine
	eng, err := newEngine(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize %s engine: %v", cfg.Engine.Type, err)
	}

	// WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run()

	// Create manager
	manager, err := core.NewManager(cfg, eng, hub, db, logger)
	if err != nil {
		logger.Fatal("Failed to initialize manager: %v", err)
	}

	// Start web server
	server := handlers.NewServer(cfg, manager, hub, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start: %v", err)
		}
	}()

	manager.Start()

	logger.Info("magnetd started successfully on port %d", cfg.App.Port)

	// Wait for interrupt
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	logger.Info("Shutting down...")
	manager.Stop()
	server.Stop(ctx)
}

func newEngine(cfg *config.Config, logger *utils.Logger) (engine.Engine, error) {
	switch cfg.Engine.Type {
	case "qbittorrent":
		return engine.NewQBitEngine(cfg.Engine.Host, cfg.Engine.Username, cfg.Engine.Password, logger)
	case "mock":
		return engine.NewMockEngine(), nil
	case "native", "":
		return engine.NewNativeEngine(cfg.App.DataPath, logger)
	default:
		return nil, fmt.Errorf("unknown engine type %q (expected native, qbittorrent or mock)", cfg.Engine.Type)
	}
}
