package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cr8-studio/relay/api/handlers"
	"github.com/cr8-studio/relay/internal/config"
	"github.com/cr8-studio/relay/internal/dispatch"
	"github.com/cr8-studio/relay/internal/framestore"
	"github.com/cr8-studio/relay/internal/journal"
	"github.com/cr8-studio/relay/internal/router"
	"github.com/cr8-studio/relay/internal/session"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("RELAY_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Ensure data directories exist
	if err := os.MkdirAll(cfg.FramesDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("failed to create frames directory")
	}

	var recorder journal.Recorder = journal.Nop{}
	var store *journal.Store
	if cfg.JournalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.JournalPath), 0755); err != nil {
			log.Fatal().Err(err).Msg("failed to create journal directory")
		}
		store, err = journal.Open(cfg.JournalPath, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open relay journal")
		}
		defer store.Close()
		recorder = store
	}

	frames := framestore.NewDir(cfg.FramesDir)

	registry := session.NewRegistry(session.RegistryConfig{
		Store:         frames,
		FrameInterval: cfg.FrameInterval,
		Log:           log,
		Recorder:      recorder,
	})
	defer registry.Close()

	messageRouter := router.New(router.Config{
		Registry: registry,
		StopWait: cfg.StopWait,
		Log:      log,
	})

	dispatcher := dispatch.New(log)
	wsHandler := handlers.NewWebSocketHandler(registry, messageRouter, dispatcher, log, recorder)

	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		wsHandler.RegisterRoutes(api)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("shutting down server")
		registry.Close()
		if store != nil {
			store.Close()
		}
		time.Sleep(100 * time.Millisecond)
		os.Exit(0)
	}()

	log.Info().Str("port", cfg.Port).Msg("starting relay server")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
