package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/wa-ai-replybot-go/internal/config"
	"github.com/wa-ai-replybot-go/internal/handlers"
	"github.com/wa-ai-replybot-go/internal/middleware"
	"github.com/wa-ai-replybot-go/internal/models"
	"github.com/wa-ai-replybot-go/internal/services/ai"
	"github.com/wa-ai-replybot-go/internal/services/history"
	"github.com/wa-ai-replybot-go/internal/services/settings"
	"github.com/wa-ai-replybot-go/internal/services/storage"
	"github.com/wa-ai-replybot-go/internal/whatsapp"
	"github.com/wa-ai-replybot-go/pkg/logger"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// Load .env file if exists
	if err := godotenv.Load(*envFile); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting WhatsApp AI reply bot...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := middleware.NewMetrics()

	// Reply settings, reloaded whenever the files change
	store := settings.NewStore(&cfg.Settings, log)
	watcher := settings.NewWatcher(store, cfg.Settings.PollInterval, log)
	metrics.SetSettingsVersion(watcher.Current().Version)
	watcher.OnChange(func(s models.Settings) {
		metrics.SetSettingsVersion(s.Version)
	})
	go watcher.Run(ctx)

	backend, err := storage.NewBackend(&cfg.Storage, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	if closer, ok := backend.(io.Closer); ok {
		defer closer.Close()
	}
	ledger := storage.NewLedger(backend, log)
	ledger.Save(ctx, ledger.Load(ctx))

	buffer := history.NewBuffer(cfg.History.BufferSize, cfg.History.TTL)
	assembler := history.NewAssembler(buffer, log)

	aiService := ai.NewClient(&cfg.AI, metrics, log)

	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	go rateLimiter.Run(ctx.Done())

	session, err := whatsapp.NewSession(ctx, &cfg.WhatsApp, buffer, metrics, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open WhatsApp session")
	}

	messageHandler := handlers.NewMessageHandler(
		watcher,
		ledger,
		assembler,
		aiService,
		rateLimiter,
		handlers.NewRandomPacer(cfg.Reply.MinDelay, cfg.Reply.MaxDelay),
		metrics,
		handlers.Options{
			HistoryLimit:   cfg.History.Limit,
			FormatMarkdown: cfg.Reply.FormatMarkdown,
			SelfIDs:        session.SelfIDs,
		},
		log,
	)
	go messageHandler.Run(ctx, session.Events())

	if err := session.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start WhatsApp session")
	}

	var server *http.Server
	if cfg.Monitoring.Enabled {
		server = middleware.NewServer(&cfg.Monitoring, &statusView{session: session, ledger: ledger, watcher: watcher}, log)
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Port,
				"path": cfg.Monitoring.Path,
			}).Info("Starting monitoring server")

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("Monitoring server failed")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Info("Shutdown signal received")

	// In-flight replies are abandoned
	cancel()
	session.Disconnect()

	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Failed to stop monitoring server")
		}
	}

	log.Info("Bot stopped")
}

// statusView assembles the dashboard view from the running components
type statusView struct {
	session *whatsapp.Session
	ledger  *storage.Ledger
	watcher *settings.Watcher
}

func (v *statusView) LoginStatus() models.LoginStatus {
	return v.session.LoginStatus()
}

func (v *statusView) Stats(ctx context.Context) models.Stats {
	return v.ledger.Snapshot(ctx)
}

func (v *statusView) Settings() models.Settings {
	return v.watcher.Current()
}
