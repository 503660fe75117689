package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/mamacare/backend/internal/catalog"
	"github.com/zhouzirui/mamacare/backend/internal/config"
	"github.com/zhouzirui/mamacare/backend/internal/handler"
	"github.com/zhouzirui/mamacare/backend/internal/logging"
	"github.com/zhouzirui/mamacare/backend/internal/model/profile"
	"github.com/zhouzirui/mamacare/backend/internal/scheduler"
	"github.com/zhouzirui/mamacare/backend/internal/service/chat"
	"github.com/zhouzirui/mamacare/backend/internal/service/voice"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if envErr != nil {
		logger.Info("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	cat, err := loadCatalog(cfg.Assistant.CatalogPath)
	if err != nil {
		logger.Fatal("failed to load response catalog", zap.String("path", cfg.Assistant.CatalogPath), zap.Error(err))
	}

	var picker catalog.Picker = catalog.NewRandomPicker()
	if cfg.Assistant.RandomSeed != nil {
		picker = catalog.NewSeededPicker(*cfg.Assistant.RandomSeed)
		logger.Info("using seeded response picker", zap.Uint64("seed", *cfg.Assistant.RandomSeed))
	}

	profiles := profile.NewMemoryStore(profile.Seed())
	sched := scheduler.Real{}

	chatService, err := chat.NewService(ctx, chat.Options{
		Catalog:       cat,
		Profiles:      profiles,
		Scheduler:     sched,
		Picker:        picker,
		ResponseDelay: cfg.Assistant.ResponseDelay,
		Logger:        logger.Named("session"),
	})
	if err != nil {
		logger.Fatal("failed to initialize chat service", zap.Error(err))
	}
	defer chatService.Shutdown()

	voiceService := voice.NewService(voice.Config{
		Transcript:      cat.VoiceTranscript,
		TranscriptDelay: cfg.Voice.TranscriptDelay,
		SubmitDelay:     cfg.Voice.SubmitDelay,
		AutoSubmit:      cfg.Voice.AutoSubmit,
	}, sched, logger.Named("voice"))

	router := handler.NewRouter(handler.Deps{
		Profiles:       profiles,
		ChatSvc:        chatService,
		VoiceSvc:       voiceService,
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	startServer(ctx, logger, cfg.Server, router)
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

func startServer(ctx context.Context, logger *zap.Logger, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("mamacare backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
