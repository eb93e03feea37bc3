package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"ai-transcription-service/internal/bias"
	"ai-transcription-service/internal/config"
	"ai-transcription-service/internal/events"
	apihttp "ai-transcription-service/internal/http"
	"ai-transcription-service/internal/observability"
	"ai-transcription-service/internal/observability/logging"
	"ai-transcription-service/internal/queue"
	"ai-transcription-service/internal/safety"
	"ai-transcription-service/internal/service/orchestrator"
	"ai-transcription-service/internal/service/stt"
	"ai-transcription-service/internal/service/stt/assemblyai"
	"ai-transcription-service/internal/service/stt/google"
	"ai-transcription-service/internal/service/stt/mock"
	"ai-transcription-service/internal/service/stt/whisper"
	"ai-transcription-service/internal/session"
	"ai-transcription-service/internal/storage"
)

// buildAdapters constructs the configured providers in priority order.
// Unconfigured providers are excluded entirely; their absence is not an error.
func buildAdapters(ctx context.Context, cfg *config.Config) []stt.Adapter {
	if cfg.Providers.MockOnly {
		log.Info().Msg("Running with mock STT provider only")
		return []stt.Adapter{mock.New()}
	}

	var adapters []stt.Adapter
	for _, name := range cfg.Providers.Priority {
		switch name {
		case assemblyai.ProviderName:
			a, err := assemblyai.New(assemblyai.Config{
				APIKey:       cfg.Providers.AssemblyAI.APIKey,
				BaseURL:      cfg.Providers.AssemblyAI.BaseURL,
				PollInterval: cfg.Providers.AssemblyAI.PollInterval,
				PollTimeout:  cfg.Providers.AssemblyAI.PollTimeout,
			})
			if err != nil {
				log.Info().Str("sttProvider", name).Err(err).Msg("Provider excluded")
				continue
			}
			adapters = append(adapters, a)
		case google.ProviderName:
			a, err := google.New(ctx, google.Config{
				Enabled:      cfg.Providers.Google.Enabled,
				LanguageCode: cfg.Providers.Google.LanguageCode,
				SampleRateHz: cfg.Providers.Google.SampleRateHz,
			})
			if err != nil {
				log.Info().Str("sttProvider", name).Err(err).Msg("Provider excluded")
				continue
			}
			adapters = append(adapters, a)
		case whisper.ProviderName:
			a, err := whisper.New(whisper.Config{
				Endpoint: cfg.Providers.Whisper.Endpoint,
				Model:    cfg.Providers.Whisper.Model,
				TempDir:  cfg.Providers.Whisper.TempDir,
				Timeout:  cfg.Providers.Whisper.Timeout,
			})
			if err != nil {
				log.Info().Str("sttProvider", name).Err(err).Msg("Provider excluded")
				continue
			}
			adapters = append(adapters, a)
		case mock.ProviderName:
			adapters = append(adapters, mock.New())
		default:
			log.Warn().Str("sttProvider", name).Msg("Unknown provider in priority list")
		}
	}
	return adapters
}

func main() {
	cfg := config.Load()

	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := events.New(&events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		TopicJobs: cfg.Kafka.TopicJobs,
		TopicBias: cfg.Kafka.TopicBias,
		Principal: cfg.Kafka.Principal,
	})
	defer publisher.Close()

	adapters := buildAdapters(ctx, cfg)
	if len(adapters) == 0 {
		log.Warn().Msg("No STT providers configured; all transcription calls will fail")
	}

	var filter safety.Filter = safety.PhraseFilter{}
	if cfg.Safety.FilterURL != "" {
		filter = safety.NewHTTPFilter(safety.HTTPFilterConfig{
			URL:     cfg.Safety.FilterURL,
			Timeout: cfg.Safety.FilterTimeout,
		})
	}

	recorder := bias.NewRecorder(publisher)
	orch := orchestrator.New(adapters, filter, recorder)

	var store queue.Store
	if cfg.Postgres.DSN != "" {
		pg, err := queue.NewPostgresStore(cfg.Postgres.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open Postgres job store")
		}
		defer pg.Close()
		store = pg
		log.Info().Msg("Using Postgres job store")
	} else {
		store = queue.NewMemoryStore()
		log.Info().Msg("Using in-memory job store")
	}

	jobQueue := queue.New(store, orch, publisher, queue.Config{
		Workers:       cfg.Queue.Workers,
		PollInterval:  cfg.Queue.PollInterval,
		RetryBase:     cfg.Queue.RetryBase,
		RetryFactor:   cfg.Queue.RetryFactor,
		RetryCap:      cfg.Queue.RetryCap,
		MaxAttempts:   cfg.Queue.MaxAttempts,
		Retention:     cfg.Queue.Retention,
		SweepInterval: cfg.Queue.SweepInterval,
	})
	jobQueue.Start(ctx)
	defer jobQueue.Stop()

	sessions := session.NewManager(adapters, session.Config{
		BufferChunks: cfg.Session.BufferChunks,
	})

	recordings, err := storage.NewStore(storage.Config{
		Dir:           cfg.Upload.Dir,
		MaxBytes:      cfg.Upload.MaxBytes,
		SigningSecret: cfg.Upload.SigningSecret,
		BaseURL:       cfg.Upload.BaseURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize recording store")
	}

	obsServer := observability.NewServer(":" + cfg.Service.ObservabilityPort)
	obsServer.Start()

	router := apihttp.NewRouter(&apihttp.Handlers{
		Orchestrator: orch,
		Queue:        jobQueue,
		Sessions:     sessions,
		Recordings:   recordings,
	})
	server := &http.Server{
		Addr:         ":" + cfg.Service.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Transcription service started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Observability server shutdown error")
	}
}
