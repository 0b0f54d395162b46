// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/threadline-ai/agent-chat/internal/agent"
	"github.com/threadline-ai/agent-chat/internal/config"
	"github.com/threadline-ai/agent-chat/internal/handler"
	"github.com/threadline-ai/agent-chat/internal/llm"
	"github.com/threadline-ai/agent-chat/internal/middleware"
	natsclient "github.com/threadline-ai/agent-chat/internal/nats"
	"github.com/threadline-ai/agent-chat/internal/service"
	"github.com/threadline-ai/agent-chat/internal/store"
	"github.com/threadline-ai/agent-chat/internal/tools"
	"github.com/threadline-ai/agent-chat/pkg/logger"
	"github.com/threadline-ai/agent-chat/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "agent-chat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing")
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Storage
	if err := store.Migrate(ctx, cfg.DatabaseDSN); err != nil {
		log.Error("failed to run migrations", zap.Error(err))
		os.Exit(1)
	}
	chatStore, err := store.NewPostgresStore(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		os.Exit(1)
	}
	defer chatStore.Close()

	// Event fan-out
	nc, err := natsclient.Connect(natsclient.Config{
		URL:      cfg.NATSURL,
		CAFile:   cfg.NATSCAFile,
		CertFile: cfg.NATSCertFile,
		KeyFile:  cfg.NATSKeyFile,
		Token:    cfg.NATSToken,
	}, log)
	if err != nil {
		log.Error("failed to connect to NATS", zap.Error(err))
		os.Exit(1)
	}
	defer nc.Close()

	publisher := natsclient.NewEventPublisher(nc)
	if err := publisher.EnsureStream(ctx); err != nil {
		log.Error("failed to ensure stream", zap.Error(err))
		os.Exit(1)
	}

	// Model provider
	apiKey := cfg.AnthropicAPIKey
	if llm.ProviderKind(cfg.Provider) == llm.ProviderOpenAI {
		apiKey = cfg.OpenAIAPIKey
	}
	provider, err := llm.NewProvider(llm.ProviderKind(cfg.Provider), apiKey)
	if err != nil {
		log.Error("failed to create model provider", zap.Error(err))
		os.Exit(1)
	}

	// Tool catalog
	catalog := tools.DefaultCatalog(tools.GraphQLConfig{
		Endpoint: cfg.FlowsEndpoint,
		APIKey:   cfg.FlowsAPIKey,
	})

	// Orchestrator and services
	orchestrator := agent.New(provider, catalog, log, agent.Options{
		Model:         cfg.Model,
		HistoryWindow: cfg.AgentHistoryWindow,
		MaxToolRounds: cfg.AgentMaxToolRounds,
		MaxTokens:     cfg.MaxTokens,
		Temperature:   cfg.Temperature,
	})

	chatSvc := service.NewChatService(chatStore, publisher, orchestrator.Checkpoints(), log)
	turnSvc := service.NewTurnService(chatStore, orchestrator, publisher, log)

	// Handlers
	healthHandler := handler.NewHealthHandler(chatStore, nc)
	chatHandler := handler.NewChatHandler(chatSvc, turnSvc, log)
	streamHandler := handler.NewStreamHandler(turnSvc, chatSvc, log)

	// Router
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/chats", func(r chi.Router) {
			r.Post("/", chatHandler.Create)
			r.Get("/", chatHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", chatHandler.Get)
				r.Delete("/", chatHandler.Delete)

				r.Get("/messages", chatHandler.ListMessages)
				r.Post("/messages", chatHandler.SendMessage)
			})
		})

		r.Post("/chat/stream", streamHandler.Stream)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
