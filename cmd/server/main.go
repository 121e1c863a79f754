// Chat widget server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/chat-widget/internal/agent"
	"github.com/ashureev/chat-widget/internal/api"
	"github.com/ashureev/chat-widget/internal/chat"
	"github.com/ashureev/chat-widget/internal/config"
	"github.com/ashureev/chat-widget/internal/identity"
	"github.com/ashureev/chat-widget/internal/middleware"
	"github.com/ashureev/chat-widget/internal/profile"
	"github.com/ashureev/chat-widget/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "chat-widget"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	client := agent.NewClient(agent.ClientConfig{
		AssistantURL: cfg.AssistantURL,
		PrototypeURL: cfg.PrototypeURL,
		Timeout:      cfg.HTTPTimeout,
	})
	slog.Info("Endpoint client initialized", "assistant_url", cfg.AssistantURL, "prototype_url", cfg.PrototypeURL)

	timings := chat.Timings{
		TypingDelay:         cfg.Timings.TypingDelay,
		RevealDelay:         cfg.Timings.RevealDelay,
		SatisfactionDismiss: cfg.Timings.SatisfactionDismiss,
		SatisfactionReshow:  cfg.Timings.SatisfactionReshow,
	}
	registry := chat.NewRegistry(func(deviceID string) *chat.Controller {
		return chat.NewController(chat.Dependencies{
			Store:      repo,
			Assistant:  client,
			Prototyper: client,
			Profiles:   profile.NewDeviceRepository(repo, deviceID),
			Log:        conversationLogger,
			Logger:     logger.With("device_id", deviceID),
		}, timings, chat.DefaultMessages())
	})

	var limiter *api.SendLimiter
	if cfg.RateLimit.Enabled {
		limiter = api.NewSendLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	}

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, registry, cfg.FrontendURL, cfg.IsDevelopment())
	healthHandler := api.NewHealthHandler(repo, registry)
	chatHandler := api.NewChatHandler(baseHandler, limiter)
	streamHandler := api.NewStreamHandler(baseHandler)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", streamHandler.ServeHTTP)

	// No WriteTimeout: message sends hold the request open until the answer
	// is revealed.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start idle session worker.
	chat.StartIdleWorker(ctx, registry, cfg.SessionIdleTTL, cfg.IdleInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return err
		}
		slog.Info("gRPC health server listening", "addr", lis.Addr().String())
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		healthServer.Shutdown()
		registry.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		grpcServer.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" || cfg.IsDevelopment() {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
