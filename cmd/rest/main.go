package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"repochat-be/internal/bootstrap"
	"repochat-be/internal/config"
	"repochat-be/internal/server"
	"repochat-be/internal/tracer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to bootstrap: %v", err)
	}
	defer container.Close()

	// 3. Tracing (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer(container.Logger)
	defer shutdownTracer(context.Background())

	// 4. Start Background Services
	go container.WebSocketHub.Run(ctx)
	if err := container.ConsumerService.Consume(ctx); err != nil {
		log.Fatalf("Failed to start event consumer: %v", err)
	}

	// 5. Run Server until a signal arrives
	srv := server.New(cfg, container)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		if err != nil {
			container.Logger.Error("Main", "Server stopped", map[string]interface{}{"error": err})
		}
	case <-ctx.Done():
		container.Logger.Info("Main", "Shutting down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			container.Logger.Error("Main", "Graceful shutdown failed", map[string]interface{}{"error": err})
		}
	}
}
