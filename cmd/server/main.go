package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mosaic-orchestrator/internal/mosaic"
	"mosaic-orchestrator/internal/platform/config"
	"mosaic-orchestrator/internal/platform/logger"
	"mosaic-orchestrator/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	publicBase := config.GetEnv("PUBLIC_BASE_URL", "http://localhost:"+port)
	workspaceRoot := config.GetEnv("WORKSPACE_ROOT", "./sessions")
	enginePath := config.GetEnv("ENGINE_PATH", "ffmpeg")
	maxSessions := config.GetEnvInt("MAX_SESSIONS", 2)
	idleTimeout := config.GetEnvDuration("IDLE_TIMEOUT", 10*time.Minute)
	pollInterval := config.GetEnvDuration("IDLE_POLL_INTERVAL", time.Minute)
	resolverBase := config.GetEnv("RESOLVER_BASE_URL", "http://localhost:8096")
	resolverTimeout := config.GetEnvDuration("RESOLVER_TIMEOUT", 10*time.Second)
	apiToken := config.GetEnv("API_TOKEN", "")
	tileWidth := config.GetEnvInt("TILE_WIDTH", mosaic.DefaultGeometry.TileWidth)
	tileHeight := config.GetEnvInt("TILE_HEIGHT", mosaic.DefaultGeometry.TileHeight)
	bitrateKbps := config.GetEnvInt("OUTPUT_BITRATE_KBPS", mosaic.DefaultBitrateKbps)
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)

	if err := os.MkdirAll(workspaceRoot, 0o755); err != nil {
		log.Error("prepare workspace root", "error", err)
		os.Exit(1)
	}

	resolver := mosaic.NewHTTPResolver(resolverBase, apiToken, resolverTimeout)
	launcher := mosaic.NewExecLauncher(enginePath, logger.WithComponent(log, "engine"))
	met := metrics.New()
	svc := mosaic.NewService(mosaic.Config{
		WorkspaceRoot: workspaceRoot,
		MaxSessions:   maxSessions,
		IdleTimeout:   idleTimeout,
		PollInterval:  pollInterval,
		Geometry:      mosaic.Geometry{TileWidth: tileWidth, TileHeight: tileHeight},
		BitrateKbps:   bitrateKbps,
	}, logger.WithComponent(log, "orchestrator"), met, resolver, launcher)
	h := mosaic.NewHandler(svc, logger.WithComponent(log, "api"), publicBase, workspaceRoot)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(svc.ActiveSessions()) }).ServeHTTP(w, r)
	})
	h.Routes(r, mosaic.StaticTokenValidator{Token: apiToken, Identity: "host"})

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"max_sessions", maxSessions,
		"idle_timeout", idleTimeout.String(),
		"engine", enginePath,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	if err := svc.Shutdown(ctx); err != nil {
		log.Error("session drain error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
