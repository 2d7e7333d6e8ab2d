package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"codeshare/internal/api"
	"codeshare/internal/metrics"
	"codeshare/internal/routers"
	"codeshare/internal/store"
	"codeshare/internal/utils"
)

// Seams for tests.
var (
	listenAndServe = http.ListenAndServe
	exitFunc       = func(err error) { log.Fatal(err) }
)

func main() {
	if err := run(context.Background()); err != nil {
		exitFunc(err)
	}
}

func run(ctx context.Context) error {
	logger := utils.NewLogger()

	port := getenv("PORT", "4000")
	typingWindow := durationEnvMs("TYPING_TIMEOUT_MS", 2000)
	sweepInterval := durationEnvMs("PRESENCE_SWEEP_MS", 500)

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		utils.SetSigningSecret([]byte(secret))
		logger.Info("identity token verification enabled")
	}

	var roomStore store.RoomStore = store.Noop{}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		roomStore = store.NewRedisStore(addr)
		logger.Info("room mirror enabled", "redis", addr)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := api.NewHandlers(logger, roomStore, m, typingWindow, sweepInterval)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go h.RunPresence(ctx)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Mount("/", routers.New(h))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	addr := ":" + port
	logger.Info("collab server listening", "addr", addr)
	return listenAndServe(addr, r)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnvMs(key string, fallback int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return time.Duration(fallback) * time.Millisecond
}
