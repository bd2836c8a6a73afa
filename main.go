package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"codesync-backend/handlers/api/ai"
	"codesync-backend/handlers/api/projects"
	"codesync-backend/handlers/websocket"
	appMiddleware "codesync-backend/middleware"
	"codesync-backend/pkg/ratelimit"
	"codesync-backend/stores"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func setupRouter(store stores.Store) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	corsOrigin := os.Getenv("CORS_ORIGIN")
	if corsOrigin == "" {
		corsOrigin = "http://localhost:5173"
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Route("/api/projects", func(r chi.Router) {
		r.Post("/", projects.HandleCreate(store, corsOrigin))
		r.Get("/recent", projects.HandleRecent(store))
		r.Delete("/cleanup", projects.HandleCleanupDummy(store))
		r.Delete("/cleanup-unsaved", projects.HandleCleanupUnsaved(store))

		r.Route("/{projectId}", func(r chi.Router) {
			r.Get("/", projects.HandleGet(store))
			r.Put("/", projects.HandleUpdate(store))
			r.Delete("/", projects.HandleDelete(store))

			r.Post("/files", projects.HandleCreateFile(store))
			r.Post("/folders", projects.HandleCreateFolder(store))
			r.Put("/files/{filePath}", projects.HandleUpdateFile(store))
			r.Delete("/files/{filePath}", projects.HandleDeleteFile(store))
		})
	})

	// AI routes share one per-IP limiter: 10 requests per minute unless
	// overridden by env.
	windowMs := envInt("RATE_LIMIT_WINDOW", 60000)
	maxRequests := envInt("RATE_LIMIT_MAX_REQUESTS", 10)
	rate := float64(maxRequests) / (float64(windowMs) / 1000.0)
	aiLimiters := ratelimit.NewClientLimiters(rate, maxRequests)

	r.Route("/api/ai", func(r chi.Router) {
		r.Use(appMiddleware.RateLimitByIP(aiLimiters))
		r.Post("/debug", ai.HandleDebug())
		r.Post("/explain", ai.HandleExplain())
	})

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]any{
			"success":   true,
			"message":   "CodeSync AI Backend is running",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	return r
}

func waitForShutdown(srv *socketio.Server) {
	exit := make(chan struct{})
	signalC := make(chan os.Signal, 1)

	signal.Notify(signalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range signalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("Shutting down...")
	srv.Close(nil)
	os.Exit(0)
}

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":5000", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	ai.Init()
	store := stores.GetStore()

	hub := websocket.NewHub(store, store)

	r := setupRouter(store)

	ioo := websocket.SetupSocketIO(hub)
	r.Mount("/socket.io/", ioo.ServeHandler(nil))

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddress, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(ioo)
}
