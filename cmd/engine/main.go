package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/crosslens/gst-recon-engine/internal/api"
	"github.com/crosslens/gst-recon-engine/internal/engine"
	"github.com/crosslens/gst-recon-engine/internal/store"
)

func main() {
	// Local development reads .env; production injects real env vars.
	_ = godotenv.Load()

	setupLogging()
	logrus.Info("starting GST reconciliation engine")

	cfg, err := engine.LoadConfig(os.Getenv("ENGINE_CONFIG"))
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}

	var graphStore store.GraphStore
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logrus.Warn("DATABASE_URL not set, running with in-memory store (nothing persists)")
		graphStore = store.NewMemoryStore()
	} else {
		pg, err := store.Connect(dbURL, store.DefaultRetryPolicy())
		if err != nil {
			logrus.Fatalf("database: %v", err)
		}
		defer pg.Close()
		if err := pg.InitSchema(); err != nil {
			logrus.Warnf("schema init failed: %v", err)
		}
		graphStore = pg
	}

	wsHub := api.NewHub()
	go wsHub.Run()

	reconciler := engine.NewReconciler(cfg, graphStore, api.CriticalAlertFunc(wsHub))

	r := api.SetupRouter(reconciler, graphStore, wsHub)

	port := getEnvOrDefault("PORT", "8080")
	logrus.WithField("port", port).Info("engine listening")
	if err := r.Run(":" + port); err != nil {
		logrus.Fatalf("server: %v", err)
	}
}

func setupLogging() {
	if os.Getenv("LOG_FORMAT") == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(getEnvOrDefault("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
