package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medchain/provenance/pkg/provenance/api"
	"github.com/medchain/provenance/pkg/provenance/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	engine, err := cfg.BuildEngine(context.Background())
	if err != nil {
		slog.Error("Failed to build engine", "err", err)
		os.Exit(1)
	}

	secret := cfg.JWTSecret
	if secret == "" {
		if cfg.Environment != "development" {
			slog.Error("JWT_SECRET is required outside development")
			os.Exit(1)
		}
		slog.Warn("JWT_SECRET not set, using insecure development secret")
		secret = "insecure-dev-secret"
	}
	tokenAuth := api.NewTokenAuth([]byte(secret))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Mount("/api/v1", api.NewRouter(engine, tokenAuth))

	slog.Info("HTTP server listening", "port", cfg.Port, "index", cfg.IndexType, "store", cfg.StoreType)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		slog.Error("Server error", "err", err)
		os.Exit(1)
	}
}
