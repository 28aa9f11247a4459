package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"

	"github.com/mintkit/gameroom/internal/gateway"
)

func setupServer(cfg *Config, handler *gateway.Handler) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	handler.RegisterRoutes(mux)
	setupHealthCheck(mux)

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", getEnv("PORT", cfg.Server.Port)),
		Handler:      c.Handler(mux),
		ReadTimeout:  durationOr(cfg.Server.ReadTimeout, 0),
		WriteTimeout: durationOr(cfg.Server.WriteTimeout, 0),
		IdleTimeout:  durationOr(cfg.Server.IdleTimeout, 0),
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
