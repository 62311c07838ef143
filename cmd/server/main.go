package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DarriEy/delta-agent/internal/api"
	"github.com/DarriEy/delta-agent/internal/config"
	"github.com/DarriEy/delta-agent/internal/httpserver"
	"github.com/DarriEy/delta-agent/internal/speech"
	"github.com/DarriEy/delta-agent/pkg/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	client := api.NewClient(cfg.BackendBaseURL)
	if cfg.BackendToken != "" {
		token := cfg.BackendToken
		client.Token = func() string { return token }
	}
	backend := api.NewBackend(client)

	// Direct Deepgram synthesis when a key is configured, otherwise the
	// research backend's TTS route.
	var synth speech.Synthesizer
	if cfg.DeepgramAPIKey != "" {
		synth = speech.NewDeepgramSynthesizer(cfg.DeepgramAPIKey, cfg.DeepgramTTSModel)
		logger.Infof("using Deepgram TTS")
	} else {
		synth = speech.NewBackendSynthesizer(backend)
		logger.Infof("using backend TTS")
	}

	srv := httpserver.New(cfg, backend, synth)

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infof("gateway listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		logger.Infof("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}
