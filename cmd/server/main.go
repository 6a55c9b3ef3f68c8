package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"agentdesk/internal/app"
	"agentdesk/internal/config"
	"agentdesk/internal/server"
	"agentdesk/internal/util"
	"agentdesk/pkg/ai"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	client := ai.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ChatModel)

	completionTimeout := cfg.ParseCompletionTimeout()

	appCore, err := app.New(app.Config{
		DatabaseURL:       cfg.DatabaseURL,
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		JWTSecret:         cfg.JWTSecret,
		SessionTTL:        cfg.ParseSessionTTL(),
		CompletionTimeout: completionTimeout,
		MaxActivePrompts:  cfg.MaxActivePrompts,
		Generator:         client,
		Files:             client,
	})
	if err != nil {
		logger.Error("failed to init app", "err", err)
		os.Exit(1)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		MaxUploadBytes: int64(cfg.MaxUploadSizeMB) << 20,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// Chat handlers wait on the provider up to the completion timeout;
		// the write deadline must not cut them off.
		WriteTimeout: completionTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
