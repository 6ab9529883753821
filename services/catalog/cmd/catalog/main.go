package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"bookbazaar/internal/util"
	"bookbazaar/services/catalog/internal/accountclient"
	"bookbazaar/services/catalog/internal/app"
	"bookbazaar/services/catalog/internal/config"
	"bookbazaar/services/catalog/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		StorageDriver:  cfg.StorageDriver,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioPublicURL: cfg.MinioPublicURL,
		MinioUseSSL:    cfg.MinioUseSSL,
		LocalPath:      cfg.LocalPath,
		LocalPublicURL: cfg.LocalPublicURL,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                 appCore,
		Account:             accountclient.NewClient(cfg.AccountServiceURL),
		InternalTokenSecret: cfg.InternalTokenSecret,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("catalog server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
