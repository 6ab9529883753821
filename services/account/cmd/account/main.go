package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"bookbazaar/internal/ratelimit"
	"bookbazaar/internal/util"
	"bookbazaar/services/account/internal/app"
	"bookbazaar/services/account/internal/config"
	"bookbazaar/services/account/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		DatabaseURL:         cfg.DatabaseURL,
		RedisAddr:           cfg.RedisAddr,
		RedisPassword:       cfg.RedisPassword,
		SessionTTL:          cfg.SessionTTL(),
		StorageDriver:       cfg.StorageDriver,
		MinioEndpoint:       cfg.MinioEndpoint,
		MinioAccessKey:      cfg.MinioAccessKey,
		MinioSecretKey:      cfg.MinioSecretKey,
		MinioBucket:         cfg.MinioBucket,
		MinioPublicURL:      cfg.MinioPublicURL,
		MinioUseSSL:         cfg.MinioUseSSL,
		LocalPath:           cfg.LocalPath,
		LocalPublicURL:      cfg.LocalPublicURL,
		CatalogURL:          cfg.CatalogServiceURL,
		InternalTokenSecret: cfg.InternalTokenSecret,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "bookbazaar:ratelimit:auth", cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		Limiter:        limiter,
		TrustedProxies: trusted,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("account server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
