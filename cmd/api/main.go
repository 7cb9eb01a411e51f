package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"arshare/api/internal/app"
	"arshare/api/internal/config"
	"arshare/api/internal/email"
	"arshare/api/internal/grant"
	"arshare/api/internal/logging"
	"arshare/api/internal/metrics"
	"arshare/api/internal/search"
	"arshare/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(db); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	dataStore := store.NewPostgresStore(db)

	var index search.Index
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
		index = meiliClient
	}
	searchService := search.NewService(index, dataStore, logger)
	if index != nil {
		go searchService.ReindexAllFromPG(ctx)
	}

	var grants grant.Devices
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info().Msg("using Redis for access grants")
		redisStore, err := grant.NewRedisStore(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		grants = redisStore
	} else {
		logger.Warn().Msg("REDIS_URL not set, access grants are kept in memory")
		grants = grant.NewMemoryDevices()
	}

	service := app.New(cfg, dataStore, grants, searchService, logger).WithMetrics(metrics.New())
	if cfg.NotifyEnabled() {
		service.WithNotifier(email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: "AR Share",
		}, cfg.NotifyEmails))
		logger.Info().Strs("to", cfg.NotifyEmails).Msg("feedback notifications enabled")
	}
	if !cfg.AdminEnabled() {
		logger.Info().Msg("ARSHARE_ADMIN_TOKEN_HASH not set, project routes disabled")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("AR share API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
