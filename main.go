package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sykell/igprovision/internal/api"
	"github.com/sykell/igprovision/internal/config"
	"github.com/sykell/igprovision/internal/db"
	"github.com/sykell/igprovision/internal/logger"
	"github.com/sykell/igprovision/internal/metrics"
	"github.com/sykell/igprovision/internal/provisioner"
	"github.com/sykell/igprovision/internal/proxy"
	"github.com/sykell/igprovision/internal/remote"
	"github.com/sykell/igprovision/internal/service"
	"github.com/sykell/igprovision/internal/session"
)

func main() {
	configPath := flag.String("config", "", "Path to an optional ini config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.Log.Level, cfg.Log.JSON)
	metrics.InitMetrics()

	log.Info().Str("driver", cfg.Database.Driver).Msg("Initializing database...")
	dbConn, err := db.InitDB(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	store := service.NewStore(dbConn)

	sessions, err := session.NewFileStore(cfg.Login.SessionDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare session directory")
	}

	prober := proxy.NewProber(proxy.ProberConfig{
		Target:         cfg.Probe.Target,
		Timeout:        cfg.Probe.Timeout,
		RequestTimeout: cfg.Probe.RequestTimeout,
	})
	factory := remote.NewFactory(remote.Config{
		BaseURL: cfg.Login.BaseURL,
		Timeout: cfg.Login.RequestTimeout,
	})
	agent := provisioner.NewAgent(factory, sessions, store)
	pipeline := provisioner.NewPipeline(
		proxy.NewAllocator(prober, cfg.Probe.Concurrency),
		agent,
		&provisioner.Config{Workers: cfg.Login.Workers},
	)

	if cfg.Server.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET not set, the API will reject every authenticated request")
	}

	gin.SetMode(gin.ReleaseMode)
	r := api.NewRouter(api.Deps{
		Store:    store,
		Pipeline: pipeline,
		Agent:    agent,
		Sessions: sessions,
		Auth: api.AuthConfig{
			JWTSecret:     cfg.Server.JWTSecret,
			TokenDuration: cfg.Server.TokenDuration,
		},
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if sqlDB, err := dbConn.DB(); err == nil {
		sqlDB.Close()
	}

	log.Info().Msg("Server exited")
}
