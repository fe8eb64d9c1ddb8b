package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/orthodesk/orthodesk/internal/config"
	"github.com/orthodesk/orthodesk/router"
	"github.com/orthodesk/orthodesk/services"
)

func main() {
	// Load Config
	if err := config.LoadConfig(os.Getenv("ORTHODESK_CONFIG_PATH")); err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.App
	log := cfg.NewLogger()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Database connection
	pg, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()

	if err := pg.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Set timezone to UTC for consistent time handling
	if _, err := pg.Exec("SET TIME ZONE 'UTC'"); err != nil {
		log.WithError(err).Warn("Failed to set timezone to UTC")
	}
	log.Info("Connected to database")

	// Redis is optional: without it logout and the role cache are disabled
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = services.NewRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, continuing without token revocation and role cache")
			rdb = nil
		} else {
			defer rdb.Close()
			log.Info("Connected to redis")
		}
	}

	if !log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.NewGinRouter(pg, rdb, cfg, log, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}
