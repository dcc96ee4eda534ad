package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"homefeed/client/config"
	"homefeed/client/internal/api"
	"homefeed/client/internal/database"
	"homefeed/client/internal/feed"
	"homefeed/client/internal/geocoding"
	"homefeed/client/internal/interest"
	"homefeed/client/internal/location"
	"homefeed/client/internal/remote"
	"homefeed/client/internal/store"
	"homefeed/client/internal/suggest"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// A missing .env is fine, the environment may already be set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithError(err).Warn("Failed to load .env file")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	configureLogger(logger, cfg)

	catalog, err := config.LoadFilterCatalog(cfg.FiltersPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load filter catalog")
	}

	if cfg.Feed.CitiesPath != "" {
		if err := config.LoadSupportedCities(cfg.Feed.CitiesPath); err != nil {
			logger.WithError(err).Fatal("Failed to load supported cities")
		}
	}

	kv, closer, err := openStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer closer.Close()

	cacheDir := cfg.Geocoder.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "homefeed", "geocode_cache")
	}

	client := remote.NewClient(cfg.API.BaseURL, remote.Options{
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.API.UserAgent,
		Strict:    cfg.API.Strict,
	}, logger)

	// The CLI has no GPS, the device position comes from the environment
	positions := location.StaticPosition{
		Point:   orb.Point{cfg.Device.Longitude, cfg.Device.Latitude},
		Granted: cfg.Device.Granted,
	}
	search := suggest.Options{
		Debounce:       cfg.Search.Debounce,
		RecentSize:     cfg.Search.RecentSize,
		MaxSuggestions: cfg.Search.MaxSuggestions,
	}

	session := feed.NewSession(feed.Collaborators{
		Remote:    client,
		Positions: positions,
		Geocoder:  geocoding.NewGeocoder(logger, cfg.Geocoder.ReverseURL, cacheDir, cfg.Geocoder.RatePerSec),
		Store:     kv,
		Identity:  interest.StaticIdentity(cfg.Session.UserID),
		Catalog:   catalog,
	}, feed.Options{
		PageSize:        cfg.Feed.PageSize,
		RefreshInterval: cfg.Feed.RefreshInterval,
		DefaultCity:     cfg.DefaultCity(),
		SeedCities:      config.SupportedCities(),
		Strict:          cfg.API.Strict,
		Search:          search,
		ProfileTTL:      cfg.Profile.TTL,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Initializing feed session...")
	if err := session.Init(ctx); err != nil {
		logger.WithError(err).Warn("Session started without a city list")
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	api.SetupRoutes(router, session, cfg.Server.CORSOrigins, logger)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	go func() {
		logger.Infof("Starting server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	if err := session.Close(); err != nil {
		logger.WithError(err).Error("Failed to close session")
	}
}

func configureLogger(logger *logrus.Logger, cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithField("level", cfg.Logging.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openStore(cfg *config.Config, logger *logrus.Logger) (store.KeyValueStore, io.Closer, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		logger.Infof("Using database at: %s", cfg.Store.Path)
		db, err := database.NewDatabase(cfg.Store.Path, database.Options{
			MaxRetries: cfg.Store.MaxRetries,
			RetryDelay: cfg.Store.RetryDelay,
		}, logger)
		if err != nil {
			return nil, nil, err
		}

		logger.Info("Running database migrations...")
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, db, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		rs := store.NewRedisStore(rdb, cfg.Store.KeyPrefix)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			rs.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Store.RedisAddr, err)
		}
		return rs, rs, nil

	case "memory":
		logger.Warn("Using in-memory store, state is lost on exit")
		return store.NewMemoryStore(), nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
