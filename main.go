package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	config "github.com/phillip/hela-fund-go/config"
	logger "github.com/phillip/hela-fund-go/logger"
	routes "github.com/phillip/hela-fund-go/routes"
	services "github.com/phillip/hela-fund-go/services"
	store "github.com/phillip/hela-fund-go/store"
	utils "github.com/phillip/hela-fund-go/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()
	cfg.Logger = zl
	zl.Info("config loaded", cfg.LogFields()...)

	// Amounts go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	if err := wire(cfg); err != nil {
		zl.Fatal("startup failed", zap.Error(err))
	}

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logger.GinLogger(zl), logger.GinRecovery(zl))
	routes.SetupRoutes(r, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zl.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	zl.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := cfg.Store.Close(ctx); err != nil {
		zl.Error("store close failed", zap.Error(err))
	} else {
		zl.Info("store closed")
	}

	zl.Info("server stopped")
}

// wire opens the store and builds the runtime handles on cfg.
func wire(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverMemory:
		cfg.Logger.Warn("using in-memory store; data is lost on restart")
		cfg.Store = store.NewMemoryStore()
	default:
		st, err := store.NewMongoStore(ctx, cfg.MongoURI, cfg.DBName, cfg.Logger)
		if err != nil {
			return err
		}
		cfg.Store = st
	}

	if cfg.Cloudinary.Enabled() {
		up, err := utils.NewCloudinaryUploader(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Logger)
		if err != nil {
			return err
		}
		cfg.Uploader = up
	} else {
		cfg.Logger.Warn("cloudinary not configured; image uploads disabled")
	}

	opts := []services.Option{
		services.WithLogger(cfg.Logger),
		services.WithMaxAttempts(cfg.ContributionMaxAttempts),
	}
	if cfg.Mail.Enabled() {
		cfg.Mailer = utils.NewZeptoMailer(cfg.Mail.APIURL, cfg.Mail.APIKey, cfg.Mail.From, cfg.Logger)
		opts = append(opts, services.WithMailer(cfg.Mailer))
	}

	cfg.Service = services.New(cfg.Store, opts...)
	cfg.Auth = services.NewAuthService(cfg.Store, cfg.JWTSecret, cfg.JWTExpiry, services.WithAuthLogger(cfg.Logger))
	return nil
}
