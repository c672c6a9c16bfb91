package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"giftledger/internal/cache"
	"giftledger/internal/config"
	"giftledger/internal/db"
	"giftledger/internal/events"
	"giftledger/internal/lock"
	"giftledger/internal/logging"
	"giftledger/internal/repository"
	"giftledger/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log)

	gormDB, err := db.Open(cfg.Database.DSN, db.Options{
		MaxOpenConns: cfg.Database.MaxConns,
		MaxIdleConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatalf("database init: %v", err)
	}

	// Drop tables if DB_RESET is set
	if cfg.Database.Reset {
		log.Warn("DB_RESET=true detected, dropping all tables")
		if err := db.Reset(gormDB); err != nil {
			log.Fatalf("reset: %v", err)
		}
	}
	if err := db.Migrate(gormDB); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	cacheClient := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer cacheClient.Close()

	var locker lock.Locker = lock.NewMutexLocker()
	if cfg.GiftCard.LockBackend == "redis" {
		locker = lock.NewRedisLocker(cacheClient, cfg.GiftCard.LockTTL)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer, err := events.NewKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			log.Fatalf("kafka producer: %v", err)
		}
		publisher = events.NewKafkaPublisher(producer, cfg.Kafka.Topic)
	}
	defer publisher.Close()

	// Initialize repositories
	repos := repository.New(gormDB)

	// Initialize services
	ledger := service.NewLedger(repos, locker, cacheClient, publisher, service.LogMailer{}, cfg.GiftCard)
	defer ledger.Close()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if cfg.GiftCard.DeliveryInterval > 0 {
		go sweepDeliveries(sweepCtx, ledger.Delivery, cfg.GiftCard.DeliveryInterval)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/healthz/db", func(c echo.Context) error {
		if err := repos.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "database unavailable"})
		}
		status := map[string]string{"status": "ok", "database": "connected"}
		if cacheClient.Enabled() {
			status["redis"] = "connected"
			if err := cacheClient.Ping(c.Request().Context()); err != nil {
				status["redis"] = "unavailable"
			}
		}
		return c.JSON(http.StatusOK, status)
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	go func() {
		log.WithField("addr", cfg.Server.Addr()).Info("starting gift card ledger")
		if err := e.Start(cfg.Server.Addr()); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
}

// sweepDeliveries periodically e-mails cards whose delivery date has passed.
func sweepDeliveries(ctx context.Context, delivery *service.DeliveryService, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sent, err := delivery.DeliverDue(ctx)
			if err != nil {
				log.WithError(err).Warn("delivery sweep failed")
			}
			if sent > 0 {
				log.WithField("sent", sent).Info("gift cards delivered")
			}
		}
	}
}
