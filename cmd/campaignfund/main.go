// Package main запускает HTTP-сервер сервиса сбора пожертвований.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/campaignfund/internal/config"
	"github.com/mmeshcher/campaignfund/internal/events"
	"github.com/mmeshcher/campaignfund/internal/gateway"
	"github.com/mmeshcher/campaignfund/internal/handler"
	"github.com/mmeshcher/campaignfund/internal/middleware"
	"github.com/mmeshcher/campaignfund/internal/notify"
	"github.com/mmeshcher/campaignfund/internal/receipt"
	"github.com/mmeshcher/campaignfund/internal/repository"
	"github.com/mmeshcher/campaignfund/internal/service"
	"github.com/mmeshcher/campaignfund/internal/storage"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	artifacts, err := storage.NewFileStore(cfg.ArtifactDir)
	if err != nil {
		sugar.Fatalw("artifact storage initialization error", "error", err.Error())
	}

	var orders gateway.OrderStore = gateway.NewMemoryOrderStore(cfg.OrderTTL)
	if cfg.RedisURL != "" {
		client, err := gateway.ConnectRedis(cfg.RedisURL)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		redisOrders := gateway.NewRedisOrderStore(client, cfg.OrderTTL)
		defer redisOrders.Close()
		orders = redisOrders
	}
	gw := gateway.NewMock(orders, gateway.NewRandomIDs(cfg.GatewaySecret))

	var mailer notify.Mailer
	if cfg.SMTP.Enabled() {
		mailer = notify.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	} else {
		sugar.Warn("SMTP is not configured, email notifications are disabled")
	}

	var texter notify.Texter
	if cfg.Twilio.Enabled() {
		texter = notify.NewTwilioTexter(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From)
	} else {
		sugar.Warn("Twilio is not configured, SMS notifications are disabled")
	}

	var publisher service.EventPublisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	svc := service.NewService(repo, service.Deps{
		Gateway:     gw,
		Receipts:    receipt.NewGenerator(repo, artifacts, cfg.OrganizationName, cfg.ReceiptLogoPath),
		Notifier:    notify.NewDispatcher(mailer, texter, artifacts, logger, cfg.NotifyTimeout),
		Events:      publisher,
		Artifacts:   artifacts,
		AdminLogins: cfg.AdminLogins,
	}, logger)
	defer svc.Close()

	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is not set, tokens will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновой сверки собранных сумм
	g.Go(func() error {
		svc.StartLedgerReconciliation(ctx, cfg.ReconcileInterval)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting campaignfund server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		svc.Wait()
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
