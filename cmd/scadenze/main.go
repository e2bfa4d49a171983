package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"scadenze/internal/amqp"
	"scadenze/internal/config"
	apphttp "scadenze/internal/http"
	"scadenze/internal/log"
	"scadenze/internal/mailer"
	"scadenze/internal/rates"
	"scadenze/internal/services"
	"scadenze/internal/storage"
)

func main() {
	// Values already present in the environment win over .env entries.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	store, err := storage.Open(cfg.StorageBackend, cfg.StorageDSN())
	if err != nil {
		logger.Error("Failed to open storage", "error", err, "backend", cfg.StorageBackend)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("Storage ready", "backend", cfg.StorageBackend)

	var publisher services.ExpensePublisher
	var reminderSinks []services.ReminderSink

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to message broker", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		reminderSinks = append(reminderSinks, client)
		logger.Info("Message broker connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	if cfg.SMTPHost != "" {
		sender := mailer.NewSender(mailer.SMTP{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			To:       cfg.NotifyTo,
		})
		reminderSinks = append(reminderSinks, sender)
		logger.Info("Mail sender configured", "host", cfg.SMTPHost, "to", cfg.NotifyTo)
	}

	materializer := services.NewMaterializer(store, publisher)
	processor := services.NewProcessor(store, materializer, cfg.DueSoonDays, cfg.ProcessParallelism)

	var reminders *services.ReminderService
	if len(reminderSinks) > 0 {
		reminders = services.NewReminderService(store, cfg.DueSoonDays, reminderSinks...)
	}

	var provider rates.Provider
	if cfg.RatesFeedURL != "" {
		provider = rates.NewFeedProvider(cfg.RatesFeedURL)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:        store,
		Templates:    services.NewTemplateService(store, cfg.DueSoonDays),
		Expenses:     services.NewExpenseService(store, cfg.DueSoonDays),
		Materializer: materializer,
		Processor:    processor,
		Reminders:    reminders,
		Rates:        rates.NewService(provider, cfg.RatesTTL),
		CronToken:    cfg.CronToken,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting scadenze server", "port", cfg.Port, "backend", cfg.StorageBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
