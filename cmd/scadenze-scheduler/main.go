// The scadenze-scheduler daemon materializes due occurrences and sends
// reminders on a cron schedule, without the HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"scadenze/internal/amqp"
	"scadenze/internal/config"
	"scadenze/internal/log"
	"scadenze/internal/mailer"
	"scadenze/internal/scheduler"
	"scadenze/internal/services"
	"scadenze/internal/storage"
)

func main() {
	// Values already present in the environment win over .env entries.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.Setup(cfg.LogLevel, cfg.LogFormat).WithComponent(log.ComponentScheduler)

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
			logger.Warn("Failed to connect to message broker, continuing without publishing", "error", err)
		} else {
			defer client.Close()
			publisher = client
			reminderSinks = append(reminderSinks, client)
			logger.Info("Message broker connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
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

	sweep := func(ctx context.Context) error {
		summary, err := processor.ProcessAllOwners(ctx)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "Materialization sweep complete",
			"owners", summary.Owners,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"expenses_created", summary.ExpensesCreated)

		if reminders != nil {
			if _, err := reminders.SweepReminders(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	sched := scheduler.NewScheduler(cfg.ScheduleSpec, cfg.RunOnStart, sweep)
	if err := sched.Start(context.Background()); err != nil {
		logger.Error("Failed to start scheduler", "error", err, "schedule", cfg.ScheduleSpec)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sched.Stop(stopCtx); err != nil {
		logger.Error("Scheduler stop error", "error", err)
		os.Exit(1)
	}
	logger.Info("Scheduler stopped gracefully")
}
