// The scadenze-notifier daemon consumes occurrence and reminder
// messages from the broker and delivers them by email.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"scadenze/internal/amqp"
	"scadenze/internal/config"
	"scadenze/internal/log"
	"scadenze/internal/mailer"
)

func main() {
	// Values already present in the environment win over .env entries.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.Setup(cfg.LogLevel, cfg.LogFormat).WithComponent(log.ComponentNotifier)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the notifier")
		os.Exit(1)
	}
	if cfg.SMTPHost == "" {
		logger.Error("SMTP_HOST is required for the notifier")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to message broker", "error", err)
		os.Exit(1)
	}
	defer client.Close()
	logger.Info("Message broker connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)

	sender := mailer.NewSender(mailer.SMTP{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		To:       cfg.NotifyTo,
	})
	logger.Info("Mail sender configured", "host", cfg.SMTPHost, "to", cfg.NotifyTo)

	onReminder := func(ctx context.Context, p *amqp.ReminderPayload) error {
		notice, err := p.ToNotice()
		if err != nil {
			return err
		}
		return sender.DeliverReminder(ctx, notice)
	}

	// Receipts are opt-in; without them occurrence messages are
	// acknowledged and dropped.
	var onExpense func(context.Context, *amqp.ExpensePayload) error
	if cfg.ReceiptsEnabled {
		onExpense = func(ctx context.Context, p *amqp.ExpensePayload) error {
			expense, err := p.ToExpense()
			if err != nil {
				return err
			}
			return sender.SendReceipt(ctx, expense)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := client.Consume(ctx, onExpense, onReminder); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	logger.Info("Notifier started", "receipts_enabled", cfg.ReceiptsEnabled)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Consumer stopped")
	}

	cancel()

	// Give the in-flight delivery a moment to be acked or requeued.
	time.Sleep(2 * time.Second)
	logger.Info("Notifier shutdown complete")
}
