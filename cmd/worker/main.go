// The worker runs the two background sweeps on their cron schedules: invoice
// generation from due recurring templates, and payment reminder dispatch.
// It shares the application layer with the api binary but exposes no HTTP
// surface of its own.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kitabu/billing-api/internal/application/billing"
	"github.com/kitabu/billing-api/internal/infrastructure/mail"
	"github.com/kitabu/billing-api/internal/infrastructure/postgres"
	"github.com/kitabu/billing-api/pkg/config"
	"github.com/kitabu/billing-api/pkg/logger"
)

// sweepTimeout bounds one sweep run; a stuck sweep must not block the next
// scheduled one forever.
const sweepTimeout = 5 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("load configuration: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("recurring_schedule", cfg.Worker.RecurringSchedule).
		Str("reminder_schedule", cfg.Worker.ReminderSchedule).
		Msg("starting worker")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to PostgreSQL")
	}
	defer pool.Close()

	invoiceRepo := postgres.NewInvoiceRepository(pool)
	templateRepo := postgres.NewRecurringTemplateRepository(pool)
	reminderRepo := postgres.NewPaymentReminderRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	taxes := billing.TaxPolicy{Rates: cfg.Business.TaxRates}
	issuer := billing.IssuerProfile{
		Name:          cfg.Business.Name,
		Email:         cfg.Business.Email,
		Phone:         cfg.Business.Phone,
		Address:       cfg.Business.Address,
		InvoicePrefix: cfg.Business.InvoicePrefix,
		PortalBaseURL: cfg.Business.PortalBaseURL,
	}

	recurringUC := billing.NewRecurringUseCase(txRunner, templateRepo, taxes, issuer, log)
	dispatcher := mail.NewDispatcher(cfg.SMTP, issuer)
	reminderUC := billing.NewReminderUseCase(invoiceRepo, reminderRepo, dispatcher, log)

	c := cron.New()

	_, err = c.AddFunc(cfg.Worker.RecurringSchedule, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		report, err := recurringUC.ProcessDue(runCtx, time.Now().UTC())
		if err != nil {
			log.Error().Err(err).Msg("recurring sweep aborted")
			return
		}
		log.Info().
			Int("generated", report.Generated).
			Int("failures", len(report.Failures)).
			Msg("recurring sweep finished")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("schedule recurring sweep")
	}

	_, err = c.AddFunc(cfg.Worker.ReminderSchedule, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		report, err := reminderUC.ProcessDue(runCtx, time.Now().UTC())
		if err != nil {
			log.Error().Err(err).Msg("reminder sweep aborted")
			return
		}
		log.Info().
			Int("sent", report.Sent).
			Int("cancelled", report.Cancelled).
			Int("failed", report.Failed).
			Msg("reminder sweep finished")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("schedule reminder sweep")
	}

	c.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received, waiting for running sweeps...")
	<-c.Stop().Done()
	log.Info().Msg("worker stopped")
}
