package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/kitabu/billing-api/internal/application/billing"
	inframpesa "github.com/kitabu/billing-api/internal/infrastructure/mpesa"
	infrapaystack "github.com/kitabu/billing-api/internal/infrastructure/paystack"
	infrapdf "github.com/kitabu/billing-api/internal/infrastructure/pdf"
	"github.com/kitabu/billing-api/internal/infrastructure/postgres"
	"github.com/kitabu/billing-api/internal/infrastructure/storage"
	httpRouter "github.com/kitabu/billing-api/internal/interfaces/http"
	"github.com/kitabu/billing-api/pkg/config"
	"github.com/kitabu/billing-api/pkg/logger"
)

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
		Str("app", cfg.App.Name).
		Msg("starting api")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to PostgreSQL")
	}
	defer pool.Close()

	invoiceRepo := postgres.NewInvoiceRepository(pool)
	txRunner := postgres.NewTxRunner(pool)
	templateRepo := postgres.NewRecurringTemplateRepository(pool)

	taxes := billing.TaxPolicy{Rates: cfg.Business.TaxRates}
	issuer := billing.IssuerProfile{
		Name:          cfg.Business.Name,
		Email:         cfg.Business.Email,
		Phone:         cfg.Business.Phone,
		Address:       cfg.Business.Address,
		InvoicePrefix: cfg.Business.InvoicePrefix,
		PortalBaseURL: cfg.Business.PortalBaseURL,
	}

	invoiceUC := billing.NewInvoiceUseCase(txRunner, invoiceRepo, taxes, issuer)
	recurringUC := billing.NewRecurringUseCase(txRunner, templateRepo, taxes, issuer, log)

	mpesaGW := inframpesa.NewClient(cfg.Mpesa)
	paystackGW := infrapaystack.NewClient(cfg.Paystack)
	paymentUC := billing.NewPaymentUseCase(invoiceUC, invoiceRepo, mpesaGW, paystackGW, log)

	enginePool := infrapdf.NewEnginePool(2, "Invoice", cfg.Business.Name, log)
	renderer := infrapdf.NewInvoiceRenderer(enginePool)
	docStore, err := storage.NewLocalStore(cfg.Storage.DocumentDir)
	if err != nil {
		log.Fatal().Err(err).Msg("document storage")
	}
	renderUC := billing.NewRenderUseCase(invoiceRepo, renderer, docStore, issuer, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		InvoiceUC:   invoiceUC,
		RecurringUC: recurringUC,
		PaymentUC:   paymentUC,
		RenderUC:    renderUC,
		JWTSecret:   cfg.JWT.Secret,
		Log:         log,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutdown signal received, draining server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}

	log.Info().Msg("api stopped")
}
