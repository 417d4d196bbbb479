package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"hardline/internal/cli"
	apphttp "hardline/internal/http"
	applog "hardline/internal/log"
	"hardline/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentHTTP)

	ctx, stop := cli.SignalContext()
	defer stop()

	res := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	loc, _ := cfg.Location()        // checked by Validate
	operators, _ := cfg.Operators() // checked by Validate
	matcher, err := services.GetTriggerDayMatcher(services.TriggerPolicy(cfg.TriggerPolicy))
	if err != nil {
		logger.Error("Invalid trigger policy", applog.FieldError, err)
		os.Exit(1)
	}

	ledger := services.NewLedgerService(res.Store, res.Publisher)
	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Store:              res.Store,
		Processor:          services.NewAutoDebitProcessor(res.Store, services.NewChargeGuard(res.Store), ledger, matcher),
		ManualCharger:      services.NewManualCharger(res.Store, ledger, func() time.Time { return time.Now().In(loc) }),
		Ready:              res.Ready,
		Logger:             logger,
		Location:           loc,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Operators:          operators,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	logger.Info("Starting hardline server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", res.Publisher != nil,
		"timezone", loc.String(),
		"operators", len(operators))

	err = cli.Run(ctx,
		func(context.Context) error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		func(ctx context.Context) error {
			<-ctx.Done()
			logger.Info("Shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	)
	if err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
