package main

import (
	"context"
	"os"
	"time"

	"hardline/internal/cli"
	applog "hardline/internal/log"
	"hardline/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentAutoDebit)

	ctx, stop := cli.SignalContext()
	defer stop()

	res := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	loc, _ := cfg.Location() // checked by Validate
	matcher, err := services.GetTriggerDayMatcher(services.TriggerPolicy(cfg.TriggerPolicy))
	if err != nil {
		logger.Error("Invalid trigger policy", applog.FieldError, err)
		os.Exit(1)
	}

	ledger := services.NewLedgerService(res.Store, res.Publisher)
	processor := services.NewAutoDebitProcessor(res.Store, services.NewChargeGuard(res.Store), ledger, matcher)

	logger.Info("Starting autodebit-worker",
		"interval", cfg.AutoDebitInterval,
		"trigger_policy", cfg.TriggerPolicy,
		"timezone", loc.String(),
		"backend", cfg.DataBackend,
		"amqp_enabled", res.Publisher != nil)

	// Runs on the same calendar day only add skips, so the interval may be
	// shorter than a day.
	err = cli.Run(ctx, func(ctx context.Context) error {
		return cli.Every(ctx, logger, cfg.AutoDebitInterval, "auto-debit", func(ctx context.Context, now time.Time) error {
			today := calendarDay(now, loc)
			result, err := processor.RunDailyCharges(ctx, today)
			if err != nil {
				return err
			}
			logger.InfoContext(ctx, "Auto-debit run complete",
				"date", today.Format("2006-01-02"),
				"succeeded", result.Succeeded,
				"skipped", result.Skipped,
				"failed", result.Failed,
				"next_check", now.Add(cfg.AutoDebitInterval).In(loc).Format(time.RFC3339))
			return nil
		})
	})
	if err != nil {
		logger.Error("Autodebit worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Autodebit worker shutdown complete")
}

// calendarDay returns midnight of now's date in loc.
func calendarDay(now time.Time, loc *time.Location) time.Time {
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
}
