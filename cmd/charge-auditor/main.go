package main

import (
	"context"
	"os"
	"time"

	"hardline/internal/cli"
	applog "hardline/internal/log"
	"hardline/internal/worker"
)

const resubscribeDelay = 5 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentAuditor)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the charge auditor")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	res := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	if res.AMQP == nil {
		logger.Error("AMQP broker unreachable, cannot consume charge events")
		os.Exit(1)
	}
	recorder, ok := res.Store.(worker.EventRecorder)
	if !ok {
		logger.Error("Backend cannot store audit events", "backend", cfg.DataBackend)
		os.Exit(1)
	}
	audit := worker.NewChargeAuditWorker(recorder)

	logger.Info("Starting charge-auditor",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"sqlite_db", cfg.SQLiteDBPath)

	err := cli.Run(ctx, func(ctx context.Context) error {
		for {
			err := res.AMQP.ConsumeChargeEvents(ctx, audit.Handle)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.WarnContext(ctx, "Charge event consumer stopped, resubscribing",
				applog.FieldError, err,
				"retry_in", resubscribeDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(resubscribeDelay):
			}
		}
	})
	if err != nil {
		logger.Error("Charge auditor stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Charge auditor shutdown complete")
}
