package main

import (
	"context"

	"recipes/internal/config"
	"recipes/internal/logger"
	"recipes/internal/metrics"
	"recipes/internal/metrics/datadog"
	"recipes/internal/metrics/prompush"
)

// setupMetrics installs the configured metrics backend and returns the
// function that flushes it at shutdown. A backend that fails to initialize
// is logged and replaced by the nop backend.
func setupMetrics(ctx context.Context, cfg config.MetricsConfig, log logger.Logger) func() {
	switch cfg.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(cfg.JobName, cfg.PushgatewayURL)
		if err != nil {
			log.Warn("metrics: prom push backend init failed, using nop", logger.Error(err))
			return func() {}
		}
		log.Info("metrics enabled",
			logger.String("backend", cfg.Backend),
			logger.String("url", cfg.PushgatewayURL),
			logger.String("job", cfg.JobName))
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Warn("metrics: flush failed", logger.Error(err))
			}
		}

	case "datadog":
		// Datadog buffers and submits periodically; Close stops the loop and
		// performs the final submit.
		b, err := datadog.NewBackend(context.WithoutCancel(ctx), datadog.Options{
			JobName:    cfg.JobName,
			Tags:       cfg.TagList(),
			FlushEvery: cfg.FlushEvery,
		})
		if err != nil {
			log.Warn("metrics: datadog backend init failed, using nop", logger.Error(err))
			return func() {}
		}
		log.Info("metrics enabled",
			logger.String("backend", cfg.Backend),
			logger.String("job", cfg.JobName),
			logger.Any("tags", cfg.TagList()))
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Warn("metrics: datadog close failed", logger.Error(err))
			}
		}

	default:
		log.Debug("metrics disabled", logger.String("backend", cfg.Backend))
		return func() {}
	}
}
