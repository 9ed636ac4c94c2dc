// Package retention purges messages older than the configured period on
// a cron schedule. It is disabled unless retention.enabled is set.
package retention

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"tradetalk/pkg/config"
	"tradetalk/pkg/logger"
	"tradetalk/pkg/store"
)

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, eff config.EffectiveConfigResult) (context.CancelFunc, error) {
	ret := eff.Config.Retention

	if !ret.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	period, err := parsePeriod(ret.Period)
	if err != nil {
		logger.Error("retention_invalid_period", "period", ret.Period, "error", err)
		return nil, err
	}

	// map empty cron to default daily @02:00
	cronExpr := ret.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", ret.Cron)
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "period", ret.Period, "dry_run", ret.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, eff, cronExpr, period)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured
// cron expression and sleeps until that time.
func runScheduler(ctx context.Context, eff config.EffectiveConfigResult, cronExpr string, period time.Duration) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(eff, period); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce executes a single purge pass. Exported so an operator trigger
// or a test can run retention on demand.
func RunOnce(eff config.EffectiveConfigResult, period time.Duration) error {
	ret := eff.Config.Retention
	cutoff := time.Now().UTC().Add(-period).UnixNano()
	batch := ret.BatchSize
	if batch <= 0 {
		batch = 1000
	}
	start := time.Now()
	n, err := store.PurgeMessagesBefore(cutoff, batch, ret.DryRun)
	if err != nil {
		return err
	}
	logger.Info("retention_run_complete",
		"purged", n,
		"dry_run", ret.DryRun,
		"cutoff", cutoff,
		"took", time.Since(start).String())
	return nil
}

// parsePeriod accepts Go durations ("720h") plus a day suffix ("90d").
func parsePeriod(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("retention period is empty")
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid retention period %q: %w", s, err)
		}
		if days <= 0 {
			return 0, fmt.Errorf("retention period must be positive")
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid retention period %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("retention period must be positive")
	}
	return d, nil
}
