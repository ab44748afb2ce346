/**
 * @description
 * Scheduled job implementations: earnings maturation and stale order expiry. Job
 * bodies are plain methods so tests can drive them with a fixed clock.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/fanvault/payment-service/internal/store"
)

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo     store.Repository
	logger   *slog.Logger
	settings Settings
	now      func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo store.Repository, logger *slog.Logger, settings Settings) *Jobs {
	return &Jobs{
		repo:     repo,
		logger:   logger,
		settings: settings,
		now:      time.Now,
	}
}

// PromoteMaturedEarnings moves pending income records older than the maturity window
// to withdrawable.
func (j *Jobs) PromoteMaturedEarnings() {
	j.logger.Info("starting earnings maturation job")
	ctx := context.Background()

	maturedBefore := j.now().AddDate(0, 0, -j.settings.EarningsMaturityDays)
	promoted, err := j.repo.PromoteMaturedIncome(ctx, maturedBefore)
	if err != nil {
		j.logger.Error("failed to promote matured earnings", "error", err)
		return
	}

	j.logger.Info("earnings maturation job finished", "promoted", promoted, "matured_before", maturedBefore)
}

// ExpireStaleOrders sweeps pending orders whose payment deadline has passed. A late
// success callback on a swept order loses the status race and lands in reconciliation.
func (j *Jobs) ExpireStaleOrders() {
	j.logger.Info("starting order expiry job")
	ctx := context.Background()

	expired, err := j.repo.ExpireOverdueOrders(ctx, j.now())
	if err != nil {
		j.logger.Error("failed to expire overdue orders", "error", err)
		return
	}

	if expired > 0 {
		j.logger.Info("order expiry job finished", "expired", expired)
	} else {
		j.logger.Info("order expiry job finished, nothing to expire")
	}
}
