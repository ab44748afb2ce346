/**
 * @description
 * Cron scheduler setup for the settlement and order-expiry jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Schedules carries the cron expressions for the background jobs.
type Schedules struct {
	SettlementPromotion string
	OrderExpiry         string
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron      *cron.Cron
	jobs      *Jobs
	logger    *slog.Logger
	schedules Schedules
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, schedules Schedules) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:      c,
		jobs:      jobs,
		logger:    logger,
		schedules: schedules,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedules.SettlementPromotion, s.jobs.PromoteMaturedEarnings); err != nil {
		s.logger.Error("failed to schedule earnings maturation job", "error", err)
	} else {
		s.logger.Info("scheduled earnings maturation job", "schedule", s.schedules.SettlementPromotion)
	}

	if _, err := s.cron.AddFunc(s.schedules.OrderExpiry, s.jobs.ExpireStaleOrders); err != nil {
		s.logger.Error("failed to schedule order expiry job", "error", err)
	} else {
		s.logger.Info("scheduled order expiry job", "schedule", s.schedules.OrderExpiry)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
