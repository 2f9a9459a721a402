package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jaennil/tileproxy/internal/repository/fetchlog"
	"github.com/jaennil/tileproxy/pkg/logger"
	"github.com/jaennil/tileproxy/pkg/metrics"
	"github.com/robfig/cron/v3"
)

type sessionSweeper interface {
	Sweep(idleTTL time.Duration) int
}

type tempSweeper interface {
	SweepTemp(maxAge time.Duration) (int, error)
}

type maintenanceConfig struct {
	Schedule   string
	IdleTTL    time.Duration
	Retention  time.Duration
	TempMaxAge time.Duration
}

// maintenance runs periodic housekeeping jobs on one schedule.
type maintenance struct {
	cron     *cron.Cron
	cfg      maintenanceConfig
	sweeper  sessionSweeper
	ledger   fetchlog.FetchLog
	temp     tempSweeper
	logger   logger.Logger
	now      func() time.Time
	jobCount int
}

// newMaintenance registers the jobs that apply. sweeper may be nil when sessions expire on their own.
func newMaintenance(cfg maintenanceConfig, sweeper sessionSweeper, ledger fetchlog.FetchLog, temp tempSweeper, l logger.Logger) (*maintenance, error) {
	m := &maintenance{
		cron:    cron.New(),
		cfg:     cfg,
		sweeper: sweeper,
		ledger:  ledger,
		temp:    temp,
		logger:  l,
		now:     time.Now,
	}

	if cfg.Schedule == "" {
		return m, nil
	}

	if sweeper != nil && cfg.IdleTTL > 0 {
		if _, err := m.cron.AddFunc(cfg.Schedule, m.sweepSessions); err != nil {
			return nil, fmt.Errorf("invalid maintenance schedule %q: %w", cfg.Schedule, err)
		}
		m.jobCount++
	}

	if ledger != nil && cfg.Retention > 0 {
		if _, err := m.cron.AddFunc(cfg.Schedule, m.pruneLedger); err != nil {
			return nil, fmt.Errorf("invalid maintenance schedule %q: %w", cfg.Schedule, err)
		}
		m.jobCount++
	}

	if temp != nil && cfg.TempMaxAge > 0 {
		if _, err := m.cron.AddFunc(cfg.Schedule, m.sweepTemp); err != nil {
			return nil, fmt.Errorf("invalid maintenance schedule %q: %w", cfg.Schedule, err)
		}
		m.jobCount++
	}

	return m, nil
}

func (m *maintenance) sweepTemp() {
	n, err := m.temp.SweepTemp(m.cfg.TempMaxAge)
	metrics.TempFilesSwept.Add(float64(n))
	if err != nil {
		m.logger.Error("temp tile sweep failed", "removed", n, "error", err)
		return
	}
	if n > 0 {
		m.logger.Info("abandoned temp tiles removed", "count", n)
	}
}

func (m *maintenance) sweepSessions() {
	n := m.sweeper.Sweep(m.cfg.IdleTTL)
	metrics.SessionsSwept.Add(float64(n))
	if n > 0 {
		m.logger.Info("idle sessions swept", "count", n)
	}
}

func (m *maintenance) pruneLedger() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := m.ledger.Prune(ctx, m.now().Add(-m.cfg.Retention))
	if err != nil {
		m.logger.Error("fetch log pruning failed", "error", err)
		return
	}
	if n > 0 {
		m.logger.Info("fetch log pruned", "deleted", n)
	}
}

func (m *maintenance) Start() {
	if m.jobCount == 0 {
		m.logger.Info("no maintenance jobs configured")
		return
	}
	m.cron.Start()
	m.logger.Info("maintenance scheduler started", "schedule", m.cfg.Schedule, "jobs", m.jobCount)
}

// Stop waits for running jobs to finish.
func (m *maintenance) Stop() {
	<-m.cron.Stop().Done()
}
