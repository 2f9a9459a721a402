package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jaennil/tileproxy/internal/repository/fetchlog"
	"github.com/jaennil/tileproxy/pkg/logger"
)

type countingSweeper struct {
	calls   int
	idleTTL time.Duration
}

func (s *countingSweeper) Sweep(idleTTL time.Duration) int {
	s.calls++
	s.idleTTL = idleTTL
	return 3
}

type pruneRecorder struct {
	fetchlog.NoopLog
	olderThan time.Time
}

func (p *pruneRecorder) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	p.olderThan = olderThan
	return 1, nil
}

type tempRecorder struct {
	maxAge time.Duration
	err    error
}

func (r *tempRecorder) SweepTemp(maxAge time.Duration) (int, error) {
	r.maxAge = maxAge
	return 2, r.err
}

func TestNewMaintenance(t *testing.T) {
	tests := []struct {
		name     string
		cfg      maintenanceConfig
		sweeper  sessionSweeper
		temp     tempSweeper
		wantJobs int
		wantErr  bool
	}{
		{
			name:     "both jobs",
			cfg:      maintenanceConfig{Schedule: "@every 10m", IdleTTL: time.Hour, Retention: 24 * time.Hour},
			sweeper:  &countingSweeper{},
			wantJobs: 2,
		},
		{
			name:     "with temp sweep",
			cfg:      maintenanceConfig{Schedule: "@every 10m", IdleTTL: time.Hour, Retention: 24 * time.Hour, TempMaxAge: time.Hour},
			sweeper:  &countingSweeper{},
			temp:     &tempRecorder{},
			wantJobs: 3,
		},
		{
			name:     "temp sweep disabled",
			cfg:      maintenanceConfig{Schedule: "@every 10m", Retention: 24 * time.Hour},
			temp:     &tempRecorder{},
			wantJobs: 1,
		},
		{
			name:     "no in-process sessions",
			cfg:      maintenanceConfig{Schedule: "*/5 * * * *", IdleTTL: time.Hour, Retention: 24 * time.Hour},
			wantJobs: 1,
		},
		{
			name:    "empty schedule",
			cfg:     maintenanceConfig{IdleTTL: time.Hour, Retention: time.Hour},
			sweeper: &countingSweeper{},
		},
		{
			name:    "invalid schedule",
			cfg:     maintenanceConfig{Schedule: "every so often", IdleTTL: time.Hour},
			sweeper: &countingSweeper{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := newMaintenance(tt.cfg, tt.sweeper, fetchlog.NewNoopLog(), tt.temp, logger.NewNoOp())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if m.jobCount != tt.wantJobs {
				t.Errorf("jobs = %d, want %d", m.jobCount, tt.wantJobs)
			}
			if len(m.cron.Entries()) != tt.wantJobs {
				t.Errorf("cron entries = %d, want %d", len(m.cron.Entries()), tt.wantJobs)
			}
		})
	}
}

func TestMaintenanceJobs(t *testing.T) {
	sweeper := &countingSweeper{}
	ledger := &pruneRecorder{}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	temp := &tempRecorder{}
	m, err := newMaintenance(maintenanceConfig{Schedule: "@every 1h", IdleTTL: 12 * time.Hour, Retention: 168 * time.Hour, TempMaxAge: 2 * time.Hour}, sweeper, ledger, temp, logger.NewNoOp())
	if err != nil {
		t.Fatalf("newMaintenance: %v", err)
	}
	m.now = func() time.Time { return now }

	m.sweepSessions()
	if sweeper.calls != 1 || sweeper.idleTTL != 12*time.Hour {
		t.Errorf("sweeper = %+v", sweeper)
	}

	m.pruneLedger()
	if want := now.Add(-168 * time.Hour); !ledger.olderThan.Equal(want) {
		t.Errorf("pruned before %s, want %s", ledger.olderThan, want)
	}

	m.sweepTemp()
	if temp.maxAge != 2*time.Hour {
		t.Errorf("temp sweep max age = %s, want 2h", temp.maxAge)
	}

	temp.err = errors.New("permission denied")
	m.sweepTemp()

	m.Start()
	m.Stop()
}
