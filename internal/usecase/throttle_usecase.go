package usecase

import (
	"context"
	"net/http"
	"time"

	"github.com/jaennil/tileproxy/internal/entity"
	"github.com/jaennil/tileproxy/internal/repository/session"
	"github.com/jaennil/tileproxy/pkg/logger"
	"github.com/jaennil/tileproxy/pkg/metrics"
)

type Verdict int

const (
	VerdictAllow Verdict = iota
	VerdictRateLimited
	VerdictBanned
)

func (v Verdict) String() string {
	switch v {
	case VerdictRateLimited:
		return "rate_limited"
	case VerdictBanned:
		return "banned"
	default:
		return "allow"
	}
}

const (
	messageRateLimited = "too many requests"
	messageBanned      = "banned, retry later"
)

// Decision is the outcome of one admission check. Status and Message are empty when allowed.
type Decision struct {
	Verdict Verdict
	Status  int
	Message string
}

func (d Decision) Allowed() bool {
	return d.Verdict == VerdictAllow
}

func decisionFor(v Verdict) Decision {
	switch v {
	case VerdictRateLimited:
		return Decision{Verdict: v, Status: http.StatusTooManyRequests, Message: messageRateLimited}
	case VerdictBanned:
		return Decision{Verdict: v, Status: http.StatusBadRequest, Message: messageBanned}
	default:
		return Decision{Verdict: VerdictAllow}
	}
}

type ThrottleConfig struct {
	SessionLifetime time.Duration
	MaxRequests     int
	MaxBanCount     int
	BanDuration     time.Duration
}

func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		SessionLifetime: 60 * time.Second,
		MaxRequests:     800,
		MaxBanCount:     5,
		BanDuration:     6 * time.Hour,
	}
}

// step applies a single request made at now to s.
//
// Transitions:
//
//	Banned, now < BannedUntil  -> Banned (counters untouched)
//	Banned, now >= BannedUntil -> Normal with a fresh window
//	Normal, window elapsed     -> window restarts at now with one hit
//	Normal, hits > MaxRequests -> violation; BanCount grows up to MaxBanCount, reaching it bans for BanDuration
func (cfg ThrottleConfig) step(s entity.ClientSession, now time.Time) (entity.ClientSession, Verdict) {
	if s.State(now) == entity.SessionBanned {
		return s, VerdictBanned
	}

	if !s.BannedUntil.IsZero() {
		s.BannedUntil = time.Time{}
		s.WindowStart = now
		s.HitCount = 0
	}

	if now.Sub(s.WindowStart) > cfg.SessionLifetime {
		s.WindowStart = now
		s.HitCount = 1
	} else {
		s.HitCount++
	}

	if s.HitCount > cfg.MaxRequests {
		return cfg.violate(s, now), VerdictRateLimited
	}
	return s, VerdictAllow
}

func (cfg ThrottleConfig) violate(s entity.ClientSession, now time.Time) entity.ClientSession {
	if s.BanCount < cfg.MaxBanCount {
		s.BanCount++
		if s.BanCount >= cfg.MaxBanCount {
			s.BannedUntil = now.Add(cfg.BanDuration)
		}
	}
	return s
}

// ThrottleUseCase admits or rejects requests per client identity.
// Counting is approximate under concurrency: two requests racing on the same identity may lose an update.
type ThrottleUseCase struct {
	store  session.SessionStore
	cfg    ThrottleConfig
	now    func() time.Time
	logger logger.Logger
}

func NewThrottleUseCase(store session.SessionStore, cfg ThrottleConfig, l logger.Logger) *ThrottleUseCase {
	return &ThrottleUseCase{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: l,
	}
}

func (uc *ThrottleUseCase) load(ctx context.Context, id string, now time.Time) (entity.ClientSession, bool) {
	s, exists, err := uc.store.Load(ctx, id)
	if err != nil {
		metrics.ThrottleStoreErrors.WithLabelValues("load").Inc()
		uc.logger.Error("session load failed", "client", id, "error", err)
		return entity.ClientSession{}, false
	}
	if !exists {
		s = entity.NewClientSession(now)
	}
	return s, true
}

func (uc *ThrottleUseCase) save(ctx context.Context, id string, s entity.ClientSession) {
	if err := uc.store.Save(ctx, id, s); err != nil {
		metrics.ThrottleStoreErrors.WithLabelValues("save").Inc()
		uc.logger.Error("session save failed", "client", id, "error", err)
	}
}

// Admit counts one request for id. A broken session store admits the request.
func (uc *ThrottleUseCase) Admit(ctx context.Context, id string) Decision {
	now := uc.now()

	s, ok := uc.load(ctx, id, now)
	if !ok {
		metrics.ThrottleDecisions.WithLabelValues(VerdictAllow.String()).Inc()
		return decisionFor(VerdictAllow)
	}

	next, verdict := uc.cfg.step(s, now)
	if verdict != VerdictBanned {
		uc.save(ctx, id, next)
	}

	metrics.ThrottleDecisions.WithLabelValues(verdict.String()).Inc()

	switch {
	case verdict == VerdictRateLimited && next.State(now) == entity.SessionBanned:
		uc.logger.Warn("client banned", "client", id, "ban_count", next.BanCount, "banned_until", next.BannedUntil)
	case verdict == VerdictRateLimited:
		uc.logger.Info("client rate limited", "client", id, "hits", next.HitCount, "ban_count", next.BanCount)
	}

	return decisionFor(verdict)
}

// ForceBan puts id into the full-ban state immediately, bypassing escalation.
func (uc *ThrottleUseCase) ForceBan(ctx context.Context, id string) {
	now := uc.now()

	s, ok := uc.load(ctx, id, now)
	if !ok {
		return
	}

	s.BannedUntil = now.Add(uc.cfg.BanDuration)
	uc.save(ctx, id, s)

	metrics.ThrottleDecisions.WithLabelValues("forced_ban").Inc()
	uc.logger.Warn("client banned for invalid input", "client", id, "banned_until", s.BannedUntil)
}
