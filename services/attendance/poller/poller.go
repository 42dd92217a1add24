// Package poller schedules background scrapes of every registered
// user. Intervals are jittered so a restart does not line every user
// up on the same tick, and consecutive failures back a user off
// exponentially instead of hammering a broken portal.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"auattend-backend/lib/timezone"
	"auattend-backend/services/attendance"
	"auattend-backend/services/keystore"
)

var tracer = otel.Tracer("services/attendance/poller")

type Config struct {
	// steady-state delay between polls for a healthy user
	BaseIntervalSeconds int `json:"base_interval_seconds"`
	// ceiling for the failure backoff
	MaxIntervalSeconds int `json:"max_interval_seconds"`
	// every computed delay is skewed by up to this percentage
	JitterPercent int `json:"jitter_percent"`
	// how often the scheduler scans for due users
	TickSeconds int `json:"tick_seconds"`
	// upper bound on polls running at once across all users
	MaxConcurrentPolls int `json:"max_concurrent_polls"`
}

func (c *Config) fillDefaults() {
	if c.BaseIntervalSeconds <= 0 {
		c.BaseIntervalSeconds = 900
	}
	if c.MaxIntervalSeconds <= 0 {
		c.MaxIntervalSeconds = 21600
	}
	if c.JitterPercent <= 0 {
		c.JitterPercent = 20
	}
	if c.TickSeconds <= 0 {
		c.TickSeconds = 60
	}
	if c.MaxConcurrentPolls <= 0 {
		c.MaxConcurrentPolls = 4
	}
}

type Poller struct {
	config  Config
	service attendance.Service
	keys    keystore.Service

	// swapped out by tests
	now func() time.Time

	// bounds cross-user concurrency; per-user exclusivity is the
	// inflight map
	workers chan struct{}

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(config Config, service attendance.Service, keys keystore.Service) *Poller {
	config.fillDefaults()
	return &Poller{
		config:   config,
		service:  service,
		keys:     keys,
		now:      timezone.Now,
		workers:  make(chan struct{}, config.MaxConcurrentPolls),
		inflight: make(map[string]struct{}),
	}
}

// jitter skews d by up to ±JitterPercent.
func (p *Poller) jitter(d time.Duration) time.Duration {
	bound := int(d) / 100 * p.config.JitterPercent
	if bound <= 0 {
		return d
	}
	skew, err := random.IntRange(-bound, bound)
	if err != nil {
		return d
	}
	return d + time.Duration(skew)
}

func (p *Poller) baseInterval() time.Duration {
	return time.Duration(p.config.BaseIntervalSeconds) * time.Second
}

// backoffAfter returns the delay before the next attempt once a user
// has accumulated the given number of consecutive failures.
func (p *Poller) backoffAfter(failures int64) time.Duration {
	ceiling := time.Duration(p.config.MaxIntervalSeconds) * time.Second

	backoff := p.baseInterval()
	for i := int64(0); i <= failures; i++ {
		backoff *= 2
		if backoff >= ceiling {
			return ceiling
		}
	}
	return backoff
}

// Run blocks, scanning for due users every tick until the context is
// cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(p.config.TickSeconds) * time.Second)
	defer ticker.Stop()

	slog.Info("poller started",
		"base_interval_seconds", p.config.BaseIntervalSeconds,
		"max_interval_seconds", p.config.MaxIntervalSeconds)

	for {
		p.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// tick schedules newly registered users and launches a poll for every
// due user that does not already have one in flight.
func (p *Poller) tick(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "poller:tick")
	defer span.End()

	users, err := p.keys.ListUsers(ctx)
	if err != nil {
		slog.Error("failed to list users for polling", "err", err)
		return
	}
	span.SetAttributes(attribute.Int("users", len(users)))

	now := p.now()
	for _, user := range users {
		state, err := p.keys.PollState(ctx, user)
		if err != nil {
			slog.Error("failed to read poll state", "user", user, "err", err)
			continue
		}

		// a fresh registration waits one full interval first, the
		// caller already scraped once to validate the credentials
		if state.NextPollAt == 0 {
			state.NextPollAt = now.Add(p.jitter(p.baseInterval())).Unix()
			if err := p.keys.SavePollState(ctx, user, state); err != nil {
				slog.Error("failed to schedule first poll", "user", user, "err", err)
			}
			continue
		}
		if state.NextPollAt > now.Unix() {
			continue
		}
		if !p.claim(user) {
			continue
		}
		p.workers <- struct{}{}
		go func(user string, state keystore.PollState) {
			defer func() { <-p.workers }()
			p.pollOne(ctx, user, state)
		}(user, state)
	}
}

func (p *Poller) claim(user string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inflight[user]; ok {
		return false
	}
	p.inflight[user] = struct{}{}
	return true
}

func (p *Poller) release(user string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, user)
}

func (p *Poller) pollOne(ctx context.Context, user string, state keystore.PollState) {
	defer p.release(user)

	ctx, span := tracer.Start(ctx, "poller:pollOne")
	defer span.End()
	span.SetAttributes(attribute.String("user", user))

	transitions, err := p.service.PollUser(ctx, user)

	now := p.now()
	state.LastPollAt = now.Unix()

	switch {
	case errors.Is(err, keystore.ErrNoCredentials):
		// cleared between the scan and the poll, nothing to save
		return
	case err != nil:
		state.FailureCount++
		state.NextPollAt = now.Add(p.jitter(p.backoffAfter(state.FailureCount))).Unix()
		slog.Error("poll failed",
			"user", user, "failures", state.FailureCount, "err", err)
	default:
		state.FailureCount = 0
		state.NextPollAt = now.Add(p.jitter(p.baseInterval())).Unix()
		if len(transitions) > 0 {
			state.LastNotifyAt = now.Unix()
		}
		slog.Debug("poll succeeded", "user", user, "transitions", len(transitions))
	}

	if err := p.keys.SavePollState(ctx, user, state); err != nil {
		slog.Error("failed to save poll state", "user", user, "err", err)
	}
}
