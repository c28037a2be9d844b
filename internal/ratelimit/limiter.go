// Package ratelimit implements sliding-window admission control for the
// execution engine, keyed by user identity and bounded per subscription tier.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/gema-exec/internal/tier"
)

const (
	hourWindow = time.Hour
	dayWindow  = 24 * time.Hour
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool `json:"allowed"`
	// Remaining is tier.Unlimited for quota-free tiers.
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// Limiter answers "may this user execute now" against a usage counter.
type Limiter struct {
	counter Counter
	now     func() time.Time
}

// New constructs a limiter over the given counter.
func New(counter Counter) *Limiter {
	return &Limiter{counter: counter, now: time.Now}
}

// Check applies the sliding-window policy. The daily window is checked before
// the hourly one so a user who burned the daily budget across many short
// bursts sees the daily-exhaustion message rather than a confusing hourly one.
func (l *Limiter) Check(ctx context.Context, userID string, p tier.Profile) (Decision, error) {
	if p.UnlimitedQuota() {
		return Decision{Allowed: true, Remaining: tier.Unlimited}, nil
	}

	now := l.now()
	dayCutoff := now.Add(-dayWindow)
	hourCutoff := now.Add(-hourWindow)

	daily, err := l.counter.CountSince(ctx, userID, dayCutoff)
	if err != nil {
		return Decision{}, fmt.Errorf("count daily window: %w", err)
	}
	if daily >= p.PerDay {
		resetAt, err := l.resetAt(ctx, userID, dayCutoff, dayWindow)
		if err != nil {
			return Decision{}, err
		}
		return Decision{
			Remaining: 0,
			ResetAt:   resetAt,
			Reason:    fmt.Sprintf("Daily limit of %d executions reached", p.PerDay),
		}, nil
	}

	hourly, err := l.counter.CountSince(ctx, userID, hourCutoff)
	if err != nil {
		return Decision{}, fmt.Errorf("count hourly window: %w", err)
	}
	if p.PerHour != tier.Unlimited && hourly >= p.PerHour {
		resetAt, err := l.resetAt(ctx, userID, hourCutoff, hourWindow)
		if err != nil {
			return Decision{}, err
		}
		return Decision{
			Remaining: 0,
			ResetAt:   resetAt,
			Reason:    fmt.Sprintf("Hourly limit of %d executions reached", p.PerHour),
		}, nil
	}

	remaining := p.PerDay - daily
	if p.PerHour != tier.Unlimited && p.PerHour-hourly < remaining {
		remaining = p.PerHour - hourly
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

// Track records one usage event "now". Callers invoke it only for attempts
// that reached a terminal grading outcome, so infrastructure failures never
// consume quota.
func (l *Limiter) Track(ctx context.Context, userID string) error {
	return l.counter.Record(ctx, userID, l.now())
}

func (l *Limiter) resetAt(ctx context.Context, userID string, cutoff time.Time, window time.Duration) (time.Time, error) {
	oldest, ok, err := l.counter.OldestSince(ctx, userID, cutoff)
	if err != nil {
		return time.Time{}, fmt.Errorf("find window reset: %w", err)
	}
	if !ok {
		return l.now().Add(window), nil
	}
	return oldest.Add(window), nil
}
