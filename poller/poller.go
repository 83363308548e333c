// Package poller keeps a long-running process's catalog view fresh by
// reloading it on a fixed period.
package poller

import (
	"context"
	"log/slog"
	"time"
)

// Refresher reloads the catalog.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Poller runs an infinite loop, refreshing the catalog every period.  Errors
// are logged and the previous view is kept; the next tick tries again.
type Poller struct {
	refresher     Refresher
	recheckPeriod time.Duration
	passes        chan<- error
}

type PollerOpt func(*Poller)

// WithPassResults reports the result of every pass on ch.  Sends block, so ch
// must be drained.
func WithPassResults(ch chan<- error) PollerOpt {
	return func(p *Poller) {
		p.passes = ch
	}
}

func New(refresher Refresher, recheckPeriod time.Duration, opts ...PollerOpt) *Poller {
	p := &Poller{
		refresher:     refresher,
		recheckPeriod: recheckPeriod,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.recheckPeriod)
	defer ticker.Stop()

	// Poll once right away --- ticker doesn't fire until the tick period has
	// elapsed.
	p.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		p.pass(ctx)
	}
}

func (p *Poller) pass(ctx context.Context) {
	start := time.Now()
	err := p.refresher.Refresh(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Error during catalog refresh", slog.Any("err", err))
	} else {
		slog.InfoContext(ctx, "Refreshed catalog", slog.Duration("took", time.Since(start)))
	}

	if p.passes != nil {
		select {
		case p.passes <- err:
		case <-ctx.Done():
		}
	}
}
