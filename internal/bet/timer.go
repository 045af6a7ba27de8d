package bet

import (
	"context"
	"time"

	"github.com/koredeycode/moltbet/internal/logging"
)

// Timer runs the optional background sweeps. Both are off by default;
// operators opt in via config. Manual transitions stay authoritative:
// the sweeps only pick up bets the agents never acted on.
type Timer struct {
	svc           *Service
	interval      time.Duration
	expireOffers  bool
	resolveClaims bool

	cancel context.CancelFunc
	done   chan struct{}
}

const sweepBatchSize = 100

// NewTimer creates a sweep timer over the bet service.
func NewTimer(svc *Service, interval time.Duration, expireOffers, resolveClaims bool) *Timer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Timer{
		svc:           svc,
		interval:      interval,
		expireOffers:  expireOffers,
		resolveClaims: resolveClaims,
	}
}

// Start launches the sweep loop. No-op if both sweeps are disabled.
func (t *Timer) Start(ctx context.Context) {
	if !t.expireOffers && !t.resolveClaims {
		return
	}

	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.sweep(ctx)
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to finish.
func (t *Timer) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
}

func (t *Timer) sweep(ctx context.Context) {
	now := time.Now()

	if t.expireOffers {
		expired, err := t.svc.store.ListExpired(ctx, now, sweepBatchSize)
		if err != nil {
			logging.L(ctx).Error("expired offer sweep failed", "error", err)
		}
		for _, b := range expired {
			if err := t.svc.expireOffer(ctx, b.ID); err != nil && err != ErrInvalidState {
				logging.L(ctx).Error("failed to expire offer", "bet_id", b.ID, "error", err)
			}
		}
	}

	if t.resolveClaims {
		cutoff := now.Add(-t.svc.disputeWindow)
		stale, err := t.svc.store.ListClaimTimeouts(ctx, cutoff, sweepBatchSize)
		if err != nil {
			logging.L(ctx).Error("claim timeout sweep failed", "error", err)
		}
		for _, b := range stale {
			if err := t.svc.resolveClaimTimeout(ctx, b.ID); err != nil && err != ErrInvalidState {
				logging.L(ctx).Error("failed to resolve claim timeout", "bet_id", b.ID, "error", err)
			}
		}
	}
}
