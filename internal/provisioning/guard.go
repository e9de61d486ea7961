package provisioning

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	OpCreate = "create"
	OpRenew  = "renew"
	OpFetch  = "fetch"
)

// Guard wraps an Adapter with a per-call deadline. Create and fetch get one retry after a
// timeout, and only once the timed-out attempt has returned. Renew is never retried: a
// renewal that timed out may still have been applied by the panel.
type Guard struct {
	next    Adapter
	timeout time.Duration
	metrics Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

func NewGuard(next Adapter, timeout time.Duration, metrics Metrics, logger *slog.Logger) *Guard {
	return &Guard{
		next:    next,
		timeout: timeout,
		metrics: metrics,
		tracer:  otel.Tracer("iptv-bot/provisioning"),
		logger:  logger,
	}
}

func (g *Guard) CreateAccount(ctx context.Context, username string, connections, months int) (Snapshot, error) {
	var attempts atomic.Int32
	return g.call(ctx, OpCreate, username, true, func(ctx context.Context) (Snapshot, error) {
		if attempts.Add(1) > 1 {
			// The first attempt may have gone through before timing out.
			snap, err := g.next.FetchSnapshot(ctx, username)
			if err == nil {
				return snap, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}
		return g.next.CreateAccount(ctx, username, connections, months)
	})
}

func (g *Guard) RenewAccount(ctx context.Context, username string, months int) (Snapshot, error) {
	return g.call(ctx, OpRenew, username, false, func(ctx context.Context) (Snapshot, error) {
		return g.next.RenewAccount(ctx, username, months)
	})
}

func (g *Guard) FetchSnapshot(ctx context.Context, username string) (Snapshot, error) {
	return g.call(ctx, OpFetch, username, true, func(ctx context.Context) (Snapshot, error) {
		return g.next.FetchSnapshot(ctx, username)
	})
}

func (g *Guard) call(ctx context.Context, op, username string, retryable bool, fn func(ctx context.Context) (Snapshot, error)) (Snapshot, error) {
	ctx, span := g.tracer.Start(ctx, "provisioning."+op, trace.WithAttributes(attribute.String("username", username)))
	defer span.End()

	started := time.Now()
	snap, settled, err := g.attempt(ctx, op, username, fn)
	if KindOf(err) == KindTimeout && ctx.Err() == nil {
		switch {
		case !retryable:
			g.logger.Warn("Provisioning call timed out, not retrying", "op", op, "username", username)
		case !settled:
			g.logger.Warn("Provisioning call timed out and is still running, not retrying", "op", op, "username", username)
		default:
			g.logger.Warn("Provisioning call timed out, retrying once", "op", op, "username", username)
			snap, _, err = g.attempt(ctx, op, username, fn)
		}
	}

	outcome := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = string(KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if g.metrics != nil {
		g.metrics.ObserveProvisioningCall(op, outcome, time.Since(started).Seconds())
	}

	return snap, err
}

// attempt runs fn under the call deadline. On timeout it waits up to one more timeout for
// fn to return; settled reports whether it did, so a retry never overlaps a live call.
// A call that succeeds during that wait is reported as succeeded.
func (g *Guard) attempt(ctx context.Context, op, username string, fn func(ctx context.Context) (Snapshot, error)) (Snapshot, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		snap Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := fn(callCtx)
		done <- result{snap: snap, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && callCtx.Err() != nil && KindOf(r.err) != KindTimeout {
			return nil, true, &Error{Kind: KindTimeout, Op: op, Username: username, Err: r.err}
		}
		return r.snap, true, Wrap(op, username, r.err)
	case <-callCtx.Done():
	}

	timeoutErr := &Error{Kind: KindTimeout, Op: op, Username: username, Err: callCtx.Err()}
	drain := time.NewTimer(g.timeout)
	defer drain.Stop()
	select {
	case r := <-done:
		if r.err == nil {
			g.logger.Warn("Provisioning call finished after its deadline", "op", op, "username", username)
			return r.snap, true, nil
		}
		return nil, true, timeoutErr
	case <-drain.C:
		return nil, false, timeoutErr
	}
}
