package provisioning

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// scriptedAdapter blocks or fails according to its fields and counts calls.
type scriptedAdapter struct {
	creates  atomic.Int32
	renews   atomic.Int32
	fetches  atomic.Int32
	hang     bool
	fetchErr error
	fetchHit Snapshot
	createFn func(ctx context.Context) (Snapshot, error)
}

func (a *scriptedAdapter) CreateAccount(ctx context.Context, username string, connections, months int) (Snapshot, error) {
	a.creates.Add(1)
	if a.createFn != nil {
		return a.createFn(ctx)
	}
	if a.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return Snapshot{"Usuário": username}, nil
}

func (a *scriptedAdapter) RenewAccount(ctx context.Context, username string, months int) (Snapshot, error) {
	a.renews.Add(1)
	if a.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return Snapshot{"Usuário": username}, nil
}

func (a *scriptedAdapter) FetchSnapshot(ctx context.Context, username string) (Snapshot, error) {
	a.fetches.Add(1)
	if a.hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if a.fetchHit != nil {
		return a.fetchHit, nil
	}
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return nil, ErrNotFound
}

type recordedMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (m *recordedMetrics) ObserveProvisioningCall(op, outcome string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, op+":"+outcome)
}

func TestGuardRetriesTimeoutOnce(t *testing.T) {
	adapter := &scriptedAdapter{hang: true}
	metrics := &recordedMetrics{}
	guard := NewGuard(adapter, 20*time.Millisecond, metrics, discardLogger)

	_, err := guard.FetchSnapshot(context.Background(), "joao123")
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, int32(2), adapter.fetches.Load())
	assert.Equal(t, []string{"fetch:timeout"}, metrics.outcomes)
}

func TestGuardNeverRetriesRenewTimeout(t *testing.T) {
	adapter := &scriptedAdapter{hang: true}
	metrics := &recordedMetrics{}
	guard := NewGuard(adapter, 20*time.Millisecond, metrics, discardLogger)

	_, err := guard.RenewAccount(context.Background(), "joao123", 1)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, int32(1), adapter.renews.Load())
	assert.Equal(t, []string{"renew:timeout"}, metrics.outcomes)
}

// lockedPanel serialises calls like a single browser page and ignores cancellation.
type lockedPanel struct {
	scriptedAdapter
	mu         sync.Mutex
	delay      time.Duration
	overlapped atomic.Bool
	busy       atomic.Bool
}

func (p *lockedPanel) hold() {
	if !p.busy.CompareAndSwap(false, true) {
		p.overlapped.Store(true)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	time.Sleep(p.delay)
	p.busy.Store(false)
}

func (p *lockedPanel) CreateAccount(ctx context.Context, username string, connections, months int) (Snapshot, error) {
	p.creates.Add(1)
	p.hold()
	return Snapshot{"Usuário": username}, nil
}

func (p *lockedPanel) RenewAccount(ctx context.Context, username string, months int) (Snapshot, error) {
	p.renews.Add(1)
	p.hold()
	return Snapshot{"Usuário": username}, nil
}

func TestGuardSlowPanelCalls(t *testing.T) {
	tests := []struct {
		name      string
		delay     time.Duration
		call      func(g *Guard) (Snapshot, error)
		wantKind  Kind
		wantCalls func(p *lockedPanel) int32
	}{
		{
			name:  "renew finishing after the deadline runs once",
			delay: 60 * time.Millisecond,
			call: func(g *Guard) (Snapshot, error) {
				return g.RenewAccount(context.Background(), "joao123", 1)
			},
			wantCalls: func(p *lockedPanel) int32 { return p.renews.Load() },
		},
		{
			name:  "renew still running is reported as timeout",
			delay: 250 * time.Millisecond,
			call: func(g *Guard) (Snapshot, error) {
				return g.RenewAccount(context.Background(), "joao123", 1)
			},
			wantKind:  KindTimeout,
			wantCalls: func(p *lockedPanel) int32 { return p.renews.Load() },
		},
		{
			name:  "create still running is not retried",
			delay: 250 * time.Millisecond,
			call: func(g *Guard) (Snapshot, error) {
				return g.CreateAccount(context.Background(), "joao123", 1, 1)
			},
			wantKind:  KindTimeout,
			wantCalls: func(p *lockedPanel) int32 { return p.creates.Load() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			panel := &lockedPanel{delay: tt.delay}
			guard := NewGuard(panel, 50*time.Millisecond, nil, discardLogger)

			snap, err := tt.call(guard)
			if tt.wantKind == "" {
				require.NoError(t, err)
				assert.Equal(t, "joao123", snap["Usuário"])
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, KindOf(err))
			}

			// Let a call still holding the panel finish before counting.
			panel.mu.Lock()
			defer panel.mu.Unlock()
			assert.Equal(t, int32(1), tt.wantCalls(panel))
			assert.Zero(t, panel.fetches.Load())
			assert.False(t, panel.overlapped.Load())
		})
	}
}

func TestGuardCreateRetryReusesExistingAccount(t *testing.T) {
	existing := Snapshot{"Usuário": "joao123", "Senha": "abc"}
	adapter := &scriptedAdapter{fetchHit: existing}
	adapter.createFn = func(ctx context.Context) (Snapshot, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	guard := NewGuard(adapter, 20*time.Millisecond, nil, discardLogger)

	snap, err := guard.CreateAccount(context.Background(), "joao123", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, existing, snap)
	assert.Equal(t, int32(1), adapter.creates.Load())
	assert.Equal(t, int32(1), adapter.fetches.Load())
}

func TestGuardDoesNotRetryOtherFailures(t *testing.T) {
	adapter := &scriptedAdapter{}
	adapter.createFn = func(context.Context) (Snapshot, error) {
		return nil, &Error{Kind: KindUnexpectedLayout, Op: OpCreate, Username: "joao123"}
	}
	guard := NewGuard(adapter, time.Second, nil, discardLogger)

	_, err := guard.CreateAccount(context.Background(), "joao123", 1, 1)
	require.Error(t, err)
	assert.Equal(t, KindUnexpectedLayout, KindOf(err))
	assert.Equal(t, int32(1), adapter.creates.Load())
}

func TestGuardPassesNotFoundThrough(t *testing.T) {
	guard := NewGuard(&scriptedAdapter{}, time.Second, nil, discardLogger)

	_, err := guard.FetchSnapshot(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "typed", err: &Error{Kind: KindAuthFailure}, want: KindAuthFailure},
		{name: "deadline", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "opaque", err: errors.New("boom"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2, discardLogger)

	var running, peak atomic.Int32
	for i := 0; i < 6; i++ {
		pool.Submit(context.Background(), "job", func(ctx context.Context) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
		})
	}
	pool.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPoolJobOutlivesRequestContext(t *testing.T) {
	pool := NewPool(1, discardLogger)
	ctx, cancel := context.WithCancel(context.Background())

	var jobErr error
	pool.Submit(ctx, "job", func(ctx context.Context) {
		time.Sleep(5 * time.Millisecond)
		jobErr = ctx.Err()
	})
	cancel()
	pool.Wait()

	assert.NoError(t, jobErr)
}

func TestMemoryRenewExtendsExpiry(t *testing.T) {
	m := NewMemory("Full")
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_, err := m.CreateAccount(context.Background(), "joao123", 2, 1)
	require.NoError(t, err)

	snap, err := m.RenewAccount(context.Background(), "joao123", 2)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, 90).In(PanelLocation).Format(memoryDateLayout), snap["Expira em"])
	assert.Equal(t, "2 conexões", snap["Conexões"])

	_, err = m.RenewAccount(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}
