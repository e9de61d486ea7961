package correlator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iptv-bot/internal/apperrors"
	"iptv-bot/internal/conversation"
	"iptv-bot/internal/infra/sqlite3"
	"iptv-bot/internal/provisioning"
	"iptv-bot/internal/reconcile"
	"iptv-bot/internal/storage"
	"iptv-bot/internal/stories/accounts"
	"iptv-bot/internal/stories/payment"
	"iptv-bot/internal/stories/syslogs"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type countingAdapter struct {
	provisioning.Adapter
	creates atomic.Int32
	renews  atomic.Int32
	failAll error
}

func (a *countingAdapter) CreateAccount(ctx context.Context, username string, connections, months int) (provisioning.Snapshot, error) {
	a.creates.Add(1)
	if a.failAll != nil {
		return nil, a.failAll
	}
	return a.Adapter.CreateAccount(ctx, username, connections, months)
}

func (a *countingAdapter) RenewAccount(ctx context.Context, username string, months int) (provisioning.Snapshot, error) {
	a.renews.Add(1)
	if a.failAll != nil {
		return nil, a.failAll
	}
	return a.Adapter.RenewAccount(ctx, username, months)
}

type staticVerifier struct {
	status payment.Status
}

func (v staticVerifier) VerifyStatus(context.Context, string) (payment.Status, error) {
	return v.status, nil
}

type recordingCompleter struct {
	mu        sync.Mutex
	succeeded []conversation.Completion
	failed    []conversation.Completion
}

func (c *recordingCompleter) Succeeded(_ context.Context, done conversation.Completion) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.succeeded = append(c.succeeded, done)
	return nil
}

func (c *recordingCompleter) Failed(_ context.Context, done conversation.Completion) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = append(c.failed, done)
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	return nil
}

type testStore interface {
	Storage
	accounts.Storage
	CreatePendingPayment(ctx context.Context, p payment.PendingPayment) (*payment.PendingPayment, error)
	ListSystemLogs(ctx context.Context, criteria syslogs.ListCriteria) ([]*syslogs.Entry, error)
}

type fixture struct {
	store     testStore
	adapter   *countingAdapter
	completer *recordingCompleter
	publisher *recordingPublisher
	pool      *provisioning.Pool
	verifier  *staticVerifier
	corr      *Correlator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	db, err := sqlite3.New(ctx, sqlite3.WithDSN(filepath.Join(t.TempDir(), "corr.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := storage.New(db.DB)
	require.NoError(t, store.Migrate(ctx))

	f := &fixture{
		store:     store,
		adapter:   &countingAdapter{Adapter: provisioning.NewMemory("Full HD")},
		completer: &recordingCompleter{},
		publisher: &recordingPublisher{},
		pool:      provisioning.NewPool(2, discardLogger),
		verifier:  &staticVerifier{status: payment.StatusApproved},
	}
	f.corr = New(Deps{
		Storage:     store,
		Guard:       NewLocalGuard(),
		Verifier:    f.verifier,
		Provisioner: f.adapter,
		Reconciler:  reconcile.NewEngine(store, nil, discardLogger),
		Completer:   f.completer,
		Scheduler:   f.pool,
		Publisher:   f.publisher,
		Logger:      discardLogger,
	})
	return f
}

func (f *fixture) pending(t *testing.T, id string, flow payment.Context, username string) {
	t.Helper()
	_, err := f.store.CreatePendingPayment(context.Background(), payment.PendingPayment{
		PaymentID: id,
		Phone:     "5511999990000",
		Context:   flow,
		Amount:    60,
		Snapshot:  payment.Snapshot{Username: username, Connections: 2, Months: 1, PlanLabel: "Full HD"},
	})
	require.NoError(t, err)
}

func (f *fixture) status(t *testing.T, id string) *payment.PendingPayment {
	t.Helper()
	p, err := f.store.GetPendingPayment(context.Background(), payment.GetCriteria{PaymentID: &id})
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func correlationReason(err error) apperrors.CorrelationReason {
	var cerr *apperrors.CorrelationError
	if errors.As(err, &cerr) {
		return cerr.Reason
	}
	return ""
}

func TestDuplicateApprovalsProvisionOnce(t *testing.T) {
	f := newFixture(t)
	f.pending(t, "pay-1", payment.ContextPurchase, "joao123")

	var wg sync.WaitGroup
	var approved atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, _ := f.corr.Handle(context.Background(), Notification{Type: TypeSucceeded, PaymentID: "pay-1"})
			if outcome == OutcomeApproved {
				approved.Add(1)
			}
		}()
	}
	wg.Wait()

	outcome, err := f.corr.Handle(context.Background(), Notification{Type: TypeSucceeded, PaymentID: "pay-1"})
	assert.Equal(t, OutcomeDropped, outcome)
	assert.Equal(t, apperrors.CorrelationDuplicate, correlationReason(err))

	f.pool.Wait()

	assert.Equal(t, int32(1), approved.Load())
	assert.Equal(t, int32(1), f.adapter.creates.Load())
	assert.Equal(t, payment.StatusApproved, f.status(t, "pay-1").Status)
	require.Len(t, f.completer.succeeded, 1)
	assert.Equal(t, "joao123", f.completer.succeeded[0].Account.Username())
	assert.Equal(t, []string{EventAccountProvisioned}, f.publisher.keys)

	acc, err := f.store.GetAccount(context.Background(), accounts.GetCriteria{SubscriberID: ptr("joao123")})
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, 2, acc.ConnectionCount)
	assert.Equal(t, accounts.StatusActive, acc.Status)
}

func TestUnsupportedAndUnknownNotifications(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.corr.Handle(context.Background(), Notification{Type: "refund.succeeded", PaymentID: "pay-1"})
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Equal(t, apperrors.CorrelationUnsupported, correlationReason(err))

	outcome, err = f.corr.Handle(context.Background(), Notification{Type: TypeSucceeded, PaymentID: "nope"})
	assert.Equal(t, OutcomeDropped, outcome)
	assert.Equal(t, apperrors.CorrelationUnknown, correlationReason(err))

	f.pool.Wait()
	assert.Equal(t, int32(0), f.adapter.creates.Load())
}

func TestPendingAndCanceledPayments(t *testing.T) {
	f := newFixture(t)
	f.pending(t, "pay-1", payment.ContextPurchase, "joao123")

	f.verifier.status = payment.StatusPending
	outcome, err := f.corr.Handle(context.Background(), Notification{Type: TypeCreated, PaymentID: "pay-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, outcome)
	assert.Equal(t, payment.StatusPending, f.status(t, "pay-1").Status)

	f.verifier.status = payment.StatusRejected
	outcome, err = f.corr.Handle(context.Background(), Notification{Type: TypeCanceled, PaymentID: "pay-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, outcome)

	f.verifier.status = payment.StatusApproved
	outcome, err = f.corr.Handle(context.Background(), Notification{Type: TypeSucceeded, PaymentID: "pay-1"})
	assert.Equal(t, OutcomeDropped, outcome)
	assert.Equal(t, apperrors.CorrelationDuplicate, correlationReason(err))

	f.pool.Wait()
	assert.Equal(t, int32(0), f.adapter.creates.Load())
	assert.Equal(t, payment.StatusRejected, f.status(t, "pay-1").Status)
}

func TestProvisioningFailureFlagsManualReview(t *testing.T) {
	f := newFixture(t)
	f.adapter.failAll = &provisioning.Error{Kind: provisioning.KindUnexpectedLayout, Op: provisioning.OpCreate, Username: "joao123", Artifact: "/tmp/a.png"}
	f.pending(t, "pay-1", payment.ContextPurchase, "joao123")

	outcome, err := f.corr.Handle(context.Background(), Notification{Type: TypeSucceeded, PaymentID: "pay-1"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, outcome)
	f.pool.Wait()

	p := f.status(t, "pay-1")
	assert.Equal(t, payment.StatusApproved, p.Status)
	assert.True(t, p.NeedsManualReview)
	require.NotNil(t, p.FailureReason)
	assert.Contains(t, *p.FailureReason, "unexpected_layout")

	require.Len(t, f.completer.failed, 1)
	assert.Empty(t, f.completer.succeeded)
	assert.Equal(t, []string{EventProvisioningFailed}, f.publisher.keys)

	logs, err := f.store.ListSystemLogs(context.Background(), syslogs.ListCriteria{Kinds: []syslogs.Kind{syslogs.KindError}})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0].Details, "pay-1")
}

func TestRenewalUsesFrozenSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.pending(t, "pay-1", payment.ContextPurchase, "joao123")
	_, err := f.corr.Handle(ctx, Notification{Type: TypeSucceeded, PaymentID: "pay-1"})
	require.NoError(t, err)
	f.pool.Wait()

	before, err := f.store.GetAccount(ctx, accounts.GetCriteria{SubscriberID: ptr("joao123")})
	require.NoError(t, err)

	f.pending(t, "pay-2", payment.ContextRenewal, "joao123")
	outcome, err := f.corr.Handle(ctx, Notification{Type: TypeUpdated, PaymentID: "pay-2"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApproved, outcome)
	f.pool.Wait()

	after, err := f.store.GetAccount(ctx, accounts.GetCriteria{SubscriberID: ptr("joao123")})
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.adapter.renews.Load())
	assert.True(t, after.ExpiresAt.After(*before.ExpiresAt))
	require.Len(t, f.completer.succeeded, 2)
	assert.Equal(t, payment.ContextRenewal, f.completer.succeeded[1].Context)
}

func TestLocalGuard(t *testing.T) {
	g := NewLocalGuard()

	release, ok, err := g.Acquire(context.Background(), "pay-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = g.Acquire(context.Background(), "pay-1")
	assert.False(t, ok)

	_, ok, _ = g.Acquire(context.Background(), "pay-2")
	assert.True(t, ok)

	release()
	_, ok, _ = g.Acquire(context.Background(), "pay-1")
	assert.True(t, ok)
}

func TestRedisGuardLogsFailedRelease(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	var buf bytes.Buffer
	g := NewRedisGuard(client, time.Minute, slog.New(slog.NewTextHandler(&buf, nil)))

	g.release("iptv:payment-lock:pay-1", "token")

	assert.Contains(t, buf.String(), "Failed to release payment lock")
	assert.Contains(t, buf.String(), "key=iptv:payment-lock:pay-1")
}

func ptr(s string) *string {
	return &s
}
