package reconcile

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iptv-bot/internal/provisioning"
	"iptv-bot/internal/stories/accounts"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// memoryAccounts is an accounts.Storage that also records the last update params.
type memoryAccounts struct {
	mu         sync.Mutex
	nextID     int64
	rows       map[int64]*accounts.Account
	lastUpdate *accounts.UpdateParams
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{rows: make(map[int64]*accounts.Account)}
}

func (m *memoryAccounts) CreateAccount(_ context.Context, account accounts.Account) (*accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	account.ID = m.nextID
	m.rows[account.ID] = &account
	cp := account
	return &cp, nil
}

func (m *memoryAccounts) GetAccount(_ context.Context, criteria accounts.GetCriteria) (*accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if criteria.ID != nil && row.ID != *criteria.ID {
			continue
		}
		if criteria.SubscriberID != nil && row.Username() != *criteria.SubscriberID {
			continue
		}
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

func (m *memoryAccounts) ListAccounts(_ context.Context, criteria accounts.ListCriteria) ([]*accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*accounts.Account
	for _, row := range m.rows {
		if criteria.Provisioned && row.SubscriberID == nil {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if criteria.Offset >= len(out) {
		return nil, nil
	}
	out = out[criteria.Offset:]
	if criteria.Limit > 0 && len(out) > criteria.Limit {
		out = out[:criteria.Limit]
	}
	return out, nil
}

func (m *memoryAccounts) UpdateAccount(_ context.Context, criteria accounts.GetCriteria, p accounts.UpdateParams) (*accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUpdate = &p
	row, ok := m.rows[*criteria.ID]
	if !ok {
		return nil, nil
	}
	if p.CredentialSecret != nil {
		row.CredentialSecret = *p.CredentialSecret
	}
	if p.ConnectionCount != nil {
		row.ConnectionCount = *p.ConnectionCount
	}
	if p.PlanLabel != nil {
		row.PlanLabel = *p.PlanLabel
	}
	if p.CreatedAt != nil {
		row.CreatedAt = p.CreatedAt
	}
	if p.ExpiresAt != nil {
		row.ExpiresAt = p.ExpiresAt
	}
	if p.Status != nil {
		row.Status = *p.Status
	}
	if p.LastSyncAt != nil {
		row.LastSyncAt = p.LastSyncAt
	}
	if p.Extra != nil {
		row.Extra = p.Extra
	}
	cp := *row
	return &cp, nil
}

func newTestEngine(store accounts.Storage, now time.Time) *Engine {
	e := NewEngine(store, nil, discardLogger)
	e.now = func() time.Time { return now }
	return e
}

func seedAccount(t *testing.T, store *memoryAccounts, username string, expiresAt time.Time, status accounts.Status) *accounts.Account {
	t.Helper()
	created := expiresAt.AddDate(0, -1, 0)
	acc, err := store.CreateAccount(context.Background(), accounts.Account{
		Phone:            "5511999990000",
		SubscriberID:     &username,
		CredentialSecret: "secret1",
		ConnectionCount:  2,
		PlanLabel:        "Full HD",
		CreatedAt:        &created,
		ExpiresAt:        &expiresAt,
		Status:           status,
	})
	require.NoError(t, err)
	return acc
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
		ok    bool
	}{
		{name: "br with time", input: "15/03/2025 14:30", want: time.Date(2025, 3, 15, 14, 30, 0, 0, provisioning.PanelLocation), ok: true},
		{name: "br date", input: "15/03/2025", want: time.Date(2025, 3, 15, 0, 0, 0, 0, provisioning.PanelLocation), ok: true},
		{name: "iso with seconds", input: "2025-03-15 14:30:45", want: time.Date(2025, 3, 15, 14, 30, 45, 0, provisioning.PanelLocation), ok: true},
		{name: "iso date", input: "2025-03-15", want: time.Date(2025, 3, 15, 0, 0, 0, 0, provisioning.PanelLocation), ok: true},
		{name: "dashes with time", input: "15-03-2025 14:30", want: time.Date(2025, 3, 15, 14, 30, 0, 0, provisioning.PanelLocation), ok: true},
		{name: "dashes", input: "15-03-2025", want: time.Date(2025, 3, 15, 0, 0, 0, 0, provisioning.PanelLocation), ok: true},
		{name: "padded", input: "  15/03/2025  ", want: time.Date(2025, 3, 15, 0, 0, 0, 0, provisioning.PanelLocation), ok: true},
		{name: "words", input: "amanhã", ok: false},
		{name: "impossible day", input: "32/01/2025", ok: false},
		{name: "empty", input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
			}
		})
	}
}

func TestCanonicalKey(t *testing.T) {
	tests := map[string]string{
		"Usuário":            FieldUsername,
		"USUARIO:":           FieldUsername,
		"Senha":              FieldPassword,
		"Conexões":           FieldConnections,
		"Max  Connections":   FieldConnections,
		"Criado em":          FieldCreatedAt,
		"Vencimento":         FieldExpiresAt,
		"Expira em":          FieldExpiresAt,
		"Pacote":             FieldPlan,
		"Estado":             FieldProviderStatus,
		"Data de validade":   FieldExpiresAt,
		"Data de criação":    FieldCreatedAt,
		"Expira":             FieldExpiresAt,
		"Data de expiração":  FieldExpiresAt,
		"Data expiracao":     FieldExpiresAt,
		"Expiration date":    FieldExpiresAt,
		"Expires at":         FieldExpiresAt,
		"Valid until":        FieldExpiresAt,
		"Created at":         FieldCreatedAt,
		"Creation date":      FieldCreatedAt,
		"Número de conexões": FieldConnections,
		"Nome do usuário":    FieldUsername,
		"Usuário IPTV":       FieldUsername,
		"Pass":               FieldPassword,
		"Package":            FieldPlan,
		"Plano de TV":        FieldPlan,
		"TV plan":            FieldPlan,
		"State":              FieldProviderStatus,
		"Data de Ativação":   "data_de_ativacao",
		"Observações":        "observacoes",
	}

	for label, want := range tests {
		t.Run(label, func(t *testing.T) {
			assert.Equal(t, want, CanonicalKey(label))
		})
	}
}

func TestNormalizeIsDeterministicForSynonyms(t *testing.T) {
	snapshot := provisioning.Snapshot{
		"Validade":         "01/01/2026",
		"Expira em":        "10/02/2026 23:59",
		"Data de validade": "05/03/2026",
	}

	want := time.Date(2026, 3, 5, 3, 0, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		f := Normalize(snapshot)
		require.NotNil(t, f.ExpiresAt)
		assert.True(t, want.Equal(*f.ExpiresAt), "got %s", f.ExpiresAt)
	}
}

func TestNormalizeReadsPanelInfoLabels(t *testing.T) {
	f := Normalize(provisioning.Snapshot{
		"Usuário":            "joao123",
		"Data de validade":   "10/02/2026 23:59",
		"Data de criação":    "10/01/2026 12:00",
		"Número de conexões": "2",
	})

	require.NotNil(t, f.ExpiresAt)
	require.NotNil(t, f.CreatedAt)
	require.NotNil(t, f.Connections)
	assert.Equal(t, 2, *f.Connections)
	assert.Empty(t, f.Extra)
}

func TestParseConnections(t *testing.T) {
	n, ok := ParseConnections("2 conexões")
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	n, ok = ParseConnections("10")
	assert.True(t, ok)
	assert.Equal(t, 10, n)

	_, ok = ParseConnections("ilimitado")
	assert.False(t, ok)
}

func TestNormalizeSeparatesAbsentFromUnparsable(t *testing.T) {
	f := Normalize(provisioning.Snapshot{
		"Usuário":   "joao123",
		"Expira em": "em breve",
		"Senha":     "   ",
		"Servidor":  "br-1",
	})

	require.NotNil(t, f.Username)
	assert.Nil(t, f.ExpiresAt)
	assert.Nil(t, f.Password)
	assert.Equal(t, []string{FieldExpiresAt}, f.Unparsable)
	assert.Equal(t, "br-1", f.Extra["servidor"])
}

func TestReconcileCreatesAccountWithFallbackExpiry(t *testing.T) {
	store := newMemoryAccounts()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	engine := newTestEngine(store, now)

	result, err := engine.Reconcile(context.Background(), Request{
		Phone:    "5511999990000",
		Username: "joao123",
		Snapshot: provisioning.Snapshot{"Usuário": "joao123", "Senha": "pw"},
		Fallback: Fallback{Months: 3, Connections: 2, PlanLabel: "Full HD"},
	})
	require.NoError(t, err)

	assert.True(t, result.Created)
	acc := result.Account
	assert.Equal(t, "joao123", acc.Username())
	assert.Equal(t, "pw", acc.CredentialSecret)
	assert.Equal(t, 2, acc.ConnectionCount)
	assert.Equal(t, "Full HD", acc.PlanLabel)
	require.NotNil(t, acc.ExpiresAt)
	assert.True(t, now.AddDate(0, 0, 90).Equal(*acc.ExpiresAt))
	assert.Equal(t, accounts.StatusActive, acc.Status)
}

func TestReconcileProviderExpiryWins(t *testing.T) {
	store := newMemoryAccounts()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	engine := newTestEngine(store, now)

	result, err := engine.Reconcile(context.Background(), Request{
		Username: "joao123",
		Snapshot: provisioning.Snapshot{"Validade": "10/06/2025 23:59", "Conexões": "3 conexões"},
		Fallback: Fallback{Months: 3, Connections: 2},
	})
	require.NoError(t, err)

	want := time.Date(2025, 6, 10, 23, 59, 0, 0, provisioning.PanelLocation)
	assert.True(t, want.Equal(*result.Account.ExpiresAt))
	assert.Equal(t, 3, result.Account.ConnectionCount)
}

func TestReconcilePartialSnapshotTouchesOnlyExpiry(t *testing.T) {
	store := newMemoryAccounts()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	seeded := seedAccount(t, store, "joao123", now.AddDate(0, 0, -2), accounts.StatusExpired)
	engine := newTestEngine(store, now)

	result, err := engine.Reconcile(context.Background(), Request{
		Username: "joao123",
		Snapshot: provisioning.Snapshot{"Expira em": "01/07/2025 10:00"},
	})
	require.NoError(t, err)

	p := store.lastUpdate
	require.NotNil(t, p)
	assert.NotNil(t, p.ExpiresAt)
	assert.NotNil(t, p.Status)
	assert.NotNil(t, p.LastSyncAt)
	assert.Nil(t, p.CredentialSecret)
	assert.Nil(t, p.ConnectionCount)
	assert.Nil(t, p.PlanLabel)
	assert.Nil(t, p.CreatedAt)
	assert.Nil(t, p.SubscriberID)
	assert.Nil(t, p.ManualOverride)

	assert.Equal(t, []string{FieldExpiresAt, FieldStatus}, result.Changes.Fields())
	assert.Equal(t, accounts.StatusActive, result.Account.Status)
	assert.Equal(t, seeded.CredentialSecret, result.Account.CredentialSecret)
}

func TestReconcileUnparsableDateIsNotApplied(t *testing.T) {
	store := newMemoryAccounts()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	expires := now.AddDate(0, 1, 0)
	seedAccount(t, store, "joao123", expires, accounts.StatusActive)
	engine := newTestEngine(store, now)

	result, err := engine.Reconcile(context.Background(), Request{
		Username: "joao123",
		Snapshot: provisioning.Snapshot{"Expira em": "--"},
	})
	require.NoError(t, err)

	assert.Empty(t, result.Changes)
	assert.Equal(t, []string{FieldExpiresAt}, result.Unparsable)
	assert.True(t, expires.Equal(*result.Account.ExpiresAt))
	require.NotNil(t, result.Account.LastSyncAt)
	assert.True(t, now.Equal(*result.Account.LastSyncAt))
}

func TestReconcileKeepsManualOverrideStatus(t *testing.T) {
	store := newMemoryAccounts()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	acc := seedAccount(t, store, "joao123", now.AddDate(0, 0, -10), accounts.StatusActive)
	store.rows[acc.ID].ManualOverride = true
	engine := newTestEngine(store, now)

	result, err := engine.Reconcile(context.Background(), Request{
		Username: "joao123",
		Snapshot: provisioning.Snapshot{"Plano": "Basico"},
	})
	require.NoError(t, err)

	assert.Equal(t, accounts.StatusActive, result.Account.Status)
	assert.Equal(t, []string{FieldPlan}, result.Changes.Fields())
}

func TestReconcileRenewalFallbackExtendsFromExpiry(t *testing.T) {
	store := newMemoryAccounts()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	expires := now.AddDate(0, 0, 5)
	seedAccount(t, store, "joao123", expires, accounts.StatusActive)
	engine := newTestEngine(store, now)

	result, err := engine.Reconcile(context.Background(), Request{
		Username: "joao123",
		Snapshot: provisioning.Snapshot{"Usuário": "joao123"},
		Fallback: Fallback{Months: 1},
	})
	require.NoError(t, err)

	assert.True(t, expires.AddDate(0, 0, 30).Equal(*result.Account.ExpiresAt))
}

func TestReconcileRenewalKeepsExpiryWhenUnparsable(t *testing.T) {
	store := newMemoryAccounts()
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	expires := time.Date(2025, 10, 11, 12, 0, 0, 0, time.UTC)
	seedAccount(t, store, "joao123", expires, accounts.StatusActive)
	engine := newTestEngine(store, now)

	result, err := engine.Reconcile(context.Background(), Request{
		Username: "joao123",
		Snapshot: provisioning.Snapshot{"Expira em": "not-a-date"},
		Fallback: Fallback{Months: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{FieldExpiresAt}, result.Unparsable)
	assert.Empty(t, result.Changes)
	assert.True(t, expires.Equal(*result.Account.ExpiresAt), "got %s", result.Account.ExpiresAt)
	assert.Nil(t, store.lastUpdate.ExpiresAt)
}

func TestReconcileCreateWithUnparsableExpirySkipsFallback(t *testing.T) {
	store := newMemoryAccounts()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	engine := newTestEngine(store, now)

	result, err := engine.Reconcile(context.Background(), Request{
		Snapshot: provisioning.Snapshot{"Usuário": "joao123", "Data de validade": "ilimitado"},
		Fallback: Fallback{Months: 1, Connections: 1},
	})
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.Nil(t, result.Account.ExpiresAt)
	assert.Equal(t, []string{FieldExpiresAt}, result.Unparsable)
}

func TestReconcileKeepsExtraFields(t *testing.T) {
	store := newMemoryAccounts()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	engine := newTestEngine(store, now)

	created, err := engine.Reconcile(context.Background(), Request{
		Snapshot: provisioning.Snapshot{
			"Usuário":  "joao123",
			"Servidor": "br-1",
			"DNS":      "dns.example",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"servidor": "br-1", "dns": "dns.example"}, created.Account.Extra)
	assert.Equal(t, created.Account.Extra, created.Extra)

	updated, err := engine.Reconcile(context.Background(), Request{
		Username: "joao123",
		Snapshot: provisioning.Snapshot{"Servidor": "br-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"servidor": "br-2", "dns": "dns.example"}, updated.Account.Extra)
	assert.Equal(t, map[string]string{"servidor": "br-2"}, updated.Extra)

	_, err = engine.Reconcile(context.Background(), Request{
		Username: "joao123",
		Snapshot: provisioning.Snapshot{"Servidor": "br-2"},
	})
	require.NoError(t, err)
	assert.Nil(t, store.lastUpdate.Extra)
}

func TestResyncAll(t *testing.T) {
	store := newMemoryAccounts()
	now := time.Now().UTC()

	adapter := provisioning.NewMemory("Full HD")
	_, err := adapter.CreateAccount(context.Background(), "joao123", 3, 2)
	require.NoError(t, err)

	seedAccount(t, store, "joao123", now.AddDate(0, 0, -1), accounts.StatusExpired)
	seedAccount(t, store, "ghost1", now.AddDate(0, 0, 10), accounts.StatusActive)

	engine := newTestEngine(store, now)
	resyncer := NewResyncer(store, adapter, engine, time.Millisecond, discardLogger)

	report, err := resyncer.ResyncAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{Total: 2, Succeeded: 1, Failed: 1, Changed: 1, NotFound: 1}, report)

	acc, err := store.GetAccount(context.Background(), accounts.GetCriteria{SubscriberID: ptr("joao123")})
	require.NoError(t, err)
	assert.Equal(t, 3, acc.ConnectionCount)
	assert.Equal(t, accounts.StatusActive, acc.Status)
}

func TestResyncAllStopsOnCancel(t *testing.T) {
	store := newMemoryAccounts()
	now := time.Now().UTC()
	seedAccount(t, store, "ghost1", now, accounts.StatusActive)
	seedAccount(t, store, "ghost2", now, accounts.StatusActive)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resyncer := NewResyncer(store, provisioning.NewMemory(""), newTestEngine(store, now), time.Hour, discardLogger)
	report, err := resyncer.ResyncAll(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Total)
}

func ptr(s string) *string {
	return &s
}
