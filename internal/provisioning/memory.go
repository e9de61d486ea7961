package provisioning

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const memoryDateLayout = "02/01/2006 15:04"

type memoryAccount struct {
	password    string
	connections int
	createdAt   time.Time
	expiresAt   time.Time
}

// Memory is an in-process provider used for local runs and test mode. It labels its
// snapshots the way the panel does.
type Memory struct {
	mu        sync.Mutex
	accounts  map[string]*memoryAccount
	planLabel string
	now       func() time.Time
}

func NewMemory(planLabel string) *Memory {
	return &Memory{
		accounts:  make(map[string]*memoryAccount),
		planLabel: planLabel,
		now:       time.Now,
	}
}

func (m *Memory) CreateAccount(ctx context.Context, username string, connections, months int) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[username]; exists {
		return nil, &Error{Kind: KindUnknown, Op: OpCreate, Username: username, Err: errUsernameTaken}
	}

	now := m.now()
	acc := &memoryAccount{
		password:    strings.ReplaceAll(uuid.NewString(), "-", "")[:10],
		connections: connections,
		createdAt:   now,
		expiresAt:   now.AddDate(0, 0, 30*months),
	}
	m.accounts[username] = acc

	return m.snapshot(username, acc), nil
}

func (m *Memory) RenewAccount(ctx context.Context, username string, months int) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[username]
	if !ok {
		return nil, ErrNotFound
	}

	base := acc.expiresAt
	if now := m.now(); base.Before(now) {
		base = now
	}
	acc.expiresAt = base.AddDate(0, 0, 30*months)

	return m.snapshot(username, acc), nil
}

func (m *Memory) FetchSnapshot(ctx context.Context, username string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[username]
	if !ok {
		return nil, ErrNotFound
	}
	return m.snapshot(username, acc), nil
}

func (m *Memory) snapshot(username string, acc *memoryAccount) Snapshot {
	status := "Ativo"
	if !acc.expiresAt.After(m.now()) {
		status = "Expirado"
	}
	return Snapshot{
		"Usuário":   username,
		"Senha":     acc.password,
		"Conexões":  strconv.Itoa(acc.connections) + " conexões",
		"Criado em": acc.createdAt.In(PanelLocation).Format(memoryDateLayout),
		"Expira em": acc.expiresAt.In(PanelLocation).Format(memoryDateLayout),
		"Plano":     m.planLabel,
		"Status":    status,
	}
}
