package bitpanel

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"

	"iptv-bot/internal/provisioning"
)

func TestParseInfoLines(t *testing.T) {
	lines := []string{
		"Usuário: joao123",
		"Senha: abc:123",
		"Conexões: 2 conexões",
		"Expira em: 10/02/2026 23:59",
		"Clique aqui para ver o link da lista",
		"sem separador",
		"  ",
	}

	got := parseInfoLines(lines)
	assert.Equal(t, provisioning.Snapshot{
		"Usuário":   "joao123",
		"Senha":     "abc:123",
		"Conexões":  "2 conexões",
		"Expira em": "10/02/2026 23:59",
	}, got)
}

func TestMonthsOption(t *testing.T) {
	assert.Equal(t, "1 Mês", monthsOption(1))
	assert.Equal(t, "3 Meses", monthsOption(3))
	assert.Equal(t, "12 Meses", monthsOption(12))
}

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "joao", want: "'joao'"},
		{in: "d'avila", want: `"d'avila"`},
		{in: `a'b"c`, want: `concat('a', "'", 'b"c')`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, xpathLiteral(tt.in))
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want provisioning.Kind
	}{
		{name: "login rejected", err: errors.Wrap(errLoginRejected, "x"), want: provisioning.KindAuthFailure},
		{name: "session", err: errSessionExpired, want: provisioning.KindAuthFailure},
		{name: "layout", err: errors.Wrap(errLayout, "slider"), want: provisioning.KindUnexpectedLayout},
		{name: "playwright timeout", err: fmt.Errorf("click: %w", playwright.ErrTimeout), want: provisioning.KindTimeout},
		{name: "deadline", err: context.DeadlineExceeded, want: provisioning.KindTimeout},
		{name: "other", err: errors.New("boom"), want: provisioning.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestArtifactName(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	name := artifactName("renew", "joao123", at)
	assert.True(t, strings.HasPrefix(name, "renew_joao123_20250304T050607_"))
	assert.NotEqual(t, name, artifactName("renew", "joao123", at))
}

func TestRunWithoutBrowser(t *testing.T) {
	a := New(Config{PanelURL: "https://panel/"}, discardLogger())
	assert.Equal(t, "https://panel", a.cfg.PanelURL)

	_, err := a.FetchSnapshot(context.Background(), "joao123")
	assert.Equal(t, provisioning.KindUnknown, provisioning.KindOf(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.RenewAccount(ctx, "joao123", 1)
	assert.Equal(t, provisioning.KindTimeout, provisioning.KindOf(err))
}
