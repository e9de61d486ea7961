package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iptv-bot/internal/reconcile"
)

const export = `Telefone,Usuário,Senha,Conexões,Expira em
"+55 (11) 99999-0000",joao123,abc123,2 conexões,10/02/2026 23:59
,maria01,x,1,01/01/2026
5521988887777,,x,1,01/01/2026
5531977776666,pedro99,y,1,amanhã
`

func TestReadRows(t *testing.T) {
	rows, skipped, err := readRows(strings.NewReader(export))
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "+5511999990000", rows[0].phone)
	assert.Equal(t, 2, rows[0].line)
	assert.Equal(t, "joao123", rows[0].snapshot["Usuário"])
	assert.Equal(t, "2 conexões", rows[0].snapshot["Conexões"])
	assert.NotContains(t, rows[0].snapshot, "Telefone")

	fields := reconcile.Normalize(rows[1].snapshot)
	assert.Equal(t, []string{reconcile.FieldExpiresAt}, fields.Unparsable)

	assert.Equal(t, []string{"line 3: empty phone", "line 4: empty username"}, skipped)
}

func TestReadRowsRequiresPhoneColumn(t *testing.T) {
	_, _, err := readRows(strings.NewReader("Usuário,Senha\njoao,x\n"))
	assert.Error(t, err)
}

type scriptedReconciler struct {
	results map[string]*reconcile.Result
}

func (s scriptedReconciler) Reconcile(_ context.Context, req reconcile.Request) (*reconcile.Result, error) {
	result, ok := s.results[req.Phone]
	if !ok {
		return nil, errors.New("snapshot without username")
	}
	return result, nil
}

func TestImportRowsCounts(t *testing.T) {
	rows := []row{{line: 2, phone: "+1"}, {line: 3, phone: "+2"}, {line: 4, phone: "+3"}}
	engine := scriptedReconciler{results: map[string]*reconcile.Result{
		"+1": {Created: true},
		"+2": {Created: false},
	}}

	created, updated, failed := importRows(context.Background(), engine, rows)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 1, failed)
}

func TestCleanPhone(t *testing.T) {
	assert.Equal(t, "+5511999990000", cleanPhone("+55 (11) 99999-0000"))
	assert.Equal(t, "", cleanPhone("n/a"))
}
