package conversation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"iptv-bot/internal/apperrors"
	"iptv-bot/internal/stories/settings"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{input: "joao123", want: "joao123", ok: true},
		{input: "  Joao 123 ", want: "joao123", ok: true},
		{input: "abcd", want: "abcd", ok: true},
		{input: "abcdefghijkl", want: "abcdefghijkl", ok: true},
		{input: "abc", ok: false},
		{input: "abcdefghijklm", ok: false},
		{input: "joão123", ok: false},
		{input: "joao_123", ok: false},
		{input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ValidateUsername(tt.input)
			if !tt.ok {
				var verr *apperrors.ValidationError
				assert.True(t, errors.As(err, &verr))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBounds(t *testing.T) {
	for _, in := range []string{"0", "11", "-1", "x", "2.5"} {
		_, err := ParseConnections(in)
		assert.Error(t, err, in)
	}
	for _, in := range []string{"1", "10", " 5 "} {
		_, err := ParseConnections(in)
		assert.NoError(t, err, in)
	}
	for _, in := range []string{"0", "13"} {
		_, err := ParseMonths(in)
		assert.Error(t, err, in)
	}
	n, err := ParseMonths("12")
	assert.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestPrice(t *testing.T) {
	p := settings.Pricing{PerMonth: 30, PerExtraConnection: 12.5}

	assert.Equal(t, p.PerMonth, Price(p, 1, 1))
	assert.Equal(t, 180.0, Price(settings.Pricing{PerMonth: 30, PerExtraConnection: 30}, 2, 3))
	assert.Equal(t, 0.3, Price(settings.Pricing{PerMonth: 0.1, PerExtraConnection: 0.1}, 1, 3))

	for c := minConnections; c <= maxConnections; c++ {
		for m := minMonths; m <= maxMonths; m++ {
			if c < maxConnections {
				assert.Greater(t, Price(p, c+1, m), Price(p, c, m))
			}
			if m < maxMonths {
				assert.Greater(t, Price(p, c, m+1), Price(p, c, m))
			}
		}
	}
}

func TestValidateName(t *testing.T) {
	name, err := ValidateName("  joão   da silva ")
	assert.NoError(t, err)
	assert.Equal(t, "João Da Silva", name)

	_, err = ValidateName(" x ")
	assert.Error(t, err)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "30,00", FormatMoney(30))
	assert.Equal(t, "1234,50", FormatMoney(1234.5))
}
