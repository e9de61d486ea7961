package conversation

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"iptv-bot/internal/apperrors"
	"iptv-bot/internal/stories/settings"
)

const (
	minConnections = 1
	maxConnections = 10
	minMonths      = 1
	maxMonths      = 12
	minNameLength  = 2
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9]{4,12}$`)

// ValidateUsername strips whitespace, lowercases and checks the allowed shape.
func ValidateUsername(raw string) (string, error) {
	username := strings.ToLower(strings.Join(strings.Fields(raw), ""))
	if !usernamePattern.MatchString(username) {
		return "", &apperrors.ValidationError{Field: "username", Reason: "must be 4 to 12 letters or digits"}
	}
	return username, nil
}

func ParseConnections(raw string) (int, error) {
	return parseBounded(raw, "connections", minConnections, maxConnections)
}

func ParseMonths(raw string) (int, error) {
	return parseBounded(raw, "months", minMonths, maxMonths)
}

func parseBounded(raw, field string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &apperrors.ValidationError{Field: field, Reason: "not a number"}
	}
	if n < lo || n > hi {
		return 0, &apperrors.ValidationError{Field: field, Reason: "out of range " + strconv.Itoa(lo) + "-" + strconv.Itoa(hi)}
	}
	return n, nil
}

// ValidateName collapses whitespace and title-cases the customer name.
func ValidateName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if len([]rune(name)) < minNameLength {
		return "", &apperrors.ValidationError{Field: "name", Reason: "too short"}
	}
	return cases.Title(language.BrazilianPortuguese).String(name), nil
}

// Price is perMonth*m + perExtra*max(0, c-1)*m, rounded to cents.
func Price(p settings.Pricing, connections, months int) float64 {
	extra := max(0, connections-1)
	total := p.PerMonth*float64(months) + p.PerExtraConnection*float64(extra)*float64(months)
	return math.Round(total*100) / 100
}

// FormatMoney renders an amount the Brazilian way, 1234.5 -> "1234,50".
func FormatMoney(amount float64) string {
	return strings.Replace(strconv.FormatFloat(amount, 'f', 2, 64), ".", ",", 1)
}
