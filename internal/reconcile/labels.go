package reconcile

import (
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/samber/lo"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"iptv-bot/internal/provisioning"
)

// Canonical field names.
const (
	FieldUsername       = "username"
	FieldPassword       = "password"
	FieldConnections    = "connections"
	FieldCreatedAt      = "createdAt"
	FieldExpiresAt      = "expiresAt"
	FieldPlan           = "plan"
	FieldProviderStatus = "providerStatus"
	FieldStatus         = "status"
)

// labelTable is keyed by the folded label (lowercase, no accents, single spaces).
var labelTable = map[string]string{
	"usuario":         FieldUsername,
	"usuario iptv":    FieldUsername,
	"nome do usuario": FieldUsername,
	"username":        FieldUsername,
	"user":            FieldUsername,

	"senha":    FieldPassword,
	"password": FieldPassword,
	"pass":     FieldPassword,

	"conexoes":           FieldConnections,
	"connections":        FieldConnections,
	"max connections":    FieldConnections,
	"numero de conexoes": FieldConnections,

	"criado em":       FieldCreatedAt,
	"criado":          FieldCreatedAt,
	"data de criacao": FieldCreatedAt,
	"data criacao":    FieldCreatedAt,
	"created at":      FieldCreatedAt,
	"created":         FieldCreatedAt,
	"creation date":   FieldCreatedAt,

	"expira em":         FieldExpiresAt,
	"expira":            FieldExpiresAt,
	"data de expiracao": FieldExpiresAt,
	"data expiracao":    FieldExpiresAt,
	"validade":          FieldExpiresAt,
	"data de validade":  FieldExpiresAt,
	"vencimento":        FieldExpiresAt,
	"expires at":        FieldExpiresAt,
	"expires":           FieldExpiresAt,
	"expiration date":   FieldExpiresAt,
	"valid until":       FieldExpiresAt,

	"plano":       FieldPlan,
	"plan":        FieldPlan,
	"pacote":      FieldPlan,
	"package":     FieldPlan,
	"plano de tv": FieldPlan,
	"tv plan":     FieldPlan,

	"status": FieldProviderStatus,
	"estado": FieldProviderStatus,
	"ativo":  FieldProviderStatus,
	"active": FieldProviderStatus,
	"state":  FieldProviderStatus,
}

func foldLabel(label string) string {
	label = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), ":"))
	label = strings.ToLower(stripAccents(label))
	return strings.Join(strings.Fields(label), " ")
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CanonicalKey maps a provider label to its canonical field, or to a generic key for
// labels outside the table.
func CanonicalKey(label string) string {
	folded := foldLabel(label)
	if key, ok := labelTable[folded]; ok {
		return key
	}
	return strings.ReplaceAll(folded, " ", "_")
}

// Fields is a snapshot translated to canonical keys. Nil pointers are absent fields;
// fields present with a value that could not be parsed are listed in Unparsable.
type Fields struct {
	Username       *string
	Password       *string
	Connections    *int
	CreatedAt      *time.Time
	ExpiresAt      *time.Time
	Plan           *string
	ProviderStatus *string
	Extra          map[string]string
	Unparsable     []string
}

// Normalize translates snapshot labels and parses typed values. Labels are visited in
// sorted order and, when several fold to the same key, the first non-empty one wins.
func Normalize(snapshot provisioning.Snapshot) Fields {
	f := Fields{Extra: make(map[string]string)}

	labels := lo.Keys(snapshot)
	slices.Sort(labels)

	seen := make(map[string]bool, len(labels))
	for _, label := range labels {
		value := strings.TrimSpace(snapshot[label])
		if value == "" {
			continue
		}

		key := CanonicalKey(label)
		if seen[key] {
			continue
		}
		seen[key] = true

		switch key {
		case FieldUsername:
			f.Username = &value
		case FieldPassword:
			f.Password = &value
		case FieldPlan:
			f.Plan = &value
		case FieldProviderStatus:
			f.ProviderStatus = &value
		case FieldConnections:
			n, ok := ParseConnections(value)
			if !ok {
				f.Unparsable = append(f.Unparsable, key)
				continue
			}
			f.Connections = &n
		case FieldCreatedAt, FieldExpiresAt:
			t, ok := ParseDate(value)
			if !ok {
				f.Unparsable = append(f.Unparsable, key)
				continue
			}
			if key == FieldCreatedAt {
				f.CreatedAt = &t
			} else {
				f.ExpiresAt = &t
			}
		default:
			f.Extra[key] = value
		}
	}

	return f
}

// ParseConnections reads the leading numeric token, so "2 conexões" gives 2.
func ParseConnections(value string) (int, bool) {
	end := strings.IndexFunc(value, func(r rune) bool { return r < '0' || r > '9' })
	if end == -1 {
		end = len(value)
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(value[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
