package reconcile

import (
	"strings"
	"time"

	"iptv-bot/internal/provisioning"
)

// dateLayouts are tried in order; the first match wins.
var dateLayouts = []string{
	"02/01/2006 15:04",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-01-2006 15:04",
	"02-01-2006",
}

// ParseDate parses a provider date. ok is false when no layout matches.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, provisioning.PanelLocation); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
