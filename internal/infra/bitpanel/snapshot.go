package bitpanel

import (
	"strings"

	"iptv-bot/internal/provisioning"
)

// parseInfoLines turns "Label: value" lines from the info page into a snapshot.
// Lines without a colon and the list-link hint are skipped.
func parseInfoLines(lines []string) provisioning.Snapshot {
	snapshot := make(provisioning.Snapshot, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(strings.ToLower(line), "clique aqui") {
			continue
		}
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		snapshot[label] = strings.TrimSpace(value)
	}
	return snapshot
}
