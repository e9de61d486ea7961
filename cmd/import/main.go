// Command import loads existing panel accounts from a CSV export into the store.
//
// The first row names the columns. Column names use the panel labels (Usuário, Senha,
// Conexões, Plano, Criado em, Expira em) plus a phone column (telefone, phone or whatsapp).
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"iptv-bot/internal/infra/sqlite3"
	"iptv-bot/internal/provisioning"
	"iptv-bot/internal/reconcile"
	"iptv-bot/internal/storage"
)

var phoneColumns = map[string]bool{
	"telefone": true,
	"phone":    true,
	"whatsapp": true,
	"celular":  true,
}

type row struct {
	line     int
	phone    string
	snapshot provisioning.Snapshot
}

func main() {
	dbPath := flag.String("db", "./data/iptv.db", "path to SQLite database")
	csvPath := flag.String("csv", "./accounts.csv", "path to the CSV export")
	dryRun := flag.Bool("dry-run", false, "show what would be imported without writing to DB")
	flag.Parse()

	file, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("failed to open csv: %v", err)
	}
	defer file.Close()

	rows, skipped, err := readRows(file)
	if err != nil {
		log.Fatalf("failed to read csv: %v", err)
	}
	for _, s := range skipped {
		fmt.Printf("  SKIP %s\n", s)
	}

	if *dryRun {
		for _, r := range rows {
			fields := reconcile.Normalize(r.snapshot)
			fmt.Printf("  DRY: line %d phone=%s username=%s expires=%s unparsable=%v\n",
				r.line, r.phone, deref(fields.Username), formatExpiry(fields), fields.Unparsable)
		}
		fmt.Printf("\nRows: %d, Skipped: %d\n(DRY RUN - nothing was written to database)\n", len(rows), len(skipped))
		return
	}

	ctx := context.Background()
	db, err := sqlite3.New(ctx, sqlite3.WithDSN(*dbPath))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	store := storage.New(db.DB)
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	engine := reconcile.NewEngine(store, nil, logger)

	created, updated, failed := importRows(ctx, engine, rows)

	fmt.Printf("\n=== TOTAL ===\n")
	fmt.Printf("Created: %d\n", created)
	fmt.Printf("Updated: %d\n", updated)
	fmt.Printf("Skipped: %d\n", len(skipped))
	fmt.Printf("Errors: %d\n", failed)
}

type reconciler interface {
	Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
}

// importRows reconciles each row as if the panel had returned it, so re-running an
// import only updates what changed.
func importRows(ctx context.Context, engine reconciler, rows []row) (created, updated, failed int) {
	for _, r := range rows {
		result, err := engine.Reconcile(ctx, reconcile.Request{Phone: r.phone, Snapshot: r.snapshot})
		if err != nil {
			fmt.Printf("  ERROR line %d: %v\n", r.line, err)
			failed++
			continue
		}
		if result.Created {
			created++
		} else {
			updated++
		}
	}
	return created, updated, failed
}

// readRows parses the export. Rows without a phone or a username are reported as skipped.
func readRows(r io.Reader) ([]row, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	phoneIdx := -1
	for i, name := range header {
		if phoneColumns[reconcile.CanonicalKey(name)] {
			phoneIdx = i
			break
		}
	}
	if phoneIdx < 0 {
		return nil, nil, fmt.Errorf("no phone column in header %v", header)
	}

	var (
		rows    []row
		skipped []string
	)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}

		phone := ""
		if phoneIdx < len(record) {
			phone = cleanPhone(record[phoneIdx])
		}
		if phone == "" {
			skipped = append(skipped, fmt.Sprintf("line %d: empty phone", line))
			continue
		}

		snapshot := make(provisioning.Snapshot, len(header))
		for i, value := range record {
			if i == phoneIdx || i >= len(header) {
				continue
			}
			snapshot[strings.TrimSpace(header[i])] = strings.TrimSpace(value)
		}
		if reconcile.Normalize(snapshot).Username == nil {
			skipped = append(skipped, fmt.Sprintf("line %d: empty username", line))
			continue
		}

		rows = append(rows, row{line: line, phone: phone, snapshot: snapshot})
	}

	return rows, skipped, nil
}

// cleanPhone keeps the digits of a phone number and prefixes them with "+".
func cleanPhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+" + b.String()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func formatExpiry(f reconcile.Fields) string {
	if f.ExpiresAt == nil {
		return "-"
	}
	return f.ExpiresAt.In(provisioning.PanelLocation).Format("02/01/2006")
}
