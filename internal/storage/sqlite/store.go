// Package sqlite persists enrichment records, asset reference counts and
// uploaded media in a single SQLite database.
//
// It uses modernc.org/sqlite, a pure Go driver, in WAL mode. The schema is
// managed through the numbered migrations in migrations/.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/palantir/contact-enrichment/internal/enrich"
	"github.com/palantir/contact-enrichment/internal/storage/sqlite/migrations"
	"github.com/palantir/contact-enrichment/pkg/pipeline/core"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Store implements enrich.Store and the media blob store.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ enrich.Store = (*Store)(nil)

// Open opens (and migrates) the database file at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// InTx runs fn in a database transaction, committing only when fn succeeds.
// A locked database surfaces as a retryable error.
func (s *Store) InTx(ctx context.Context, fn func(tx enrich.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	if err := fn(&tx{tx: sqlTx, now: s.now}); err != nil {
		_ = sqlTx.Rollback()
		return classify(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// classify marks lock contention as retryable. Contention outlasting the
// busy timeout rarely clears quickly, hence the small retry budget.
func classify(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return &core.LimitedTransientError{Err: err, ExtraRetries: 1}
	}
	return err
}

type tx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *tx) CreateEnrichment(ctx context.Context, rec enrich.EnrichmentRecord) (string, error) {
	fields, profile, trace, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}
	if trace == nil {
		trace = []byte("{}")
	}
	id := uuid.NewString()
	now := t.now()
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO enrichments (id, user_id, contact_id, fields, profile, trace, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, id, rec.UserID, rec.ContactID, string(fields), string(profile), string(trace), now, now)
	if err != nil {
		return "", fmt.Errorf("inserting enrichment: %w", err)
	}
	return id, nil
}

func (t *tx) UpdateEnrichment(ctx context.Context, id string, rec enrich.EnrichmentRecord) error {
	fields, profile, trace, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	var traceArg any
	if trace != nil {
		traceArg = string(trace)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE enrichments
		SET fields = ?, profile = ?, trace = COALESCE(?, trace), updated_at = ?
		WHERE id = ?
	`, string(fields), string(profile), traceArg, t.now(), id)
	if err != nil {
		return fmt.Errorf("updating enrichment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating enrichment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("enrichment %s: %w", id, ErrNotFound)
	}
	return nil
}

func (t *tx) ReferenceAssets(ctx context.Context, newIDs, previousIDs []string) error {
	for _, id := range newIDs {
		if id == "" {
			continue
		}
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO asset_refs (asset_id, refs) VALUES (?, 1)
			ON CONFLICT(asset_id) DO UPDATE SET refs = refs + 1
		`, id)
		if err != nil {
			return fmt.Errorf("referencing asset %s: %w", id, err)
		}
	}
	for _, id := range previousIDs {
		if id == "" {
			continue
		}
		if _, err := t.tx.ExecContext(ctx, "UPDATE asset_refs SET refs = refs - 1 WHERE asset_id = ?", id); err != nil {
			return fmt.Errorf("releasing asset %s: %w", id, err)
		}
	}
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM asset_refs WHERE refs <= 0"); err != nil {
		return fmt.Errorf("pruning asset refs: %w", err)
	}
	return nil
}

func (t *tx) IncrementEnrichmentCount(ctx context.Context, userID string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO user_enrichment_counts (user_id, count) VALUES (?, 1)
		ON CONFLICT(user_id) DO UPDATE SET count = count + 1
	`, userID)
	if err != nil {
		return fmt.Errorf("incrementing enrichment count: %w", err)
	}
	return nil
}

func encodeRecord(rec enrich.EnrichmentRecord) (fields, profile, trace []byte, err error) {
	if fields, err = json.Marshal(rec.Fields); err != nil {
		return nil, nil, nil, fmt.Errorf("marshalling fields: %w", err)
	}
	if profile, err = json.Marshal(rec.Profile); err != nil {
		return nil, nil, nil, fmt.Errorf("marshalling profile: %w", err)
	}
	if rec.Trace != nil {
		if trace, err = json.Marshal(rec.Trace); err != nil {
			return nil, nil, nil, fmt.Errorf("marshalling trace: %w", err)
		}
	}
	return fields, profile, trace, nil
}

// Enrichment loads a stored record.
func (s *Store) Enrichment(ctx context.Context, id string) (enrich.EnrichmentRecord, error) {
	var rec enrich.EnrichmentRecord
	var fields, profile, trace string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, contact_id, fields, profile, trace FROM enrichments WHERE id = ?
	`, id).Scan(&rec.UserID, &rec.ContactID, &fields, &profile, &trace)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("enrichment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("loading enrichment: %w", err)
	}
	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return rec, fmt.Errorf("decoding fields: %w", err)
	}
	if err := json.Unmarshal([]byte(profile), &rec.Profile); err != nil {
		return rec, fmt.Errorf("decoding profile: %w", err)
	}
	if err := json.Unmarshal([]byte(trace), &rec.Trace); err != nil {
		return rec, fmt.Errorf("decoding trace: %w", err)
	}
	return rec, nil
}

// AssetRefs returns the reference count of an asset, zero when unreferenced.
func (s *Store) AssetRefs(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT refs FROM asset_refs WHERE asset_id = ?", id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading asset refs: %w", err)
	}
	return n, nil
}

// EnrichmentCount returns how many records were created for userID.
func (s *Store) EnrichmentCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT count FROM user_enrichment_counts WHERE user_id = ?", userID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading enrichment count: %w", err)
	}
	return n, nil
}
