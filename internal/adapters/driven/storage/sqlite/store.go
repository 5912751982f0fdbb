package sqlite

import (
	"bytes"
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
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/custodia-labs/crashstore/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driven"
)

// Ensure Store implements the interfaces.
var (
	_ driven.ConnectionProvider = (*Store)(nil)
	_ driven.IndexCreator       = (*Store)(nil)
)

// Store is a SQLite-backed document store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.crashstore/data/crashstore.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".crashstore", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "crashstore.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
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

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

// Connect checks the database is reachable and returns a session on it.
func (s *Store) Connect(ctx context.Context) (driven.Connection, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return nil, classify("connecting", err)
	}
	return &connection{store: s}, nil
}

// CreateIndex records the index. Creating an existing index is a no-op and
// keeps its original settings.
func (s *Store) CreateIndex(ctx context.Context, name string, settings domain.IndexSettings) error {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshalling settings: %w", err)
	}
	if settings == nil {
		settingsJSON = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO indices (name, settings, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, string(settingsJSON), time.Now().UTC())
	if err != nil {
		return classify("creating index "+name, err)
	}
	return nil
}

// Indices returns the names of all created indices, sorted.
func (s *Store) Indices(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM indices ORDER BY name")
	if err != nil {
		return nil, classify("querying indices", err)
	}
	defer rows.Close()

	var names []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning index: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating indices: %w", err)
	}
	return names, nil
}

// Get returns the source of one document.
func (s *Store) Get(ctx context.Context, index, id string) (map[string]any, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM documents WHERE index_name = ? AND id = ?
	`, index, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classify("getting document", err)
	}

	var source map[string]any
	if err := json.Unmarshal([]byte(body), &source); err != nil {
		return nil, fmt.Errorf("unmarshalling document: %w", err)
	}
	return source, nil
}

// Count returns the number of documents in an index.
func (s *Store) Count(ctx context.Context, index string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE index_name = ?
	`, index).Scan(&count)
	if err != nil {
		return 0, classify("counting documents", err)
	}
	return count, nil
}

// ==================== Connection ====================

// connection implements driven.Connection. It shares the store's pool,
// so Close releases nothing.
type connection struct {
	store *Store
}

const upsertDocument = `
	INSERT INTO documents (index_name, doc_type, id, body, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(index_name, id) DO UPDATE SET
		doc_type = excluded.doc_type,
		body = excluded.body,
		updated_at = excluded.updated_at
`

// Index stores or replaces one document. An empty id gets a fresh uuid.
func (c *connection) Index(ctx context.Context, index, docType, id string, body any) (string, error) {
	data, err := marshalBody(body)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}

	_, err = c.store.db.ExecContext(ctx, upsertDocument, index, docType, id, string(data), time.Now().UTC())
	if err != nil {
		return "", classify("indexing document "+id, err)
	}
	return id, nil
}

// Bulk stores all actions in one transaction. Either every action is
// stored or none is.
func (c *connection) Bulk(ctx context.Context, actions []domain.BulkAction) error {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("beginning transaction", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, upsertDocument)
	if err != nil {
		return classify("preparing statement", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, action := range actions {
		data, err := marshalBody(action.Source)
		if err != nil {
			return err
		}
		id := action.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, action.Index, action.DocType, id, string(data), now); err != nil {
			return classify("bulk indexing "+id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("committing transaction", err)
	}
	return nil
}

// Scroll opens a keyset cursor over the matching documents.
func (c *connection) Scroll(_ context.Context, req domain.SearchRequest) (driven.Scroll, error) {
	where, args := buildFilter(req)

	columns := "body"
	var fieldArgs []any
	if len(req.Fields) > 0 {
		cols := make([]string, len(req.Fields))
		for i, field := range req.Fields {
			cols[i] = "body -> ?"
			fieldArgs = append(fieldArgs, jsonPath(field))
		}
		columns = strings.Join(cols, ", ")
	}

	size := req.PageSize
	if size <= 0 {
		size = 100
	}

	return &scroll{
		db:        c.store.db,
		index:     req.Index,
		query:     "SELECT seq, id, " + columns + " FROM documents WHERE " + where + " AND seq > ? ORDER BY seq LIMIT ?",
		args:      append(fieldArgs, args...),
		fields:    req.Fields,
		size:      size,
		keepAlive: req.KeepAlive,
		lastUsed:  time.Now(),
	}, nil
}

func (c *connection) Close() error {
	return nil
}

// buildFilter translates the query into a WHERE clause.
func buildFilter(req domain.SearchRequest) (string, []any) {
	clauses := []string{"index_name = ?"}
	args := []any{req.Index}

	if req.DocType != "" {
		clauses = append(clauses, "doc_type = ?")
		args = append(args, req.DocType)
	}

	for _, r := range req.Query.Ranges {
		clauses = append(clauses, "julianday(json_extract(body, ?)) BETWEEN julianday(?) AND julianday(?)")
		args = append(args, jsonPath(r.Field),
			r.GTE.UTC().Format(time.RFC3339Nano), r.LTE.UTC().Format(time.RFC3339Nano))
	}

	for _, term := range req.Query.Terms {
		if len(term.Values) == 0 {
			clauses = append(clauses, "0")
			continue
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(term.Values)), ", ")
		clauses = append(clauses, "lower(CAST(json_extract(body, ?) AS TEXT)) IN ("+placeholders+")")
		args = append(args, jsonPath(term.Field))
		for _, v := range term.Values {
			args = append(args, strings.ToLower(v))
		}
	}

	return strings.Join(clauses, " AND "), args
}

// jsonPath turns "processed_crash.product" into `$."processed_crash"."product"`.
func jsonPath(field string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, part := range strings.Split(field, ".") {
		b.WriteString(`."`)
		b.WriteString(strings.ReplaceAll(part, `"`, `\"`))
		b.WriteString(`"`)
	}
	return b.String()
}

// ==================== Scroll ====================

// scroll pages through the documents in insertion order, resuming after
// the last sequence number it returned.
type scroll struct {
	db        *sql.DB
	index     string
	query     string
	args      []any
	fields    []string
	size      int
	keepAlive time.Duration

	lastSeq  int64
	lastUsed time.Time
	done     bool
	closed   bool
}

func (s *scroll) Next(ctx context.Context) ([]domain.Hit, error) {
	if s.closed {
		return nil, fmt.Errorf("scroll on %s is closed", s.index)
	}
	if s.done {
		return nil, nil
	}
	if s.keepAlive > 0 && time.Since(s.lastUsed) > s.keepAlive {
		return nil, fmt.Errorf("%w: scroll on %s expired", domain.ErrNotFound, s.index)
	}

	args := append(append([]any(nil), s.args...), s.lastSeq, s.size)
	rows, err := s.db.QueryContext(ctx, s.query, args...)
	if err != nil {
		return nil, classify("scrolling "+s.index, err)
	}
	defer rows.Close()

	var hits []domain.Hit //nolint:prealloc // size unknown from query
	for rows.Next() {
		hit, seq, err := s.scanHit(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
		s.lastSeq = seq
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterating scroll", err)
	}

	s.lastUsed = time.Now()
	if len(hits) < s.size {
		s.done = true
	}
	return hits, nil
}

func (s *scroll) scanHit(rows *sql.Rows) (domain.Hit, int64, error) {
	var seq int64
	var id string
	values := make([]sql.NullString, max(len(s.fields), 1))
	dest := []any{&seq, &id}
	for i := range values {
		dest = append(dest, &values[i])
	}
	if err := rows.Scan(dest...); err != nil {
		return domain.Hit{}, 0, fmt.Errorf("scanning document: %w", err)
	}

	hit := domain.Hit{Index: s.index, ID: id}
	if len(s.fields) == 0 {
		if err := json.Unmarshal([]byte(values[0].String), &hit.Source); err != nil {
			return domain.Hit{}, 0, fmt.Errorf("unmarshalling document %s: %w", id, err)
		}
		return hit, seq, nil
	}

	hit.Source = make(map[string]any)
	for i, field := range s.fields {
		if !values[i].Valid {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(values[i].String), &v); err != nil {
			return domain.Hit{}, 0, fmt.Errorf("unmarshalling %s of %s: %w", field, id, err)
		}
		setPath(hit.Source, strings.Split(field, "."), v)
	}
	return hit, seq, nil
}

func (s *scroll) Close() error {
	s.closed = true
	return nil
}

// ==================== Helper Functions ====================

func marshalBody(body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshalling document: %w", err)
	}
	if !bytes.HasPrefix(data, []byte("{")) {
		return nil, fmt.Errorf("%w: document body must be an object", domain.ErrInvalidInput)
	}
	return data, nil
}

func setPath(m map[string]any, path []string, v any) {
	for _, part := range path[:len(path)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[part] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}

// classify wraps err, marking lock contention as a transient failure.
func classify(op string, err error) error {
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTransient(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return errors.Is(err, sql.ErrConnDone)
	}
	switch serr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR:
		return true
	default:
		return false
	}
}
