package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name      string
	driver    string
	bigint    string
	setup     []string
	jsonField func(field string) string
	numbered  bool
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	bigint: "INTEGER",
	// WAL mode so `show` can read while a sync is writing.
	setup:     []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"},
	jsonField: func(f string) string { return fmt.Sprintf("json_extract(body, '$.%s')", f) },
}

var postgresDialect = dialect{
	name:      "postgres",
	driver:    "postgres",
	bigint:    "BIGINT",
	jsonField: func(f string) string { return fmt.Sprintf("(body::jsonb ->> '%s')", f) },
	numbered:  true,
}

// rebind rewrites '?' placeholders into $n for numbered dialects.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore keeps collections and documents in two SQL tables, with each document body
// stored as JSON text.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	mu      sync.Mutex
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLStore, error) {
	return openSQL(sqliteDialect, path)
}

// NewPostgresStore connects to Postgres and runs migrations.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	return openSQL(postgresDialect, dsn)
}

func openSQL(d dialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	for _, s := range d.setup {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", s, err)
		}
	}
	s := &SQLStore{db: db, dialect: d}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS collections (
			name       TEXT PRIMARY KEY,
			created_at %s NOT NULL
		)`, s.dialect.bigint),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			body       TEXT NOT NULL,
			updated_at %s NOT NULL,
			PRIMARY KEY (collection, id)
		)`, s.dialect.bigint),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLStore) Name() string { return s.dialect.name }

func (s *SQLStore) q(query string) string { return s.dialect.rebind(query) }

func (s *SQLStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM collections WHERE name = ?`), name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, opErr("collection exists", name, "", err)
	}
	return true, nil
}

func (s *SQLStore) CreateCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO collections (name, created_at) VALUES (?, ?)
		ON CONFLICT (name) DO NOTHING`), name, time.Now().Unix())
	return opErr("create collection", name, "", err)
}

func (s *SQLStore) QueryLatest(ctx context.Context, name, orderField string) (*Document, error) {
	if !fieldName.MatchString(orderField) {
		return nil, opErr("query latest", name, "", fmt.Errorf("invalid order field %q", orderField))
	}
	query := fmt.Sprintf(`SELECT id, body FROM documents WHERE collection = ? ORDER BY %s DESC LIMIT 1`,
		s.dialect.jsonField(orderField))
	var id, body string
	err := s.db.QueryRowContext(ctx, s.q(query), name).Scan(&id, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, opErr("query latest", name, "", err)
	}
	return decodeDocument(name, id, body)
}

func (s *SQLStore) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT body FROM documents WHERE collection = ? AND id = ?`),
		collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, opErr("get", collection, id, err)
	}
	return decodeDocument(collection, id, body)
}

func (s *SQLStore) CreateDocument(ctx context.Context, collection, id string, fields map[string]any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return opErr("create", collection, id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opErr("create", collection, id, err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO collections (name, created_at) VALUES (?, ?)
		ON CONFLICT (name) DO NOTHING`), collection, now); err != nil {
		return opErr("create", collection, id, err)
	}
	res, err := tx.ExecContext(ctx, s.q(`INSERT INTO documents (collection, id, body, updated_at)
		VALUES (?, ?, ?, ?) ON CONFLICT (collection, id) DO NOTHING`), collection, id, string(body), now)
	if err != nil {
		return opErr("create", collection, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return opErr("create", collection, id, ErrExists)
	}
	return opErr("create", collection, id, tx.Commit())
}

func (s *SQLStore) UpdateDocument(ctx context.Context, ref DocumentRef, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return opErr("update", ref.Collection, ref.ID, err)
	}
	defer tx.Rollback()

	var body string
	err = tx.QueryRowContext(ctx, s.q(`SELECT body FROM documents WHERE collection = ? AND id = ?`),
		ref.Collection, ref.ID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return opErr("update", ref.Collection, ref.ID, fmt.Errorf("document not found"))
	}
	if err != nil {
		return opErr("update", ref.Collection, ref.ID, err)
	}

	merged := make(map[string]any)
	if err := json.Unmarshal([]byte(body), &merged); err != nil {
		return opErr("update", ref.Collection, ref.ID, fmt.Errorf("decode body: %w", err))
	}
	maps.Copy(merged, fields)
	out, err := json.Marshal(merged)
	if err != nil {
		return opErr("update", ref.Collection, ref.ID, err)
	}

	if _, err := tx.ExecContext(ctx, s.q(`UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?`),
		string(out), time.Now().Unix(), ref.Collection, ref.ID); err != nil {
		return opErr("update", ref.Collection, ref.ID, err)
	}
	return opErr("update", ref.Collection, ref.ID, tx.Commit())
}

func (s *SQLStore) ListDocuments(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, body FROM documents WHERE collection = ? ORDER BY id`), collection)
	if err != nil {
		return nil, opErr("list", collection, "", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, opErr("list", collection, "", err)
		}
		doc, err := decodeDocument(collection, id, body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, opErr("list", collection, "", rows.Err())
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func decodeDocument(collection, id, body string) (*Document, error) {
	fields := make(map[string]any)
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, opErr("decode", collection, id, err)
	}
	return &Document{Ref: DocumentRef{Collection: collection, ID: id}, Fields: fields}, nil
}
