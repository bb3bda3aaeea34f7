package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskapi/internal/docstore"
)

const createDocumentsTable = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	version INTEGER NOT NULL,
	body TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (collection, id)
);
`

// Store keeps every collection in one table of JSON bodies and answers
// field queries with json_extract.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ docstore.Gateway = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the clock used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New opens the database at path and prepares the documents table.
func New(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createDocumentsTable); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	now := s.now().UTC()
	body, err := json.Marshal(docstore.Resolve(fields, now))
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO documents (collection, id, version, body, created_at, updated_at)
VALUES (?, ?, 1, ?, ?, ?)`,
		collection,
		id,
		string(body),
		now,
		now,
	); err != nil {
		return "", fmt.Errorf("insert %s document: %w", collection, err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, version, body
FROM documents
WHERE collection = ? AND id = ?`,
		collection,
		id,
	)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	var (
		where = []string{"collection = ?"}
		args  = []any{q.Collection}
	)
	for _, f := range q.Filters {
		where = append(where, "json_extract(body, ?) = ?")
		args = append(args, jsonPath(f.Field), sqlValue(f.Value))
	}

	query := fmt.Sprintf(`
SELECT id, version, body
FROM documents
WHERE %s`, strings.Join(where, " AND "))
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		// rowid keeps insertion order among equal values
		query += fmt.Sprintf("\nORDER BY json_extract(body, ?) %s, rowid %s", dir, dir)
		args = append(args, jsonPath(q.OrderBy))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	docs := []docstore.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (s *Store) Update(ctx context.Context, collection, id, version string, fields docstore.Fields) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := scanDocument(tx.QueryRowContext(ctx, `
SELECT id, version, body
FROM documents
WHERE collection = ? AND id = ?`,
		collection,
		id,
	))
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if version != "" && version != current.Version {
		return fmt.Errorf("update %s/%s: %w", collection, id, docstore.ErrConflict)
	}

	now := s.now().UTC()
	body, err := json.Marshal(docstore.Merge(current.Fields, docstore.Resolve(fields, now)))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
UPDATE documents
SET body = ?, version = version + 1, updated_at = ?
WHERE collection = ? AND id = ? AND version = ?`,
		string(body),
		now,
		collection,
		id,
		current.Version,
	)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if aff, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("update rows affected: %w", err)
	} else if aff == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, docstore.ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id, version string) error {
	query := `DELETE FROM documents WHERE collection = ? AND id = ?`
	args := []any{collection, id}
	if version != "" {
		query += ` AND version = ?`
		args = append(args, version)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rows affected: %w", err)
	}
	if aff > 0 {
		return nil
	}

	if _, err := s.Get(ctx, collection, id); err != nil {
		return err
	}
	return fmt.Errorf("delete %s/%s: %w", collection, id, docstore.ErrConflict)
}

func scanDocument(row interface {
	Scan(dest ...any) error
}) (*docstore.Document, error) {
	var (
		doc     docstore.Document
		version int64
		body    string
	)
	if err := row.Scan(&doc.ID, &version, &body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, docstore.ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Version = strconv.FormatInt(version, 10)
	if err := json.Unmarshal([]byte(body), &doc.Fields); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return &doc, nil
}

func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, ``) + `"`
}

// json_extract yields 1/0 for JSON booleans.
func sqlValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}
