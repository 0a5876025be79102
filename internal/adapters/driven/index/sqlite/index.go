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

	"github.com/custodia-labs/mahuta/internal/adapters/driven/index/sqlite/migrations"
	"github.com/custodia-labs/mahuta/internal/core/domain"
	"github.com/custodia-labs/mahuta/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.IndexBackend = (*Index)(nil)

const documentColumns = `documents.index_name, documents.doc_id, documents.content_id,
	documents.content_type, documents.content, documents.pinned, documents.fields, documents.dates`

// Index is a SQLite-backed index backend.
type Index struct {
	db         *sql.DB
	path       string
	translator Translator
}

// NewIndex opens or creates the database at path.
func NewIndex(path string, indexNull bool) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is empty", domain.ErrNotConfigured)
	}
	if err := registerFunctions(); err != nil {
		return nil, err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", path+
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	x := &Index{
		db:         db,
		path:       path,
		translator: Translator{IndexNull: indexNull},
	}

	if err := x.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return x, nil
}

// Path returns the database file path.
func (x *Index) Path() string {
	return x.path
}

// migrate runs all pending migrations.
func (x *Index) migrate(fsys embed.FS) error {
	_, err := x.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := x.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := x.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

// CreateIndex registers name. An existing index keeps its mapping.
func (x *Index) CreateIndex(ctx context.Context, name string, mapping []byte) error {
	name = domain.NormalizeIndexName(name)
	if name == "" {
		return fmt.Errorf("%w: index name is required", domain.ErrInvalidArgument)
	}
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO indexes (name, mapping, created_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, mapping, time.Now())
	if err != nil {
		return fmt.Errorf("%w: creating index %s: %v", domain.ErrTechnical, name, err)
	}
	return nil
}

// Indexes returns the index names, sorted.
func (x *Index) Indexes(ctx context.Context) ([]string, error) {
	rows, err := x.db.QueryContext(ctx, "SELECT name FROM indexes ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("%w: listing indexes: %v", domain.ErrTechnical, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scanning index: %v", domain.ErrTechnical, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (x *Index) indexExists(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, name string) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM indexes WHERE name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrNoIndex, name)
	}
	if err != nil {
		return fmt.Errorf("%w: looking up index %s: %v", domain.ErrTechnical, name, err)
	}
	return nil
}

// Index upserts doc. Re-indexing keeps the document's position.
func (x *Index) Index(ctx context.Context, doc domain.Metadata) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", err
	}
	doc.IndexName = domain.NormalizeIndexName(doc.IndexName)
	if doc.DocumentID == "" {
		doc.DocumentID = uuid.New().String()
	}
	doc.Fields = domain.HandleNullValues(doc.Fields, x.translator.IndexNull)

	if err := x.indexExists(ctx, x.db, doc.IndexName); err != nil {
		return "", err
	}
	if err := x.save(ctx, x.db, doc); err != nil {
		return "", err
	}
	return doc.DocumentID, nil
}

func (x *Index) save(ctx context.Context, db interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, doc domain.Metadata) error {
	fields, dates, err := encodeFields(doc.Fields)
	if err != nil {
		return err
	}
	now := time.Now()
	_, err = db.ExecContext(ctx, `
		INSERT INTO documents (index_name, doc_id, content_id, content_type, content, pinned, fields, dates, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(index_name, doc_id) DO UPDATE SET
			content_id = excluded.content_id,
			content_type = excluded.content_type,
			content = excluded.content,
			pinned = excluded.pinned,
			fields = excluded.fields,
			dates = excluded.dates,
			updated_at = excluded.updated_at
	`, doc.IndexName, doc.DocumentID, doc.ContentID, nullString(doc.ContentType),
		nullBytes(doc.Content), doc.Pinned, fields, dates, now, now)
	if err != nil {
		return fmt.Errorf("%w: saving document: %v", domain.ErrTechnical, err)
	}
	return nil
}

// UpdateField sets one field of a stored document.
func (x *Index) UpdateField(ctx context.Context, indexName, documentID, field string, value domain.Value) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", domain.ErrTechnical, err)
	}
	defer tx.Rollback() //nolint:errcheck

	doc, err := scanDocument(tx.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE index_name = ? AND doc_id = ?",
		domain.NormalizeIndexName(indexName), documentID))
	if err != nil {
		return err
	}
	if err := doc.SetField(field, value, x.translator.IndexNull); err != nil {
		return err
	}
	if err := x.save(ctx, tx, doc); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing update: %v", domain.ErrTechnical, err)
	}
	return nil
}

// Get returns a stored document.
func (x *Index) Get(ctx context.Context, indexName, documentID string) (domain.Metadata, error) {
	return scanDocument(x.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE index_name = ? AND doc_id = ?",
		domain.NormalizeIndexName(indexName), documentID))
}

// Search returns one page of matches ordered by the requested sort, then
// by insertion order.
func (x *Index) Search(ctx context.Context, indexName string, query *domain.Query, page domain.PageRequest) (domain.Page[domain.Metadata], error) {
	if err := page.Validate(); err != nil {
		return domain.Page[domain.Metadata]{}, err
	}
	total, err := x.Count(ctx, indexName, query)
	if err != nil {
		return domain.Page[domain.Metadata]{}, err
	}

	b := &builder{}
	where := x.where(b, indexName, query)
	order := "documents.seq"
	if page.SortField != "" {
		dir := "ASC"
		if !page.IsAscending() {
			dir = "DESC"
		}
		order = orderBy(b, page.SortField) + " " + dir + " NULLS LAST, documents.seq"
	}
	args := append(b.args, page.PageSize, page.Offset())

	rows, err := x.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE "+where+" ORDER BY "+order+" LIMIT ? OFFSET ?",
		args...)
	if err != nil {
		return domain.Page[domain.Metadata]{}, fmt.Errorf("%w: searching: %v", domain.ErrTechnical, err)
	}
	defer rows.Close()

	var docs []domain.Metadata
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return domain.Page[domain.Metadata]{}, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Metadata]{}, fmt.Errorf("%w: searching: %v", domain.ErrTechnical, err)
	}
	return domain.NewPage(docs, total, page), nil
}

// Count returns the number of matches.
func (x *Index) Count(ctx context.Context, indexName string, query *domain.Query) (int64, error) {
	if name := domain.NormalizeIndexName(indexName); name != "" {
		if err := x.indexExists(ctx, x.db, name); err != nil {
			return 0, err
		}
	}
	b := &builder{}
	where := x.where(b, indexName, query)

	var total int64
	if err := x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE "+where, b.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("%w: counting: %v", domain.ErrTechnical, err)
	}
	return total, nil
}

func (x *Index) where(b *builder, indexName string, query *domain.Query) string {
	var scope string
	if name := domain.NormalizeIndexName(indexName); name != "" {
		scope = "documents.index_name = " + b.arg(name) + " AND "
	}
	return scope + "(" + x.translator.query(b, query) + ")"
}

// Deindex removes a document.
func (x *Index) Deindex(ctx context.Context, indexName, documentID string) error {
	name := domain.NormalizeIndexName(indexName)
	res, err := x.db.ExecContext(ctx,
		"DELETE FROM documents WHERE index_name = ? AND doc_id = ?", name, documentID)
	if err != nil {
		return fmt.Errorf("%w: deleting document: %v", domain.ErrTechnical, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: deleting document: %v", domain.ErrTechnical, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: document %s/%s", domain.ErrNotFound, name, documentID)
	}
	return nil
}

// Ping checks the database is usable.
func (x *Index) Ping(ctx context.Context) error {
	if err := x.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: sqlite %s: %v", domain.ErrConnection, x.path, err)
	}
	return nil
}

// Close closes the database connection.
func (x *Index) Close() error {
	return x.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (domain.Metadata, error) {
	var (
		doc         domain.Metadata
		contentType sql.NullString
		fields      string
		dates       string
	)
	err := row.Scan(&doc.IndexName, &doc.DocumentID, &doc.ContentID, &contentType,
		&doc.Content, &doc.Pinned, &fields, &dates)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Metadata{}, fmt.Errorf("%w: document", domain.ErrNotFound)
	}
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("%w: scanning document: %v", domain.ErrTechnical, err)
	}
	doc.ContentType = contentType.String
	doc.Fields, err = decodeFields(fields, dates)
	if err != nil {
		return domain.Metadata{}, err
	}
	return doc, nil
}

// encodeFields returns the JSON object of fields and the JSON list of the
// names holding dates, which JSON cannot tell apart from numbers.
func encodeFields(fields domain.Fields) (string, string, error) {
	data, err := json.Marshal(fields.Native())
	if err != nil {
		return "", "", fmt.Errorf("%w: marshalling fields: %v", domain.ErrInvalidArgument, err)
	}
	dates := []string{}
	for _, name := range fields.Names() {
		items := fields[name].Items()
		if len(items) > 0 && items[0].Kind() == domain.KindDate {
			dates = append(dates, name)
		}
	}
	datesJSON, err := json.Marshal(dates)
	if err != nil {
		return "", "", fmt.Errorf("%w: marshalling date fields: %v", domain.ErrTechnical, err)
	}
	return string(data), string(datesJSON), nil
}

func decodeFields(fieldsJSON, datesJSON string) (domain.Fields, error) {
	var fields domain.Fields
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return nil, fmt.Errorf("%w: unmarshalling fields: %v", domain.ErrTechnical, err)
	}
	var dates []string
	if err := json.Unmarshal([]byte(datesJSON), &dates); err != nil {
		return nil, fmt.Errorf("%w: unmarshalling date fields: %v", domain.ErrTechnical, err)
	}
	for _, name := range dates {
		if v, ok := fields[name]; ok {
			fields[name] = toDates(v)
		}
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

func toDates(v domain.Value) domain.Value {
	if v.Kind() == domain.KindArray {
		items := v.Items()
		out := make([]domain.Value, len(items))
		for i, item := range items {
			out[i] = toDates(item)
		}
		return domain.Array(out...)
	}
	if n, ok := v.Num(); ok {
		return domain.DateMillis(int64(n))
	}
	return v
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
