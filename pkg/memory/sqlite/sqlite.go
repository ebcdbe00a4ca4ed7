// Package sqlite provides a SQLite-backed record store.
//
// The schema is a single flat table with JSON-encoded list/map columns and a
// little-endian float32 BLOB for the embedding, so a record and its embedding
// are always written in one statement and therefore atomically.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/go-libsql"
	"go.uber.org/zap"

	"github.com/engramhq/engram/pkg/memory"
)

// Config holds configuration for the SQLite record store.
type Config struct {
	// Path is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	Path string

	// Driver selects the registered database/sql driver: "sqlite3"
	// (mattn/go-sqlite3, default) or "libsql" (tursodatabase/go-libsql).
	Driver string
}

// Store implements memory.Store on SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id            TEXT PRIMARY KEY,
	content       TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	date          TEXT NOT NULL,
	source        TEXT NOT NULL,
	technologies  TEXT NOT NULL DEFAULT '[]',
	file_paths    TEXT NOT NULL DEFAULT '[]',
	complexity    TEXT NOT NULL,
	project       TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '{}',
	embedding     BLOB,
	quality_score REAL NOT NULL DEFAULT 0,
	archived      INTEGER NOT NULL DEFAULT 0,
	indexed_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_date ON memories(date);
CREATE INDEX IF NOT EXISTS idx_memories_archived ON memories(archived);
`

const recordColumns = `id, content, title, date, source, technologies, file_paths,
	complexity, project, metadata, embedding, quality_score, archived, indexed_at`

// NewStore creates a new SQLite-backed record store.
func NewStore(c Config, logger *zap.Logger) (*Store, error) {
	if c.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	driver := c.Driver
	if driver == "" {
		driver = "sqlite3"
	}

	db, err := sql.Open(driver, c.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite-specific pragmas
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("sqlite record store initialized",
		zap.String("path", c.Path),
		zap.String("driver", driver),
	)

	return &Store{db: db, logger: logger}, nil
}

// Add persists a new record with its embedding in a single insert.
func (s *Store) Add(ctx context.Context, record *memory.Record) error {
	if record == nil {
		return errors.New("cannot store nil record")
	}
	if record.ID == "" {
		return memory.ValidationError{Field: "id", Reason: "must be assigned before Add"}
	}

	techs, paths, meta, err := encodeJSONColumns(record)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID, record.Content, record.Title, record.Date, record.Source,
		techs, paths, string(record.Complexity), record.Project, meta,
		serializeFloat32(record.Embedding), record.QualityScore,
		boolToInt(record.Archived), record.IndexedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", record.ID, err)
	}

	return nil
}

// Get retrieves a record by id, archived or not.
func (s *Store) Get(ctx context.Context, id string) (*memory.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM memories WHERE id = ?`, id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, memory.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", id, err)
	}
	return record, nil
}

// Update replaces a stored record.
func (s *Store) Update(ctx context.Context, record *memory.Record) error {
	if record == nil {
		return errors.New("cannot store nil record")
	}

	techs, paths, meta, err := encodeJSONColumns(record)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE memories SET
			content = ?, title = ?, date = ?, source = ?, technologies = ?,
			file_paths = ?, complexity = ?, project = ?, metadata = ?,
			embedding = ?, quality_score = ?, archived = ?, indexed_at = ?
		WHERE id = ?
	`,
		record.Content, record.Title, record.Date, record.Source, techs,
		paths, string(record.Complexity), record.Project, meta,
		serializeFloat32(record.Embedding), record.QualityScore,
		boolToInt(record.Archived), record.IndexedAt.UTC().Format(time.RFC3339),
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("updating record %s: %w", record.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update of %s: %w", record.ID, err)
	}
	if affected == 0 {
		return memory.NotFoundError{ID: record.ID}
	}
	return nil
}

// Delete removes a record by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete of %s: %w", id, err)
	}
	if affected == 0 {
		return memory.NotFoundError{ID: id}
	}
	return nil
}

// List returns one page of records ordered by date descending then id.
func (s *Store) List(ctx context.Context, opts memory.ListOptions) ([]*memory.Record, int, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = memory.DefaultPageSize
	}
	if size > memory.MaxPageSize {
		size = memory.MaxPageSize
	}

	where := `WHERE archived = 0`
	if opts.IncludeArchived {
		where = ``
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories `+where).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM memories `+where+`
		ORDER BY date DESC, id ASC
		LIMIT ? OFFSET ?
	`, size, (page-1)*size)
	if err != nil {
		return nil, 0, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// All returns every record for curation scans and index rebuilds.
func (s *Store) All(ctx context.Context, includeArchived bool) ([]*memory.Record, error) {
	where := `WHERE archived = 0`
	if includeArchived {
		where = ``
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM memories `+where+`
		ORDER BY date DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("scanning records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// Count returns the number of non-archived records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memories WHERE archived = 0`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return count, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*memory.Record, error) {
	var (
		r          memory.Record
		techs      string
		paths      string
		meta       string
		complexity string
		embedding  []byte
		archived   int
		indexedAt  string
	)

	err := row.Scan(
		&r.ID, &r.Content, &r.Title, &r.Date, &r.Source, &techs, &paths,
		&complexity, &r.Project, &meta, &embedding, &r.QualityScore,
		&archived, &indexedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(techs), &r.Technologies); err != nil {
		return nil, fmt.Errorf("decoding technologies for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(paths), &r.FilePaths); err != nil {
		return nil, fmt.Errorf("decoding file paths for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", r.ID, err)
	}

	r.Complexity = memory.Complexity(complexity)
	r.Embedding = deserializeFloat32(embedding)
	r.Archived = archived != 0

	if t, err := time.Parse(time.RFC3339, indexedAt); err == nil {
		r.IndexedAt = t
	}

	return &r, nil
}

func collectRecords(rows *sql.Rows) ([]*memory.Record, error) {
	records := []*memory.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

func encodeJSONColumns(r *memory.Record) (techs, paths, meta string, err error) {
	tb, err := json.Marshal(emptyIfNil(r.Technologies))
	if err != nil {
		return "", "", "", fmt.Errorf("encoding technologies: %w", err)
	}
	pb, err := json.Marshal(emptyIfNil(r.FilePaths))
	if err != nil {
		return "", "", "", fmt.Errorf("encoding file paths: %w", err)
	}
	m := r.Metadata
	if m == nil {
		m = map[string]string{}
	}
	mb, err := json.Marshal(m)
	if err != nil {
		return "", "", "", fmt.Errorf("encoding metadata: %w", err)
	}
	return string(tb), string(pb), string(mb), nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice.
func serializeFloat32(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
