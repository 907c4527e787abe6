// Package sqlite is a file-backed vector store. Embeddings are stored as
// little-endian float64 BLOBs and compared in process.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"factrag/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name      TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS passages (
	collection   TEXT NOT NULL,
	id           TEXT NOT NULL,
	source       TEXT NOT NULL,
	chunk_index  INTEGER NOT NULL,
	total_chunks INTEGER NOT NULL,
	content      TEXT NOT NULL,
	metadata     TEXT NOT NULL,
	embedding    BLOB NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_passages_order ON passages(collection, source, chunk_index);
`

// Storage is a SQLite-backed store for one collection.
type Storage struct {
	db         *sql.DB
	path       string
	collection string

	mu        sync.Mutex
	dimension int
}

// Open opens (creating if needed) the database at path.
func Open(path, collection string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Storage{db: db, path: path, collection: collection}, nil
}

func (s *Storage) Name() string { return "sqlite" }

// Path returns the database file path.
func (s *Storage) Path() string { return s.path }

// Ping checks the database is usable.
func (s *Storage) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidDimension, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.loadDimension(ctx)
	if err != nil {
		return err
	}
	if current != 0 && current != dimension {
		n, err := s.count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: collection %s holds %d-dimensional vectors, got %d",
				domain.ErrInvalidDimension, s.collection, current, dimension)
		}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO collections (name, dimension) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET dimension = excluded.dimension`,
		s.collection, dimension)
	if err != nil {
		return fmt.Errorf("declaring collection: %w", err)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) InsertBatch(ctx context.Context, records []domain.EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		dim, err := s.loadDimension(ctx)
		if err != nil {
			return err
		}
		if dim == 0 {
			return domain.ErrNotInitialized
		}
		s.dimension = dim
	}
	for _, r := range records {
		if len(r.Vector) != s.dimension {
			return fmt.Errorf("%w: expected %d, got %d", domain.ErrInvalidDimension, s.dimension, len(r.Vector))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO passages
		(collection, id, source, chunk_index, total_chunks, content, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		meta, err := json.Marshal(r.Passage.Metadata)
		if err != nil {
			return err
		}
		p := r.Passage
		if _, err := stmt.ExecContext(ctx, s.collection, p.PointID(), p.SourceID, p.Index, p.TotalCount,
			p.Content, string(meta), float64SliceToBytes(r.Vector)); err != nil {
			return fmt.Errorf("inserting %s#%d: %w", p.SourceID, p.Index, err)
		}
	}
	return tx.Commit()
}

func (s *Storage) FetchAll(ctx context.Context) ([]domain.EmbeddingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, chunk_index, total_chunks, content, metadata, embedding
		FROM passages WHERE collection = ? ORDER BY source, chunk_index`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EmbeddingRecord
	for rows.Next() {
		var (
			p         domain.Passage
			meta      string
			embedding []byte
		)
		if err := rows.Scan(&p.SourceID, &p.Index, &p.TotalCount, &p.Content, &meta, &embedding); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &p.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata of %s#%d: %w", p.SourceID, p.Index, err)
		}
		out = append(out, domain.EmbeddingRecord{Passage: p, Vector: bytesToFloat64Slice(embedding)})
	}
	return out, rows.Err()
}

func (s *Storage) DeleteSources(ctx context.Context, sources []string) error {
	if len(sources) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck
	for _, src := range sources {
		if _, err := tx.ExecContext(ctx, `DELETE FROM passages WHERE collection = ? AND source = ?`, s.collection, src); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	return s.count(ctx)
}

func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM passages WHERE collection = ?`, s.collection); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.collection); err != nil {
		return err
	}
	s.dimension = 0
	return nil
}

// Close closes the database connection.
func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages WHERE collection = ?`, s.collection).Scan(&n)
	return n, err
}

func (s *Storage) loadDimension(ctx context.Context) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return dim, err
}

func float64SliceToBytes(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func bytesToFloat64Slice(buf []byte) []float64 {
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out
}
