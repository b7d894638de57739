// Package sqlite keeps collections in a single SQLite file so the knowledge
// base survives restarts without an external vector database.
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

	_ "modernc.org/sqlite"

	"callbot/internal/domain"
	"callbot/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name      TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL,
	distance  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS points (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	vector     BLOB NOT NULL,
	payload    TEXT NOT NULL,
	UNIQUE(collection, id)
);
CREATE INDEX IF NOT EXISTS idx_points_collection ON points(collection, seq);
`

// Storage is a brute-force vector store backed by SQLite.
type Storage struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Storage{db: db, path: path}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Path() string {
	return s.path
}

func (s *Storage) ResetCollection(ctx context.Context, name string, dimension int, distance domain.Distance) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrInvalidArgument, dimension)
	}
	if err := vectorstore.ValidateDistance(distance); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM points WHERE collection = ?`, name); err != nil {
		return unavailable(err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO collections (name, dimension, distance) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET dimension = excluded.dimension, distance = excluded.distance
	`, name, dimension, string(distance)); err != nil {
		return unavailable(err)
	}
	return unavailable(tx.Commit())
}

func (s *Storage) Upsert(ctx context.Context, name string, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	dim, _, err := lookup(ctx, tx, name)
	if err != nil {
		return err
	}
	if err := vectorstore.CheckPoints(points, dim); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO points (collection, id, vector, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET vector = excluded.vector, payload = excluded.payload
	`)
	if err != nil {
		return unavailable(err)
	}
	defer stmt.Close()

	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, name, p.ID, vectorToBlob(p.Vector), string(payload)); err != nil {
			return unavailable(err)
		}
	}
	return unavailable(tx.Commit())
}

func (s *Storage) Search(ctx context.Context, name string, vector []float32, k int) ([]domain.Match, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", domain.ErrInvalidArgument, k)
	}
	dim, distance, err := lookup(ctx, s.db, name)
	if errors.Is(err, domain.ErrInvalidArgument) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := vectorstore.CheckQuery(vector, k, dim); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, vector, payload FROM points WHERE collection = ? ORDER BY seq`, name)
	if err != nil {
		return nil, unavailable(err)
	}
	defer func() { _ = rows.Close() }()

	var matches []domain.Match
	for rows.Next() {
		var (
			id      string
			blob    []byte
			payload string
		)
		if err := rows.Scan(&id, &blob, &payload); err != nil {
			return nil, err
		}
		m := domain.Match{ID: id, Score: vectorstore.Score(distance, vector, blobToVector(blob))}
		if err := json.Unmarshal([]byte(payload), &m.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", id, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return vectorstore.TopK(matches, k), nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lookup(ctx context.Context, q queryer, name string) (int, domain.Distance, error) {
	var (
		dim      int
		distance string
	)
	err := q.QueryRowContext(ctx, `SELECT dimension, distance FROM collections WHERE name = ?`, name).Scan(&dim, &distance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", fmt.Errorf("%w: collection %q does not exist", domain.ErrInvalidArgument, name)
	}
	if err != nil {
		return 0, "", unavailable(err)
	}
	return dim, domain.Distance(distance), nil
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
}

// vectorToBlob stores float32 values little-endian.
func vectorToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func blobToVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
