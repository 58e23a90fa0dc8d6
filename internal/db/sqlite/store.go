// Package sqlite implements db.Store on an embedded SQLite file with the
// sqlite-vec extension. Documents live in a plain field table; every vector
// field of every index gets its own vec0 virtual table keyed by document rid.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kailas-cloud/vecshop/internal/db"
)

var _ db.Store = (*Store)(nil)

// Store implements db.Store on SQLite + sqlite-vec.
type Store struct {
	db *sql.DB

	mu      sync.RWMutex
	indexes map[string]*registeredIndex
}

// registeredIndex is an index definition plus the vec0 tables backing it.
type registeredIndex struct {
	id  int64
	def *db.IndexDefinition
	// vecTables maps vector field name to its vec0 table.
	vecTables map[string]string
}

func (r *registeredIndex) matches(key string) bool {
	if len(r.def.Prefixes) == 0 {
		return true
	}
	for _, p := range r.def.Prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// New opens (or creates) the database at path and loads the index registry.
func New(path string) (*Store, error) {
	// enable sqlite-vec for all future connections
	sqlite_vec.Auto()

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single writer keeps vec0 and field writes in one serial order.
	conn.SetMaxOpenConns(1)

	s := &Store{db: conn, indexes: make(map[string]*registeredIndex)}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, &db.Error{Op: db.OpMigrate, Err: err}
	}
	if err := s.loadIndexes(); err != nil {
		_ = conn.Close()
		return nil, &db.Error{Op: db.OpMigrate, Err: err}
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		rid INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT UNIQUE NOT NULL
	);
	CREATE TABLE IF NOT EXISTS fields (
		rid INTEGER NOT NULL,
		name TEXT NOT NULL,
		value BLOB,
		PRIMARY KEY (rid, name)
	);
	CREATE TABLE IF NOT EXISTS indexes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		definition TEXT NOT NULL
	);`)
	return err
}

func (s *Store) loadIndexes() error {
	rows, err := s.db.Query(`SELECT id, definition FROM indexes`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id  int64
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return err
		}
		var def db.IndexDefinition
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			return fmt.Errorf("decode index %d: %w", id, err)
		}
		s.indexes[def.Name] = newRegisteredIndex(id, &def)
	}
	return rows.Err()
}

func newRegisteredIndex(id int64, def *db.IndexDefinition) *registeredIndex {
	r := &registeredIndex{id: id, def: def, vecTables: make(map[string]string)}
	for _, f := range def.VectorFields() {
		r.vecTables[f.Name] = vecTableName(id, f.Name)
	}
	return r
}

func vecTableName(indexID int64, field string) string {
	return fmt.Sprintf(`"vec_%d_%s"`, indexID, field)
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() {
	_ = s.db.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := s.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// covering returns the registered indexes whose prefixes match key.
func (s *Store) covering(key string) []*registeredIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*registeredIndex
	for _, r := range s.indexes {
		if r.matches(key) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) lookup(name string) (*registeredIndex, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.indexes[name]
	return r, ok
}

func rollback(tx *sql.Tx) { _ = tx.Rollback() }
