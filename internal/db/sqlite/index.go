package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kailas-cloud/vecshop/internal/db"
)

// CreateIndex registers the definition, creates one vec0 table per vector
// field and indexes documents already stored under the prefixes.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if _, ok := s.lookup(def.Name); ok {
		return db.ErrIndexExists
	}

	raw, err := json.Marshal(def)
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO indexes(name, definition) VALUES(?, ?)`, def.Name, string(raw))
	if err != nil {
		rollback(tx)
		if strings.Contains(err.Error(), "UNIQUE") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		rollback(tx)
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}

	reg := newRegisteredIndex(id, def)
	for _, f := range def.VectorFields() {
		ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
			embedding float[%d]%s
		)`, reg.vecTables[f.Name], f.VectorDim, distanceOption(f.VectorDistance))
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			rollback(tx)
			return &db.Error{Op: db.OpCreateIndex, Err: err}
		}
		if err := backfill(ctx, tx, reg, f); err != nil {
			rollback(tx)
			return &db.Error{Op: db.OpCreateIndex, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}

	s.mu.Lock()
	s.indexes[def.Name] = reg
	s.mu.Unlock()
	return nil
}

// distanceOption maps a metric onto the vec0 column option. vec0 defaults to L2.
func distanceOption(m db.DistanceMetric) string {
	if m == db.DistanceCosine {
		return " distance_metric=cosine"
	}
	return ""
}

func backfill(ctx context.Context, tx txExecQuerier, reg *registeredIndex, f db.IndexField) error {
	rows, err := tx.QueryContext(ctx, `SELECT d.rid, d.key, v.value FROM documents d
		JOIN fields v ON v.rid = d.rid AND v.name = ?`, f.Name)
	if err != nil {
		return err
	}
	type pending struct {
		rid   int64
		value string
	}
	var todo []pending
	for rows.Next() {
		var (
			rid   int64
			key   string
			value []byte
		)
		if err := rows.Scan(&rid, &key, &value); err != nil {
			_ = rows.Close()
			return err
		}
		if reg.matches(key) {
			todo = append(todo, pending{rid: rid, value: string(value)})
		}
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, p := range todo {
		if err := writeVector(ctx, tx, reg.vecTables[f.Name], p.rid, p.value, f.VectorDim); err != nil {
			return err
		}
	}
	return nil
}

// DropIndex removes the index and its vector tables. Documents are kept.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	reg, ok := s.lookup(name)
	if !ok {
		return db.ErrIndexNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	for _, table := range reg.vecTables {
		if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			rollback(tx)
			return &db.Error{Op: db.OpDropIndex, Err: err}
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM indexes WHERE id = ?`, reg.id); err != nil {
		rollback(tx)
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpDropIndex, Err: err}
	}

	s.mu.Lock()
	delete(s.indexes, name)
	s.mu.Unlock()
	return nil
}

// IndexExists reports whether the index is registered.
func (s *Store) IndexExists(_ context.Context, name string) (bool, error) {
	_, ok := s.lookup(name)
	return ok, nil
}
