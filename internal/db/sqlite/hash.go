package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/kailas-cloud/vecshop/internal/db"
)

// HSet upserts fields on the document at key and refreshes its vector rows.
func (s *Store) HSet(ctx context.Context, key string, fields map[string]string) error {
	return s.HSetMulti(ctx, []db.HashSetItem{{Key: key, Fields: fields}})
}

// HSetMulti writes all items in one transaction. Clear fields are removed
// before Fields are written.
func (s *Store) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	for _, item := range items {
		if err := s.hset(ctx, tx, item); err != nil {
			rollback(tx)
			return &db.Error{Op: db.OpHSet, Err: fmt.Errorf("key %s: %w", item.Key, err)}
		}
	}
	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpHSet, Err: err}
	}
	return nil
}

func (s *Store) hset(ctx context.Context, tx *sql.Tx, item db.HashSetItem) error {
	key, fields := item.Key, item.Fields
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents(key) VALUES(?) ON CONFLICT(key) DO NOTHING`, key); err != nil {
		return err
	}
	var rid int64
	if err := tx.QueryRowContext(ctx, `SELECT rid FROM documents WHERE key = ?`, key).Scan(&rid); err != nil {
		return err
	}

	if err := s.clearFields(ctx, tx, key, rid, item.Clear); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO fields(rid, name, value) VALUES(?, ?, ?)
		ON CONFLICT(rid, name) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for name, value := range fields {
		if _, err := stmt.ExecContext(ctx, rid, name, []byte(value)); err != nil {
			return err
		}
	}

	for _, idx := range s.covering(key) {
		for _, f := range idx.def.VectorFields() {
			value, ok := fields[f.Name]
			if !ok {
				continue
			}
			if err := writeVector(ctx, tx, idx.vecTables[f.Name], rid, value, f.VectorDim); err != nil {
				return err
			}
		}
	}
	return nil
}

// clearFields drops the named fields of rid and, for vector fields, their rows
// in every covering index.
func (s *Store) clearFields(ctx context.Context, tx *sql.Tx, key string, rid int64, names []string) error {
	if len(names) == 0 {
		return nil
	}
	covering := s.covering(key)
	for _, name := range names {
		if _, err := tx.ExecContext(ctx, `DELETE FROM fields WHERE rid = ? AND name = ?`, rid, name); err != nil {
			return err
		}
		for _, idx := range covering {
			table, ok := idx.vecTables[name]
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE rowid = ?`, rid); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeVector replaces the vec0 row for rid. A blob of the wrong dimension
// leaves the document unindexed for that field, matching FT index behavior.
func writeVector(ctx context.Context, tx txExecQuerier, table string, rid int64, value string, dim int) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE rowid = ?`, rid); err != nil {
		return err
	}
	vec, err := db.DecodeVector(value)
	if err != nil || len(vec) != dim {
		return nil //nolint:nilerr // unindexable vectors are skipped
	}
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO `+table+`(rowid, embedding) VALUES(?, ?)`, rid, blob)
	return err
}

// HGetAll returns all fields of the document at key.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	rid, err := s.rid(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, err
		}
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	fields, err := s.fields(ctx, rid, nil)
	if err != nil {
		return nil, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	return fields, nil
}

// Del removes the document, its fields and its vector rows.
func (s *Store) Del(ctx context.Context, key string) error {
	rid, err := s.rid(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil
		}
		return &db.Error{Op: db.OpDel, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	for _, idx := range s.covering(key) {
		for _, table := range idx.vecTables {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE rowid = ?`, rid); err != nil {
				rollback(tx)
				return &db.Error{Op: db.OpDel, Err: err}
			}
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fields WHERE rid = ?`, rid); err != nil {
		rollback(tx)
		return &db.Error{Op: db.OpDel, Err: err}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE rid = ?`, rid); err != nil {
		rollback(tx)
		return &db.Error{Op: db.OpDel, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpDel, Err: err}
	}
	return nil
}

// Exists reports whether a document is stored at key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.rid(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, db.ErrKeyNotFound):
		return false, nil
	default:
		return false, &db.Error{Op: db.OpExists, Err: err}
	}
}

func (s *Store) rid(ctx context.Context, key string) (int64, error) {
	var rid int64
	err := s.db.QueryRowContext(ctx, `SELECT rid FROM documents WHERE key = ?`, key).Scan(&rid)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, db.ErrKeyNotFound
	}
	return rid, err
}

// fields loads the stored fields of rid, restricted to only when non-empty.
func (s *Store) fields(ctx context.Context, rid int64, only []string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM fields WHERE rid = ?`, rid)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var want map[string]bool
	if len(only) > 0 {
		want = make(map[string]bool, len(only))
		for _, f := range only {
			want[f] = true
		}
	}

	out := make(map[string]string)
	for rows.Next() {
		var (
			name  string
			value []byte
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		if want != nil && !want[name] {
			continue
		}
		out[name] = string(value)
	}
	return out, rows.Err()
}
