package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/kailas-cloud/vecshop/internal/db"
)

// txExecQuerier is the subset of *sql.Tx used by helpers shared with writes.
type txExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SearchKNN runs a vec0 MATCH query. vec0 reports true Euclidean distance for
// L2 columns, so no normalization is needed.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if err := validateKNN(q); err != nil {
		return nil, err
	}
	reg, ok := s.lookup(q.IndexName)
	if !ok {
		return nil, &db.Error{Op: db.OpSearch, Err: db.ErrIndexNotFound}
	}
	table, ok := reg.vecTables[q.VectorField]
	if !ok {
		return nil, &db.Error{Op: db.OpSearch, Err: fmt.Errorf("index %s has no vector field %s", q.IndexName, q.VectorField)}
	}

	blob, err := sqlite_vec.SerializeFloat32(q.Vector)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	// KNN via MATCH ... ORDER BY distance using sqlite-vec
	rows, err := s.db.QueryContext(ctx, `
		WITH knn AS (
			SELECT rowid, distance
			FROM `+table+`
			WHERE embedding MATCH ?
			ORDER BY distance
			LIMIT ?
		)
		SELECT d.rid, d.key, k.distance
		FROM knn k
		JOIN documents d ON d.rid = k.rowid
		ORDER BY k.distance ASC, d.rid ASC
	`, blob, q.K)
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	type hit struct {
		rid      int64
		key      string
		distance float64
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.rid, &h.key, &h.distance); err != nil {
			_ = rows.Close()
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
		hits = append(hits, h)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpSearch, Err: err}
	}

	entries := make([]db.SearchEntry, 0, len(hits))
	for _, h := range hits {
		fields, err := s.fields(ctx, h.rid, q.ReturnFields)
		if err != nil {
			return nil, &db.Error{Op: db.OpSearch, Err: err}
		}
		d := h.distance
		entries = append(entries, db.SearchEntry{Key: h.key, Distance: &d, Fields: fields})
	}
	return &db.SearchResult{Total: len(entries), Entries: entries}, nil
}

// SearchCount returns the number of documents the index holds, i.e. those with
// a row in at least one of its vector tables. Indexes without vector fields
// count every document under their prefixes.
func (s *Store) SearchCount(ctx context.Context, index string) (int, error) {
	reg, ok := s.lookup(index)
	if !ok {
		return 0, db.ErrIndexNotFound
	}
	if len(reg.vecTables) == 0 {
		return s.countPrefixed(ctx, reg.def.Prefixes)
	}

	selects := make([]string, 0, len(reg.vecTables))
	for _, table := range reg.vecTables {
		selects = append(selects, `SELECT rowid FROM `+table)
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM (`+strings.Join(selects, ` UNION `)+`)`).Scan(&n)
	if err != nil {
		return 0, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return n, nil
}

func (s *Store) countPrefixed(ctx context.Context, prefixes []string) (int, error) {
	if len(prefixes) == 0 {
		prefixes = []string{""}
	}
	total := 0
	for _, p := range prefixes {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT count(*) FROM documents WHERE substr(key, 1, length(?)) = ?`, p, p).Scan(&n)
		if err != nil {
			return 0, &db.Error{Op: db.OpIndexInfo, Err: err}
		}
		total += n
	}
	return total, nil
}

func validateKNN(q *db.KNNQuery) error {
	switch {
	case q.IndexName == "":
		return fmt.Errorf("index name is required")
	case q.VectorField == "":
		return fmt.Errorf("vector field is required")
	case len(q.Vector) == 0:
		return fmt.Errorf("vector is required")
	case q.K <= 0:
		return fmt.Errorf("k must be positive")
	}
	return nil
}
