package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// CSV column names of the product catalog.
const (
	ColumnID             = "id"
	ColumnDisplayName    = "productDisplayName"
	ColumnMasterCategory = "masterCategory"
	ColumnSubCategory    = "subCategory"
	ColumnBaseColour     = "baseColour"
	ColumnText           = "text_for_embedding"
)

// Row is one catalog line.
type Row struct {
	Line           int
	ID             string
	DisplayName    string
	MasterCategory string
	SubCategory    string
	BaseColour     string
	Text           string
}

// EmbeddingText returns the text to embed, falling back to the display name.
func (r *Row) EmbeddingText() string {
	if t := strings.TrimSpace(r.Text); t != "" {
		return t
	}
	return strings.TrimSpace(r.DisplayName)
}

type rowColumns struct {
	id, displayName, masterCategory, subCategory, baseColour, text int
}

// rowReader streams rows from a catalog CSV with a header line.
type rowReader struct {
	r    *csv.Reader
	cols rowColumns
}

func newRowReader(in io.Reader) (*rowReader, error) {
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog csv is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}
	return &rowReader{r: r, cols: cols}, nil
}

// resolveColumns maps header names to indexes. Only the id column is mandatory.
func resolveColumns(header []string) (rowColumns, error) {
	cols := rowColumns{id: -1, displayName: -1, masterCategory: -1, subCategory: -1, baseColour: -1, text: -1}
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case ColumnID:
			cols.id = i
		case ColumnDisplayName:
			cols.displayName = i
		case ColumnMasterCategory:
			cols.masterCategory = i
		case ColumnSubCategory:
			cols.subCategory = i
		case ColumnBaseColour:
			cols.baseColour = i
		case ColumnText:
			cols.text = i
		}
	}
	if cols.id < 0 {
		return cols, fmt.Errorf("catalog csv has no %q column", ColumnID)
	}
	if cols.text < 0 && cols.displayName < 0 {
		return cols, fmt.Errorf("catalog csv needs %q or %q", ColumnText, ColumnDisplayName)
	}
	return cols, nil
}

// Next returns the next row or io.EOF. Malformed lines return a *RowError
// and the reader stays usable.
func (rr *rowReader) Next() (Row, error) {
	rec, err := rr.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Row{}, io.EOF
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return Row{}, &RowError{Line: perr.Line, Err: perr.Err}
		}
		return Row{}, fmt.Errorf("read catalog: %w", err)
	}
	line, _ := rr.r.FieldPos(0)

	return Row{
		Line:           line,
		ID:             field(rec, rr.cols.id),
		DisplayName:    field(rec, rr.cols.displayName),
		MasterCategory: field(rec, rr.cols.masterCategory),
		SubCategory:    field(rec, rr.cols.subCategory),
		BaseColour:     field(rec, rr.cols.baseColour),
		Text:           field(rec, rr.cols.text),
	}, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// RowError reports a catalog line that could not be ingested.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }
