// Package catalog abstracts the shared tabular store that holds every listing.
//
// A store only offers whole-table reads and single-cell writes addressed by row
// position. It has no transactions or row locks, so callers must re-read before
// every guarded write.
package catalog

import (
	"context"
	"errors"
)

var (
	ErrRowOutOfRange = errors.New("catalog row out of range")
	ErrUnknownField  = errors.New("catalog field unknown")
)

// Row is one data row of the catalog. Index is the zero-based position among
// data rows and is stable because rows are never deleted.
type Row struct {
	Index int
	Cells map[string]string
}

func (r Row) Get(field string) string {
	return r.Cells[field]
}

type Store interface {
	// FetchAll returns every data row in catalog order.
	FetchAll(ctx context.Context) ([]Row, error)
	// WriteCell overwrites a single cell of the row at the given position.
	WriteCell(ctx context.Context, row int, field, value string) error
	// AppendRow adds a row after the last one.
	AppendRow(ctx context.Context, cells map[string]string) error
}

func cloneCells(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
