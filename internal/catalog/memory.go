package catalog

import (
	"context"
	"sync"
)

// WriteHook runs before a cell write is applied. Returning an error fails the write.
type WriteHook func(row int, field, value string) error

// FetchHook runs before a fetch. Returning an error fails the fetch.
type FetchHook func() error

// MemoryStore keeps the catalog in process. It backs STORE_BACKEND=memory and tests.
type MemoryStore struct {
	mu        sync.Mutex
	rows      []map[string]string
	writeHook WriteHook
	fetchHook FetchHook
	writes    int
	fetches   int
}

func NewMemoryStore(rows ...map[string]string) *MemoryStore {
	s := &MemoryStore{}
	for _, r := range rows {
		s.rows = append(s.rows, cloneCells(r))
	}
	return s
}

func (s *MemoryStore) SetWriteHook(h WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeHook = h
}

func (s *MemoryStore) SetFetchHook(h FetchHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchHook = h
}

func (s *MemoryStore) FetchAll(ctx context.Context) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	hook := s.fetchHook
	s.fetches++
	s.mu.Unlock()
	if hook != nil {
		if err := hook(); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, 0, len(s.rows))
	for i, r := range s.rows {
		out = append(out, Row{Index: i, Cells: cloneCells(r)})
	}
	return out, nil
}

func (s *MemoryStore) WriteCell(ctx context.Context, row int, field, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	hook := s.writeHook
	s.mu.Unlock()
	// hooks may write to the store themselves to simulate a concurrent writer
	if hook != nil {
		if err := hook(row, field, value); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if row < 0 || row >= len(s.rows) {
		return ErrRowOutOfRange
	}
	s.rows[row][field] = value
	s.writes++
	return nil
}

func (s *MemoryStore) AppendRow(ctx context.Context, cells map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, cloneCells(cells))
	return nil
}

// Writes returns the number of cell writes applied so far.
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *MemoryStore) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// Len returns the number of rows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}
