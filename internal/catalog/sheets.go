package catalog

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsStore keeps the catalog in one Google Sheets tab. The first row holds
// the column headers; data rows start at sheet row 2.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string

	mu       sync.Mutex
	header   []string
	rowCount int
}

// NewSheetsStore builds a store from a credentials file. Both service account
// keys and authorized-user tokens are accepted. An empty path falls back to
// application default credentials.
func NewSheetsStore(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*SheetsStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unsupported credentials format: %w", err)
		}
		opts = append(opts, option.WithTokenSource(creds.TokenSource))
	} else {
		ts, err := google.DefaultTokenSource(ctx, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("default credentials: %w", err)
		}
		opts = append(opts, option.WithTokenSource(ts))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return NewSheetsStoreWithService(svc, spreadsheetID, sheetName), nil
}

func NewSheetsStoreWithService(svc *sheets.Service, spreadsheetID, sheetName string) *SheetsStore {
	return &SheetsStore{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}
}

func (s *SheetsStore) FetchAll(ctx context.Context) ([]Row, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, quoteSheet(s.sheetName)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("sheets get: %w", err)
	}
	header, rows := rowsFromValues(resp.Values)

	s.mu.Lock()
	s.header = header
	s.rowCount = len(rows)
	s.mu.Unlock()
	return rows, nil
}

func (s *SheetsStore) WriteCell(ctx context.Context, row int, field, value string) error {
	header, count, err := s.layout(ctx)
	if err != nil {
		return err
	}
	if row < 0 || row >= count {
		return ErrRowOutOfRange
	}
	col := indexOf(header, field)
	if col < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	rng := cellRange(s.sheetName, col, row)
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	if _, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("sheets update %s: %w", rng, err)
	}
	return nil
}

func (s *SheetsStore) AppendRow(ctx context.Context, cells map[string]string) error {
	header, _, err := s.layout(ctx)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(header))
	for i, h := range header {
		values[i] = cells[h]
	}
	for field := range cells {
		if indexOf(header, field) < 0 {
			log.Printf("[catalog] sheet=%s stage=append_skip field=%s", s.sheetName, field)
		}
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{values}}
	if _, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, quoteSheet(s.sheetName), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("sheets append: %w", err)
	}
	s.mu.Lock()
	s.rowCount++
	s.mu.Unlock()
	return nil
}

// layout returns the cached header and row count, fetching once if needed.
func (s *SheetsStore) layout(ctx context.Context) ([]string, int, error) {
	s.mu.Lock()
	header, count := s.header, s.rowCount
	s.mu.Unlock()
	if header != nil {
		return header, count, nil
	}
	if _, err := s.FetchAll(ctx); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header, s.rowCount, nil
}

func rowsFromValues(values [][]interface{}) ([]string, []Row) {
	if len(values) == 0 {
		return []string{}, nil
	}
	header := make([]string, len(values[0]))
	for i, v := range values[0] {
		header[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	rows := make([]Row, 0, len(values)-1)
	for i, raw := range values[1:] {
		cells := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(raw) {
				cells[h] = fmt.Sprint(raw[j])
			} else {
				cells[h] = ""
			}
		}
		rows = append(rows, Row{Index: i, Cells: cells})
	}
	return header, rows
}

// columnLetter converts a zero-based column index to A1 letters (0 -> A, 26 -> AA).
func columnLetter(col int) string {
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// cellRange addresses a data row cell; data row 0 sits on sheet row 2.
func cellRange(sheet string, col, row int) string {
	return fmt.Sprintf("%s!%s%d", quoteSheet(sheet), columnLetter(col), row+2)
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func indexOf(list []string, v string) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}
