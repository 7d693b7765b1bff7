package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shinyyama/fleamarket-backend/internal/catalog"
	"github.com/shinyyama/fleamarket-backend/internal/model"
)

var ErrListingNotFound = errors.New("listing not found")

// Cell is one field write. Writes are applied in slice order.
type Cell struct {
	Field string
	Value string
}

// WriteError reports how many cells of a multi-cell write landed before the failure.
type WriteError struct {
	Applied int
	Field   string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s (after %d applied): %v", e.Field, e.Applied, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

type ListingRepository interface {
	// FindByID re-reads the catalog and returns the listing with its row position.
	FindByID(ctx context.Context, id string) (*model.Listing, int, error)
	List(ctx context.Context) ([]model.Listing, error)
	Create(ctx context.Context, l *model.Listing) error
	// WriteCells writes cells one by one in order and stops at the first failure.
	WriteCells(ctx context.Context, row int, cells []Cell) error
}

type listingRepository struct {
	store catalog.Store
	loc   *time.Location
}

func NewListingRepository(store catalog.Store, loc *time.Location) ListingRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &listingRepository{store: store, loc: loc}
}

func (r *listingRepository) FindByID(ctx context.Context, id string) (*model.Listing, int, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, -1, ErrListingNotFound
	}
	rows, err := r.store.FetchAll(ctx)
	if err != nil {
		return nil, -1, err
	}
	for _, row := range rows {
		if strings.TrimSpace(row.Get(model.FieldID)) == id {
			l := DecodeListing(row, r.loc)
			return &l, row.Index, nil
		}
	}
	return nil, -1, ErrListingNotFound
}

func (r *listingRepository) List(ctx context.Context) ([]model.Listing, error) {
	rows, err := r.store.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]model.Listing, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Get(model.FieldID)) == "" {
			continue
		}
		list = append(list, DecodeListing(row, r.loc))
	}
	return list, nil
}

func (r *listingRepository) Create(ctx context.Context, l *model.Listing) error {
	return r.store.AppendRow(ctx, EncodeListing(l, r.loc))
}

func (r *listingRepository) WriteCells(ctx context.Context, row int, cells []Cell) error {
	for i, c := range cells {
		if err := r.store.WriteCell(ctx, row, c.Field, c.Value); err != nil {
			return &WriteError{Applied: i, Field: c.Field, Err: err}
		}
	}
	return nil
}

// FormatTime renders t the way the catalog stores timestamps.
func FormatTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(model.CatalogTimeLayout)
}

func parseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(model.CatalogTimeLayout, s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DecodeListing converts a catalog row. Unparseable prices decode as 0 and
// unparseable timestamps as unset, matching how the sheet is edited by hand.
func DecodeListing(row catalog.Row, loc *time.Location) model.Listing {
	l := model.Listing{
		ID:          strings.TrimSpace(row.Get(model.FieldID)),
		Title:       row.Get(model.FieldTitle),
		Description: row.Get(model.FieldDescription),
		Category:    row.Get(model.FieldCategory),
		Condition:   row.Get(model.FieldCondition),
		SellerID:    strings.TrimSpace(row.Get(model.FieldSellerID)),
		SellerName:  row.Get(model.FieldSellerName),
		BuyerID:     strings.TrimSpace(row.Get(model.FieldBuyerID)),
		BuyerName:   row.Get(model.FieldBuyerName),
		Status:      model.ListingStatus(strings.TrimSpace(row.Get(model.FieldStatus))),
	}
	priceStr := strings.ReplaceAll(strings.TrimSpace(row.Get(model.FieldPrice)), ",", "")
	if p, err := strconv.ParseInt(priceStr, 10, 64); err == nil && p >= 0 {
		l.Price = p
	}
	for _, f := range model.ImageFields {
		if u := strings.TrimSpace(row.Get(f)); u != "" {
			l.Images = append(l.Images, u)
		}
	}
	if t, ok := parseTime(row.Get(model.FieldCreatedAt), loc); ok {
		l.CreatedAt = t
	}
	if t, ok := parseTime(row.Get(model.FieldPurchasedAt), loc); ok {
		l.PurchasedAt = &t
	}
	// rows appended by the original form carry no status; they are on sale
	if l.Status == "" {
		l.Status = model.ListingStatusListed
	}
	return l
}

func EncodeListing(l *model.Listing, loc *time.Location) map[string]string {
	cells := map[string]string{
		model.FieldID:          l.ID,
		model.FieldTitle:       l.Title,
		model.FieldPrice:       strconv.FormatInt(l.Price, 10),
		model.FieldDescription: l.Description,
		model.FieldSellerID:    l.SellerID,
		model.FieldSellerName:  l.SellerName,
		model.FieldCreatedAt:   FormatTime(l.CreatedAt, loc),
		model.FieldCategory:    l.Category,
		model.FieldCondition:   l.Condition,
		model.FieldBuyerID:     l.BuyerID,
		model.FieldBuyerName:   l.BuyerName,
		model.FieldPurchasedAt: "",
		model.FieldStatus:      string(l.Status),
	}
	if l.PurchasedAt != nil {
		cells[model.FieldPurchasedAt] = FormatTime(*l.PurchasedAt, loc)
	}
	for i, f := range model.ImageFields {
		cells[f] = ""
		if i < len(l.Images) {
			cells[f] = l.Images[i]
		}
	}
	return cells
}
