package catalog

import (
	"context"
	"fmt"

	"github.com/shinyyama/fleamarket-backend/internal/db"
	"github.com/shinyyama/fleamarket-backend/internal/model"
	"gorm.io/gorm"
)

// catalogRow mirrors a spreadsheet row: every cell is kept as text.
type catalogRow struct {
	Position    int    `gorm:"column:position;primaryKey;autoIncrement:false"`
	ListingID   string `gorm:"column:listing_id;size:64;index"`
	Title       string `gorm:"column:title;size:255"`
	Price       string `gorm:"column:price;size:32"`
	Description string `gorm:"column:description;type:text"`
	ImageURL    string `gorm:"column:image_url;size:512"`
	SellerID    string `gorm:"column:seller_id;size:128;index"`
	SellerName  string `gorm:"column:seller_name;size:255"`
	CreatedAt   string `gorm:"column:created_at;size:32"`
	Category    string `gorm:"column:category;size:64"`
	Condition   string `gorm:"column:item_condition;size:64"`
	ImageSub1   string `gorm:"column:image_url_sub1;size:512"`
	ImageSub2   string `gorm:"column:image_url_sub2;size:512"`
	BuyerID     string `gorm:"column:buyer_id;size:128;index"`
	BuyerName   string `gorm:"column:buyer_name;size:255"`
	PurchasedAt string `gorm:"column:purchased_at;size:32"`
	Status      string `gorm:"column:status;size:32"`
}

func (catalogRow) TableName() string {
	return "catalog_rows"
}

var sqlColumns = map[string]string{
	model.FieldID:          "listing_id",
	model.FieldTitle:       "title",
	model.FieldPrice:       "price",
	model.FieldDescription: "description",
	model.FieldImage:       "image_url",
	model.FieldSellerID:    "seller_id",
	model.FieldSellerName:  "seller_name",
	model.FieldCreatedAt:   "created_at",
	model.FieldCategory:    "category",
	model.FieldCondition:   "item_condition",
	model.FieldImageSub1:   "image_url_sub1",
	model.FieldImageSub2:   "image_url_sub2",
	model.FieldBuyerID:     "buyer_id",
	model.FieldBuyerName:   "buyer_name",
	model.FieldPurchasedAt: "purchased_at",
	model.FieldStatus:      "status",
}

// SQLStore keeps the catalog in a MySQL table while exposing the same
// position-addressed cell primitives as the spreadsheet.
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(gdb *gorm.DB) (*SQLStore, error) {
	if err := gdb.AutoMigrate(&catalogRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate catalog_rows: %w", err)
	}
	return &SQLStore{db: gdb}, nil
}

func (s *SQLStore) FetchAll(ctx context.Context) ([]Row, error) {
	var list []catalogRow
	if err := s.db.WithContext(ctx).Order("position ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(list))
	for _, r := range list {
		rows = append(rows, Row{Index: r.Position, Cells: r.cells()})
	}
	return rows, nil
}

func (s *SQLStore) WriteCell(ctx context.Context, row int, field, value string) error {
	col, ok := sqlColumns[field]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	res := s.db.WithContext(ctx).
		Model(&catalogRow{}).
		Where("position = ?", row).
		Update(col, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the value is unchanged.
	var cnt int64
	if err := s.db.WithContext(ctx).Model(&catalogRow{}).Where("position = ?", row).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt == 0 {
		return ErrRowOutOfRange
	}
	return nil
}

func (s *SQLStore) AppendRow(ctx context.Context, cells map[string]string) error {
	return db.Try(func() error {
		var next int64
		if err := s.db.WithContext(ctx).Model(&catalogRow{}).Count(&next).Error; err != nil {
			return err
		}
		r := rowFromCells(int(next), cells)
		return s.db.WithContext(ctx).Create(&r).Error
	})
}

func (r catalogRow) cells() map[string]string {
	return map[string]string{
		model.FieldID:          r.ListingID,
		model.FieldTitle:       r.Title,
		model.FieldPrice:       r.Price,
		model.FieldDescription: r.Description,
		model.FieldImage:       r.ImageURL,
		model.FieldSellerID:    r.SellerID,
		model.FieldSellerName:  r.SellerName,
		model.FieldCreatedAt:   r.CreatedAt,
		model.FieldCategory:    r.Category,
		model.FieldCondition:   r.Condition,
		model.FieldImageSub1:   r.ImageSub1,
		model.FieldImageSub2:   r.ImageSub2,
		model.FieldBuyerID:     r.BuyerID,
		model.FieldBuyerName:   r.BuyerName,
		model.FieldPurchasedAt: r.PurchasedAt,
		model.FieldStatus:      r.Status,
	}
}

func rowFromCells(position int, c map[string]string) catalogRow {
	return catalogRow{
		Position:    position,
		ListingID:   c[model.FieldID],
		Title:       c[model.FieldTitle],
		Price:       c[model.FieldPrice],
		Description: c[model.FieldDescription],
		ImageURL:    c[model.FieldImage],
		SellerID:    c[model.FieldSellerID],
		SellerName:  c[model.FieldSellerName],
		CreatedAt:   c[model.FieldCreatedAt],
		Category:    c[model.FieldCategory],
		Condition:   c[model.FieldCondition],
		ImageSub1:   c[model.FieldImageSub1],
		ImageSub2:   c[model.FieldImageSub2],
		BuyerID:     c[model.FieldBuyerID],
		BuyerName:   c[model.FieldBuyerName],
		PurchasedAt: c[model.FieldPurchasedAt],
		Status:      c[model.FieldStatus],
	}
}
