package model

// Catalog column headers. The spreadsheet catalog addresses cells by these names.
const (
	FieldID          = "商品ID"
	FieldTitle       = "商品名"
	FieldPrice       = "価格"
	FieldDescription = "説明"
	FieldImage       = "画像URL"
	FieldSellerID    = "出品者"
	FieldSellerName  = "出品者名"
	FieldCreatedAt   = "投稿日時"
	FieldCategory    = "カテゴリ"
	FieldCondition   = "状態"
	FieldImageSub1   = "画像URLサブ1"
	FieldImageSub2   = "画像URLサブ2"
	FieldBuyerID     = "購入者"
	FieldBuyerName   = "購入者名"
	FieldPurchasedAt = "購入日時"
	FieldStatus      = "ステータス"
)

// CatalogFields is the column order of a catalog row.
var CatalogFields = []string{
	FieldID,
	FieldTitle,
	FieldPrice,
	FieldDescription,
	FieldImage,
	FieldSellerID,
	FieldSellerName,
	FieldCreatedAt,
	FieldCategory,
	FieldCondition,
	FieldImageSub1,
	FieldImageSub2,
	FieldBuyerID,
	FieldBuyerName,
	FieldPurchasedAt,
	FieldStatus,
}

// ImageFields maps image slots (primary first) to their columns.
var ImageFields = []string{FieldImage, FieldImageSub1, FieldImageSub2}

// CatalogTimeLayout is the timestamp format written to the catalog.
const CatalogTimeLayout = "2006-01-02 15:04:05"
