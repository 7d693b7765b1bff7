package model

import "time"

type ListingStatus string

// Status labels are the values stored in the catalog's status column.
const (
	ListingStatusListed          ListingStatus = "出品中"
	ListingStatusWithdrawn       ListingStatus = "取下げ"
	ListingStatusPendingPurchase ListingStatus = "購入手続き中"
	ListingStatusPaymentPending  ListingStatus = "支払い確認中"
	ListingStatusPaid            ListingStatus = "支払い済"
)

func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusListed, ListingStatusWithdrawn, ListingStatusPendingPurchase,
		ListingStatusPaymentPending, ListingStatusPaid:
		return true
	}
	return false
}

// Editable reports whether the seller may still change descriptive fields.
func (s ListingStatus) Editable() bool {
	return s == ListingStatusListed || s == ListingStatusWithdrawn
}

// Code is the stable ASCII name used in API payloads.
func (s ListingStatus) Code() string {
	switch s {
	case ListingStatusListed:
		return "listed"
	case ListingStatusWithdrawn:
		return "withdrawn"
	case ListingStatusPendingPurchase:
		return "pending_purchase"
	case ListingStatusPaymentPending:
		return "payment_pending"
	case ListingStatusPaid:
		return "paid"
	}
	return "unknown"
}

const MaxListingImages = 3

// Categories offered by the listing form.
var Categories = []string{"衣類", "雑貨", "本", "その他"}

type Listing struct {
	ID          string
	Title       string
	Price       int64
	Description string
	Category    string
	Condition   string
	Images      []string
	SellerID    string
	SellerName  string
	CreatedAt   time.Time
	BuyerID     string
	BuyerName   string
	PurchasedAt *time.Time
	Status      ListingStatus
}

// HasBuyer reports whether all buyer fields are set.
func (l *Listing) HasBuyer() bool {
	return l.BuyerID != "" && l.BuyerName != "" && l.PurchasedAt != nil
}

// BuyerFieldsConsistent reports whether buyer fields are all set or all unset.
func (l *Listing) BuyerFieldsConsistent() bool {
	set := 0
	if l.BuyerID != "" {
		set++
	}
	if l.BuyerName != "" {
		set++
	}
	if l.PurchasedAt != nil {
		set++
	}
	return set == 0 || set == 3
}
