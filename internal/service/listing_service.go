package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shinyyama/fleamarket-backend/internal/model"
	"github.com/shinyyama/fleamarket-backend/internal/repository"
)

type CreateListingInput struct {
	Title       string
	Price       int64
	Description string
	Category    string
	Condition   string
	Images      []string
}

type BrowseQuery struct {
	Category string
	Keyword  string
	Limit    int
	Offset   int
}

type ListingService interface {
	Create(ctx context.Context, seller Actor, in CreateListingInput) (*model.Listing, error)
	Get(ctx context.Context, id string) (*model.Listing, error)
	// Browse returns listings on sale, newest first, and the total before paging.
	Browse(ctx context.Context, q BrowseQuery) ([]model.Listing, int, error)
	ListBySeller(ctx context.Context, sellerID string) ([]model.Listing, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]model.Listing, error)
}

type listingService struct {
	repo  repository.ListingRepository
	now   func() time.Time
	newID func() string
}

func NewListingService(repo repository.ListingRepository) ListingService {
	return &listingService{repo: repo, now: time.Now, newID: uuid.NewString}
}

func (s *listingService) Create(ctx context.Context, seller Actor, in CreateListingInput) (*model.Listing, error) {
	if seller.ID == "" {
		return nil, ErrUnauthorized
	}
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	if in.Price < 0 {
		return nil, invalid("price must not be negative")
	}
	if err := validateCategory(in.Category); err != nil {
		return nil, err
	}
	if err := validateImages(in.Images); err != nil {
		return nil, err
	}

	l := &model.Listing{
		ID:          s.newID(),
		Title:       strings.TrimSpace(in.Title),
		Price:       in.Price,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Condition:   strings.TrimSpace(in.Condition),
		Images:      cleanImages(in.Images),
		SellerID:    seller.ID,
		SellerName:  seller.DisplayName(),
		CreatedAt:   s.now(),
		Status:      model.ListingStatusListed,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, unavailable(err)
	}
	return l, nil
}

func (s *listingService) Get(ctx context.Context, id string) (*model.Listing, error) {
	l, _, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return l, nil
}

func (s *listingService) list(ctx context.Context, keep func(*model.Listing) bool) ([]model.Listing, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]model.Listing, 0, len(all))
	for i := range all {
		if keep(&all[i]) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (s *listingService) Browse(ctx context.Context, q BrowseQuery) ([]model.Listing, int, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	category := strings.TrimSpace(q.Category)
	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))
	list, err := s.list(ctx, func(l *model.Listing) bool {
		if l.Status != model.ListingStatusListed {
			return false
		}
		if category != "" && l.Category != category {
			return false
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(l.Title), keyword) &&
			!strings.Contains(strings.ToLower(l.Description), keyword) {
			return false
		}
		return true
	})
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	total := len(list)
	if q.Offset >= total {
		return []model.Listing{}, total, nil
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return list[q.Offset:end], total, nil
}

func (s *listingService) ListBySeller(ctx context.Context, sellerID string) ([]model.Listing, error) {
	if sellerID == "" {
		return nil, ErrUnauthorized
	}
	list, err := s.list(ctx, func(l *model.Listing) bool { return l.SellerID == sellerID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (s *listingService) ListByBuyer(ctx context.Context, buyerID string) ([]model.Listing, error) {
	if buyerID == "" {
		return nil, ErrUnauthorized
	}
	list, err := s.list(ctx, func(l *model.Listing) bool { return l.BuyerID == buyerID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return purchasedAt(&list[i]).After(purchasedAt(&list[j]))
	})
	return list, nil
}

func purchasedAt(l *model.Listing) time.Time {
	if l.PurchasedAt == nil {
		return time.Time{}
	}
	return *l.PurchasedAt
}
