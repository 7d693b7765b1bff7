package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shinyyama/fleamarket-backend/internal/model"
	"github.com/shinyyama/fleamarket-backend/internal/repository"
	"github.com/shinyyama/fleamarket-backend/internal/reqctx"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrStoreUnavailable  = errors.New("store_unavailable")
	ErrLostRace          = errors.New("lost_race")
	ErrPartiallyApplied  = errors.New("partially_applied")

	ErrImmutable    = fmt.Errorf("%w: listing is paid", ErrInvalidTransition)
	ErrAlreadyTaken = fmt.Errorf("%w: already taken", ErrInvalidTransition)
	ErrOwnListing   = fmt.Errorf("%w: cannot buy your own listing", ErrInvalidTransition)
)

// Actor is the caller an operation is performed for.
type Actor struct {
	ID   string
	Name string
}

// DisplayName falls back to the id when no name is known.
func (a Actor) DisplayName() string {
	if n := strings.TrimSpace(a.Name); n != "" {
		return n
	}
	return a.ID
}

// Notifier delivers best-effort messages to users. Failures are logged by the
// implementation and never returned.
type Notifier interface {
	Notify(ctx context.Context, recipients []string, subject, body string)
}

// ListingPatch holds the descriptive fields a seller may change. Nil means unchanged.
type ListingPatch struct {
	Title       *string
	Description *string
	Category    *string
	Condition   *string
	Images      *[]string
}

type LifecycleService interface {
	Claim(ctx context.Context, listingID string, actor Actor) (*model.Listing, error)
	ConfirmPayment(ctx context.Context, listingID string, actor Actor) (*model.Listing, error)
	// MarkPaid records the external payment confirmation.
	MarkPaid(ctx context.Context, listingID string) (*model.Listing, error)
	Withdraw(ctx context.Context, listingID string, actor Actor) (*model.Listing, error)
	Restore(ctx context.Context, listingID string, actor Actor) (*model.Listing, error)
	EditFields(ctx context.Context, listingID string, actor Actor, patch ListingPatch) (*model.Listing, error)
}

type lifecycleService struct {
	repo     repository.ListingRepository
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

func NewLifecycleService(repo repository.ListingRepository, notifier Notifier, loc *time.Location) LifecycleService {
	if loc == nil {
		loc = time.UTC
	}
	return &lifecycleService{repo: repo, notifier: notifier, loc: loc, now: time.Now}
}

func lifecycleLog(ctx context.Context, format string, args ...interface{}) {
	args = append([]interface{}{reqctx.RID(ctx), reqctx.ListingID(ctx)}, args...)
	log.Printf("[lifecycle] rid=%s listing=%s "+format, args...)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// load re-reads the catalog. A missing id is a definite NotFound.
func (s *lifecycleService) load(ctx context.Context, id string) (*model.Listing, int, error) {
	l, row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrListingNotFound) {
			return nil, -1, ErrNotFound
		}
		return nil, -1, unavailable(err)
	}
	if !l.Status.Valid() {
		return nil, -1, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, l.Status)
	}
	return l, row, nil
}

func (s *lifecycleService) reload(ctx context.Context, id string) (*model.Listing, error) {
	l, _, err := s.load(ctx, id)
	return l, err
}

func (s *lifecycleService) Claim(ctx context.Context, listingID string, actor Actor) (*model.Listing, error) {
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}
	ctx = reqctx.WithListingID(ctx, listingID)
	l, row, err := s.load(ctx, listingID)
	if err != nil {
		return nil, err
	}
	switch l.Status {
	case model.ListingStatusListed:
	case model.ListingStatusPaid:
		return nil, ErrImmutable
	case model.ListingStatusPendingPurchase, model.ListingStatusPaymentPending:
		if l.BuyerID == actor.ID {
			lifecycleLog(ctx, "actor=%s stage=claim_reentry status=%s", actor.ID, l.Status.Code())
			return l, nil
		}
		return nil, ErrAlreadyTaken
	default:
		return nil, fmt.Errorf("%w: listing is %s", ErrInvalidTransition, l.Status.Code())
	}
	if l.SellerID == actor.ID {
		return nil, ErrOwnListing
	}

	cells := []repository.Cell{
		{Field: model.FieldBuyerID, Value: actor.ID},
		{Field: model.FieldBuyerName, Value: actor.DisplayName()},
		{Field: model.FieldPurchasedAt, Value: repository.FormatTime(s.now(), s.loc)},
		{Field: model.FieldStatus, Value: string(model.ListingStatusPendingPurchase)},
	}
	if err := s.repo.WriteCells(ctx, row, cells); err != nil {
		return nil, s.compensateClaim(ctx, listingID, actor, cells, err)
	}

	fresh, err := s.reload(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if fresh.BuyerID != actor.ID || fresh.BuyerName != actor.DisplayName() {
		lifecycleLog(ctx, "actor=%s stage=claim_lost winner=%s", actor.ID, fresh.BuyerID)
		return nil, ErrLostRace
	}
	if fresh.Status != model.ListingStatusPendingPurchase && fresh.Status != model.ListingStatusPaymentPending {
		lifecycleLog(ctx, "actor=%s stage=claim_lost status=%s", actor.ID, fresh.Status.Code())
		return nil, ErrLostRace
	}
	lifecycleLog(ctx, "actor=%s stage=claim_ok", actor.ID)
	return fresh, nil
}

// compensateClaim undoes the buyer cells a failed claim managed to write. The
// row is re-read first: cells another claimant has since overwritten are left
// alone, and nothing is cleared once a purchase status is on the row.
func (s *lifecycleService) compensateClaim(ctx context.Context, listingID string, actor Actor, cells []repository.Cell, writeErr error) error {
	applied := 0
	var we *repository.WriteError
	if errors.As(writeErr, &we) {
		applied = we.Applied
	}
	if applied == 0 {
		lifecycleLog(ctx, "stage=claim_write err=%v", writeErr)
		return unavailable(writeErr)
	}

	cctx, cancel := withShortDeadline(context.WithoutCancel(ctx))
	defer cancel()
	fresh, freshRow, err := s.repo.FindByID(cctx, listingID)
	if err != nil {
		lifecycleLog(ctx, "stage=claim_cleanup_read applied=%d err=%v read_err=%v", applied, writeErr, err)
		return fmt.Errorf("%w: claim wrote %d cells before %v; re-read: %w", ErrPartiallyApplied, applied, writeErr, err)
	}
	if fresh.BuyerID != actor.ID {
		lifecycleLog(ctx, "stage=claim_cleanup_skipped applied=%d winner=%s err=%v", applied, fresh.BuyerID, writeErr)
		return fmt.Errorf("%w: %w", ErrLostRace, writeErr)
	}
	if !fresh.Status.Editable() {
		// the purchase status belongs to another claim; clearing our buyer
		// cells would leave it with no buyer
		lifecycleLog(ctx, "stage=claim_cleanup_blocked applied=%d status=%s err=%v", applied, fresh.Status.Code(), writeErr)
		return fmt.Errorf("%w: claim wrote %d cells before %v onto a %s row", ErrPartiallyApplied, applied, writeErr, fresh.Status.Code())
	}

	current := repository.EncodeListing(fresh, s.loc)
	cleanup := make([]repository.Cell, 0, applied)
	for i := applied - 1; i >= 0; i-- {
		if current[cells[i].Field] == cells[i].Value {
			cleanup = append(cleanup, repository.Cell{Field: cells[i].Field, Value: ""})
		}
	}
	if err := s.repo.WriteCells(cctx, freshRow, cleanup); err != nil {
		lifecycleLog(ctx, "stage=claim_cleanup_failed applied=%d err=%v cleanup_err=%v", applied, writeErr, err)
		return fmt.Errorf("%w: claim wrote %d cells before %v; cleanup: %w", ErrPartiallyApplied, applied, writeErr, err)
	}
	lifecycleLog(ctx, "stage=claim_rolled_back applied=%d cleared=%d err=%v", applied, len(cleanup), writeErr)
	return unavailable(writeErr)
}

func (s *lifecycleService) ConfirmPayment(ctx context.Context, listingID string, actor Actor) (*model.Listing, error) {
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}
	ctx = reqctx.WithListingID(ctx, listingID)
	l, row, err := s.load(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.Status == model.ListingStatusPaid {
		return nil, ErrImmutable
	}
	if l.Status != model.ListingStatusPendingPurchase {
		return nil, fmt.Errorf("%w: listing is %s", ErrInvalidTransition, l.Status.Code())
	}
	if l.BuyerID != actor.ID {
		return nil, ErrUnauthorized
	}
	if err := s.writeStatus(ctx, row, model.ListingStatusPaymentPending); err != nil {
		return nil, err
	}
	lifecycleLog(ctx, "actor=%s stage=payment_reported", actor.ID)
	return s.reload(ctx, listingID)
}

func (s *lifecycleService) MarkPaid(ctx context.Context, listingID string) (*model.Listing, error) {
	ctx = reqctx.WithListingID(ctx, listingID)
	l, row, err := s.load(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.Status == model.ListingStatusPaid {
		return nil, ErrImmutable
	}
	if l.Status != model.ListingStatusPaymentPending {
		return nil, fmt.Errorf("%w: listing is %s", ErrInvalidTransition, l.Status.Code())
	}
	if err := s.writeStatus(ctx, row, model.ListingStatusPaid); err != nil {
		return nil, err
	}
	fresh, err := s.reload(ctx, listingID)
	if err != nil {
		// the transition landed; notify from what we read before the write
		fresh = l
		fresh.Status = model.ListingStatusPaid
		lifecycleLog(ctx, "stage=paid_reload err=%v", err)
	}
	lifecycleLog(ctx, "stage=paid")
	s.notifyPaid(ctx, fresh)
	return fresh, nil
}

func (s *lifecycleService) notifyPaid(ctx context.Context, l *model.Listing) {
	if s.notifier == nil {
		return
	}
	subject := fmt.Sprintf("【フリマ】支払いが確認されました: %s", l.Title)
	body := fmt.Sprintf("「%s」（%d円）の支払いが確認されました。\n出品者: %s さん\n購入者: %s さん\n\n受け渡し方法は当事者間でご相談ください。",
		l.Title, l.Price, l.SellerName, l.BuyerName)
	nctx, cancel := withShortDeadline(context.WithoutCancel(ctx))
	defer cancel()
	s.notifier.Notify(nctx, []string{l.SellerID, l.BuyerID}, subject, body)
}

func (s *lifecycleService) Withdraw(ctx context.Context, listingID string, actor Actor) (*model.Listing, error) {
	return s.toggle(ctx, listingID, actor, model.ListingStatusListed, model.ListingStatusWithdrawn)
}

func (s *lifecycleService) Restore(ctx context.Context, listingID string, actor Actor) (*model.Listing, error) {
	return s.toggle(ctx, listingID, actor, model.ListingStatusWithdrawn, model.ListingStatusListed)
}

func (s *lifecycleService) toggle(ctx context.Context, listingID string, actor Actor, from, to model.ListingStatus) (*model.Listing, error) {
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}
	ctx = reqctx.WithListingID(ctx, listingID)
	l, row, err := s.load(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.Status == model.ListingStatusPaid {
		return nil, ErrImmutable
	}
	if l.SellerID != actor.ID {
		return nil, ErrUnauthorized
	}
	if l.Status != from {
		return nil, fmt.Errorf("%w: listing is %s", ErrInvalidTransition, l.Status.Code())
	}
	if err := s.writeStatus(ctx, row, to); err != nil {
		return nil, err
	}
	lifecycleLog(ctx, "actor=%s stage=%s", actor.ID, to.Code())
	return s.reload(ctx, listingID)
}

func (s *lifecycleService) EditFields(ctx context.Context, listingID string, actor Actor, patch ListingPatch) (*model.Listing, error) {
	if actor.ID == "" {
		return nil, ErrUnauthorized
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	ctx = reqctx.WithListingID(ctx, listingID)
	l, row, err := s.load(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l.Status == model.ListingStatusPaid {
		return nil, ErrImmutable
	}
	if l.SellerID != actor.ID {
		return nil, ErrUnauthorized
	}
	if !l.Status.Editable() {
		return nil, fmt.Errorf("%w: listing is %s", ErrInvalidTransition, l.Status.Code())
	}

	cells := patchCells(l, patch)
	if len(cells) == 0 {
		return l, nil
	}
	if err := s.repo.WriteCells(ctx, row, cells); err != nil {
		var we *repository.WriteError
		if errors.As(err, &we) && we.Applied > 0 {
			lifecycleLog(ctx, "actor=%s stage=edit_partial applied=%d err=%v", actor.ID, we.Applied, err)
			return nil, fmt.Errorf("%w: edit wrote %d of %d cells: %w", ErrPartiallyApplied, we.Applied, len(cells), err)
		}
		return nil, unavailable(err)
	}
	lifecycleLog(ctx, "actor=%s stage=edit cells=%d", actor.ID, len(cells))
	return s.reload(ctx, listingID)
}

// patchCells returns only the cells whose value differs from the fresh listing.
func patchCells(l *model.Listing, p ListingPatch) []repository.Cell {
	var cells []repository.Cell
	set := func(field, current string, next *string) {
		if next == nil {
			return
		}
		v := strings.TrimSpace(*next)
		if v != current {
			cells = append(cells, repository.Cell{Field: field, Value: v})
		}
	}
	set(model.FieldTitle, l.Title, p.Title)
	set(model.FieldDescription, l.Description, p.Description)
	set(model.FieldCategory, l.Category, p.Category)
	set(model.FieldCondition, l.Condition, p.Condition)
	if p.Images != nil {
		next := cleanImages(*p.Images)
		for i, f := range model.ImageFields {
			cur, v := "", ""
			if i < len(l.Images) {
				cur = l.Images[i]
			}
			if i < len(next) {
				v = next[i]
			}
			if cur != v {
				cells = append(cells, repository.Cell{Field: f, Value: v})
			}
		}
	}
	return cells
}

func (s *lifecycleService) writeStatus(ctx context.Context, row int, to model.ListingStatus) error {
	err := s.repo.WriteCells(ctx, row, []repository.Cell{{Field: model.FieldStatus, Value: string(to)}})
	if err != nil {
		lifecycleLog(ctx, "stage=write_status to=%s err=%v", to.Code(), err)
		return unavailable(err)
	}
	return nil
}
