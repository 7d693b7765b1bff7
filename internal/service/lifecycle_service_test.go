package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shinyyama/fleamarket-backend/internal/catalog"
	"github.com/shinyyama/fleamarket-backend/internal/model"
	"github.com/shinyyama/fleamarket-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jst      = time.FixedZone("JST", 9*60*60)
	fixedNow = time.Date(2025, 6, 2, 12, 30, 0, 0, jst)

	seller = Actor{ID: "s1", Name: "佐藤"}
	buyerA = Actor{ID: "a", Name: "鈴木"}
	buyerB = Actor{ID: "b", Name: "高橋"}
)

func listedRow(id string) map[string]string {
	return map[string]string{
		model.FieldID:         id,
		model.FieldTitle:      "文庫本セット",
		model.FieldPrice:      "500",
		model.FieldSellerID:   seller.ID,
		model.FieldSellerName: seller.Name,
		model.FieldCreatedAt:  "2025-06-01 10:00:00",
		model.FieldCategory:   "本",
		model.FieldImage:      "https://img.example.com/1.png",
		model.FieldStatus:     string(model.ListingStatusListed),
	}
}

func rowWithStatus(id string, status model.ListingStatus, buyer *Actor) map[string]string {
	r := listedRow(id)
	r[model.FieldStatus] = string(status)
	if buyer != nil {
		r[model.FieldBuyerID] = buyer.ID
		r[model.FieldBuyerName] = buyer.Name
		r[model.FieldPurchasedAt] = "2025-06-02 09:00:00"
	}
	return r
}

type notifyCall struct {
	recipients []string
	subject    string
	body       string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (n *recordingNotifier) Notify(ctx context.Context, recipients []string, subject, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{recipients: recipients, subject: subject, body: body})
}

func newLifecycle(store catalog.Store, n Notifier) LifecycleService {
	svc := NewLifecycleService(repository.NewListingRepository(store, jst), n, jst).(*lifecycleService)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func cellsOf(t *testing.T, store *catalog.MemoryStore, idx int) map[string]string {
	t.Helper()
	rows, err := store.FetchAll(context.Background())
	require.NoError(t, err)
	require.Greater(t, len(rows), idx)
	return rows[idx].Cells
}

func TestLifecycle_FullScenario(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore(listedRow("L0"), listedRow("L1"))
	notifier := &recordingNotifier{}
	svc := newLifecycle(store, notifier)

	l, err := svc.Claim(ctx, "L1", buyerA)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusPendingPurchase, l.Status)
	assert.Equal(t, "a", l.BuyerID)
	assert.True(t, l.HasBuyer())
	row := cellsOf(t, store, 1)
	assert.Equal(t, "鈴木", row[model.FieldBuyerName])
	assert.Equal(t, "2025-06-02 12:30:00", row[model.FieldPurchasedAt])
	assert.Equal(t, "", cellsOf(t, store, 0)[model.FieldBuyerID])
	assert.Equal(t, 4, store.Writes())

	// same buyer re-entering the purchase flow writes nothing
	l, err = svc.Claim(ctx, "L1", buyerA)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusPendingPurchase, l.Status)
	assert.Equal(t, 4, store.Writes())

	_, err = svc.Claim(ctx, "L1", buyerB)
	assert.ErrorIs(t, err, ErrAlreadyTaken)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "a", cellsOf(t, store, 1)[model.FieldBuyerID])

	l, err = svc.ConfirmPayment(ctx, "L1", buyerA)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusPaymentPending, l.Status)

	l, err = svc.MarkPaid(ctx, "L1")
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusPaid, l.Status)
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, []string{"s1", "a"}, notifier.calls[0].recipients)
	assert.Contains(t, notifier.calls[0].subject, "文庫本セット")
	assert.Contains(t, notifier.calls[0].body, "500円")

	writes := store.Writes()
	_, err = svc.Withdraw(ctx, "L1", seller)
	assert.ErrorIs(t, err, ErrImmutable)
	_, err = svc.Claim(ctx, "L1", buyerB)
	assert.ErrorIs(t, err, ErrImmutable)
	_, err = svc.MarkPaid(ctx, "L1")
	assert.ErrorIs(t, err, ErrImmutable)
	_, err = svc.EditFields(ctx, "L1", seller, ListingPatch{Title: strPtr("新")})
	assert.ErrorIs(t, err, ErrImmutable)
	assert.Equal(t, writes, store.Writes())
}

func TestClaim_Guards(t *testing.T) {
	tests := []struct {
		name    string
		row     map[string]string
		actor   Actor
		wantErr error
	}{
		{"own listing", listedRow("L"), seller, ErrOwnListing},
		{"withdrawn", rowWithStatus("L", model.ListingStatusWithdrawn, nil), buyerA, ErrInvalidTransition},
		{"taken by other", rowWithStatus("L", model.ListingStatusPendingPurchase, &buyerB), buyerA, ErrAlreadyTaken},
		{"awaiting payment by other", rowWithStatus("L", model.ListingStatusPaymentPending, &buyerB), buyerA, ErrAlreadyTaken},
		{"paid", rowWithStatus("L", model.ListingStatusPaid, &buyerB), buyerA, ErrImmutable},
		{"unknown status", rowWithStatus("L", "売り切れ", nil), buyerA, ErrInvalidTransition},
		{"anonymous", listedRow("L"), Actor{}, ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := catalog.NewMemoryStore(tt.row)
			svc := newLifecycle(store, nil)
			_, err := svc.Claim(context.Background(), "L", tt.actor)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, store.Writes())
		})
	}
}

func TestClaim_ReentryWhileAwaitingPayment(t *testing.T) {
	store := catalog.NewMemoryStore(rowWithStatus("L", model.ListingStatusPaymentPending, &buyerA))
	svc := newLifecycle(store, nil)
	l, err := svc.Claim(context.Background(), "L", buyerA)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusPaymentPending, l.Status)
	assert.Equal(t, 0, store.Writes())
}

func TestClaim_NameFallsBackToID(t *testing.T) {
	store := catalog.NewMemoryStore(listedRow("L"))
	svc := newLifecycle(store, nil)
	l, err := svc.Claim(context.Background(), "L", Actor{ID: "u9"})
	require.NoError(t, err)
	assert.Equal(t, "u9", l.BuyerName)
}

func TestOperations_UnknownID(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore(listedRow("L"))
	svc := newLifecycle(store, nil)

	_, err := svc.Claim(ctx, "missing", buyerA)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.ConfirmPayment(ctx, "missing", buyerA)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.MarkPaid(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Withdraw(ctx, "missing", seller)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Restore(ctx, "missing", seller)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.EditFields(ctx, "missing", seller, ListingPatch{Title: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.Writes())
}

func TestClaim_SequentialRace(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore(listedRow("L"))
	svc := newLifecycle(store, nil)

	_, err := svc.Claim(ctx, "L", buyerA)
	require.NoError(t, err)
	_, err = svc.Claim(ctx, "L", buyerB)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "a", cellsOf(t, store, 0)[model.FieldBuyerID])
}

func TestClaim_LostRaceDetectedAfterWrite(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore(listedRow("L"))
	fired := false
	store.SetWriteHook(func(row int, field, value string) error {
		// another buyer's claim lands between our buyer write and our status write
		if field == model.FieldStatus && !fired {
			fired = true
			return store.WriteCell(ctx, row, model.FieldBuyerID, buyerB.ID)
		}
		return nil
	})
	svc := newLifecycle(store, nil)

	_, err := svc.Claim(ctx, "L", buyerA)
	assert.ErrorIs(t, err, ErrLostRace)
	assert.Equal(t, "b", cellsOf(t, store, 0)[model.FieldBuyerID])
}

func TestClaim_ConcurrentClaimsLastBuyerWins(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore(listedRow("L"))
	svc := newLifecycle(store, nil)

	actors := []Actor{buyerA, buyerB}
	errs := make([]error, len(actors))
	var wg sync.WaitGroup
	for i, a := range actors {
		wg.Add(1)
		go func(i int, a Actor) {
			defer wg.Done()
			_, errs[i] = svc.Claim(ctx, "L", a)
		}(i, a)
	}
	wg.Wait()

	l, _, err := repository.NewListingRepository(store, jst).FindByID(ctx, "L")
	require.NoError(t, err)
	assert.True(t, l.BuyerFieldsConsistent())
	assert.True(t, l.HasBuyer())
	final := l.BuyerID
	require.Contains(t, []string{"a", "b"}, final)
	for i, a := range actors {
		if a.ID == final && a.DisplayName() == l.BuyerName {
			assert.NoError(t, errs[i], "holder of the row must succeed")
			continue
		}
		if errs[i] != nil {
			assert.True(t, errors.Is(errs[i], ErrLostRace) || errors.Is(errs[i], ErrInvalidTransition), "unexpected error %v", errs[i])
		}
	}
	assert.Equal(t, string(model.ListingStatusPendingPurchase), cellsOf(t, store, 0)[model.FieldStatus])
}

func TestClaim_FirstWriteFails(t *testing.T) {
	store := catalog.NewMemoryStore(listedRow("L"))
	boom := errors.New("503 backend error")
	store.SetWriteHook(func(row int, field, value string) error { return boom })
	svc := newLifecycle(store, nil)

	_, err := svc.Claim(context.Background(), "L", buyerA)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Writes())
}

func TestClaim_PartialWriteIsRolledBack(t *testing.T) {
	store := catalog.NewMemoryStore(listedRow("L"))
	boom := errors.New("quota exceeded")
	store.SetWriteHook(func(row int, field, value string) error {
		if field == model.FieldPurchasedAt {
			return boom
		}
		return nil
	})
	svc := newLifecycle(store, nil)

	_, err := svc.Claim(context.Background(), "L", buyerA)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrPartiallyApplied)

	row := cellsOf(t, store, 0)
	assert.Equal(t, "", row[model.FieldBuyerID])
	assert.Equal(t, "", row[model.FieldBuyerName])
	assert.Equal(t, string(model.ListingStatusListed), row[model.FieldStatus])

	// a retry after the outage succeeds
	store.SetWriteHook(nil)
	l, err := svc.Claim(context.Background(), "L", buyerA)
	require.NoError(t, err)
	assert.True(t, l.BuyerFieldsConsistent())
}

func TestClaim_RollbackKeepsConcurrentWinner(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore(listedRow("L"))
	svc := newLifecycle(store, nil)
	boom := errors.New("503 backend error")

	// buyer B's whole claim lands right before A's status write, which then fails
	var bErr error
	fired := false
	store.SetWriteHook(func(row int, field, value string) error {
		if field == model.FieldStatus && !fired {
			fired = true
			_, bErr = svc.Claim(ctx, "L", buyerB)
			return boom
		}
		return nil
	})

	_, err := svc.Claim(ctx, "L", buyerA)
	assert.ErrorIs(t, err, ErrLostRace)
	assert.ErrorIs(t, err, boom)
	require.NoError(t, bErr)

	l, _, err := repository.NewListingRepository(store, jst).FindByID(ctx, "L")
	require.NoError(t, err)
	assert.Equal(t, "b", l.BuyerID)
	assert.Equal(t, buyerB.Name, l.BuyerName)
	assert.True(t, l.HasBuyer())
	assert.Equal(t, model.ListingStatusPendingPurchase, l.Status)

	store.SetWriteHook(nil)
	_, err = svc.Claim(ctx, "L", buyerB)
	require.NoError(t, err)
	paid, err := svc.ConfirmPayment(ctx, "L", buyerB)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusPaymentPending, paid.Status)
}

func TestClaim_RollbackLeavesPurchaseStatusWithBuyer(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore(listedRow("L"))
	svc := newLifecycle(store, nil)
	boom := errors.New("503 backend error")

	// B claims between A's read and A's first write; A then overwrites the
	// buyer id and name and fails on the timestamp
	var bErr error
	fired, failTime := false, false
	store.SetWriteHook(func(row int, field, value string) error {
		if field == model.FieldBuyerID && value == buyerA.ID && !fired {
			fired = true
			_, bErr = svc.Claim(ctx, "L", buyerB)
			failTime = true
			return nil
		}
		if field == model.FieldPurchasedAt && failTime {
			return boom
		}
		return nil
	})

	_, err := svc.Claim(ctx, "L", buyerA)
	assert.ErrorIs(t, err, ErrPartiallyApplied)
	require.NoError(t, bErr)

	l, _, err := repository.NewListingRepository(store, jst).FindByID(ctx, "L")
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusPendingPurchase, l.Status)
	assert.Equal(t, "a", l.BuyerID)
	assert.True(t, l.HasBuyer(), "a purchase status must never be left without a buyer")
}

func TestClaim_LostRaceOnBuyerName(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore(listedRow("L"))
	fired := false
	store.SetWriteHook(func(row int, field, value string) error {
		if field == model.FieldStatus && !fired {
			fired = true
			return store.WriteCell(ctx, row, model.FieldBuyerName, buyerB.Name)
		}
		return nil
	})
	svc := newLifecycle(store, nil)

	_, err := svc.Claim(ctx, "L", buyerA)
	assert.ErrorIs(t, err, ErrLostRace)
}

func TestClaim_FailedCleanupReportsPartiallyApplied(t *testing.T) {
	store := catalog.NewMemoryStore(listedRow("L"))
	boom := errors.New("quota exceeded")
	store.SetWriteHook(func(row int, field, value string) error {
		if field == model.FieldPurchasedAt || (field == model.FieldBuyerName && value == "") {
			return boom
		}
		return nil
	})
	svc := newLifecycle(store, nil)

	_, err := svc.Claim(context.Background(), "L", buyerA)
	assert.ErrorIs(t, err, ErrPartiallyApplied)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
}

func TestOperations_StoreUnavailableOnRead(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore(listedRow("L"))
	store.SetFetchHook(func() error { return errors.New("connection reset") })
	svc := newLifecycle(store, nil)

	_, err := svc.Claim(ctx, "L", buyerA)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = svc.Withdraw(ctx, "L", seller)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 0, store.Writes())
}

func TestConfirmPayment_Guards(t *testing.T) {
	tests := []struct {
		name    string
		row     map[string]string
		actor   Actor
		wantErr error
	}{
		{"listed", listedRow("L"), buyerA, ErrInvalidTransition},
		{"other buyer", rowWithStatus("L", model.ListingStatusPendingPurchase, &buyerB), buyerA, ErrUnauthorized},
		{"already reported", rowWithStatus("L", model.ListingStatusPaymentPending, &buyerA), buyerA, ErrInvalidTransition},
		{"paid", rowWithStatus("L", model.ListingStatusPaid, &buyerA), buyerA, ErrImmutable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := catalog.NewMemoryStore(tt.row)
			svc := newLifecycle(store, nil)
			before := cellsOf(t, store, 0)[model.FieldStatus]
			_, err := svc.ConfirmPayment(context.Background(), "L", tt.actor)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, cellsOf(t, store, 0)[model.FieldStatus])
			assert.Equal(t, 0, store.Writes())
		})
	}
}

func TestMarkPaid_RequiresPaymentPending(t *testing.T) {
	store := catalog.NewMemoryStore(rowWithStatus("L", model.ListingStatusPendingPurchase, &buyerA))
	notifier := &recordingNotifier{}
	svc := newLifecycle(store, notifier)

	_, err := svc.MarkPaid(context.Background(), "L")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, notifier.calls)
}

func TestWithdrawRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore(listedRow("L"))
	svc := newLifecycle(store, nil)

	_, err := svc.Withdraw(ctx, "L", buyerA)
	assert.ErrorIs(t, err, ErrUnauthorized)

	l, err := svc.Withdraw(ctx, "L", seller)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusWithdrawn, l.Status)

	_, err = svc.Withdraw(ctx, "L", seller)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Claim(ctx, "L", buyerA)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	l, err = svc.Restore(ctx, "L", seller)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusListed, l.Status)
	assert.Equal(t, 2, store.Writes())

	_, err = svc.Restore(ctx, "L", seller)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestWithdraw_LockedDuringSale(t *testing.T) {
	store := catalog.NewMemoryStore(rowWithStatus("L", model.ListingStatusPendingPurchase, &buyerA))
	svc := newLifecycle(store, nil)
	_, err := svc.Withdraw(context.Background(), "L", seller)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEditFields(t *testing.T) {
	ctx := context.Background()
	store := catalog.NewMemoryStore(listedRow("L"))
	svc := newLifecycle(store, nil)

	_, err := svc.EditFields(ctx, "L", buyerA, ListingPatch{Title: strPtr("x")})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.EditFields(ctx, "L", seller, ListingPatch{Category: strPtr("家電")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// unchanged values write nothing
	_, err = svc.EditFields(ctx, "L", seller, ListingPatch{Title: strPtr(" 文庫本セット ")})
	require.NoError(t, err)
	assert.Equal(t, 0, store.Writes())

	images := []string{"https://img.example.com/1.png", "https://img.example.com/2.png"}
	l, err := svc.EditFields(ctx, "L", seller, ListingPatch{
		Title:       strPtr("文庫本セット（10冊）"),
		Description: strPtr("小説中心"),
		Images:      &images,
	})
	require.NoError(t, err)
	assert.Equal(t, "文庫本セット（10冊）", l.Title)
	assert.Equal(t, images, l.Images)
	assert.Equal(t, int64(500), l.Price)
	assert.Equal(t, 3, store.Writes())

	withdrawn := catalog.NewMemoryStore(rowWithStatus("W", model.ListingStatusWithdrawn, nil))
	l, err = newLifecycle(withdrawn, nil).EditFields(ctx, "W", seller, ListingPatch{Condition: strPtr("未使用")})
	require.NoError(t, err)
	assert.Equal(t, "未使用", l.Condition)
}

func TestEditFields_LockedDuringSale(t *testing.T) {
	store := catalog.NewMemoryStore(rowWithStatus("L", model.ListingStatusPaymentPending, &buyerA))
	svc := newLifecycle(store, nil)
	_, err := svc.EditFields(context.Background(), "L", seller, ListingPatch{Title: strPtr("x")})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 0, store.Writes())
}

func TestEditFields_PartialWrite(t *testing.T) {
	store := catalog.NewMemoryStore(listedRow("L"))
	store.SetWriteHook(func(row int, field, value string) error {
		if field == model.FieldDescription {
			return errors.New("timeout")
		}
		return nil
	})
	svc := newLifecycle(store, nil)
	_, err := svc.EditFields(context.Background(), "L", seller, ListingPatch{Title: strPtr("新"), Description: strPtr("新しい説明")})
	assert.ErrorIs(t, err, ErrPartiallyApplied)
}

func strPtr(s string) *string {
	return &s
}
