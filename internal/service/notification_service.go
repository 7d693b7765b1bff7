package service

import (
	"context"
	"log"
	"time"

	"github.com/shinyyama/fleamarket-backend/internal/directory"
	"github.com/shinyyama/fleamarket-backend/internal/email"
	"github.com/shinyyama/fleamarket-backend/internal/model"
	"github.com/shinyyama/fleamarket-backend/internal/repository"
	"github.com/shinyyama/fleamarket-backend/internal/reqctx"
)

const NotificationTypeListing = "listing"

type NotificationService interface {
	Notifier
	List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error)
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByListing(ctx context.Context, userUID, listingID string) error
}

type notificationService struct {
	repo   repository.NotificationRepository
	dir    directory.Directory
	sender email.Sender
	from   string
	now    func() time.Time
}

// NewNotificationService records in-app notifications when repo is set and
// emails recipients when both dir and sender are set.
func NewNotificationService(repo repository.NotificationRepository, dir directory.Directory, sender email.Sender, from string) NotificationService {
	return &notificationService{repo: repo, dir: dir, sender: sender, from: from, now: time.Now}
}

// Notify is best-effort; it logs errors but does not return them to avoid breaking main flows.
func (s *notificationService) Notify(ctx context.Context, recipients []string, subject, body string) {
	listingID := reqctx.ListingID(ctx)
	seen := make(map[string]bool, len(recipients))
	for _, uid := range recipients {
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		s.record(ctx, uid, listingID, subject, body)
		s.mail(ctx, uid, subject, body)
	}
}

func (s *notificationService) record(ctx context.Context, uid, listingID, subject, body string) {
	if s.repo == nil {
		return
	}
	n := &model.Notification{
		UserUID: uid,
		Type:    NotificationTypeListing,
		Title:   subject,
		Body:    body,
	}
	if listingID != "" {
		n.ListingID = &listingID
	}
	if err := s.repo.Create(ctx, n); err != nil {
		log.Printf("[notify] rid=%s listing=%s user=%s stage=record err=%v", reqctx.RID(ctx), listingID, uid, err)
	}
}

func (s *notificationService) mail(ctx context.Context, uid, subject, body string) {
	if s.dir == nil || s.sender == nil {
		return
	}
	p, err := s.dir.Lookup(ctx, uid)
	if err != nil {
		log.Printf("[notify] rid=%s user=%s stage=lookup err=%v", reqctx.RID(ctx), uid, err)
		return
	}
	if p.Email == "" {
		log.Printf("[notify] rid=%s user=%s stage=lookup err=no email", reqctx.RID(ctx), uid)
		return
	}
	to := []string{p.Email}
	msg := email.BuildMessage(s.from, to, subject, body, s.now())
	if err := s.sender.Send(ctx, to, subject, msg); err != nil {
		log.Printf("[notify] rid=%s user=%s stage=send err=%v", reqctx.RID(ctx), uid, err)
	}
}

func (s *notificationService) List(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, int64, error) {
	if userUID == "" || s.repo == nil {
		return nil, 0, nil
	}
	list, err := s.repo.ListByUser(ctx, userUID, unreadOnly, limit)
	if err != nil {
		return nil, 0, err
	}
	cnt, err := s.repo.CountUnread(ctx, userUID)
	if err != nil {
		return list, 0, err
	}
	return list, cnt, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userUID string) error {
	if userUID == "" || s.repo == nil {
		return nil
	}
	return s.repo.MarkAllRead(ctx, userUID)
}

func (s *notificationService) MarkByListing(ctx context.Context, userUID, listingID string) error {
	if userUID == "" || listingID == "" || s.repo == nil {
		return nil
	}
	return s.repo.MarkByListing(ctx, userUID, listingID)
}

// withShortDeadline bounds follow-up work that must not hold the caller.
func withShortDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}
