package repository

import (
	"context"

	"github.com/shinyyama/fleamarket-backend/internal/model"
	"gorm.io/gorm"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkAllRead(ctx context.Context, userUID string) error
	MarkByListing(ctx context.Context, userUID, listingID string) error
	CountUnread(ctx context.Context, userUID string) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository migrates the notifications table on first use.
func NewNotificationRepository(db *gorm.DB) (NotificationRepository, error) {
	if err := db.AutoMigrate(&model.Notification{}); err != nil {
		return nil, err
	}
	return &notificationRepository{db: db}, nil
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) unread(ctx context.Context, userUID string) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_uid = ? AND read_at IS NULL", userUID)
}

func (r *notificationRepository) ListByUser(ctx context.Context, userUID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	q := r.db.WithContext(ctx).Model(&model.Notification{}).Where("user_uid = ?", userUID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var list []model.Notification
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userUID string) error {
	return r.unread(ctx, userUID).Update("read_at", r.db.NowFunc()).Error
}

func (r *notificationRepository) MarkByListing(ctx context.Context, userUID, listingID string) error {
	return r.unread(ctx, userUID).Where("listing_id = ?", listingID).Update("read_at", r.db.NowFunc()).Error
}

func (r *notificationRepository) CountUnread(ctx context.Context, userUID string) (int64, error) {
	var cnt int64
	if err := r.unread(ctx, userUID).Count(&cnt).Error; err != nil {
		return 0, err
	}
	return cnt, nil
}
