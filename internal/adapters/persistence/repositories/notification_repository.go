package repositories

import (
	"time"

	"gorm.io/gorm"

	"chamahub/internal/adapters/persistence/models"
)

// NotificationRepository handles notification feed data access
type NotificationRepository struct{}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{}
}

// Create inserts a notification row using the caller's transaction so it
// commits atomically with the originating action.
func (r *NotificationRepository) Create(tx *gorm.DB, n *models.Notification) error {
	return tx.Create(n).Error
}

// ListByUser returns a page of a user's feed, newest first
func (r *NotificationRepository) ListByUser(db *gorm.DB, userID uint, unreadOnly bool, offset, limit int) ([]*models.Notification, int64, error) {
	var rows []*models.Notification
	var total int64

	q := db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, total, err
}

// MarkRead sets read_at on one of the user's notifications
func (r *NotificationRepository) MarkRead(db *gorm.DB, userID, id uint) error {
	now := time.Now()
	res := db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, userID).
		Update("read_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkAllRead sets read_at on every unread notification of the user
func (r *NotificationRepository) MarkAllRead(db *gorm.DB, userID uint) error {
	now := time.Now()
	return db.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", &now).Error
}

// CountUnread counts the user's unread notifications
func (r *NotificationRepository) CountUnread(db *gorm.DB, userID uint) (int64, error) {
	var count int64
	err := db.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	return count, err
}
