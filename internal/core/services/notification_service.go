package services

import (
	"context"
	"log"

	"gorm.io/gorm"

	"chamahub/internal/adapters/persistence/models"
	"chamahub/internal/adapters/persistence/repositories"
	"chamahub/internal/pkg/push"
)

// NotificationService persists notification rows and requests out-of-band
// pushes. The row is inserted inside the caller's transaction; the push
// happens only after commit and never fails the originating operation.
type NotificationService struct {
	ledger *repositories.Ledger
	repo   *repositories.NotificationRepository
	hub    *push.Hub
}

// NewNotificationService creates a new notification service. hub may be nil
// (e.g. in tests); pushes are then skipped.
func NewNotificationService(ledger *repositories.Ledger, repo *repositories.NotificationRepository, hub *push.Hub) *NotificationService {
	return &NotificationService{ledger: ledger, repo: repo, hub: hub}
}

// Note is the input for one notification.
type Note struct {
	UserID    uint
	Type      string
	Title     string
	Message   string
	Link      *string
	RelatedID *uint
}

// Emit inserts the notification row using the caller's open transaction so
// it commits atomically with the originating action. The caller pushes the
// returned rows after commit.
func (s *NotificationService) Emit(tx *gorm.DB, note Note) (*models.Notification, error) {
	n := &models.Notification{
		UserID:    note.UserID,
		Type:      note.Type,
		Title:     note.Title,
		Message:   note.Message,
		Link:      note.Link,
		RelatedID: note.RelatedID,
	}
	if err := s.repo.Create(tx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Push requests a websocket push for committed notifications. Failures are
// logged, never surfaced: the row is already durable.
func (s *NotificationService) Push(rows ...*models.Notification) {
	if s.hub == nil {
		return
	}
	for _, n := range rows {
		if n == nil {
			continue
		}
		s.hub.Publish(n.UserID, push.Event{
			Type:      n.Type,
			Title:     n.Title,
			Message:   n.Message,
			Link:      n.Link,
			RelatedID: n.RelatedID,
		})
	}
}

// EmitStandalone inserts and pushes a notification outside any caller
// transaction.
func (s *NotificationService) EmitStandalone(ctx context.Context, note Note) error {
	var n *models.Notification
	err := s.ledger.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		n, err = s.Emit(tx, note)
		return err
	})
	if err != nil {
		log.Printf("notification: standalone emit failed: %v", err)
		return err
	}
	s.Push(n)
	return nil
}

// ListInput represents feed list input
type ListInput struct {
	UserID     uint
	UnreadOnly bool
	Page       int
	Limit      int
}

// ListOutput represents feed list output
type ListOutput struct {
	Notifications []*models.Notification `json:"notifications"`
	Total         int64                  `json:"total"`
	Unread        int64                  `json:"unread"`
}

// List returns a page of the user's feed plus the unread count.
func (s *NotificationService) List(ctx context.Context, input *ListInput) (*ListOutput, error) {
	if input.Page < 1 {
		input.Page = 1
	}
	if input.Limit < 1 || input.Limit > 100 {
		input.Limit = 20
	}
	offset := (input.Page - 1) * input.Limit

	db := s.ledger.DB().WithContext(ctx)
	rows, total, err := s.repo.ListByUser(db, input.UserID, input.UnreadOnly, offset, input.Limit)
	if err != nil {
		return nil, repositories.MapError(err)
	}
	unread, err := s.repo.CountUnread(db, input.UserID)
	if err != nil {
		return nil, repositories.MapError(err)
	}
	return &ListOutput{Notifications: rows, Total: total, Unread: unread}, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	return repositories.MapError(s.repo.MarkRead(s.ledger.DB().WithContext(ctx), userID, id))
}

// MarkAllRead marks the whole feed read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) error {
	return repositories.MapError(s.repo.MarkAllRead(s.ledger.DB().WithContext(ctx), userID))
}
