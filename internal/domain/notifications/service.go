package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

type Service struct {
	store       StoreAPI
	Mailer      Mailer
	DefaultFrom string
	Now         func() time.Time
}

func New(store StoreAPI, mailer Mailer, from string) *Service {
	if from == "" {
		from = "no-reply@example.com"
	}
	return &Service{store: store, Mailer: mailer, DefaultFrom: from, Now: time.Now}
}

// Create stores an in-app notification and, when a mailer is configured,
// emails it. Mail failures are logged and never fail the call.
func (s *Service) Create(ctx context.Context, tenantID, userID, ntype, title, body string) error {
	if userID == "" {
		return nil
	}
	n := Notification{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		UserID:    userID,
		Type:      ntype,
		Title:     title,
		Body:      body,
		CreatedAt: s.Now().UTC(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return err
	}

	if s.Mailer == nil {
		return nil
	}
	email, err := s.store.UserEmail(ctx, tenantID, userID)
	if err != nil {
		zap.L().Warn("notification email lookup failed", zap.Error(err))
		return nil
	}
	if email == "" {
		return nil
	}
	if err := s.Mailer.Send(ctx, s.DefaultFrom, email, title, body); err != nil {
		zap.L().Warn("notification email send failed", zap.String("type", ntype), zap.Error(err))
	}
	return nil
}

func (s *Service) List(ctx context.Context, tenantID, userID string, limit, offset int) ([]Notification, error) {
	return s.store.ListNotifications(ctx, tenantID, userID, limit, offset)
}

func (s *Service) Count(ctx context.Context, tenantID, userID string) (int, error) {
	return s.store.CountNotifications(ctx, tenantID, userID)
}

func (s *Service) MarkRead(ctx context.Context, tenantID, userID, notificationID string) error {
	return s.store.MarkRead(ctx, tenantID, userID, notificationID, s.Now().UTC())
}
