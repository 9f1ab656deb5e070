package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/atinyakov/NikahPrep/internal/form"
	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/atinyakov/NikahPrep/internal/realtime"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Table names of couples and notifications.
const (
	TableCouples       = "couples"
	TableNotifications = "notifications"
)

// NotificationListLimit caps how many notifications are listed at once.
const NotificationListLimit = 50

// NotificationRepository persists notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

// NotificationService creates and lists notifications. It implements
// Notifier.
type NotificationService struct {
	repo NotificationRepository
	pub  form.Publisher
	log  *zap.Logger
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(repo NotificationRepository, pub form.Publisher, log *zap.Logger) *NotificationService {
	return &NotificationService{repo: repo, pub: pub, log: log}
}

// Notify stores an unread notification for userID and announces it.
func (s *NotificationService) Notify(ctx context.Context, userID, kind, message string) error {
	n := &models.Notification{ID: uuid.NewString(), UserID: userID, Kind: kind, Message: message}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return err
	}
	s.publish(ctx, userID, n.ID, realtime.OpUpsert)
	return nil
}

// List returns the newest notifications of the user.
func (s *NotificationService) List(ctx context.Context, userID string) ([]models.Notification, error) {
	list, err := s.repo.ListNotifications(ctx, userID, NotificationListLimit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Notification{}
	}
	return list, nil
}

// MarkRead marks one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		return err
	}
	s.publish(ctx, userID, id, realtime.OpUpsert)
	return nil
}

// MarkAllRead marks every notification of the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.publish(ctx, userID, "", realtime.OpUpsert)
	}
	return n, nil
}

// Unread counts unread notifications.
func (s *NotificationService) Unread(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *NotificationService) publish(ctx context.Context, userID, key string, op realtime.Op) {
	if s.pub == nil {
		return
	}
	e := realtime.Event{Table: TableNotifications, UserID: userID, Key: key, Op: op}
	if err := s.pub.Publish(ctx, e); err != nil {
		s.log.Warn("failed to publish notification event", zap.String("user", userID), zap.Error(err))
	}
}

// CoupleRepository persists couple links.
type CoupleRepository interface {
	CreateCouple(ctx context.Context, c *models.Couple) error
	GetCoupleByID(ctx context.Context, id string) (*models.Couple, error)
	GetCoupleForUser(ctx context.Context, userID string) (*models.Couple, error)
	ListInvites(ctx context.Context, email string) ([]models.Couple, error)
	AcceptCouple(ctx context.Context, id, partnerID, email string) (*models.Couple, error)
	DeleteCouple(ctx context.Context, userID string) error
}

// UserLookup finds accounts.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// CoupleService links two accounts by invitation.
type CoupleService struct {
	repo     CoupleRepository
	users    UserLookup
	notifier Notifier
	log      *zap.Logger
}

// NewCoupleService constructs a CoupleService.
func NewCoupleService(repo CoupleRepository, users UserLookup, notifier Notifier, log *zap.Logger) *CoupleService {
	return &CoupleService{repo: repo, users: users, notifier: notifier, log: log}
}

// CoupleView is the user's couple, if any, and invites waiting for them.
type CoupleView struct {
	Couple  *models.Couple  `json:"couple"`
	Invites []models.Couple `json:"invites"`
}

// Invite asks the owner of email to link with userID. A user takes part
// in at most one couple and cannot invite themselves.
func (s *CoupleService) Invite(ctx context.Context, userID, email string) (*models.Couple, error) {
	email = NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, form.FieldErrors{"email": "must be a valid email address"}
	}
	inviter, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if inviter.Email == email {
		return nil, form.FieldErrors{"email": "cannot invite yourself"}
	}
	if err := s.ensureSingle(ctx, userID); err != nil {
		return nil, err
	}

	c := &models.Couple{
		ID:           uuid.NewString(),
		InviterID:    userID,
		InviteeEmail: email,
		Status:       models.CouplePending,
	}
	if err := s.repo.CreateCouple(ctx, c); err != nil {
		return nil, err
	}

	invitee, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		s.log.Warn("failed to look up invitee", zap.Error(err))
	default:
		msg := fmt.Sprintf("%s invited you to link your accounts.", inviter.DisplayName)
		s.notify(ctx, invitee.ID, models.NotifyCoupleInvite, msg)
	}
	return c, nil
}

// Accept links userID to the couple with the given id. Only the invited
// email may accept.
func (s *CoupleService) Accept(ctx context.Context, userID, coupleID string) (*models.Couple, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.GetCoupleByID(ctx, coupleID)
	if err != nil {
		return nil, err
	}
	if c.InviteeEmail != u.Email {
		return nil, ErrForbidden
	}
	if c.Status != models.CouplePending {
		return nil, ErrConflict
	}
	if err := s.ensureSingle(ctx, userID); err != nil {
		return nil, err
	}

	accepted, err := s.repo.AcceptCouple(ctx, coupleID, userID, u.Email)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("%s accepted your invitation.", u.DisplayName)
	s.notify(ctx, accepted.InviterID, models.NotifyCoupleAccepted, msg)
	return accepted, nil
}

// Get returns the user's couple and pending invites addressed to them.
func (s *CoupleService) Get(ctx context.Context, userID string) (CoupleView, error) {
	v := CoupleView{Invites: []models.Couple{}}

	c, err := s.repo.GetCoupleForUser(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return CoupleView{}, err
	default:
		v.Couple = c
	}

	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return CoupleView{}, err
	}
	invites, err := s.repo.ListInvites(ctx, u.Email)
	if err != nil {
		return CoupleView{}, err
	}
	if invites != nil {
		v.Invites = invites
	}
	return v, nil
}

// Leave dissolves the user's couple or withdraws their invite.
func (s *CoupleService) Leave(ctx context.Context, userID string) error {
	return s.repo.DeleteCouple(ctx, userID)
}

func (s *CoupleService) ensureSingle(ctx context.Context, userID string) error {
	_, err := s.repo.GetCoupleForUser(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	default:
		return ErrConflict
	}
}

func (s *CoupleService) notify(ctx context.Context, userID, kind, msg string) {
	if err := s.notifier.Notify(ctx, userID, kind, msg); err != nil {
		s.log.Warn("failed to create notification", zap.String("user", userID), zap.Error(err))
	}
}
