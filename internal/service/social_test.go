package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocial struct {
	mu            sync.Mutex
	couples       map[string]*models.Couple
	notifications []models.Notification
}

func newFakeSocial() *fakeSocial {
	return &fakeSocial{couples: map[string]*models.Couple{}}
}

func (f *fakeSocial) CreateCouple(_ context.Context, c *models.Couple) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.couples {
		if existing.InviterID == c.InviterID {
			return ErrConflict
		}
	}
	c.CreatedAt = time.Now()
	cp := *c
	f.couples[c.ID] = &cp
	return nil
}

func (f *fakeSocial) GetCoupleByID(_ context.Context, id string) (*models.Couple, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.couples[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeSocial) GetCoupleForUser(_ context.Context, userID string) (*models.Couple, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.couples {
		if c.InviterID == userID || c.PartnerID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeSocial) ListInvites(_ context.Context, email string) ([]models.Couple, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Couple
	for _, c := range f.couples {
		if c.InviteeEmail == email && c.Status == models.CouplePending {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeSocial) AcceptCouple(_ context.Context, id, partnerID, email string) (*models.Couple, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.couples[id]
	if !ok || c.InviteeEmail != email || c.Status != models.CouplePending {
		return nil, ErrNotFound
	}
	c.PartnerID = partnerID
	c.Status = models.CoupleAccepted
	cp := *c
	return &cp, nil
}

func (f *fakeSocial) DeleteCouple(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.couples {
		if c.InviterID == userID || c.PartnerID == userID {
			delete(f.couples, id)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeSocial) CreateNotification(_ context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.CreatedAt = time.Now()
	f.notifications = append(f.notifications, *n)
	return nil
}

func (f *fakeSocial) ListNotifications(_ context.Context, userID string, limit int) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for i := len(f.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if f.notifications[i].UserID == userID {
			out = append(out, f.notifications[i])
		}
	}
	return out, nil
}

func (f *fakeSocial) MarkRead(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].UserID == userID && f.notifications[i].ID == id {
			f.notifications[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeSocial) MarkAllRead(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.notifications {
		if f.notifications[i].UserID == userID && !f.notifications[i].Read {
			f.notifications[i].Read = true
			n++
		}
	}
	return n, nil
}

func (f *fakeSocial) CountUnread(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, x := range f.notifications {
		if x.UserID == userID && !x.Read {
			n++
		}
	}
	return n, nil
}

type coupleFixture struct {
	svc    *CoupleService
	notes  *NotificationService
	social *fakeSocial
	pub    *recordingPublisher
}

func newCoupleFixture(t *testing.T) *coupleFixture {
	t.Helper()
	users := newFakeUsers()
	ctx := context.Background()
	require.NoError(t, users.CreateUser(ctx, &models.User{ID: "u1", Email: "a@example.com", DisplayName: "Aisha"}))
	require.NoError(t, users.CreateUser(ctx, &models.User{ID: "u2", Email: "b@example.com", DisplayName: "Bilal"}))
	require.NoError(t, users.CreateUser(ctx, &models.User{ID: "u3", Email: "c@example.com", DisplayName: "Cara"}))

	social := newFakeSocial()
	pub := &recordingPublisher{}
	notes := NewNotificationService(social, pub, nopLog)
	return &coupleFixture{
		svc:    NewCoupleService(social, users, notes, nopLog),
		notes:  notes,
		social: social,
		pub:    pub,
	}
}

func TestCouple_InviteAndAccept(t *testing.T) {
	f := newCoupleFixture(t)
	ctx := context.Background()

	c, err := f.svc.Invite(ctx, "u1", " B@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", c.InviteeEmail)
	assert.Equal(t, models.CouplePending, c.Status)

	v, err := f.svc.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, v.Couple)
	require.Len(t, v.Invites, 1)
	assert.Equal(t, c.ID, v.Invites[0].ID)

	unread, err := f.notes.Unread(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	_, err = f.svc.Accept(ctx, "u3", c.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	accepted, err := f.svc.Accept(ctx, "u2", c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CoupleAccepted, accepted.Status)
	assert.Equal(t, "u2", accepted.PartnerID)

	_, err = f.svc.Accept(ctx, "u2", c.ID)
	assert.ErrorIs(t, err, ErrConflict)

	list, err := f.notes.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.NotifyCoupleAccepted, list[0].Kind)

	v, err = f.svc.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, v.Couple)
	assert.Empty(t, v.Invites)
}

func TestCouple_InviteRules(t *testing.T) {
	f := newCoupleFixture(t)
	ctx := context.Background()

	_, err := f.svc.Invite(ctx, "u1", "a@example.com")
	fe, ok := IsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "cannot invite yourself", fe["email"])

	_, err = f.svc.Invite(ctx, "u1", "nope")
	_, ok = IsValidation(err)
	assert.True(t, ok)

	_, err = f.svc.Invite(ctx, "u1", "stranger@example.com")
	require.NoError(t, err, "inviting an email without an account is allowed")
	_, err = f.svc.Invite(ctx, "u1", "b@example.com")
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, f.svc.Leave(ctx, "u1"))
	assert.ErrorIs(t, f.svc.Leave(ctx, "u1"), ErrNotFound)
}

func TestNotifications_MarkRead(t *testing.T) {
	f := newCoupleFixture(t)
	ctx := context.Background()
	require.NoError(t, f.notes.Notify(ctx, "u1", models.NotifyGoalReached, "one"))
	require.NoError(t, f.notes.Notify(ctx, "u1", models.NotifyGoalReached, "two"))

	list, err := f.notes.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "two", list[0].Message)

	require.NoError(t, f.notes.MarkRead(ctx, "u1", list[0].ID))
	assert.ErrorIs(t, f.notes.MarkRead(ctx, "u2", list[1].ID), ErrNotFound)

	n, err := f.notes.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unread, err := f.notes.Unread(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, unread)
	for _, table := range f.pub.tables() {
		assert.Equal(t, TableNotifications, table)
	}

	empty, err := f.notes.List(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
}
