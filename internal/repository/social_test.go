package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var coupleRowColumns = []string{"id", "inviter_id", "invitee_email", "partner_id", "status", "created_at"}

func TestCreateCouple_SecondInviteConflicts(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewPostgresSocialRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO couples (id, inviter_id, invitee_email, status)`)).
		WithArgs("c1", "u1", "b@example.com", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO couples`)).
		WillReturnError(&pq.Error{Code: "23505"})

	c := &models.Couple{ID: "c1", InviterID: "u1", InviteeEmail: "b@example.com", Status: models.CouplePending}
	require.NoError(t, repo.CreateCouple(context.Background(), c))

	again := &models.Couple{ID: "c2", InviterID: "u1", InviteeEmail: "c@example.com", Status: models.CouplePending}
	assert.ErrorIs(t, repo.CreateCouple(context.Background(), again), models.ErrConflict)
}

func TestAcceptCouple(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewPostgresSocialRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE couples SET partner_id = $2, status = 'accepted'`)).
		WithArgs("c1", "u2", "b@example.com").
		WillReturnRows(sqlmock.NewRows(coupleRowColumns).
			AddRow("c1", "u1", "b@example.com", "u2", "accepted", time.Now()))

	c, err := repo.AcceptCouple(context.Background(), "c1", "u2", "b@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.CoupleAccepted, c.Status)
	assert.Equal(t, "u2", c.PartnerID)
}

func TestAcceptCouple_PartnerAlreadyLinked(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewPostgresSocialRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE couples SET partner_id = $2`)).
		WithArgs("c2", "u2", "b@example.com").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "couples_partner_unique"})

	_, err := repo.AcceptCouple(context.Background(), "c2", "u2", "b@example.com")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestGetCoupleForUser_None(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewPostgresSocialRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE inviter_id = $1 OR partner_id = $1`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(coupleRowColumns))

	_, err := repo.GetCoupleForUser(context.Background(), "u1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestNotifications(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewPostgresSocialRepository(db)
	created := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO notifications (id, user_id, kind, message)`)).
		WithArgs("n1", "u1", models.NotifyCoupleInvite, "hello").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, kind, message, read, created_at FROM notifications`)).
		WithArgs("u1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "message", "read", "created_at"}).
			AddRow("n1", models.NotifyCoupleInvite, "hello", false, created))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notifications SET read = true WHERE user_id = $1 AND id = $2`)).
		WithArgs("u1", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notifications SET read = true WHERE user_id = $1 AND read = false`)).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM notifications`)).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	ctx := context.Background()
	n := &models.Notification{ID: "n1", UserID: "u1", Kind: models.NotifyCoupleInvite, Message: "hello"}
	require.NoError(t, repo.CreateNotification(ctx, n))
	assert.True(t, n.CreatedAt.Equal(created))

	list, err := repo.ListNotifications(ctx, "u1", 50)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "u1", list[0].UserID)

	assert.ErrorIs(t, repo.MarkRead(ctx, "u1", "missing"), models.ErrNotFound)

	changed, err := repo.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), changed)

	unread, err := repo.CountUnread(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, unread)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListInvites(t *testing.T) {
	db, mock := setupMock(t)
	repo := NewPostgresSocialRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE invitee_email = $1 AND status = 'pending'`)).
		WithArgs("b@example.com").
		WillReturnRows(sqlmock.NewRows(coupleRowColumns).
			AddRow("c1", "u1", "b@example.com", "", "pending", time.Now()))

	invites, err := repo.ListInvites(context.Background(), "b@example.com")
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Empty(t, invites[0].PartnerID)
}
