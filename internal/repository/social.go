package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atinyakov/NikahPrep/internal/models"
)

// PostgresSocialRepository stores couple links and notifications.
type PostgresSocialRepository struct {
	DB *sql.DB
}

// NewPostgresSocialRepository creates a PostgresSocialRepository.
func NewPostgresSocialRepository(db *sql.DB) *PostgresSocialRepository {
	return &PostgresSocialRepository{DB: db}
}

const coupleColumns = `id, inviter_id, invitee_email, COALESCE(partner_id::text, ''), status, created_at`

func scanCouple(row interface{ Scan(...any) error }) (*models.Couple, error) {
	var c models.Couple
	if err := row.Scan(&c.ID, &c.InviterID, &c.InviteeEmail, &c.PartnerID, &c.Status, &c.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

// CreateCouple inserts a pending invite. An inviter with an existing
// couple gets models.ErrConflict.
func (r *PostgresSocialRepository) CreateCouple(ctx context.Context, c *models.Couple) error {
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO couples (id, inviter_id, invitee_email, status) VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, c.ID, c.InviterID, c.InviteeEmail, c.Status).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create couple: %w", mapError(err))
	}
	return nil
}

// GetCoupleByID fetches a couple by id.
func (r *PostgresSocialRepository) GetCoupleByID(ctx context.Context, id string) (*models.Couple, error) {
	c, err := scanCouple(r.DB.QueryRowContext(ctx,
		`SELECT `+coupleColumns+` FROM couples WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get couple: %w", err)
	}
	return c, nil
}

// GetCoupleForUser returns the couple the user takes part in, either as
// inviter or as accepted partner.
func (r *PostgresSocialRepository) GetCoupleForUser(ctx context.Context, userID string) (*models.Couple, error) {
	c, err := scanCouple(r.DB.QueryRowContext(ctx, `
		SELECT `+coupleColumns+` FROM couples
		WHERE inviter_id = $1 OR partner_id = $1
		ORDER BY created_at DESC LIMIT 1
	`, userID))
	if err != nil {
		return nil, fmt.Errorf("get couple for user: %w", err)
	}
	return c, nil
}

// ListInvites returns the pending invites addressed to email.
func (r *PostgresSocialRepository) ListInvites(ctx context.Context, email string) ([]models.Couple, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+coupleColumns+` FROM couples
		WHERE invitee_email = $1 AND status = 'pending'
		ORDER BY created_at DESC
	`, email)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	var out []models.Couple
	for rows.Next() {
		c, err := scanCouple(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// AcceptCouple links the partner to a pending couple addressed to email.
func (r *PostgresSocialRepository) AcceptCouple(ctx context.Context, id, partnerID, email string) (*models.Couple, error) {
	c, err := scanCouple(r.DB.QueryRowContext(ctx, `
		UPDATE couples SET partner_id = $2, status = 'accepted'
		WHERE id = $1 AND invitee_email = $3 AND status = 'pending'
		RETURNING `+coupleColumns, id, partnerID, email))
	if err != nil {
		return nil, fmt.Errorf("accept couple: %w", err)
	}
	return c, nil
}

// DeleteCouple removes the couple the user takes part in.
func (r *PostgresSocialRepository) DeleteCouple(ctx context.Context, userID string) error {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM couples WHERE inviter_id = $1 OR partner_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("delete couple: %w", err)
	}
	return expectOne(res, "delete couple")
}

// CreateNotification inserts an unread notification.
func (r *PostgresSocialRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, message) VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, n.ID, n.UserID, n.Kind, n.Message).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", mapError(err))
	}
	return nil
}

// ListNotifications returns the user's newest notifications first.
func (r *PostgresSocialRepository) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, kind, message, read, created_at FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		n := models.Notification{UserID: userID}
		if err := rows.Scan(&n.ID, &n.Kind, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead marks one notification of the user as read.
func (r *PostgresSocialRepository) MarkRead(ctx context.Context, userID, id string) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE notifications SET read = true WHERE user_id = $1 AND id = $2
	`, userID, id)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return expectOne(res, "mark read")
}

// MarkAllRead marks every notification of the user as read and returns how
// many changed.
func (r *PostgresSocialRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE notifications SET read = true WHERE user_id = $1 AND read = false
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.RowsAffected()
}

// CountUnread counts the user's unread notifications.
func (r *PostgresSocialRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = false
	`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
