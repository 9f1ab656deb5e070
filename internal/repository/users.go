package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/atinyakov/NikahPrep/internal/models"
)

// PostgresUserRepository implements account, session and password reset
// persistence using a PostgreSQL database.
type PostgresUserRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository with the given database connection.
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{DB: db}
}

const userColumns = `id, email, display_name, password_hash, theme, wedding_date, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Theme, &u.WeddingDate, &u.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

// CreateUser inserts a new user. A duplicate email yields models.ErrConflict.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, u *models.User) error {
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, theme)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, u.ID, u.Email, u.DisplayName, u.PasswordHash, u.Theme).Scan(&u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", mapError(err))
	}
	return nil
}

// GetUserByEmail fetches a user by lower-cased email.
func (r *PostgresUserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// GetUserByID fetches a user by id.
func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// UpdateProfile stores display name, theme and wedding date.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, u *models.User) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE users SET display_name = $2, theme = $3, wedding_date = $4 WHERE id = $1
	`, u.ID, u.DisplayName, u.Theme, u.WeddingDate)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return expectOne(res, "update profile")
}

// UpdatePassword replaces the password hash and revokes every refresh
// token of the user.
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, userID, hash string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, userID, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := expectOne(res, "update password"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteUser removes the account; every owned row goes with it by cascade.
func (r *PostgresUserRepository) DeleteUser(ctx context.Context, userID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectOne(res, "delete user")
}

// SaveRefreshToken stores the hash of a refresh token.
func (r *PostgresUserRepository) SaveRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at) VALUES ($1, $2, $3)
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// ConsumeRefreshToken deletes an unexpired refresh token and returns its
// owner. Each token can be used once.
func (r *PostgresUserRepository) ConsumeRefreshToken(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := r.DB.QueryRowContext(ctx, `
		DELETE FROM refresh_tokens WHERE token_hash = $1 AND expires_at > now() RETURNING user_id
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("consume refresh token: %w", mapError(err))
	}
	return userID, nil
}

// DeleteRefreshToken revokes a refresh token. Unknown tokens are ignored.
func (r *PostgresUserRepository) DeleteRefreshToken(ctx context.Context, tokenHash string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// SavePasswordReset stores the hash of a reset token.
func (r *PostgresUserRepository) SavePasswordReset(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO password_resets (token_hash, user_id, expires_at) VALUES ($1, $2, $3)
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save password reset: %w", err)
	}
	return nil
}

// ConsumePasswordReset marks an unused, unexpired reset token as used and
// returns its owner.
func (r *PostgresUserRepository) ConsumePasswordReset(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := r.DB.QueryRowContext(ctx, `
		UPDATE password_resets SET used = true
		WHERE token_hash = $1 AND used = false AND expires_at > now()
		RETURNING user_id
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("consume password reset: %w", mapError(err))
	}
	return userID, nil
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return nil
}
