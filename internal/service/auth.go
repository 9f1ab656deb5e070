package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/atinyakov/NikahPrep/internal/auth"
	"github.com/atinyakov/NikahPrep/internal/form"
	"github.com/atinyakov/NikahPrep/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PasswordResetTTL is how long a password reset token stays valid.
const PasswordResetTTL = time.Hour

// UserRepository defines the persistence operations
// required by the authentication service.
type UserRepository interface {
	// CreateUser inserts u. A taken email yields ErrConflict.
	CreateUser(ctx context.Context, u *models.User) error
	// GetUserByEmail returns the user with the given email or ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// GetUserByID returns the user with the given id or ErrNotFound.
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	// UpdateProfile stores display name, theme and wedding date.
	UpdateProfile(ctx context.Context, u *models.User) error
	// UpdatePassword replaces the hash and revokes all refresh tokens.
	UpdatePassword(ctx context.Context, userID, hash string) error
	// DeleteUser removes the account and everything it owns.
	DeleteUser(ctx context.Context, userID string) error

	SaveRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ConsumeRefreshToken(ctx context.Context, tokenHash string) (string, error)
	DeleteRefreshToken(ctx context.Context, tokenHash string) error
	SavePasswordReset(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	ConsumePasswordReset(ctx context.Context, tokenHash string) (string, error)
}

// Mailer delivers password reset tokens to users.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogMailer writes reset tokens to the log instead of sending mail.
type LogMailer struct {
	Log *zap.Logger
}

// SendPasswordReset logs the token for email.
func (m LogMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.Log.Info("password reset requested", zap.String("email", email), zap.String("token", token))
	return nil
}

// Notifier creates notifications for users.
type Notifier interface {
	Notify(ctx context.Context, userID, kind, message string) error
}

// AuthService implements registration, login, session refresh, password
// reset and profile operations.
type AuthService struct {
	repo       UserRepository
	tokens     *auth.JWTManager
	refreshTTL time.Duration
	mailer     Mailer
	notifier   Notifier
	log        *zap.Logger
	now        func() time.Time
}

// NewAuthService constructs an AuthService. Access tokens are issued by
// tokens; refresh tokens live for refreshTTL.
func NewAuthService(
	repo UserRepository,
	tokens *auth.JWTManager,
	refreshTTL time.Duration,
	mailer Mailer,
	notifier Notifier,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		repo:       repo,
		tokens:     tokens,
		refreshTTL: refreshTTL,
		mailer:     mailer,
		notifier:   notifier,
		log:        log,
		now:        time.Now,
	}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and returns a session for it. Invalid input
// is reported as form.FieldErrors; a taken email as ErrConflict.
func (s *AuthService) Register(ctx context.Context, email, displayName, password string) (*models.Session, error) {
	email = NormalizeEmail(email)
	displayName = strings.TrimSpace(displayName)

	errs := form.FieldErrors{}
	if _, err := mail.ParseAddress(email); err != nil {
		errs.Add("email", "must be a valid email address")
	}
	if displayName == "" {
		errs.Add("display_name", "is required")
	}
	if err := auth.ValidatePassword(password); err != nil {
		errs.Add("password", err.Error())
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Theme:        models.ThemeSystem,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.String("user", u.ID))
	return s.issue(ctx, u)
}

// Login checks the credentials and returns a new session. Unknown email
// and wrong password both yield auth.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Session, error) {
	u, err := s.repo.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, err
	}
	return s.issue(ctx, u)
}

// Refresh exchanges a refresh token for a new session. The old token is
// consumed and cannot be reused.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	userID, err := s.repo.ConsumeRefreshToken(ctx, auth.HashToken(refreshToken))
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	u, err := s.repo.GetUserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, u)
}

// Logout revokes a refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.repo.DeleteRefreshToken(ctx, auth.HashToken(refreshToken))
}

// RequestPasswordReset creates a single-use reset token and hands it to
// the mailer. Unknown emails succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	u, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	token, err := auth.NewOpaqueToken()
	if err != nil {
		return err
	}
	if err := s.repo.SavePasswordReset(ctx, u.ID, auth.HashToken(token), s.now().Add(PasswordResetTTL)); err != nil {
		return err
	}
	if err := s.notifier.Notify(ctx, u.ID, models.NotifyPasswordReset, "A password reset was requested."); err != nil {
		s.log.Warn("failed to notify password reset request", zap.String("user", u.ID), zap.Error(err))
	}
	// Known and unknown emails get the same reply, so delivery failures
	// are only logged.
	if err := s.mailer.SendPasswordReset(ctx, email, token); err != nil {
		s.log.Error("failed to send password reset", zap.String("user", u.ID), zap.Error(err))
	}
	return nil
}

// ResetPassword sets a new password using a reset token. Every session of
// the user is revoked.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	if err := auth.ValidatePassword(password); err != nil {
		return form.FieldErrors{"password": err.Error()}
	}
	userID, err := s.repo.ConsumePasswordReset(ctx, auth.HashToken(token))
	if errors.Is(err, ErrNotFound) {
		return auth.ErrInvalidToken
	}
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.notifier.Notify(ctx, userID, models.NotifyPasswordReset, "Your password was changed."); err != nil {
		s.log.Warn("failed to notify password change", zap.String("user", userID), zap.Error(err))
	}
	return nil
}

// Profile returns the user's account.
func (s *AuthService) Profile(ctx context.Context, userID string) (*models.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// ProfileUpdate carries the profile fields a user may change. Nil fields
// are left as they are; an empty WeddingDate clears it.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name"`
	Theme       *string `json:"theme"`
	WeddingDate *string `json:"wedding_date"`
}

// UpdateProfile applies p to the user's account.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, p ProfileUpdate) (*models.User, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	errs := form.FieldErrors{}
	if p.DisplayName != nil {
		if name := strings.TrimSpace(*p.DisplayName); name == "" {
			errs.Add("display_name", "is required")
		} else {
			u.DisplayName = name
		}
	}
	if p.Theme != nil {
		if theme := models.Theme(*p.Theme); theme.Valid() {
			u.Theme = theme
		} else {
			errs.Add("theme", "must be light, dark or system")
		}
	}
	if p.WeddingDate != nil {
		date, err := parseDate(*p.WeddingDate)
		if err != nil {
			errs.Add("wedding_date", err.Error())
		} else {
			u.WeddingDate = date
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateProfile(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteAccount removes the user and all of their rows.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.log.Info("account deleted", zap.String("user", userID))
	return nil
}

func (s *AuthService) issue(ctx context.Context, u *models.User) (*models.Session, error) {
	access, expiresAt, err := s.tokens.Generate(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveRefreshToken(ctx, u.ID, auth.HashToken(refresh), s.now().Add(s.refreshTTL)); err != nil {
		return nil, err
	}
	return &models.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		User:         u,
	}, nil
}

// parseDate reads a YYYY-MM-DD date. The empty string yields nil.
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, errors.New("must be a date formatted YYYY-MM-DD")
	}
	return &d, nil
}
