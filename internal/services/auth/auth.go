// Package services contains the account-security core: credential
// verification, brute-force lockout, session issuance and the single-use
// token flows for password reset and email verification.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giftspark/giftspark/internal/config"
	"github.com/giftspark/giftspark/internal/errs"
	"github.com/giftspark/giftspark/internal/lib/jwt"
	"github.com/giftspark/giftspark/internal/lib/password"
	"github.com/giftspark/giftspark/internal/lib/sl"
	"github.com/giftspark/giftspark/internal/lib/token"
	"github.com/giftspark/giftspark/internal/metrics"
	"github.com/giftspark/giftspark/internal/models"
)

// UserRepository describes the user persistence contract.
type UserRepository interface {
	RegisterUser(ctx context.Context, user models.User) (string, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	IncrementLoginAttempts(ctx context.Context, userUID string) (int, error)
	LockAccount(ctx context.Context, userUID string, until time.Time) error
	ResetLoginState(ctx context.Context, userUID string) error
	UpdateLastLogin(ctx context.Context, userUID string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, userUID, hash string) error
	SetEmailVerified(ctx context.Context, userUID string) error
}

// SessionRepository describes the session persistence contract.
type SessionRepository interface {
	CreateSession(ctx context.Context, session models.Session) error
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsForUser(ctx context.Context, userUID string) (int, error)
	DeleteOtherSessions(ctx context.Context, userUID, keepID string) (int, error)
}

// TokenRepository describes the single-use token persistence contract.
type TokenRepository interface {
	CreateToken(ctx context.Context, tok models.SecurityToken) error
	GetToken(ctx context.Context, tokenHash string, purpose models.TokenPurpose) (*models.SecurityToken, error)
	MarkTokenUsed(ctx context.Context, tokenHash string) error
	DeleteToken(ctx context.Context, tokenHash string) error
	RedeemResetTokenTx(ctx context.Context, tokenHash, userUID, newHash string) error
}

// Mailer sends an email and waits for the transport outcome. Used where the
// caller must not report success before delivery was accepted.
type Mailer interface {
	Send(to, kind string, params map[string]string) error
}

// Notifier publishes fire-and-forget notification messages.
type Notifier interface {
	Publish(routingKey string, message any) error
}

// AuthService orchestrates login, logout, password change and the token-based
// recovery and verification flows.
type AuthService struct {
	users    UserRepository
	sessions SessionRepository
	tokens   TokenRepository
	jwtMaker jwt.Maker
	mailer   Mailer
	notifier Notifier
	policy   config.AuthPolicy
	log      *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserRepository, sessions SessionRepository, tokens TokenRepository,
	jwtMaker jwt.Maker, mailer Mailer, notifier Notifier, policy config.AuthPolicy, log *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		jwtMaker: jwtMaker,
		mailer:   mailer,
		notifier: notifier,
		policy:   policy,
		log:      log,
	}
}

// LoginResult carries the session row and the signed credential issued for it.
type LoginResult struct {
	Token     string
	SessionID string
	UserUID   string
	ExpiresAt time.Time
}

// CanonicalEmail lower-cases and trims an email address and validates its
// syntax.
func CanonicalEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", errs.ErrInvalidInput
	}
	return email, nil
}

// Register creates a new unverified account on the free tier, issues a
// verification token and sends the verification email synchronously.
func (s *AuthService) Register(ctx context.Context, rawEmail, rawPassword string) (string, error) {
	email, err := CanonicalEmail(rawEmail)
	if err != nil {
		return "", err
	}
	if err := password.CheckPolicy(rawPassword); err != nil {
		return "", fmt.Errorf("%w: %s", errs.ErrInvalidInput, err)
	}
	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return "", err
	}
	user := models.User{
		Email:         email,
		PasswordHash:  hashed,
		EmailVerified: false,
		Plan:          models.PlanStart,
	}
	uid, err := s.users.RegisterUser(ctx, user)
	if err != nil {
		return "", err
	}
	if err := s.issueVerificationEmail(ctx, uid, email); err != nil {
		return "", err
	}
	return uid, nil
}

// Login verifies credentials and issues a session plus signed credential.
//
// Unknown account and wrong password produce the same error. A lapsed lockout
// is cleared before the credentials are evaluated; a failed attempt that
// reaches the configured maximum locks the account and fires a security-alert
// notification off the critical path.
func (s *AuthService) Login(ctx context.Context, rawEmail, rawPassword string, rememberMe bool, ip, userAgent string) (*LoginResult, error) {
	email, err := CanonicalEmail(rawEmail)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
			return nil, errs.ErrInvalidCredentials
		}
		return nil, err
	}

	now := time.Now().UTC()
	if user.Locked(now) {
		metrics.LoginAttempts.WithLabelValues("locked").Inc()
		remaining := int(time.Until(*user.LockedUntil).Minutes()) + 1
		return nil, &errs.LockedError{Minutes: remaining}
	}
	if user.LockedUntil != nil {
		// Lock has lapsed: clear it before evaluating the credentials.
		if err := s.users.ResetLoginState(ctx, user.UID); err != nil {
			return nil, err
		}
		user.LoginAttempts = 0
		user.LockedUntil = nil
	}

	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		attempts, incErr := s.users.IncrementLoginAttempts(ctx, user.UID)
		if incErr != nil {
			return nil, incErr
		}
		if attempts >= s.policy.MaxLoginAttempts {
			until := now.Add(s.policy.LockoutDuration)
			if lockErr := s.users.LockAccount(ctx, user.UID, until); lockErr != nil {
				return nil, lockErr
			}
			metrics.AccountLockouts.Inc()
			metrics.LoginAttempts.WithLabelValues("locked").Inc()
			s.dispatch(models.EmailMessage{
				To:   user.Email,
				Kind: models.EmailKindSecurityAlert,
				Params: map[string]string{
					"minutes": fmt.Sprintf("%d", int(s.policy.LockoutDuration.Minutes())),
				},
			})
			return nil, &errs.LockedError{Minutes: int(s.policy.LockoutDuration.Minutes())}
		}
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return nil, &errs.CredentialsError{AttemptsLeft: s.policy.MaxLoginAttempts - attempts}
	}

	if !user.EmailVerified {
		metrics.LoginAttempts.WithLabelValues("unverified").Inc()
		return nil, errs.ErrEmailNotVerified
	}

	if err := s.users.ResetLoginState(ctx, user.UID); err != nil {
		return nil, err
	}
	if err := s.users.UpdateLastLogin(ctx, user.UID, now); err != nil {
		return nil, err
	}

	ttl := s.policy.SessionTTL
	if rememberMe {
		ttl = s.policy.SessionTTL * time.Duration(s.policy.RememberMeFactor)
	}
	session := models.Session{
		ID:        uuid.New().String(),
		UserUID:   user.UID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	signed, err := s.jwtMaker.GenerateToken(user.UID, user.Email, session.ID, ttl)
	if err != nil {
		return nil, err
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	return &LoginResult{
		Token:     signed,
		SessionID: session.ID,
		UserUID:   user.UID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Logout revokes a session. A session that no longer exists is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.DeleteSession(ctx, sessionID)
}

// ChangePassword replaces the password of a logged-in user and revokes every
// other session, keeping the caller's one alive.
func (s *AuthService) ChangePassword(ctx context.Context, userUID, currentPassword, newPassword, currentSessionID string) error {
	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		return err
	}
	if err := password.CompareHash(user.PasswordHash, currentPassword); err != nil {
		return errs.ErrInvalidCredentials
	}
	if err := password.CheckPolicy(newPassword); err != nil {
		return fmt.Errorf("%w: %s", errs.ErrInvalidInput, err)
	}
	if password.CompareHash(user.PasswordHash, newPassword) == nil {
		return errs.ErrSamePassword
	}
	hashed, err := password.GetHash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, userUID, hashed); err != nil {
		return err
	}
	if _, err := s.sessions.DeleteOtherSessions(ctx, userUID, currentSessionID); err != nil {
		return err
	}
	s.dispatch(models.EmailMessage{To: user.Email, Kind: models.EmailKindPasswordChanged})
	return nil
}

// ForgotPassword starts the reset flow. The response is identical whether or
// not the account exists; a token is only created and mailed when it does.
// Any prior reset tokens of the user are invalidated.
func (s *AuthService) ForgotPassword(ctx context.Context, rawEmail string) error {
	email, err := CanonicalEmail(rawEmail)
	if err != nil {
		return err
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		return err
	}

	pair, err := token.Generate()
	if err != nil {
		return err
	}
	tok := models.SecurityToken{
		TokenHash: pair.Hash,
		UserUID:   user.UID,
		Purpose:   models.TokenPurposePasswordReset,
		ExpiresAt: time.Now().UTC().Add(s.policy.ResetTokenTTL),
	}
	if err := s.tokens.CreateToken(ctx, tok); err != nil {
		return err
	}
	s.dispatch(models.EmailMessage{
		To:     user.Email,
		Kind:   models.EmailKindResetRequested,
		Params: map[string]string{"token": pair.Raw},
	})
	return nil
}

// ResetPassword redeems a reset token: the password is replaced, lockout state
// cleared, the token burned and every session of the user revoked, all in one
// transaction. An expired token is deleted eagerly.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	tok, err := s.tokens.GetToken(ctx, token.Hash(rawToken), models.TokenPurposePasswordReset)
	if err != nil {
		return err
	}
	if tok.Expired(time.Now().UTC()) {
		if delErr := s.tokens.DeleteToken(ctx, tok.TokenHash); delErr != nil {
			s.log.Error("failed to delete expired token", sl.Err(delErr))
		}
		return errs.ErrTokenExpired
	}
	if tok.Used {
		return errs.ErrTokenUsed
	}
	if err := password.CheckPolicy(newPassword); err != nil {
		return fmt.Errorf("%w: %s", errs.ErrInvalidInput, err)
	}
	hashed, err := password.GetHash(newPassword)
	if err != nil {
		return err
	}
	if err := s.tokens.RedeemResetTokenTx(ctx, tok.TokenHash, tok.UserUID, hashed); err != nil {
		return err
	}

	user, err := s.users.GetUser(ctx, tok.UserUID)
	if err == nil {
		s.dispatch(models.EmailMessage{To: user.Email, Kind: models.EmailKindResetConfirmed})
	}
	return nil
}

// ResendVerification issues a fresh verification token for a known,
// still-unverified account and waits for the email to be accepted. Unlike
// ForgotPassword this reports an unknown account: verification belongs to
// onboarding, not recovery.
func (s *AuthService) ResendVerification(ctx context.Context, rawEmail string) error {
	email, err := CanonicalEmail(rawEmail)
	if err != nil {
		return err
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return errs.ErrAlreadyVerified
	}
	return s.issueVerificationEmail(ctx, user.UID, user.Email)
}

// VerifyEmail redeems a verification token and marks the account verified.
func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) error {
	tok, err := s.tokens.GetToken(ctx, token.Hash(rawToken), models.TokenPurposeVerifyEmail)
	if err != nil {
		return err
	}
	if tok.Expired(time.Now().UTC()) {
		if delErr := s.tokens.DeleteToken(ctx, tok.TokenHash); delErr != nil {
			s.log.Error("failed to delete expired token", sl.Err(delErr))
		}
		return errs.ErrTokenExpired
	}
	if tok.Used {
		return errs.ErrTokenUsed
	}
	if err := s.tokens.MarkTokenUsed(ctx, tok.TokenHash); err != nil {
		return err
	}
	return s.users.SetEmailVerified(ctx, tok.UserUID)
}

// issueVerificationEmail replaces any outstanding verification token and sends
// the email synchronously; the caller reports success only after delivery was
// accepted.
func (s *AuthService) issueVerificationEmail(ctx context.Context, userUID, email string) error {
	pair, err := token.Generate()
	if err != nil {
		return err
	}
	tok := models.SecurityToken{
		TokenHash: pair.Hash,
		UserUID:   userUID,
		Purpose:   models.TokenPurposeVerifyEmail,
		ExpiresAt: time.Now().UTC().Add(s.policy.VerifyTokenTTL),
	}
	if err := s.tokens.CreateToken(ctx, tok); err != nil {
		return err
	}
	return s.mailer.Send(email, models.EmailKindVerifyEmail, map[string]string{"token": pair.Raw})
}

// dispatch publishes a notification off the critical path; failures are
// logged and never surface to the caller.
func (s *AuthService) dispatch(msg models.EmailMessage) {
	go func() {
		if err := s.notifier.Publish("email", msg); err != nil {
			s.log.Error("failed to publish notification", sl.Err(err), slog.String("kind", msg.Kind))
		}
	}()
}
