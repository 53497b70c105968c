package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"common-grounds-backend/internal/apperr"
	"common-grounds-backend/internal/config"
	"common-grounds-backend/internal/email"
	"common-grounds-backend/internal/models"
	"common-grounds-backend/internal/ratelimit"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const linkTokenBytes = 32

// UserStore is the persistence surface AuthService needs for users
type UserStore interface {
	FindOrCreateByEmail(ctx context.Context, id, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	SetEmailVerified(ctx context.Context, userID string) error
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
	Delete(ctx context.Context, userID string) error
}

// MagicLinkStore persists single-use login links
type MagicLinkStore interface {
	Create(ctx context.Context, link *models.MagicLink) error
	Consume(ctx context.Context, tokenHash string, now time.Time) (string, error)
}

// SessionStore persists live sessions
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Touch(ctx context.Context, tokenHash string, now time.Time) (string, error)
	DeleteByHash(ctx context.Context, tokenHash string) error
}

// Claims are the identity claims embedded in a session credential
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// AuthService handles the magic-link login lifecycle
type AuthService struct {
	users     UserStore
	links     MagicLinkStore
	sessions  SessionStore
	sender    email.Sender
	limiter   *ratelimit.Limiter
	jwtSecret string
	cfg       config.AuthConfig
	limits    config.LimitsConfig
}

// NewAuthService creates a new auth service
func NewAuthService(
	users UserStore,
	links MagicLinkStore,
	sessions SessionStore,
	sender email.Sender,
	limiter *ratelimit.Limiter,
	jwtSecret string,
	cfg config.AuthConfig,
	limits config.LimitsConfig,
) *AuthService {
	return &AuthService{
		users:     users,
		links:     links,
		sessions:  sessions,
		sender:    sender,
		limiter:   limiter,
		jwtSecret: jwtSecret,
		cfg:       cfg,
		limits:    limits,
	}
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) validateEmail(addr string) error {
	if _, err := mail.ParseAddress(addr); err != nil {
		return apperr.New(apperr.KindValidation, "invalid email address")
	}
	if !strings.HasSuffix(addr, "@"+s.cfg.EmailDomain) {
		return apperr.Newf(apperr.KindValidation, "email must belong to %s", s.cfg.EmailDomain)
	}
	return nil
}

// Request issues a single-use login link to an institution email. Only the
// SHA-256 hash of the token is persisted; the raw token leaves the process
// solely inside the emailed link.
func (s *AuthService) Request(ctx context.Context, rawEmail string) error {
	addr := NormalizeEmail(rawEmail)
	if err := s.validateEmail(addr); err != nil {
		return err
	}

	ok, err := s.limiter.Allow(ctx, "link:"+addr, s.limits.LinkRequestsPerHour, time.Hour)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return apperr.New(apperr.KindRateLimited, "too many login requests, try again later")
	}

	user, err := s.users.FindOrCreateByEmail(ctx, uuid.New().String(), addr)
	if err != nil {
		return apperr.Internal(err)
	}

	tokenBytes := make([]byte, linkTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return apperr.Internal(err)
	}
	token := hex.EncodeToString(tokenBytes)

	now := time.Now()
	link := &models.MagicLink{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: hashToken(token),
		ExpiresAt: now.Add(s.cfg.LinkTTL()),
		CreatedAt: now,
	}
	if err := s.links.Create(ctx, link); err != nil {
		return apperr.Internal(err)
	}

	loginURL := fmt.Sprintf("%s?token=%s", s.cfg.LinkBaseURL, token)
	if err := s.sender.SendLoginLink(addr, loginURL); err != nil {
		return apperr.Wrap(apperr.KindEmailDelivery, "failed to deliver login email", err)
	}

	log.Info().Str("user_id", user.ID).Msg("Magic link issued")
	return nil
}

// Verify consumes a raw magic-link token and mints a session. Absent, expired
// and already-used links all report the same invalid-token kind so callers
// cannot probe which case they hit. A token verifies at most once.
func (s *AuthService) Verify(ctx context.Context, token string) (*models.User, string, error) {
	now := time.Now()

	userID, err := s.links.Consume(ctx, hashToken(token), now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", apperr.New(apperr.KindInvalidToken, "invalid or expired login link")
		}
		return nil, "", apperr.Internal(err)
	}

	if err := s.users.SetEmailVerified(ctx, userID); err != nil {
		return nil, "", apperr.Internal(err)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, "", apperr.Internal(err)
	}

	credential, err := s.mintCredential(user, now)
	if err != nil {
		return nil, "", apperr.Internal(err)
	}

	session := &models.Session{
		ID:         uuid.New().String(),
		UserID:     user.ID,
		TokenHash:  hashToken(credential),
		ExpiresAt:  now.Add(s.cfg.SessionTTL()),
		LastUsedAt: now,
		CreatedAt:  now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", apperr.Internal(err)
	}

	log.Info().Str("user_id", user.ID).Msg("Magic link verified, session created")
	return user, credential, nil
}

func (s *AuthService) mintCredential(user *models.User, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     now.Add(s.cfg.SessionTTL()).Unix(),
		"iat":     now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign credential: %w", err)
	}
	return signed, nil
}

func (s *AuthService) parseCredential(credential string) (*Claims, error) {
	token, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.New(apperr.KindInvalidToken, "invalid session credential")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperr.New(apperr.KindInvalidToken, "invalid session credential")
	}
	userID, ok := mapClaims["user_id"].(string)
	if !ok {
		return nil, apperr.New(apperr.KindInvalidToken, "invalid session credential")
	}
	addr, _ := mapClaims["email"].(string)
	return &Claims{UserID: userID, Email: addr}, nil
}

// Validate checks a credential's signature and then its liveness against the
// session table, so logout revokes credentials the signature alone would
// still accept. A live session has its last-used timestamp refreshed.
func (s *AuthService) Validate(ctx context.Context, credential string) (*Claims, error) {
	claims, err := s.parseCredential(credential)
	if err != nil {
		return nil, err
	}

	if _, err := s.sessions.Touch(ctx, hashToken(credential), time.Now()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.KindSessionExpired, "session expired")
		}
		return nil, apperr.Internal(err)
	}
	return claims, nil
}

// Logout revokes the session for a credential. Revoking an already-gone
// session succeeds.
func (s *AuthService) Logout(ctx context.Context, credential string) error {
	if err := s.sessions.DeleteByHash(ctx, hashToken(credential)); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Me returns the caller's profile
func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		return nil, apperr.Internal(err)
	}
	return user, nil
}

// SetPushToken stores or clears the caller's device push token
func (s *AuthService) SetPushToken(ctx context.Context, userID string, pushToken *string) error {
	if err := s.users.UpdatePushToken(ctx, userID, pushToken); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// DeleteAccount removes the caller's account; dependent rows cascade
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.users.Delete(ctx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New(apperr.KindNotFound, "user not found")
		}
		return apperr.Internal(err)
	}
	log.Info().Str("user_id", userID).Msg("Account deleted")
	return nil
}
