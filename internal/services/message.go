package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"common-grounds-backend/internal/apperr"
	"common-grounds-backend/internal/models"
	"common-grounds-backend/internal/ratelimit"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const (
	maxContentLength = 1000
	hideThreshold    = 5
	defaultPageSize  = 50
	maxPageSize      = 100
)

// MessageStore persists class messages
type MessageStore interface {
	Create(ctx context.Context, m *models.ClassMessage) error
	GetByID(ctx context.Context, id string) (*models.ClassMessage, error)
	ListVisible(ctx context.Context, classID string, limit, offset int) ([]*models.MessageView, error)
	CountVisible(ctx context.Context, classID string) (int, error)
	Flag(ctx context.Context, messageID string, hideThreshold int) (int, bool, error)
}

// EnrollmentChecker reports whether a user is enrolled in a class
type EnrollmentChecker interface {
	IsEnrolled(ctx context.Context, userID, classID string) (bool, error)
}

// Broadcaster fans a posted message out to the class's live subscribers
type Broadcaster interface {
	BroadcastMessage(ctx context.Context, classID string, view *models.MessageView) error
}

// MessagePage is one page of a class feed
type MessagePage struct {
	Messages []*models.MessageView `json:"messages"`
	Total    int                   `json:"total"`
	HasMore  bool                  `json:"has_more"`
}

// MessageService handles anonymous class messaging and moderation
type MessageService struct {
	messages    MessageStore
	enrollments EnrollmentChecker
	broadcaster Broadcaster
	limiter     *ratelimit.Limiter
	postsPerHr  int
}

// NewMessageService creates a new message service
func NewMessageService(
	messages MessageStore,
	enrollments EnrollmentChecker,
	broadcaster Broadcaster,
	limiter *ratelimit.Limiter,
	postsPerHour int,
) *MessageService {
	return &MessageService{
		messages:    messages,
		enrollments: enrollments,
		broadcaster: broadcaster,
		limiter:     limiter,
		postsPerHr:  postsPerHour,
	}
}

// AnonymousID derives the stable per-(user, class) pseudonym. Six hex chars
// keep the handle short; the truncation can collide at scale, which the
// product accepts for display brevity.
func AnonymousID(userID, classID string) string {
	sum := sha256.Sum256([]byte(userID + ":" + classID))
	return "Anon_" + hex.EncodeToString(sum[:])[:6]
}

func sanitizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.New(apperr.KindValidation, "message content is required")
	}
	if len([]rune(content)) > maxContentLength {
		return "", apperr.Newf(apperr.KindValidation, "message content exceeds %d characters", maxContentLength)
	}
	content = strings.ReplaceAll(content, "<", "&lt;")
	content = strings.ReplaceAll(content, ">", "&gt;")
	return content, nil
}

// Post creates an anonymous message in a class the caller is enrolled in
func (s *MessageService) Post(ctx context.Context, userID, classID, content string, parentID *string) (*models.MessageView, error) {
	enrolled, err := s.enrollments.IsEnrolled(ctx, userID, classID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !enrolled {
		return nil, apperr.New(apperr.KindNotEnrolled, "you are not enrolled in this class")
	}

	content, err = sanitizeContent(content)
	if err != nil {
		return nil, err
	}

	ok, err := s.limiter.Allow(ctx, "post:"+userID+":"+classID, s.postsPerHr, time.Hour)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, apperr.New(apperr.KindRateLimited, "too many posts in this class, try again later")
	}

	if parentID != nil {
		parent, err := s.messages.GetByID(ctx, *parentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperr.New(apperr.KindNotFound, "parent message not found")
			}
			return nil, apperr.Internal(err)
		}
		if parent.ClassID != classID {
			return nil, apperr.New(apperr.KindValidation, "parent message belongs to a different class")
		}
	}

	msg := &models.ClassMessage{
		ID:          uuid.New().String(),
		ClassID:     classID,
		UserID:      userID,
		AnonymousID: AnonymousID(userID, classID),
		Content:     content,
		ParentID:    parentID,
		CreatedAt:   time.Now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperr.Internal(err)
	}

	view := &models.MessageView{ClassMessage: *msg, ReplyCount: 0, IsOwnMessage: true}

	if s.broadcaster != nil {
		if err := s.broadcaster.BroadcastMessage(ctx, classID, view); err != nil {
			log.Error().Err(err).Str("class_id", classID).Msg("Failed to broadcast message")
		}
	}

	log.Info().Str("class_id", classID).Str("message_id", msg.ID).Msg("Message posted")
	return view, nil
}

// List returns a page of non-hidden messages for a class, newest first.
// IsOwnMessage is the only place authorship is revealed, and only to the
// author themselves. Enrollment is not required to read.
func (s *MessageService) List(ctx context.Context, callerID, classID string, limit, offset int) (*MessagePage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	views, err := s.messages.ListVisible(ctx, classID, limit, offset)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	total, err := s.messages.CountVisible(ctx, classID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	for _, v := range views {
		v.IsOwnMessage = v.UserID == callerID
	}

	return &MessagePage{
		Messages: views,
		Total:    total,
		HasMore:  offset+len(views) < total,
	}, nil
}

// Flag counts one report against a message; at the fifth report the message
// is hidden and never automatically un-hidden. Repeated flags from one user
// all count: per-user dedupe is a known, deliberate omission.
func (s *MessageService) Flag(ctx context.Context, messageID, userID string) error {
	count, hidden, err := s.messages.Flag(ctx, messageID, hideThreshold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New(apperr.KindNotFound, "message not found")
		}
		return apperr.Internal(err)
	}

	event := log.Info().Str("message_id", messageID).Str("flagged_by", userID).Int("count", count)
	if hidden {
		event = event.Bool("hidden", true)
	}
	event.Msg("Message flagged")
	return nil
}
