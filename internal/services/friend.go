package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"common-grounds-backend/internal/apperr"
	"common-grounds-backend/internal/cache"
	"common-grounds-backend/internal/models"
	"common-grounds-backend/internal/push"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const friendCacheTTL = time.Hour

// FriendshipStore persists friendship edges
type FriendshipStore interface {
	Create(ctx context.Context, f *models.Friendship) error
	GetByID(ctx context.Context, id string) (*models.Friendship, error)
	GetBetween(ctx context.Context, userA, userB string) (*models.Friendship, error)
	UpdateStatus(ctx context.Context, id, status string) error
	Delete(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID, status string) ([]*models.Friendship, error)
}

// UserLookup resolves users for friend requests
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByHandleOrEmail(ctx context.Context, s string) (*models.User, error)
}

// FriendService handles friend requests and responses
type FriendService struct {
	friendships FriendshipStore
	users       UserLookup
	cache       *cache.Cache
	notifier    push.Notifier
}

// NewFriendService creates a new friend service
func NewFriendService(friendships FriendshipStore, users UserLookup, c *cache.Cache, notifier push.Notifier) *FriendService {
	return &FriendService{
		friendships: friendships,
		users:       users,
		cache:       c,
		notifier:    notifier,
	}
}

func friendListKey(userID, status string) string {
	return "friends:" + userID + ":" + status
}

func (s *FriendService) invalidate(ctx context.Context, userIDs ...string) {
	for _, id := range userIDs {
		if err := s.cache.DeletePattern(ctx, "friends:"+id+":*"); err != nil {
			log.Error().Err(err).Str("user_id", id).Msg("Failed to invalidate friend cache")
		}
	}
}

func (s *FriendService) notify(user *models.User, title, body string) {
	if user.PushToken == nil {
		return
	}
	if err := s.notifier.Notify(*user.PushToken, title, body); err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to send push notification")
	}
}

// Request creates a PENDING friendship toward the user identified by handle
// or email. Any existing edge between the pair, in either direction, rejects
// the request as a duplicate.
func (s *FriendService) Request(ctx context.Context, requesterID, target string) (*models.Friendship, error) {
	if target == "" {
		return nil, apperr.New(apperr.KindValidation, "friend handle or email is required")
	}

	addressee, err := s.users.GetByHandleOrEmail(ctx, NormalizeEmail(target))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		return nil, apperr.Internal(err)
	}
	if addressee.ID == requesterID {
		return nil, apperr.New(apperr.KindValidation, "cannot send a friend request to yourself")
	}

	if _, err := s.friendships.GetBetween(ctx, requesterID, addressee.ID); err == nil {
		return nil, apperr.New(apperr.KindAlreadyExists, "a friendship already exists between these users")
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Internal(err)
	}

	f := &models.Friendship{
		ID:          uuid.New().String(),
		RequesterID: requesterID,
		AddresseeID: addressee.ID,
		Status:      models.FriendshipPending,
		CreatedAt:   time.Now(),
	}
	if err := s.friendships.Create(ctx, f); err != nil {
		return nil, apperr.Internal(err)
	}

	s.invalidate(ctx, requesterID, addressee.ID)
	s.notify(addressee, "New friend request", "Someone at your school wants to connect")

	log.Info().Str("friendship_id", f.ID).Str("requester_id", requesterID).Msg("Friend request created")
	return f, nil
}

// Respond accepts or rejects a pending request. Only the recipient may respond.
func (s *FriendService) Respond(ctx context.Context, userID, friendshipID string, accept bool) (*models.Friendship, error) {
	f, err := s.friendships.GetByID(ctx, friendshipID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, "friend request not found")
		}
		return nil, apperr.Internal(err)
	}
	if f.AddresseeID != userID {
		return nil, apperr.New(apperr.KindNotAuthorized, "only the recipient can respond to a friend request")
	}
	if f.Status != models.FriendshipPending {
		return nil, apperr.New(apperr.KindAlreadyExists, "friend request already resolved")
	}

	status := models.FriendshipRejected
	if accept {
		status = models.FriendshipAccepted
	}
	if err := s.friendships.UpdateStatus(ctx, f.ID, status); err != nil {
		return nil, apperr.Internal(err)
	}
	f.Status = status

	s.invalidate(ctx, f.RequesterID, f.AddresseeID)

	if accept {
		if requester, err := s.users.GetByID(ctx, f.RequesterID); err == nil {
			s.notify(requester, "Friend request accepted", "Your friend request was accepted")
		}
	}

	log.Info().Str("friendship_id", f.ID).Str("status", status).Msg("Friend request resolved")
	return f, nil
}

// Block marks the edge between the caller and another user as BLOCKED,
// creating it if none exists.
func (s *FriendService) Block(ctx context.Context, userID, otherUserID string) error {
	if otherUserID == "" || otherUserID == userID {
		return apperr.New(apperr.KindValidation, "invalid user to block")
	}

	f, err := s.friendships.GetBetween(ctx, userID, otherUserID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return apperr.Internal(err)
		}
		f = &models.Friendship{
			ID:          uuid.New().String(),
			RequesterID: userID,
			AddresseeID: otherUserID,
			Status:      models.FriendshipBlocked,
			CreatedAt:   time.Now(),
		}
		if err := s.friendships.Create(ctx, f); err != nil {
			return apperr.Internal(err)
		}
	} else if err := s.friendships.UpdateStatus(ctx, f.ID, models.FriendshipBlocked); err != nil {
		return apperr.Internal(err)
	}

	s.invalidate(ctx, userID, otherUserID)
	log.Info().Str("user_id", userID).Msg("User blocked")
	return nil
}

// Unfriend deletes a friendship. Either member may do so.
func (s *FriendService) Unfriend(ctx context.Context, userID, friendshipID string) error {
	f, err := s.friendships.GetByID(ctx, friendshipID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New(apperr.KindNotFound, "friendship not found")
		}
		return apperr.Internal(err)
	}
	if f.RequesterID != userID && f.AddresseeID != userID {
		return apperr.New(apperr.KindNotAuthorized, "you are not a member of this friendship")
	}

	if err := s.friendships.Delete(ctx, f.ID); err != nil {
		return apperr.Internal(err)
	}

	s.invalidate(ctx, f.RequesterID, f.AddresseeID)
	log.Info().Str("friendship_id", f.ID).Msg("Friendship removed")
	return nil
}

// List returns friendships involving the caller, optionally filtered by
// status, served read-through from the cache.
func (s *FriendService) List(ctx context.Context, userID, status string) ([]*models.Friendship, error) {
	key := friendListKey(userID, status)
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var out []*models.Friendship
		if err := json.Unmarshal([]byte(cached), &out); err == nil {
			return out, nil
		}
	}

	out, err := s.friendships.ListForUser(ctx, userID, status)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if data, err := json.Marshal(out); err == nil {
		if err := s.cache.Set(ctx, key, string(data), friendCacheTTL); err != nil {
			log.Error().Err(err).Msg("Failed to cache friend list")
		}
	}
	return out, nil
}
