package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"common-grounds-backend/internal/apperr"
	"common-grounds-backend/internal/cache"
	"common-grounds-backend/internal/catalog"
	"common-grounds-backend/internal/models"
	"common-grounds-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const (
	catalogCacheTTL   = 24 * time.Hour
	classListCacheTTL = time.Hour
)

// ClassStore persists cached catalog classes
type ClassStore interface {
	Upsert(ctx context.Context, c *models.Class) (*models.Class, error)
	GetByID(ctx context.Context, id string) (*models.Class, error)
	Search(ctx context.Context, subject, catalogNumber, term string) ([]*models.Class, error)
}

// EnrollmentStore persists class enrollments
type EnrollmentStore interface {
	Enroll(ctx context.Context, uc *models.UserClass) error
	Drop(ctx context.Context, userID, classID string) error
	IsEnrolled(ctx context.Context, userID, classID string) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Class, error)
	CommonClasses(ctx context.Context, userA, userB string) ([]*models.Class, error)
}

// CatalogClient queries the external course catalog
type CatalogClient interface {
	Search(ctx context.Context, subject, catalogNumber, term string) ([]catalog.Section, error)
}

// ClassService handles catalog search and enrollment
type ClassService struct {
	classes     ClassStore
	enrollments EnrollmentStore
	friendships FriendshipStore
	catalog     CatalogClient
	cache       *cache.Cache
}

// NewClassService creates a new class service
func NewClassService(
	classes ClassStore,
	enrollments EnrollmentStore,
	friendships FriendshipStore,
	catalogClient CatalogClient,
	c *cache.Cache,
) *ClassService {
	return &ClassService{
		classes:     classes,
		enrollments: enrollments,
		friendships: friendships,
		catalog:     catalogClient,
		cache:       c,
	}
}

func catalogKey(subject, catalogNumber, term string) string {
	return "catalog:" + subject + ":" + catalogNumber + ":" + term
}

func classListKey(userID string) string {
	return "classes:" + userID
}

func commonKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return "common:" + userA + ":" + userB
}

func (s *ClassService) invalidateUser(ctx context.Context, userID string) {
	if err := s.cache.Delete(ctx, classListKey(userID)); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to invalidate class list cache")
	}
	// The user can be on either side of the sorted pair key.
	for _, pattern := range []string{"common:" + userID + ":*", "common:*:" + userID} {
		if err := s.cache.DeletePattern(ctx, pattern); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to invalidate common-class cache")
		}
	}
}

// Search looks a course up in the cache, then the external catalog, then the
// primary store. Catalog hits are upserted so they keep serving after the
// source goes down; with no catalog and nothing stored the search fails as
// unavailable.
func (s *ClassService) Search(ctx context.Context, subject, catalogNumber, term string) ([]*models.Class, error) {
	subject = strings.ToUpper(strings.TrimSpace(subject))
	catalogNumber = strings.TrimSpace(catalogNumber)
	if subject == "" || catalogNumber == "" {
		return nil, apperr.New(apperr.KindValidation, "subject and catalog number are required")
	}

	key := catalogKey(subject, catalogNumber, term)
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var out []*models.Class
		if err := json.Unmarshal([]byte(cached), &out); err == nil {
			return out, nil
		}
	}

	sections, err := s.catalog.Search(ctx, subject, catalogNumber, term)
	if err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("Catalog unreachable, falling back to stored classes")
		stored, repoErr := s.classes.Search(ctx, subject, catalogNumber, term)
		if repoErr != nil {
			return nil, apperr.Internal(repoErr)
		}
		if len(stored) == 0 {
			return nil, apperr.New(apperr.KindServiceUnavailable, "course catalog is unavailable")
		}
		return stored, nil
	}

	out := make([]*models.Class, 0, len(sections))
	for _, sec := range sections {
		stored, err := s.classes.Upsert(ctx, &models.Class{
			ID:            uuid.New().String(),
			Subject:       sec.Subject,
			CatalogNumber: sec.CatalogNumber,
			Term:          sec.Term,
			ExternalID:    sec.ExternalID,
			Title:         sec.Title,
			Instructor:    sec.Instructor,
			MeetingTimes:  sec.MeetingTimes,
		})
		if err != nil {
			return nil, apperr.Internal(err)
		}
		out = append(out, stored)
	}

	if data, err := json.Marshal(out); err == nil {
		if err := s.cache.Set(ctx, key, string(data), catalogCacheTTL); err != nil {
			log.Error().Err(err).Msg("Failed to cache catalog result")
		}
	}
	return out, nil
}

// Enroll adds the caller to a class
func (s *ClassService) Enroll(ctx context.Context, userID, classID string) error {
	if _, err := s.classes.GetByID(ctx, classID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New(apperr.KindNotFound, "class not found")
		}
		return apperr.Internal(err)
	}

	uc := &models.UserClass{
		ID:        uuid.New().String(),
		UserID:    userID,
		ClassID:   classID,
		CreatedAt: time.Now(),
	}
	if err := s.enrollments.Enroll(ctx, uc); err != nil {
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			return apperr.New(apperr.KindAlreadyExists, "already enrolled in this class")
		}
		return apperr.Internal(err)
	}

	s.invalidateUser(ctx, userID)
	log.Info().Str("user_id", userID).Str("class_id", classID).Msg("Enrolled in class")
	return nil
}

// Drop removes the caller from a class
func (s *ClassService) Drop(ctx context.Context, userID, classID string) error {
	if err := s.enrollments.Drop(ctx, userID, classID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.New(apperr.KindNotFound, "enrollment not found")
		}
		return apperr.Internal(err)
	}

	s.invalidateUser(ctx, userID)
	log.Info().Str("user_id", userID).Str("class_id", classID).Msg("Dropped class")
	return nil
}

// ListForUser returns the caller's classes, read-through cached
func (s *ClassService) ListForUser(ctx context.Context, userID string) ([]*models.Class, error) {
	key := classListKey(userID)
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var out []*models.Class
		if err := json.Unmarshal([]byte(cached), &out); err == nil {
			return out, nil
		}
	}

	out, err := s.enrollments.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if data, err := json.Marshal(out); err == nil {
		if err := s.cache.Set(ctx, key, string(data), classListCacheTTL); err != nil {
			log.Error().Err(err).Msg("Failed to cache class list")
		}
	}
	return out, nil
}

// CommonWith returns classes shared with an accepted friend
func (s *ClassService) CommonWith(ctx context.Context, userID, friendID string) ([]*models.Class, error) {
	f, err := s.friendships.GetBetween(ctx, userID, friendID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotAuthorized, "you are not friends with this user")
		}
		return nil, apperr.Internal(err)
	}
	if f.Status != models.FriendshipAccepted {
		return nil, apperr.New(apperr.KindNotAuthorized, "you are not friends with this user")
	}

	key := commonKey(userID, friendID)
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var out []*models.Class
		if err := json.Unmarshal([]byte(cached), &out); err == nil {
			return out, nil
		}
	}

	out, err := s.enrollments.CommonClasses(ctx, userID, friendID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if data, err := json.Marshal(out); err == nil {
		if err := s.cache.Set(ctx, key, string(data), classListCacheTTL); err != nil {
			log.Error().Err(err).Msg("Failed to cache common classes")
		}
	}
	return out, nil
}
