package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"common-grounds-backend/internal/apperr"
	"common-grounds-backend/internal/cache"
	"common-grounds-backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFriendshipStore struct {
	mu   sync.Mutex
	byID map[string]*models.Friendship
}

func newFakeFriendshipStore() *fakeFriendshipStore {
	return &fakeFriendshipStore{byID: make(map[string]*models.Friendship)}
}

func (s *fakeFriendshipStore) Create(_ context.Context, f *models.Friendship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.byID[f.ID] = &cp
	return nil
}

func (s *fakeFriendshipStore) GetByID(_ context.Context, id string) (*models.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *f
	return &cp, nil
}

func (s *fakeFriendshipStore) GetBetween(_ context.Context, userA, userB string) (*models.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.byID {
		if (f.RequesterID == userA && f.AddresseeID == userB) ||
			(f.RequesterID == userB && f.AddresseeID == userA) {
			cp := *f
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeFriendshipStore) UpdateStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	f.Status = status
	f.UpdatedAt = time.Now()
	return nil
}

func (s *fakeFriendshipStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(s.byID, id)
	return nil
}

func (s *fakeFriendshipStore) ListForUser(_ context.Context, userID, status string) ([]*models.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Friendship
	for _, f := range s.byID {
		if f.RequesterID != userID && f.AddresseeID != userID {
			continue
		}
		if status != "" && f.Status != status {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type capturePush struct {
	mu     sync.Mutex
	tokens []string
	titles []string
}

func (p *capturePush) Notify(deviceToken, title, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = append(p.tokens, deviceToken)
	p.titles = append(p.titles, title)
	return nil
}

func newTestCache(t *testing.T) (*cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return cache.New(client), mr
}

type friendFixture struct {
	svc         *FriendService
	friendships *fakeFriendshipStore
	users       *fakeUserStore
	push        *capturePush
	mr          *miniredis.Miniredis
}

func newFriendFixture(t *testing.T) *friendFixture {
	t.Helper()
	c, mr := newTestCache(t)
	f := &friendFixture{
		friendships: newFakeFriendshipStore(),
		users:       newFakeUserStore(),
		push:        &capturePush{},
		mr:          mr,
	}
	f.svc = NewFriendService(f.friendships, f.users, c, f.push)
	return f
}

func (f *friendFixture) seedUser(t *testing.T, email string, pushToken *string) *models.User {
	t.Helper()
	user, err := f.users.FindOrCreateByEmail(context.Background(), uuid.New().String(), email)
	require.NoError(t, err)
	user.PushToken = pushToken
	return user
}

func TestFriendRequestCreatesPending(t *testing.T) {
	f := newFriendFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, "alice@virginia.edu", nil)
	token := "device-token-1"
	bob := f.seedUser(t, "bob@virginia.edu", &token)

	created, err := f.svc.Request(ctx, alice.ID, "bob@virginia.edu")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipPending, created.Status)
	assert.Equal(t, alice.ID, created.RequesterID)
	assert.Equal(t, bob.ID, created.AddresseeID)

	// The addressee with a stored push token gets notified.
	assert.Equal(t, []string{"device-token-1"}, f.push.tokens)
}

func TestFriendRequestDuplicateEitherDirection(t *testing.T) {
	f := newFriendFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, "alice@virginia.edu", nil)
	bob := f.seedUser(t, "bob@virginia.edu", nil)

	_, err := f.svc.Request(ctx, alice.ID, "bob@virginia.edu")
	require.NoError(t, err)

	_, err = f.svc.Request(ctx, alice.ID, "bob@virginia.edu")
	assert.True(t, apperr.IsKind(err, apperr.KindAlreadyExists), "same direction: %v", err)

	_, err = f.svc.Request(ctx, bob.ID, "alice@virginia.edu")
	assert.True(t, apperr.IsKind(err, apperr.KindAlreadyExists), "reverse direction: %v", err)
}

func TestFriendRequestValidation(t *testing.T) {
	f := newFriendFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, "alice@virginia.edu", nil)

	_, err := f.svc.Request(ctx, alice.ID, "alice@virginia.edu")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "self request: %v", err)

	_, err = f.svc.Request(ctx, alice.ID, "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "empty target: %v", err)

	_, err = f.svc.Request(ctx, alice.ID, "stranger@virginia.edu")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound), "unknown target: %v", err)
}

func TestFriendRespondRecipientOnly(t *testing.T) {
	f := newFriendFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, "alice@virginia.edu", nil)
	bob := f.seedUser(t, "bob@virginia.edu", nil)
	eve := f.seedUser(t, "eve@virginia.edu", nil)

	created, err := f.svc.Request(ctx, alice.ID, "bob@virginia.edu")
	require.NoError(t, err)

	_, err = f.svc.Respond(ctx, alice.ID, created.ID, true)
	assert.True(t, apperr.IsKind(err, apperr.KindNotAuthorized), "requester responding: %v", err)
	_, err = f.svc.Respond(ctx, eve.ID, created.ID, true)
	assert.True(t, apperr.IsKind(err, apperr.KindNotAuthorized), "third party responding: %v", err)

	resolved, err := f.svc.Respond(ctx, bob.ID, created.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipAccepted, resolved.Status)

	// Only the recipient can resolve, and only once.
	_, err = f.svc.Respond(ctx, bob.ID, created.ID, false)
	assert.True(t, apperr.IsKind(err, apperr.KindAlreadyExists), "double resolve: %v", err)
}

func TestFriendRespondReject(t *testing.T) {
	f := newFriendFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, "alice@virginia.edu", nil)
	bob := f.seedUser(t, "bob@virginia.edu", nil)

	created, err := f.svc.Request(ctx, alice.ID, "bob@virginia.edu")
	require.NoError(t, err)

	resolved, err := f.svc.Respond(ctx, bob.ID, created.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipRejected, resolved.Status)
}

func TestUnfriendMemberOnly(t *testing.T) {
	f := newFriendFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, "alice@virginia.edu", nil)
	bob := f.seedUser(t, "bob@virginia.edu", nil)
	eve := f.seedUser(t, "eve@virginia.edu", nil)

	created, err := f.svc.Request(ctx, alice.ID, "bob@virginia.edu")
	require.NoError(t, err)
	_, err = f.svc.Respond(ctx, bob.ID, created.ID, true)
	require.NoError(t, err)

	err = f.svc.Unfriend(ctx, eve.ID, created.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotAuthorized), "outsider unfriend: %v", err)

	require.NoError(t, f.svc.Unfriend(ctx, bob.ID, created.ID))
	err = f.svc.Unfriend(ctx, bob.ID, created.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound), "second unfriend: %v", err)
}

func TestBlockCreatesOrOverrides(t *testing.T) {
	f := newFriendFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, "alice@virginia.edu", nil)
	bob := f.seedUser(t, "bob@virginia.edu", nil)

	// Block with no prior edge creates a BLOCKED row.
	require.NoError(t, f.svc.Block(ctx, alice.ID, bob.ID))
	edge, err := f.friendships.GetBetween(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipBlocked, edge.Status)

	// Blocking over an existing edge flips its status.
	carol := f.seedUser(t, "carol@virginia.edu", nil)
	created, err := f.svc.Request(ctx, carol.ID, "alice@virginia.edu")
	require.NoError(t, err)
	require.NoError(t, f.svc.Block(ctx, alice.ID, carol.ID))
	edge, err = f.friendships.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipBlocked, edge.Status)
}

func TestFriendListCachedAndInvalidated(t *testing.T) {
	f := newFriendFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, "alice@virginia.edu", nil)
	bob := f.seedUser(t, "bob@virginia.edu", nil)

	created, err := f.svc.Request(ctx, alice.ID, "bob@virginia.edu")
	require.NoError(t, err)

	first, err := f.svc.List(ctx, alice.ID, "")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.True(t, f.mr.Exists("friends:"+alice.ID+":"), "list should be cached")

	// Responding invalidates both sides' cached lists.
	_, err = f.svc.Respond(ctx, bob.ID, created.ID, true)
	require.NoError(t, err)
	assert.False(t, f.mr.Exists("friends:"+alice.ID+":"), "cache should be invalidated")

	accepted, err := f.svc.List(ctx, alice.ID, models.FriendshipAccepted)
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, models.FriendshipAccepted, accepted[0].Status)
}
