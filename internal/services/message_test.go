package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"common-grounds-backend/internal/apperr"
	"common-grounds-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

type fakeMessageStore struct {
	mu   sync.Mutex
	byID map[string]*models.ClassMessage
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{byID: make(map[string]*models.ClassMessage)}
}

func (s *fakeMessageStore) Create(_ context.Context, m *models.ClassMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.byID[m.ID] = &cp
	return nil
}

func (s *fakeMessageStore) GetByID(_ context.Context, id string) (*models.ClassMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *m
	return &cp, nil
}

func (s *fakeMessageStore) ListVisible(_ context.Context, classID string, limit, offset int) ([]*models.MessageView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tops []*models.ClassMessage
	for _, m := range s.byID {
		if m.ClassID == classID && !m.Hidden && m.ParentID == nil {
			tops = append(tops, m)
		}
	}
	sort.Slice(tops, func(i, j int) bool { return tops[i].CreatedAt.After(tops[j].CreatedAt) })

	var out []*models.MessageView
	for i := offset; i < len(tops) && len(out) < limit; i++ {
		m := tops[i]
		replies := 0
		for _, r := range s.byID {
			if r.ParentID != nil && *r.ParentID == m.ID && !r.Hidden {
				replies++
			}
		}
		out = append(out, &models.MessageView{ClassMessage: *m, ReplyCount: replies})
	}
	return out, nil
}

func (s *fakeMessageStore) CountVisible(_ context.Context, classID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, m := range s.byID {
		if m.ClassID == classID && !m.Hidden && m.ParentID == nil {
			total++
		}
	}
	return total, nil
}

// Flag mirrors the single atomic UPDATE of the real store.
func (s *fakeMessageStore) Flag(_ context.Context, messageID string, hideThreshold int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[messageID]
	if !ok {
		return 0, false, pgx.ErrNoRows
	}
	m.FlaggedCount++
	if m.FlaggedCount >= hideThreshold {
		m.Hidden = true
	}
	return m.FlaggedCount, m.Hidden, nil
}

type fakeEnrollmentChecker struct {
	mu       sync.Mutex
	enrolled map[string]bool
}

func newFakeEnrollmentChecker() *fakeEnrollmentChecker {
	return &fakeEnrollmentChecker{enrolled: make(map[string]bool)}
}

func (s *fakeEnrollmentChecker) enroll(userID, classID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrolled[userID+"/"+classID] = true
}

func (s *fakeEnrollmentChecker) IsEnrolled(_ context.Context, userID, classID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enrolled[userID+"/"+classID], nil
}

type captureBroadcaster struct {
	mu      sync.Mutex
	classID string
	view    *models.MessageView
	calls   int
}

func (b *captureBroadcaster) BroadcastMessage(_ context.Context, classID string, view *models.MessageView) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.classID = classID
	b.view = view
	b.calls++
	return nil
}

type messageFixture struct {
	svc         *MessageService
	store       *fakeMessageStore
	enrollments *fakeEnrollmentChecker
	broadcaster *captureBroadcaster
}

func newMessageFixture(t *testing.T, postsPerHour int) *messageFixture {
	t.Helper()
	f := &messageFixture{
		store:       newFakeMessageStore(),
		enrollments: newFakeEnrollmentChecker(),
		broadcaster: &captureBroadcaster{},
	}
	f.svc = NewMessageService(f.store, f.enrollments, f.broadcaster, newTestLimiter(t), postsPerHour)
	return f
}

func TestAnonymousIDStable(t *testing.T) {
	a := AnonymousID("user-1", "class-1")
	b := AnonymousID("user-1", "class-1")
	if a != b {
		t.Fatalf("AnonymousID not deterministic: %q vs %q", a, b)
	}

	if !regexp.MustCompile(`^Anon_[0-9a-f]{6}$`).MatchString(a) {
		t.Fatalf("AnonymousID format %q", a)
	}

	if AnonymousID("user-1", "class-2") == a {
		t.Fatal("different classes should yield different identifiers")
	}
	if AnonymousID("user-2", "class-1") == a {
		t.Fatal("different users should yield different identifiers")
	}
}

func TestPostRequiresEnrollment(t *testing.T) {
	f := newMessageFixture(t, 30)

	_, err := f.svc.Post(context.Background(), "user-1", "class-1", "hello", nil)
	if !apperr.IsKind(err, apperr.KindNotEnrolled) {
		t.Fatalf("Post without enrollment: got %v, want not enrolled", err)
	}
	if len(f.store.byID) != 0 {
		t.Fatal("rejected post must create no message")
	}
}

func TestPostValidation(t *testing.T) {
	f := newMessageFixture(t, 30)
	f.enrollments.enroll("user-1", "class-1")
	ctx := context.Background()

	for _, content := range []string{"", "   ", strings.Repeat("x", 1001)} {
		_, err := f.svc.Post(ctx, "user-1", "class-1", content, nil)
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Fatalf("Post(%d chars): got %v, want validation error", len(content), err)
		}
	}

	view, err := f.svc.Post(ctx, "user-1", "class-1", "  <script>hi</script>  ", nil)
	if err != nil {
		t.Fatalf("Post error: %v", err)
	}
	if view.Content != "&lt;script&gt;hi&lt;/script&gt;" {
		t.Fatalf("content not escaped: %q", view.Content)
	}
	if view.ReplyCount != 0 || !view.IsOwnMessage {
		t.Fatalf("new post view = %+v", view)
	}
	if view.AnonymousID != AnonymousID("user-1", "class-1") {
		t.Fatalf("post anonymous id %q", view.AnonymousID)
	}
}

func TestPostBroadcasts(t *testing.T) {
	f := newMessageFixture(t, 30)
	f.enrollments.enroll("user-1", "class-1")

	view, err := f.svc.Post(context.Background(), "user-1", "class-1", "hello", nil)
	if err != nil {
		t.Fatalf("Post error: %v", err)
	}
	if f.broadcaster.calls != 1 || f.broadcaster.classID != "class-1" {
		t.Fatalf("broadcast calls=%d class=%q", f.broadcaster.calls, f.broadcaster.classID)
	}
	if f.broadcaster.view.ID != view.ID {
		t.Fatal("broadcast view does not match created message")
	}
}

func TestPostRateLimited(t *testing.T) {
	f := newMessageFixture(t, 2)
	f.enrollments.enroll("user-1", "class-1")
	f.enrollments.enroll("user-1", "class-2")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Post(ctx, "user-1", "class-1", "hello", nil); err != nil {
			t.Fatalf("Post %d error: %v", i, err)
		}
	}
	_, err := f.svc.Post(ctx, "user-1", "class-1", "hello again", nil)
	if !apperr.IsKind(err, apperr.KindRateLimited) {
		t.Fatalf("third post: got %v, want rate limited", err)
	}
	// The limit is per class.
	if _, err := f.svc.Post(ctx, "user-1", "class-2", "hello", nil); err != nil {
		t.Fatalf("post in other class blocked: %v", err)
	}
}

func TestPostReplyToOtherClassRejected(t *testing.T) {
	f := newMessageFixture(t, 30)
	f.enrollments.enroll("user-1", "class-1")
	f.enrollments.enroll("user-1", "class-2")
	ctx := context.Background()

	parent, err := f.svc.Post(ctx, "user-1", "class-1", "root", nil)
	if err != nil {
		t.Fatalf("Post error: %v", err)
	}

	_, err = f.svc.Post(ctx, "user-1", "class-2", "reply", &parent.ID)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("cross-class reply: got %v, want validation error", err)
	}

	missing := "no-such-message"
	_, err = f.svc.Post(ctx, "user-1", "class-1", "reply", &missing)
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("reply to missing parent: got %v, want not found", err)
	}
}

func TestFlagThreshold(t *testing.T) {
	f := newMessageFixture(t, 30)
	f.enrollments.enroll("user-1", "class-1")
	ctx := context.Background()

	view, err := f.svc.Post(ctx, "user-1", "class-1", "borderline", nil)
	if err != nil {
		t.Fatalf("Post error: %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := f.svc.Flag(ctx, view.ID, "flagger"); err != nil {
			t.Fatalf("Flag %d error: %v", i, err)
		}
	}
	m, _ := f.store.GetByID(ctx, view.ID)
	if m.Hidden {
		t.Fatal("message hidden after 4 flags")
	}

	// The same caller's fifth flag still counts: no per-user dedupe.
	if err := f.svc.Flag(ctx, view.ID, "flagger"); err != nil {
		t.Fatalf("fifth Flag error: %v", err)
	}
	m, _ = f.store.GetByID(ctx, view.ID)
	if !m.Hidden || m.FlaggedCount != 5 {
		t.Fatalf("after 5 flags: hidden=%v count=%d", m.Hidden, m.FlaggedCount)
	}
}

func TestFlagMissingMessage(t *testing.T) {
	f := newMessageFixture(t, 30)
	err := f.svc.Flag(context.Background(), "nope", "user-1")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("Flag on missing message: got %v, want not found", err)
	}
}

func TestFlagConcurrent(t *testing.T) {
	f := newMessageFixture(t, 30)
	f.enrollments.enroll("user-1", "class-1")
	ctx := context.Background()

	view, err := f.svc.Post(ctx, "user-1", "class-1", "pile-on", nil)
	if err != nil {
		t.Fatalf("Post error: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := f.svc.Flag(ctx, view.ID, fmt.Sprintf("user-%d", n)); err != nil {
				t.Errorf("Flag error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	m, _ := f.store.GetByID(ctx, view.ID)
	if m.FlaggedCount != workers {
		t.Fatalf("flag count converged to %d, want %d", m.FlaggedCount, workers)
	}
	if !m.Hidden {
		t.Fatal("message must be hidden after threshold")
	}
}

func TestListHidesFlaggedAndMarksOwn(t *testing.T) {
	f := newMessageFixture(t, 30)
	f.enrollments.enroll("alice", "class-x")
	ctx := context.Background()

	posted, err := f.svc.Post(ctx, "alice", "class-x", "hello", nil)
	if err != nil {
		t.Fatalf("Post error: %v", err)
	}
	hiddenMsg, err := f.svc.Post(ctx, "alice", "class-x", "about to be hidden", nil)
	if err != nil {
		t.Fatalf("Post error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := f.svc.Flag(ctx, hiddenMsg.ID, "mob"); err != nil {
			t.Fatalf("Flag error: %v", err)
		}
	}

	// Reading does not require enrollment: bob has no enrollment row.
	page, err := f.svc.List(ctx, "bob", "class-x", 50, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if page.Total != 1 || len(page.Messages) != 1 || page.HasMore {
		t.Fatalf("page = total %d, %d messages, hasMore %v", page.Total, len(page.Messages), page.HasMore)
	}
	got := page.Messages[0]
	if got.ID != posted.ID {
		t.Fatalf("listed message %s, want %s", got.ID, posted.ID)
	}
	if got.Hidden {
		t.Fatal("hidden message leaked into list")
	}
	if got.IsOwnMessage {
		t.Fatal("bob must not see alice's message as his own")
	}

	alicePage, err := f.svc.List(ctx, "alice", "class-x", 50, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if !alicePage.Messages[0].IsOwnMessage {
		t.Fatal("alice must see her own message flagged as hers")
	}
}

func TestListPagination(t *testing.T) {
	f := newMessageFixture(t, 100)
	f.enrollments.enroll("alice", "class-x")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := f.svc.Post(ctx, "alice", "class-x", fmt.Sprintf("msg %d", i), nil); err != nil {
			t.Fatalf("Post error: %v", err)
		}
		time.Sleep(time.Millisecond)
	}

	page, err := f.svc.List(ctx, "alice", "class-x", 2, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(page.Messages) != 2 || page.Total != 5 || !page.HasMore {
		t.Fatalf("first page = %d messages, total %d, hasMore %v", len(page.Messages), page.Total, page.HasMore)
	}
	if !page.Messages[0].CreatedAt.After(page.Messages[1].CreatedAt) {
		t.Fatal("messages not newest first")
	}

	last, err := f.svc.List(ctx, "alice", "class-x", 2, 4)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(last.Messages) != 1 || last.HasMore {
		t.Fatalf("last page = %d messages, hasMore %v", len(last.Messages), last.HasMore)
	}
}

func TestReplyCountsExcludeHidden(t *testing.T) {
	f := newMessageFixture(t, 100)
	f.enrollments.enroll("alice", "class-x")
	f.enrollments.enroll("bob", "class-x")
	ctx := context.Background()

	root, err := f.svc.Post(ctx, "alice", "class-x", "root", nil)
	if err != nil {
		t.Fatalf("Post error: %v", err)
	}
	if _, err := f.svc.Post(ctx, "bob", "class-x", "reply 1", &root.ID); err != nil {
		t.Fatalf("Post error: %v", err)
	}
	hiddenReply, err := f.svc.Post(ctx, "bob", "class-x", "reply 2", &root.ID)
	if err != nil {
		t.Fatalf("Post error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := f.svc.Flag(ctx, hiddenReply.ID, "mob"); err != nil {
			t.Fatalf("Flag error: %v", err)
		}
	}

	page, err := f.svc.List(ctx, "alice", "class-x", 50, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("replies leaked into top level: %d messages", len(page.Messages))
	}
	if page.Messages[0].ReplyCount != 1 {
		t.Fatalf("reply count %d, want 1 (hidden reply excluded)", page.Messages[0].ReplyCount)
	}
}
