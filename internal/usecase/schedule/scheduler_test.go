package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-fanout-bot/internal/domain"
)

type stubUserRepo struct {
	byTime  map[string][]domain.User
	updated map[int64]string
	modes   map[int64]domain.DeliveryMode
	langs   map[int64]string
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		byTime:  make(map[string][]domain.User),
		updated: make(map[int64]string),
		modes:   make(map[int64]domain.DeliveryMode),
		langs:   make(map[int64]string),
	}
}

func (s *stubUserRepo) GetOrCreateUser(id int64) (domain.User, error) {
	return domain.User{ID: id, Language: "uz"}, nil
}

func (s *stubUserRepo) GetUser(id int64) (domain.User, error) {
	return domain.User{ID: id, Language: "uz"}, nil
}

func (s *stubUserRepo) UpdateMode(id int64, mode domain.DeliveryMode) error {
	s.modes[id] = mode
	return nil
}

func (s *stubUserRepo) UpdateDigestTime(id int64, hhmm string) error {
	s.updated[id] = hhmm
	return nil
}

func (s *stubUserRepo) UpdateLanguage(id int64, lang string) error {
	s.langs[id] = lang
	return nil
}

func (s *stubUserRepo) ListUsersForDigest(hhmm string) ([]domain.User, error) {
	return s.byTime[hhmm], nil
}

type stubDigests struct {
	mu        sync.Mutex
	delivered []int64
	failFor   map[int64]error
}

func (s *stubDigests) DeliverDigest(ctx context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[user.ID]; ok {
		return err
	}
	s.delivered = append(s.delivered, user.ID)
	return nil
}

func (s *stubDigests) ManualDigest(ctx context.Context, user domain.User) (bool, error) {
	return false, errors.New("не используется")
}

type stubPosts struct {
	purged    bool
	retention time.Duration
}

func (s *stubPosts) RecordPost(channelID, tgMsgID int64, text string) (bool, error) {
	return false, errors.New("не используется")
}

func (s *stubPosts) UnsentPostsForUser(userID int64, lookback time.Duration) ([]domain.UserPost, error) {
	return nil, nil
}

func (s *stubPosts) MarkPostsSent(ids []int64) error { return nil }

func (s *stubPosts) PurgeOlderThan(retention time.Duration) (int64, error) {
	s.purged = true
	s.retention = retention
	return 3, nil
}

type onceCache struct {
	seen map[string]bool
}

func (c *onceCache) Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	if c.seen[key] {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	c.seen[key] = true
	return nil
}

func fixedClock(hhmm string) func() time.Time {
	moment, _ := time.Parse("2006-01-02 15:04", "2025-03-10 "+hhmm)
	return func() time.Time { return moment }
}

func TestTickDeliversMatchingUsers(t *testing.T) {
	users := newStubUserRepo()
	users.byTime["09:30"] = []domain.User{{ID: 1, DigestTime: "09:30"}, {ID: 2, DigestTime: "09:30"}}
	digests := &stubDigests{}
	posts := &stubPosts{}

	sched := NewScheduler(users, digests, posts, &onceCache{}, zerolog.Nop(), time.Minute, 168*time.Hour)
	sched.now = fixedClock("09:30")
	sched.Tick(context.Background())

	if len(digests.delivered) != 2 {
		t.Fatalf("ожидались две доставки, получено %v", digests.delivered)
	}
	if posts.purged {
		t.Error("очистка не должна запускаться вне полуночи")
	}
}

func TestTickSkipsNonMatchingMinute(t *testing.T) {
	users := newStubUserRepo()
	users.byTime["09:30"] = []domain.User{{ID: 1}}
	digests := &stubDigests{}

	sched := NewScheduler(users, digests, &stubPosts{}, &onceCache{}, zerolog.Nop(), time.Minute, 168*time.Hour)
	sched.now = fixedClock("09:31")
	sched.Tick(context.Background())

	if len(digests.delivered) != 0 {
		t.Errorf("доставка не должна запускаться в чужую минуту: %v", digests.delivered)
	}
}

func TestTickIsolatesUserFailures(t *testing.T) {
	users := newStubUserRepo()
	users.byTime["09:30"] = []domain.User{{ID: 1}, {ID: 2}, {ID: 3}}
	digests := &stubDigests{failFor: map[int64]error{2: errors.New("сеть")}}

	sched := NewScheduler(users, digests, &stubPosts{}, &onceCache{}, zerolog.Nop(), time.Minute, 168*time.Hour)
	sched.now = fixedClock("09:30")
	sched.Tick(context.Background())

	if len(digests.delivered) != 2 {
		t.Errorf("провал одного пользователя не должен мешать остальным: %v", digests.delivered)
	}
}

func TestTickDeduplicatesSameDay(t *testing.T) {
	users := newStubUserRepo()
	users.byTime["09:30"] = []domain.User{{ID: 1}}
	digests := &stubDigests{}

	sched := NewScheduler(users, digests, &stubPosts{}, &onceCache{}, zerolog.Nop(), time.Minute, 168*time.Hour)
	sched.now = fixedClock("09:30")
	sched.Tick(context.Background())
	sched.Tick(context.Background())

	if len(digests.delivered) != 1 {
		t.Errorf("повторный тик той же минуты не должен доставлять дважды: %v", digests.delivered)
	}
}

func TestMidnightTickPurges(t *testing.T) {
	posts := &stubPosts{}

	sched := NewScheduler(newStubUserRepo(), &stubDigests{}, posts, &onceCache{}, zerolog.Nop(), time.Minute, 168*time.Hour)
	sched.now = fixedClock("00:00")
	sched.Tick(context.Background())

	if !posts.purged {
		t.Fatal("в полночь должна запускаться очистка")
	}
	if posts.retention != 168*time.Hour {
		t.Errorf("очистка с неверным окном хранения: %v", posts.retention)
	}
}

func TestStartStop(t *testing.T) {
	sched := NewScheduler(newStubUserRepo(), &stubDigests{}, &stubPosts{}, nil, zerolog.Nop(), time.Hour, 168*time.Hour)
	sched.Start()
	done := make(chan struct{})
	go func() {
		sched.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop не завершился")
	}
}
