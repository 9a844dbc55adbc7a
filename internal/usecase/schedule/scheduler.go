package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tg-fanout-bot/internal/domain"
	"tg-fanout-bot/internal/infra/metrics"
)

// Scheduler раз в минуту сверяет текущее время с настройками пользователей
// и запускает доставку дайджестов. В полночь чистит устаревшие посты.
type Scheduler struct {
	users   domain.UserRepo
	digests domain.DigestService
	posts   domain.PostRepo
	cache   domain.Cache
	log     zerolog.Logger

	tick      time.Duration
	retention time.Duration
	now       func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewScheduler создаёт планировщик.
func NewScheduler(users domain.UserRepo, digests domain.DigestService, posts domain.PostRepo,
	cache domain.Cache, log zerolog.Logger, tick, retention time.Duration) *Scheduler {
	return &Scheduler{
		users:     users,
		digests:   digests,
		posts:     posts,
		cache:     cache,
		log:       log,
		tick:      tick,
		retention: retention,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start запускает фоновый цикл планировщика.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
}

// Stop останавливает цикл и дожидается завершения текущего тика.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		<-s.done
	})
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick обрабатывает одну минуту расписания. Ошибки изолированы по
// пользователям: провал одной доставки не мешает остальным.
func (s *Scheduler) Tick(ctx context.Context) {
	moment := s.now()
	hhmm := moment.Format("15:04")

	users, err := s.users.ListUsersForDigest(hhmm)
	if err != nil {
		s.log.Error().Err(err).Str("time", hhmm).Msg("планировщик: выборка пользователей")
	} else {
		for _, user := range users {
			s.deliver(ctx, user, moment)
		}
	}

	if hhmm == "00:00" {
		purged, err := s.posts.PurgeOlderThan(s.retention)
		if err != nil {
			s.log.Error().Err(err).Msg("планировщик: очистка постов")
			return
		}
		metrics.PurgedPostsTotal.Add(float64(purged))
		s.log.Info().Int64("posts", purged).Msg("планировщик: старые посты удалены")
	}
}

// deliver запускает доставку под суточным ключом дедупликации: повторный
// тик той же минуты (рестарт, гонка тикера) не приведёт к двойной отправке.
func (s *Scheduler) deliver(ctx context.Context, user domain.User, moment time.Time) {
	run := func() error {
		return s.digests.DeliverDigest(ctx, user)
	}

	var err error
	if s.cache != nil {
		key := fmt.Sprintf("digest:%d:%s", user.ID, moment.Format("2006-01-02"))
		err = s.cache.Once(ctx, key, 23*time.Hour, run)
	} else {
		err = run()
	}
	if err != nil {
		s.log.Error().Err(err).Int64("user", user.ID).Msg("планировщик: доставка дайджеста")
	}
}
