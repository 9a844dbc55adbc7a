package digest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-fanout-bot/internal/domain"
	"tg-fanout-bot/internal/i18n"
	"tg-fanout-bot/internal/infra/metrics"
)

// Service строит и доставляет дайджесты пользователям.
type Service struct {
	posts    domain.PostRepo
	notifier domain.Notifier
	log      zerolog.Logger

	lookback   time.Duration
	perChannel int
	truncate   int
}

var _ domain.DigestService = (*Service)(nil)

// NewService создаёт сервис дайджестов.
func NewService(posts domain.PostRepo, notifier domain.Notifier, log zerolog.Logger,
	lookback time.Duration, perChannel, truncate int) *Service {
	return &Service{
		posts:      posts,
		notifier:   notifier,
		log:        log,
		lookback:   lookback,
		perChannel: perChannel,
		truncate:   truncate,
	}
}

// DeliverDigest доставляет плановый дайджест. Пустой набор постов —
// тишина: плановый путь никогда не шлёт пустых уведомлений.
func (s *Service) DeliverDigest(ctx context.Context, user domain.User) error {
	posts, err := s.posts.UnsentPostsForUser(user.ID, s.lookback)
	if err != nil {
		return fmt.Errorf("получение постов: %w", err)
	}
	if len(posts) == 0 {
		return nil
	}
	return s.send(ctx, user, posts)
}

// ManualDigest доставляет дайджест по запросу пользователя. В отличие от
// планового пути пустой набор приводит к явному уведомлению «постов нет»
// и возврату false. Эта асимметрия намеренная.
func (s *Service) ManualDigest(ctx context.Context, user domain.User) (bool, error) {
	posts, err := s.posts.UnsentPostsForUser(user.ID, s.lookback)
	if err != nil {
		return false, fmt.Errorf("получение постов: %w", err)
	}
	if len(posts) == 0 {
		if err := s.notifier.Notify(ctx, user.ID, i18n.T(user.Language, "no_posts")); err != nil {
			return false, fmt.Errorf("уведомление об отсутствии постов: %w", err)
		}
		return false, nil
	}
	if err := s.send(ctx, user, posts); err != nil {
		return false, err
	}
	return true, nil
}

// send доставляет сводку одним сообщением и помечает посты отправленными.
// Если доставка удалась, а пометка прервалась, посты могут уйти повторно
// на следующем прогоне: принятая семантика at-least-once.
func (s *Service) send(ctx context.Context, user domain.User, posts []domain.UserPost) error {
	start := time.Now()
	message := FormatDigest(user.Language, posts, s.perChannel, s.truncate)

	if err := s.notifier.Notify(ctx, user.ID, message); err != nil {
		return fmt.Errorf("доставка дайджеста: %w", err)
	}

	ids := make([]int64, 0, len(posts))
	for _, post := range posts {
		ids = append(ids, post.ID)
	}
	if err := s.posts.MarkPostsSent(ids); err != nil {
		return fmt.Errorf("пометка постов: %w", err)
	}

	metrics.DigestsDeliveredTotal.Inc()
	metrics.DigestBuildSeconds.Observe(time.Since(start).Seconds())
	s.log.Info().Int64("user", user.ID).Int("posts", len(posts)).Msg("дайджест доставлен")
	return nil
}
