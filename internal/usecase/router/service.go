package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tg-fanout-bot/internal/domain"
	"tg-fanout-bot/internal/i18n"
	"tg-fanout-bot/internal/infra/metrics"
)

// ErrHandleInvalid возвращается при некорректном хэндле канала.
var ErrHandleInvalid = errors.New("некорректный хэндл")

var handleRegex = regexp.MustCompile(`(?i)^(?:@|https?://t\.me/|t\.me/)?([a-z0-9_]{5,})$`)

// ParseHandle приводит ввод пользователя к каноничному хэндлу.
func ParseHandle(input string) (string, error) {
	trim := strings.TrimSpace(input)
	matches := handleRegex.FindStringSubmatch(trim)
	if len(matches) < 2 {
		return "", ErrHandleInvalid
	}
	return strings.ToLower(matches[1]), nil
}

// Service — роутер входящих постов и реестр наблюдения.
//
// Активное множество каналов — сквозной кэш поверх реестра: строится при
// старте из ListWatchedChannels и синхронно обновляется под мьютексом при
// каждой подписке и отписке. Источник истины всегда в хранилище.
type Service struct {
	users    domain.UserRepo
	channels domain.ChannelRepo
	subs     domain.SubscriptionRepo
	posts    domain.PostRepo
	resolver domain.ChannelResolver
	notifier domain.Notifier
	log      zerolog.Logger

	mu      sync.Mutex
	watched map[int64]struct{}
}

// NewService создаёт роутер.
func NewService(users domain.UserRepo, channels domain.ChannelRepo, subs domain.SubscriptionRepo,
	posts domain.PostRepo, resolver domain.ChannelResolver, notifier domain.Notifier, log zerolog.Logger) *Service {
	return &Service{
		users:    users,
		channels: channels,
		subs:     subs,
		posts:    posts,
		resolver: resolver,
		notifier: notifier,
		log:      log,
		watched:  make(map[int64]struct{}),
	}
}

// Start восстанавливает активное множество из реестра.
func (s *Service) Start() error {
	channels, err := s.channels.ListWatchedChannels()
	if err != nil {
		return fmt.Errorf("загрузка наблюдаемых каналов: %w", err)
	}
	s.mu.Lock()
	s.watched = make(map[int64]struct{}, len(channels))
	for _, ch := range channels {
		if ch.TGChannelID != 0 {
			s.watched[ch.TGChannelID] = struct{}{}
		}
	}
	size := len(s.watched)
	s.mu.Unlock()
	metrics.WatchedChannels.Set(float64(size))
	s.log.Info().Int("channels", size).Msg("роутер: наблюдение восстановлено")
	return nil
}

// Subscribe подписывает пользователя на канал по хэндлу.
func (s *Service) Subscribe(ctx context.Context, userID int64, handle string) (domain.SubscribeResult, error) {
	parsed, err := ParseHandle(handle)
	if err != nil {
		return domain.SubscribeResult{Status: domain.SubscribeNotFound}, err
	}

	user, err := s.users.GetOrCreateUser(userID)
	if err != nil {
		return domain.SubscribeResult{}, fmt.Errorf("получение пользователя: %w", err)
	}

	// Уже известный канал с существующей подпиской не требует похода
	// во внешний транспорт.
	if known, err := s.channels.GetChannelByHandle(parsed); err == nil {
		subs, err := s.subs.ListUserChannels(user.ID)
		if err != nil {
			return domain.SubscribeResult{}, fmt.Errorf("подписки пользователя: %w", err)
		}
		for _, sub := range subs {
			if sub.ChannelID == known.ID {
				return domain.SubscribeResult{Status: domain.SubscribeAlreadyAdded, Title: known.Title}, nil
			}
		}
	} else if !errors.Is(err, domain.ErrChannelUnknown) {
		return domain.SubscribeResult{}, fmt.Errorf("поиск канала: %w", err)
	}

	meta, err := s.resolve(ctx, parsed)
	if err != nil {
		if errors.Is(err, domain.ErrChannelNotFound) || errors.Is(err, domain.ErrChannelPrivate) {
			return domain.SubscribeResult{Status: domain.SubscribeNotFound}, nil
		}
		return domain.SubscribeResult{}, fmt.Errorf("резолв канала: %w", err)
	}

	channel, err := s.channels.UpsertChannel(meta)
	if err != nil {
		return domain.SubscribeResult{}, fmt.Errorf("сохранение канала: %w", err)
	}

	added, err := s.subs.AddSubscription(user.ID, channel.ID)
	if err != nil {
		return domain.SubscribeResult{}, fmt.Errorf("создание подписки: %w", err)
	}
	if !added {
		return domain.SubscribeResult{Status: domain.SubscribeAlreadyAdded, Title: channel.Title}, nil
	}

	s.activate(channel.TGChannelID)
	s.log.Info().Int64("user", userID).Str("handle", parsed).Msg("подписка добавлена")
	return domain.SubscribeResult{Status: domain.SubscribeAdded, Title: channel.Title}, nil
}

// resolve делает один повтор при сигнале троттлинга, как требует транспорт.
func (s *Service) resolve(ctx context.Context, handle string) (domain.ChannelMeta, error) {
	meta, err := s.resolver.Resolve(ctx, handle)
	rl, ok := domain.AsRateLimited(err)
	if !ok {
		return meta, err
	}
	metrics.RateLimitWaitsTotal.Inc()
	s.log.Warn().Str("handle", handle).Dur("wait", rl.RetryAfter).Msg("резолв троттлится, ждём")
	timer := time.NewTimer(rl.RetryAfter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return domain.ChannelMeta{}, ctx.Err()
	case <-timer.C:
	}
	return s.resolver.Resolve(ctx, handle)
}

// Unsubscribe отписывает пользователя. Если подписчиков не осталось,
// канал покидает активное множество.
func (s *Service) Unsubscribe(ctx context.Context, userID int64, handle string) (domain.UnsubscribeResult, error) {
	parsed, err := ParseHandle(handle)
	if err != nil {
		return domain.UnsubscribeResult{Status: domain.UnsubscribeNotFound}, err
	}

	channel, err := s.channels.GetChannelByHandle(parsed)
	if err != nil {
		if errors.Is(err, domain.ErrChannelUnknown) {
			return domain.UnsubscribeResult{Status: domain.UnsubscribeNotFound}, nil
		}
		return domain.UnsubscribeResult{}, fmt.Errorf("поиск канала: %w", err)
	}

	removed, err := s.subs.RemoveSubscription(userID, channel.ID)
	if err != nil {
		return domain.UnsubscribeResult{}, fmt.Errorf("удаление подписки: %w", err)
	}
	if !removed {
		return domain.UnsubscribeResult{Status: domain.UnsubscribeNotFound}, nil
	}

	remaining, err := s.subs.CountChannelSubscribers(channel.ID)
	if err != nil {
		return domain.UnsubscribeResult{}, fmt.Errorf("подсчёт подписчиков: %w", err)
	}
	if remaining == 0 {
		s.deactivate(channel.TGChannelID)
	}

	s.log.Info().Int64("user", userID).Str("handle", parsed).Msg("подписка удалена")
	return domain.UnsubscribeResult{Status: domain.UnsubscribeRemoved, Title: channel.Title}, nil
}

// ListSubscriptions возвращает подписки пользователя.
func (s *Service) ListSubscriptions(userID int64) ([]domain.Subscription, error) {
	user, err := s.users.GetOrCreateUser(userID)
	if err != nil {
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}
	return s.subs.ListUserChannels(user.ID)
}

// Ingest обрабатывает входящее событие поста. События ненаблюдаемых
// каналов молча отбрасываются. Ошибки доставки изолированы по
// получателям и не прерывают общий обход подписчиков.
func (s *Service) Ingest(ctx context.Context, event domain.PostEvent) error {
	if !s.isWatched(event.TGChannelID) {
		metrics.IncIngest("dropped")
		return nil
	}

	channel, err := s.channels.GetChannelByTGID(event.TGChannelID)
	if err != nil {
		if errors.Is(err, domain.ErrChannelUnknown) {
			metrics.IncIngest("dropped")
			return nil
		}
		return fmt.Errorf("поиск канала: %w", err)
	}

	subscribers, err := s.subs.ListSubscribers(channel.ID)
	if err != nil {
		return fmt.Errorf("подписчики канала: %w", err)
	}

	for _, user := range subscribers {
		switch user.Mode {
		case domain.DeliveryOff:
			continue
		case domain.DeliveryRealtime:
			s.forwardRealtime(ctx, user, channel, event)
		case domain.DeliveryDigest:
			recorded, err := s.posts.RecordPost(channel.ID, event.TGMsgID, event.Text)
			if err != nil {
				s.log.Error().Err(err).Int64("channel", channel.ID).Int64("msg", event.TGMsgID).
					Msg("не удалось сохранить пост")
				continue
			}
			if recorded {
				metrics.IncIngest("recorded")
			} else {
				metrics.IncIngest("duplicate")
			}
		}
	}
	return nil
}

func (s *Service) forwardRealtime(ctx context.Context, user domain.User, channel domain.Channel, event domain.PostEvent) {
	header := i18n.Tf(user.Language, "new_post", channel.Title)
	if err := s.notifier.Notify(ctx, user.ID, header); err != nil {
		s.log.Error().Err(err).Int64("user", user.ID).Msg("не удалось отправить заголовок")
		return
	}
	ref := domain.MessageRef{TGChannelID: event.TGChannelID, TGMsgID: event.TGMsgID}
	if err := s.notifier.Forward(ctx, user.ID, ref); err != nil {
		s.log.Error().Err(err).Int64("user", user.ID).Msg("не удалось переслать пост")
		return
	}
	metrics.RealtimeForwardsTotal.Inc()
	metrics.IncIngest("forwarded")
}

// consumeRetryDelay — пауза перед повторным чтением после сбоя очереди.
const consumeRetryDelay = time.Second

// Run потребляет события из очереди до отмены контекста. Сбои чтения
// логируются и не останавливают потребление: единственный штатный
// выход из цикла — отмена контекста.
func (s *Service) Run(ctx context.Context, queue domain.PostQueue) error {
	for {
		event, err := queue.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			s.log.Error().Err(err).Msg("сбой чтения очереди, повтор после паузы")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(consumeRetryDelay):
			}
			continue
		}
		if err := s.Ingest(ctx, event); err != nil {
			s.log.Error().Err(err).Str("event", event.ID).Msg("ошибка обработки события")
		}
	}
}

func (s *Service) isWatched(tgChannelID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watched[tgChannelID]
	return ok
}

func (s *Service) activate(tgChannelID int64) {
	if tgChannelID == 0 {
		return
	}
	s.mu.Lock()
	s.watched[tgChannelID] = struct{}{}
	size := len(s.watched)
	s.mu.Unlock()
	metrics.WatchedChannels.Set(float64(size))
}

func (s *Service) deactivate(tgChannelID int64) {
	s.mu.Lock()
	delete(s.watched, tgChannelID)
	size := len(s.watched)
	s.mu.Unlock()
	metrics.WatchedChannels.Set(float64(size))
}
