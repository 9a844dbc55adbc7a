package domain

import (
	"context"
	"time"
)

// ChannelMeta содержит метаданные канала, полученные от транспорта.
type ChannelMeta struct {
	TGChannelID int64
	Handle      string
	Title       string
}

// ChannelResolver резолвит канал по хэндлу. Возвращает ErrChannelNotFound,
// ErrChannelPrivate или RateLimitedError как типизированные исходы.
type ChannelResolver interface {
	Resolve(ctx context.Context, handle string) (ChannelMeta, error)
}

// MessageRef указывает на конкретное сообщение канала для пересылки.
type MessageRef struct {
	TGChannelID int64
	TGMsgID     int64
}

// Notifier отправляет сообщения пользователям. Обе операции сами
// отрабатывают сигнал троттлинга одной ограниченной повторной попыткой;
// итоговая ошибка относится только к этому получателю.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
	Forward(ctx context.Context, userID int64, ref MessageRef) error
}

// UserRepo управляет пользователями.
type UserRepo interface {
	GetOrCreateUser(id int64) (User, error)
	GetUser(id int64) (User, error)
	UpdateMode(id int64, mode DeliveryMode) error
	UpdateDigestTime(id int64, hhmm string) error
	UpdateLanguage(id int64, lang string) error
	// ListUsersForDigest возвращает пользователей в режиме digest,
	// чьё время доставки совпадает с текущей минутой.
	ListUsersForDigest(hhmm string) ([]User, error)
}

// ChannelRepo управляет каналами.
type ChannelRepo interface {
	UpsertChannel(meta ChannelMeta) (Channel, error)
	GetChannelByHandle(handle string) (Channel, error)
	GetChannelByTGID(tgChannelID int64) (Channel, error)
	// ListWatchedChannels возвращает каналы хотя бы с одной подпиской.
	ListWatchedChannels() ([]Channel, error)
}

// SubscriptionRepo управляет связями пользователь-канал.
type SubscriptionRepo interface {
	// AddSubscription вставляет пару идемпотентно; false означает,
	// что подписка уже существовала.
	AddSubscription(userID, channelID int64) (bool, error)
	// RemoveSubscription удаляет пару; false означает, что её не было.
	RemoveSubscription(userID, channelID int64) (bool, error)
	ListSubscribers(channelID int64) ([]User, error)
	ListUserChannels(userID int64) ([]Subscription, error)
	CountChannelSubscribers(channelID int64) (int, error)
}

// PostRepo управляет накопленными постами.
type PostRepo interface {
	// RecordPost сохраняет пост; false означает дубликат (channel, msg).
	RecordPost(channelID, tgMsgID int64, text string) (bool, error)
	// UnsentPostsForUser возвращает неотправленные посты каналов
	// пользователя за окно lookback, новые первыми.
	UnsentPostsForUser(userID int64, lookback time.Duration) ([]UserPost, error)
	MarkPostsSent(ids []int64) error
	PurgeOlderThan(retention time.Duration) (int64, error)
}

// ErrUserNotFound возвращается репозиторием при отсутствии пользователя.
// Объявлен здесь, чтобы usecase-слой не зависел от драйвера БД.
var ErrUserNotFound = errNotFound("пользователь не найден")

// ErrChannelUnknown возвращается при отсутствии канала в реестре.
var ErrChannelUnknown = errNotFound("канал не зарегистрирован")

type errNotFound string

func (e errNotFound) Error() string { return string(e) }

// DigestService строит и доставляет дайджесты.
type DigestService interface {
	// DeliverDigest доставляет плановый дайджест; пустой набор постов
	// не приводит ни к какой отправке.
	DeliverDigest(ctx context.Context, user User) error
	// ManualDigest доставляет дайджест по запросу; при пустом наборе
	// отправляет явное уведомление и возвращает false.
	ManualDigest(ctx context.Context, user User) (bool, error)
}

// PostQueue — очередь входящих событий постов между коллектором и роутером.
type PostQueue interface {
	Publish(ctx context.Context, event PostEvent) error
	// Consume блокирующе читает следующее событие до отмены контекста.
	Consume(ctx context.Context) (PostEvent, error)
}

// Cache — простое TTL-хранилище для дедупликации доставок.
type Cache interface {
	// Once выполняет fn, если ключ ещё не занят, и снимает ключ при ошибке.
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}
