package domain

import "time"

// DeliveryMode описывает режим доставки постов пользователю.
type DeliveryMode string

const (
	// DeliveryRealtime — каждый пост пересылается сразу после публикации.
	DeliveryRealtime DeliveryMode = "realtime"
	// DeliveryDigest — посты копятся и доставляются сводкой в заданное время.
	DeliveryDigest DeliveryMode = "digest"
	// DeliveryOff — доставка отключена, посты не сохраняются.
	DeliveryOff DeliveryMode = "off"
)

// ParseDeliveryMode валидирует строковый режим на границе системы.
// Неизвестные значения не должны попадать в логику маршрутизации.
func ParseDeliveryMode(raw string) (DeliveryMode, bool) {
	switch DeliveryMode(raw) {
	case DeliveryRealtime, DeliveryDigest, DeliveryOff:
		return DeliveryMode(raw), true
	}
	return "", false
}

// User описывает подписчика. Создаётся лениво при первом обращении,
// ядро никогда не удаляет пользователей.
type User struct {
	ID         int64
	Mode       DeliveryMode
	DigestTime string // "HH:MM", локальное время стены
	Language   string
	CreatedAt  time.Time
}

// Channel описывает наблюдаемый внешний канал.
type Channel struct {
	ID          int64
	Handle      string // уникален без учёта регистра, хранится в нижнем
	TGChannelID int64
	Title       string
	CreatedAt   time.Time
}

// Subscription связывает пользователя и канал. Не более одной записи на пару.
type Subscription struct {
	UserID    int64
	ChannelID int64
	AddedAt   time.Time
	Channel   Channel
}

// Post — сохранённое для дайджеста сообщение канала.
// Пара (ChannelID, TGMsgID) уникальна, повторный ингест идемпотентен.
type Post struct {
	ID        int64
	ChannelID int64
	TGMsgID   int64
	Text      string
	CreatedAt time.Time
	Sent      bool
}

// UserPost — пост вместе с каналом-владельцем для отображения в дайджесте.
type UserPost struct {
	Post
	ChannelTitle  string
	ChannelHandle string
}
