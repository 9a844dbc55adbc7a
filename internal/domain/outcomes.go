package domain

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки резолва канала. Это типизированные исходы, а не внутренние сбои:
// слой команд сопоставляет их с ответами пользователю.
var (
	// ErrChannelNotFound — хэндл не существует или не является каналом.
	ErrChannelNotFound = errors.New("канал не найден")
	// ErrChannelPrivate — канал приватный и недоступен для наблюдения.
	ErrChannelPrivate = errors.New("канал приватный")
)

// RateLimitedError сигнализирует о троттлинге транспорта с обязательной паузой.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("транспорт просит подождать %s", e.RetryAfter)
}

// AsRateLimited извлекает сигнал троттлинга из цепочки ошибок.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// SubscribeStatus перечисляет исходы подписки.
type SubscribeStatus int

const (
	// SubscribeAdded — подписка создана, канал наблюдается.
	SubscribeAdded SubscribeStatus = iota
	// SubscribeAlreadyAdded — пара пользователь-канал уже существует.
	SubscribeAlreadyAdded
	// SubscribeNotFound — канал не удалось отрезолвить.
	SubscribeNotFound
)

// SubscribeResult — типизированный результат Subscribe.
type SubscribeResult struct {
	Status SubscribeStatus
	Title  string
}

// UnsubscribeStatus перечисляет исходы отписки.
type UnsubscribeStatus int

const (
	// UnsubscribeRemoved — подписка удалена.
	UnsubscribeRemoved UnsubscribeStatus = iota
	// UnsubscribeNotFound — канала нет в списке пользователя.
	UnsubscribeNotFound
)

// UnsubscribeResult — типизированный результат Unsubscribe.
type UnsubscribeResult struct {
	Status UnsubscribeStatus
	Title  string
}
