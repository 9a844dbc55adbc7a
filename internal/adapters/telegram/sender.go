package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-fanout-bot/internal/domain"
	"tg-fanout-bot/internal/infra/metrics"
)

// API — минимальный срез tgbotapi.BotAPI, нужный отправителю.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender реализует domain.Notifier поверх Bot API.
//
// Сигнал троттлинга обрабатывается приостановкой только текущей горутины
// и ровно одной повторной попыткой. Прочие сбои возвращаются вызывающему
// как ошибка конкретного получателя и не прерывают общий фан-аут.
type Sender struct {
	api       API
	log       zerolog.Logger
	sendDelay time.Duration
}

var _ domain.Notifier = (*Sender)(nil)

// NewSender создаёт отправителя. sendDelay — пауза между последовательными
// пересылками одного поста разным подписчикам.
func NewSender(api API, log zerolog.Logger, sendDelay time.Duration) *Sender {
	return &Sender{api: api, log: log, sendDelay: sendDelay}
}

// Notify отправляет пользователю текстовое сообщение, разбивая его
// по лимиту Telegram при необходимости.
func (s *Sender) Notify(ctx context.Context, userID int64, text string) error {
	for _, part := range SplitMessage(text) {
		msg := tgbotapi.NewMessage(userID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		if err := s.send(ctx, userID, "notify", msg); err != nil {
			return err
		}
	}
	return nil
}

// botChatID переводит внутренний идентификатор канала в форму Bot API.
// MTProto оперирует положительными ID каналов, Bot API — формой -100<id>;
// положительное значение Bot API трактует как ID пользователя.
func botChatID(tgChannelID int64) int64 {
	return -1000000000000 - tgChannelID
}

// Forward пересылает сообщение канала пользователю и выдерживает
// межотправочную паузу, чтобы не бомбить транспорт при большом фан-ауте.
func (s *Sender) Forward(ctx context.Context, userID int64, ref domain.MessageRef) error {
	fwd := tgbotapi.NewForward(userID, botChatID(ref.TGChannelID), int(ref.TGMsgID))
	if err := s.send(ctx, userID, "forward", fwd); err != nil {
		return err
	}
	if s.sendDelay > 0 {
		if err := sleepCtx(ctx, s.sendDelay); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) send(ctx context.Context, userID int64, operation string, c tgbotapi.Chattable) error {
	start := time.Now()
	_, err := s.api.Send(c)
	metrics.ObserveNetworkRequest("telegram", operation, "bot_api", start, err)
	if err == nil {
		return nil
	}

	wait, ok := retryAfter(err)
	if !ok {
		metrics.SendErrorsTotal.Inc()
		return fmt.Errorf("отправка пользователю %d: %w", userID, err)
	}

	// Ограниченный повтор: одна пауза, одна попытка, без рекурсии.
	metrics.RateLimitWaitsTotal.Inc()
	s.log.Warn().Int64("user", userID).Dur("wait", wait).Msg("транспорт троттлит, ждём и повторяем")
	if err := sleepCtx(ctx, wait); err != nil {
		return err
	}

	start = time.Now()
	_, err = s.api.Send(c)
	metrics.ObserveNetworkRequest("telegram", operation, "bot_api", start, err)
	if err != nil {
		metrics.SendErrorsTotal.Inc()
		return fmt.Errorf("отправка пользователю %d после паузы: %w", userID, err)
	}
	return nil
}

// retryAfter извлекает обязательную паузу из ошибки транспорта.
func retryAfter(err error) (time.Duration, bool) {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		return time.Duration(tgErr.RetryAfter) * time.Second, true
	}
	if rl, ok := domain.AsRateLimited(err); ok {
		return rl.RetryAfter, true
	}
	return 0, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
