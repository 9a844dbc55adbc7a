package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-fanout-bot/internal/domain"
)

type fakeAPI struct {
	calls int
	errs  []error
	sent  []tgbotapi.Chattable
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.calls++
	f.sent = append(f.sent, c)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	return tgbotapi.Message{MessageID: f.calls}, nil
}

func TestNotifyRetriesAfterRateLimit(t *testing.T) {
	api := &fakeAPI{errs: []error{&domain.RateLimitedError{RetryAfter: time.Millisecond}}}
	sender := NewSender(api, zerolog.Nop(), 0)

	if err := sender.Notify(context.Background(), 1, "привет"); err != nil {
		t.Fatalf("ожидался успех после повтора: %v", err)
	}
	if api.calls != 2 {
		t.Errorf("ожидались две попытки, получено %d", api.calls)
	}
}

func TestNotifyRetriesOnlyOnce(t *testing.T) {
	api := &fakeAPI{errs: []error{
		&domain.RateLimitedError{RetryAfter: time.Millisecond},
		&domain.RateLimitedError{RetryAfter: time.Millisecond},
	}}
	sender := NewSender(api, zerolog.Nop(), 0)

	if err := sender.Notify(context.Background(), 1, "привет"); err == nil {
		t.Fatal("ожидалась ошибка после второго троттлинга")
	}
	if api.calls != 2 {
		t.Errorf("повтор должен быть ровно один, попыток: %d", api.calls)
	}
}

func TestNotifyPlainErrorNoRetry(t *testing.T) {
	api := &fakeAPI{errs: []error{errors.New("пользователь заблокировал бота")}}
	sender := NewSender(api, zerolog.Nop(), 0)

	if err := sender.Notify(context.Background(), 1, "привет"); err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if api.calls != 1 {
		t.Errorf("обычная ошибка не должна повторяться, попыток: %d", api.calls)
	}
}

func TestNotifyUsesBotAPIRetryAfter(t *testing.T) {
	api := &fakeAPI{errs: []error{&tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 0},
	}}}
	// RetryAfter=0 в ошибке Bot API означает отсутствие паузы: повтора нет.
	sender := NewSender(api, zerolog.Nop(), 0)

	if err := sender.Notify(context.Background(), 1, "привет"); err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if api.calls != 1 {
		t.Errorf("ошибка без паузы не должна повторяться, попыток: %d", api.calls)
	}
}

func TestNotifySplitsLongMessage(t *testing.T) {
	api := &fakeAPI{}
	sender := NewSender(api, zerolog.Nop(), 0)

	long := strings.Repeat("a", 5000)
	if err := sender.Notify(context.Background(), 1, long); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if api.calls < 2 {
		t.Errorf("длинный текст должен уйти несколькими сообщениями, попыток: %d", api.calls)
	}
}

func TestForwardUsesBotAPIChatID(t *testing.T) {
	api := &fakeAPI{}
	sender := NewSender(api, zerolog.Nop(), 0)

	ref := domain.MessageRef{TGChannelID: 1234567890, TGMsgID: 5}
	if err := sender.Forward(context.Background(), 1, ref); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("ожидалась одна отправка, получено %d", len(api.sent))
	}
	fwd, ok := api.sent[0].(tgbotapi.ForwardConfig)
	if !ok {
		t.Fatalf("ожидался ForwardConfig, получен %T", api.sent[0])
	}
	if fwd.FromChatID != -1001234567890 {
		t.Errorf("канал должен адресоваться в форме Bot API, получено %d", fwd.FromChatID)
	}
	if fwd.MessageID != 5 {
		t.Errorf("неожиданный ID сообщения: %d", fwd.MessageID)
	}
	if fwd.ChatID != 1 {
		t.Errorf("получатель должен адресоваться по ID пользователя, получено %d", fwd.ChatID)
	}
}

func TestForwardAppliesSendDelay(t *testing.T) {
	api := &fakeAPI{}
	delay := 30 * time.Millisecond
	sender := NewSender(api, zerolog.Nop(), delay)

	start := time.Now()
	ref := domain.MessageRef{TGChannelID: 100, TGMsgID: 5}
	if err := sender.Forward(context.Background(), 1, ref); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("пауза между пересылками не выдержана: %v", elapsed)
	}
}

func TestForwardCancelledContext(t *testing.T) {
	api := &fakeAPI{}
	sender := NewSender(api, zerolog.Nop(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ref := domain.MessageRef{TGChannelID: 100, TGMsgID: 5}
	if err := sender.Forward(ctx, 1, ref); !errors.Is(err, context.Canceled) {
		t.Errorf("ожидалась отмена контекста, получено %v", err)
	}
}
