package mtproto

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
)

// Client оборачивает gotd-клиент юзербота. Через него идут резолв каналов
// и подписка на апдейты; бот-транспорт живёт отдельно в adapters/telegram.
type Client struct {
	tg    *telegram.Client
	api   *tg.Client
	log   zerolog.Logger
	ready chan struct{}
}

// NewClient создаёт клиента с файловой сессией. handler может быть nil,
// если апдейты не нужны (например, только резолв).
func NewClient(apiID int, apiHash, sessionFile string, handler telegram.UpdateHandler, log zerolog.Logger) *Client {
	opts := telegram.Options{
		SessionStorage: &session.FileStorage{Path: sessionFile},
	}
	if handler != nil {
		opts.UpdateHandler = handler
	}
	client := telegram.NewClient(apiID, apiHash, opts)
	return &Client{
		tg:    client,
		api:   client.API(),
		log:   log,
		ready: make(chan struct{}),
	}
}

// Run держит соединение с Telegram до отмены контекста. Сессия должна
// быть авторизована заранее (см. инструмент генерации сессии).
func (c *Client) Run(ctx context.Context) error {
	return c.tg.Run(ctx, func(ctx context.Context) error {
		status, err := c.tg.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("статус авторизации: %w", err)
		}
		if !status.Authorized {
			return errors.New("mtproto: сессия не авторизована")
		}
		close(c.ready)
		c.log.Info().Msg("mtproto: клиент подключён")
		<-ctx.Done()
		return ctx.Err()
	})
}

// WaitReady блокирует до установления соединения или отмены контекста.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ready:
		return nil
	}
}
