package mtproto

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"

	"tg-fanout-bot/internal/domain"
	"tg-fanout-bot/internal/infra/metrics"
)

// Resolver реализует domain.ChannelResolver через MTProto.
type Resolver struct {
	client *Client
	log    zerolog.Logger
}

// NewResolver создаёт резолвер поверх подключённого клиента.
func NewResolver(client *Client, log zerolog.Logger) *Resolver {
	return &Resolver{client: client, log: log}
}

// Resolve возвращает метаданные публичного канала по хэндлу.
// Ошибки транспорта превращаются в типизированные исходы домена.
func (r *Resolver) Resolve(ctx context.Context, handle string) (domain.ChannelMeta, error) {
	if err := r.client.WaitReady(ctx); err != nil {
		return domain.ChannelMeta{}, err
	}

	normalized := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
	start := time.Now()
	res, err := r.client.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: normalized,
	})
	metrics.ObserveNetworkRequest("mtproto", "resolve_username", "contacts", start, err)
	if err != nil {
		if wait, ok := tgerr.AsFloodWait(err); ok {
			return domain.ChannelMeta{}, &domain.RateLimitedError{RetryAfter: wait}
		}
		if tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID") {
			return domain.ChannelMeta{}, domain.ErrChannelNotFound
		}
		if tgerr.Is(err, "CHANNEL_PRIVATE") {
			return domain.ChannelMeta{}, domain.ErrChannelPrivate
		}
		return domain.ChannelMeta{}, fmt.Errorf("резолв @%s: %w", normalized, err)
	}

	for _, chat := range res.Chats {
		channel, ok := chat.(*tg.Channel)
		if !ok || !channel.Broadcast {
			continue
		}
		return domain.ChannelMeta{
			TGChannelID: channel.ID,
			Handle:      normalized,
			Title:       channel.Title,
		}, nil
	}
	r.log.Debug().Str("handle", normalized).Msg("хэндл существует, но это не канал")
	return domain.ChannelMeta{}, domain.ErrChannelNotFound
}
