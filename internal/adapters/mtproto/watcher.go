package mtproto

import (
	"context"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"tg-fanout-bot/internal/domain"
)

// Watcher слушает новые сообщения каналов и публикует их в очередь
// событий. Фильтрация по наблюдаемым каналам — забота роутера:
// коллектор публикует всё, что видит юзербот.
type Watcher struct {
	queue domain.PostQueue
	log   zerolog.Logger
}

// NewWatcher создаёт наблюдателя.
func NewWatcher(queue domain.PostQueue, log zerolog.Logger) *Watcher {
	return &Watcher{queue: queue, log: log}
}

// Dispatcher возвращает обработчик апдейтов для telegram.Options.
func (w *Watcher) Dispatcher() telegram.UpdateHandler {
	d := tg.NewUpdateDispatcher()
	d.OnNewChannelMessage(w.onNewChannelMessage)
	return d
}

func (w *Watcher) onNewChannelMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
	msg, ok := u.Message.(*tg.Message)
	if !ok || msg.Out {
		return nil
	}
	peer, ok := msg.PeerID.(*tg.PeerChannel)
	if !ok {
		return nil
	}

	event := domain.NewPostEvent(peer.ChannelID, int64(msg.ID), msg.Message, time.Unix(int64(msg.Date), 0).UTC())
	if err := w.queue.Publish(ctx, event); err != nil {
		// Потеря одного события не должна ронять обработку апдейтов.
		w.log.Error().Err(err).Int64("channel", peer.ChannelID).Int("msg", msg.ID).
			Msg("не удалось опубликовать событие поста")
		return nil
	}
	w.log.Debug().Int64("channel", peer.ChannelID).Int("msg", msg.ID).Msg("событие поста опубликовано")
	return nil
}
