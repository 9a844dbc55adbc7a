package domain

import (
	"time"

	"github.com/google/uuid"
)

// PostEvent — событие нового поста канала, прилетающее от коллектора.
// Доставка очередью гарантируется как at-least-once, поэтому потребитель
// обязан быть идемпотентным по паре (TGChannelID, TGMsgID).
type PostEvent struct {
	ID          string    `json:"id"`
	TGChannelID int64     `json:"tg_channel_id"`
	TGMsgID     int64     `json:"tg_msg_id"`
	Text        string    `json:"text"`
	PublishedAt time.Time `json:"published_at"`
}

// NewPostEvent формирует событие с уникальным идентификатором.
func NewPostEvent(tgChannelID, tgMsgID int64, text string, publishedAt time.Time) PostEvent {
	return PostEvent{
		ID:          uuid.NewString(),
		TGChannelID: tgChannelID,
		TGMsgID:     tgMsgID,
		Text:        text,
		PublishedAt: publishedAt,
	}
}
