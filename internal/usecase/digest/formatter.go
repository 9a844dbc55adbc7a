package digest

import (
	"html"
	"strings"

	"tg-fanout-bot/internal/domain"
	"tg-fanout-bot/internal/i18n"
)

// FormatDigest собирает текст дайджеста: посты группируются по каналам
// в порядке первого появления, в каждой группе показывается не более
// perChannel постов, текст поста обрезается до truncate рун.
func FormatDigest(lang string, posts []domain.UserPost, perChannel, truncate int) string {
	var b strings.Builder
	b.WriteString(i18n.T(lang, "digest_header"))

	order := make([]int64, 0)
	groups := make(map[int64][]domain.UserPost)
	for _, post := range posts {
		if _, ok := groups[post.ChannelID]; !ok {
			order = append(order, post.ChannelID)
		}
		groups[post.ChannelID] = append(groups[post.ChannelID], post)
	}

	for _, channelID := range order {
		group := groups[channelID]
		b.WriteString(i18n.Tf(lang, "digest_channel", html.EscapeString(group[0].ChannelTitle), len(group)))

		shown := group
		if perChannel > 0 && len(shown) > perChannel {
			shown = shown[:perChannel]
		}
		for _, post := range shown {
			text := truncateText(post.Text, truncate)
			if text == "" {
				continue
			}
			b.WriteString("  • " + html.EscapeString(text) + "\n")
		}
		if perChannel > 0 && len(group) > perChannel {
			b.WriteString(i18n.Tf(lang, "digest_more", len(group)-perChannel))
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func truncateText(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
