package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-fanout-bot/internal/domain"
	"tg-fanout-bot/internal/infra/metrics"
)

// Postgres реализует реестр подписок на основе pgxpool.
// Каждая операция атомарна относительно своей проверки предусловия:
// конфликты уникальных ключей превращаются в типизированные исходы,
// а не во внутренние ошибки.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo         = (*Postgres)(nil)
	_ domain.ChannelRepo      = (*Postgres)(nil)
	_ domain.SubscriptionRepo = (*Postgres)(nil)
	_ domain.PostRepo         = (*Postgres)(nil)
)

const uniqueViolation = "23505"

// ingestTextLimit ограничивает длину сохраняемого текста поста в рунах.
const ingestTextLimit = 500

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// GetOrCreateUser лениво создаёт пользователя с настройками по умолчанию.
func (p *Postgres) GetOrCreateUser(id int64) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var u domain.User
	var mode string
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO users (id) VALUES ($1)
ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
RETURNING id, mode, digest_time, language, created_at
`, id).Scan(&u.ID, &mode, &u.DigestTime, &u.Language, &u.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	if err != nil {
		return domain.User{}, err
	}
	u.Mode, _ = domain.ParseDeliveryMode(mode)
	return u, nil
}

// GetUser возвращает пользователя по ID.
func (p *Postgres) GetUser(id int64) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var u domain.User
	var mode string
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, mode, digest_time, language, created_at FROM users WHERE id=$1
`, id).Scan(&u.ID, &mode, &u.DigestTime, &u.Language, &u.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	u.Mode, _ = domain.ParseDeliveryMode(mode)
	return u, nil
}

// UpdateMode меняет режим доставки.
func (p *Postgres) UpdateMode(id int64, mode domain.DeliveryMode) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE users SET mode=$2 WHERE id=$1`, id, string(mode))
	metrics.ObserveNetworkRequest("postgres", "users_update_mode", "users", start, err)
	return err
}

// UpdateDigestTime меняет время доставки дайджеста.
func (p *Postgres) UpdateDigestTime(id int64, hhmm string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE users SET digest_time=$2 WHERE id=$1`, id, hhmm)
	metrics.ObserveNetworkRequest("postgres", "users_update_digest_time", "users", start, err)
	return err
}

// UpdateLanguage меняет язык пользователя.
func (p *Postgres) UpdateLanguage(id int64, lang string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE users SET language=$2 WHERE id=$1`, id, lang)
	metrics.ObserveNetworkRequest("postgres", "users_update_language", "users", start, err)
	return err
}

// ListUsersForDigest возвращает пользователей, которым пора доставить дайджест.
func (p *Postgres) ListUsersForDigest(hhmm string) ([]domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, mode, digest_time, language, created_at
FROM users WHERE mode='digest' AND digest_time=$1
`, hhmm)
	metrics.ObserveNetworkRequest("postgres", "users_list_for_digest", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows pgx.Rows) ([]domain.User, error) {
	var users []domain.User
	for rows.Next() {
		var u domain.User
		var mode string
		if err := rows.Scan(&u.ID, &mode, &u.DigestTime, &u.Language, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Mode, _ = domain.ParseDeliveryMode(mode)
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpsertChannel создаёт или обновляет канал по хэндлу.
func (p *Postgres) UpsertChannel(meta domain.ChannelMeta) (domain.Channel, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var ch domain.Channel
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO channels (handle, tg_channel_id, title)
VALUES (lower($1), $2, $3)
ON CONFLICT (handle) DO UPDATE SET tg_channel_id=EXCLUDED.tg_channel_id, title=EXCLUDED.title
RETURNING id, handle, tg_channel_id, title, created_at
`, meta.Handle, meta.TGChannelID, meta.Title).Scan(&ch.ID, &ch.Handle, &ch.TGChannelID, &ch.Title, &ch.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "channels_upsert", "channels", start, err)
	return ch, err
}

// GetChannelByHandle возвращает канал по хэндлу без учёта регистра.
func (p *Postgres) GetChannelByHandle(handle string) (domain.Channel, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var ch domain.Channel
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, handle, tg_channel_id, title, created_at FROM channels WHERE handle=lower($1)
`, handle).Scan(&ch.ID, &ch.Handle, &ch.TGChannelID, &ch.Title, &ch.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "channels_get_by_handle", "channels", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Channel{}, domain.ErrChannelUnknown
	}
	return ch, err
}

// GetChannelByTGID возвращает канал по внешнему идентификатору.
func (p *Postgres) GetChannelByTGID(tgChannelID int64) (domain.Channel, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var ch domain.Channel
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, handle, tg_channel_id, title, created_at FROM channels WHERE tg_channel_id=$1
`, tgChannelID).Scan(&ch.ID, &ch.Handle, &ch.TGChannelID, &ch.Title, &ch.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "channels_get_by_tgid", "channels", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Channel{}, domain.ErrChannelUnknown
	}
	return ch, err
}

// ListWatchedChannels возвращает каналы, у которых есть хотя бы один подписчик.
func (p *Postgres) ListWatchedChannels() ([]domain.Channel, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT DISTINCT c.id, c.handle, c.tg_channel_id, c.title, c.created_at
FROM channels c JOIN subscriptions s ON s.channel_id = c.id
`)
	metrics.ObserveNetworkRequest("postgres", "channels_list_watched", "channels", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var channels []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.Handle, &ch.TGChannelID, &ch.Title, &ch.CreatedAt); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// AddSubscription вставляет пару пользователь-канал. Возвращает false,
// если подписка уже существовала. Гонка двух вставок решается на уровне
// ограничения первичного ключа, без check-then-insert.
func (p *Postgres) AddSubscription(userID, channelID int64) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO subscriptions (user_id, channel_id)
VALUES ($1,$2)
ON CONFLICT (user_id, channel_id) DO NOTHING
`, userID, channelID)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_add", "subscriptions", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveSubscription удаляет пару. Возвращает false, если её не было.
func (p *Postgres) RemoveSubscription(userID, channelID int64) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
DELETE FROM subscriptions WHERE user_id=$1 AND channel_id=$2
`, userID, channelID)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_remove", "subscriptions", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListSubscribers возвращает подписчиков канала.
func (p *Postgres) ListSubscribers(channelID int64) ([]domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT u.id, u.mode, u.digest_time, u.language, u.created_at
FROM users u JOIN subscriptions s ON s.user_id = u.id
WHERE s.channel_id=$1
`, channelID)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_list_subscribers", "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListUserChannels возвращает подписки пользователя вместе с каналами.
func (p *Postgres) ListUserChannels(userID int64) ([]domain.Subscription, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT s.user_id, s.channel_id, s.added_at,
       c.id, c.handle, c.tg_channel_id, c.title, c.created_at
FROM subscriptions s JOIN channels c ON c.id = s.channel_id
WHERE s.user_id=$1
ORDER BY c.title
`, userID)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_list_user", "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []domain.Subscription
	for rows.Next() {
		var s domain.Subscription
		if err := rows.Scan(&s.UserID, &s.ChannelID, &s.AddedAt,
			&s.Channel.ID, &s.Channel.Handle, &s.Channel.TGChannelID, &s.Channel.Title, &s.Channel.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// CountChannelSubscribers считает подписчиков канала.
func (p *Postgres) CountChannelSubscribers(channelID int64) (int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions WHERE channel_id=$1`, channelID).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_count", "subscriptions", start, err)
	return count, err
}

// RecordPost сохраняет пост для дайджеста. Возвращает false при дубликате
// (channel_id, tg_msg_id) — повторный ингест того же сообщения идемпотентен.
func (p *Postgres) RecordPost(channelID, tgMsgID int64, text string) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO posts (channel_id, tg_msg_id, text_trunc)
VALUES ($1,$2,$3)
ON CONFLICT (channel_id, tg_msg_id) DO NOTHING
`, channelID, tgMsgID, truncateRunes(text, ingestTextLimit))
	metrics.ObserveNetworkRequest("postgres", "posts_record", "posts", start, err)
	if err != nil {
		// Подстраховка на случай гонки с конкурентной вставкой вне ON CONFLICT.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UnsentPostsForUser возвращает неотправленные посты каналов пользователя
// за окно lookback, новые первыми, вместе с данными канала.
func (p *Postgres) UnsentPostsForUser(userID int64, lookback time.Duration) ([]domain.UserPost, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	since := time.Now().Add(-lookback)
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT p.id, p.channel_id, p.tg_msg_id, p.text_trunc, p.created_at, p.sent,
       c.title, c.handle
FROM posts p
JOIN channels c ON c.id = p.channel_id
JOIN subscriptions s ON s.channel_id = c.id
WHERE s.user_id=$1 AND p.created_at > $2 AND NOT p.sent
ORDER BY p.created_at DESC
`, userID, since)
	metrics.ObserveNetworkRequest("postgres", "posts_unsent_for_user", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posts []domain.UserPost
	for rows.Next() {
		var up domain.UserPost
		if err := rows.Scan(&up.ID, &up.ChannelID, &up.TGMsgID, &up.Text, &up.CreatedAt, &up.Sent,
			&up.ChannelTitle, &up.ChannelHandle); err != nil {
			return nil, err
		}
		posts = append(posts, up)
	}
	return posts, rows.Err()
}

// MarkPostsSent помечает посты отправленными. Пустой список — no-op.
func (p *Postgres) MarkPostsSent(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE posts SET sent=true WHERE id = ANY($1)`, ids)
	metrics.ObserveNetworkRequest("postgres", "posts_mark_sent", "posts", start, err)
	return err
}

// purgeCutoff вычисляет границу окна хранения: посты, созданные строго
// раньше неё, подлежат удалению.
func purgeCutoff(now time.Time, retention time.Duration) time.Time {
	return now.Add(-retention)
}

// PurgeOlderThan удаляет посты старше окна хранения независимо от флага sent.
func (p *Postgres) PurgeOlderThan(retention time.Duration) (int64, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	cutoff := purgeCutoff(time.Now(), retention)
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM posts WHERE created_at < $1`, cutoff)
	metrics.ObserveNetworkRequest("postgres", "posts_purge", "posts", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func truncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
