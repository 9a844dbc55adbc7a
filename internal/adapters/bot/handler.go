package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-fanout-bot/internal/adapters/telegram"
	"tg-fanout-bot/internal/domain"
	"tg-fanout-bot/internal/i18n"
	"tg-fanout-bot/internal/infra/metrics"
	"tg-fanout-bot/internal/usecase/router"
	"tg-fanout-bot/internal/usecase/schedule"
)

// Handler обслуживает вебхук бота.
type Handler struct {
	bot     *tgbotapi.BotAPI
	log     zerolog.Logger
	routing *router.Service
	digests domain.DigestService
	prefs   *schedule.Prefs
	users   domain.UserRepo
}

// NewHandler создаёт обработчик.
func NewHandler(bot *tgbotapi.BotAPI, log zerolog.Logger, routing *router.Service,
	digests domain.DigestService, prefs *schedule.Prefs, users domain.UserRepo) *Handler {
	return &Handler{
		bot:     bot,
		log:     log,
		routing: routing,
		digests: digests,
		prefs:   prefs,
		users:   users,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	user, err := h.users.GetOrCreateUser(msg.From.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user", msg.From.ID).Msg("не удалось получить пользователя")
		h.reply(msg.Chat.ID, i18n.T(i18n.DefaultLanguage, "error"), nil)
		return
	}
	lang := user.Language

	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		h.reply(msg.Chat.ID, i18n.T(lang, "start"), nil)
	case strings.HasPrefix(text, "/add"):
		handle := strings.TrimSpace(strings.TrimPrefix(text, "/add"))
		h.handleAdd(ctx, msg.Chat.ID, user, handle)
	case strings.HasPrefix(text, "/remove"):
		handle := strings.TrimSpace(strings.TrimPrefix(text, "/remove"))
		h.handleRemove(ctx, msg.Chat.ID, user, handle)
	case strings.HasPrefix(text, "/list"):
		h.handleList(msg.Chat.ID, user)
	case strings.HasPrefix(text, "/digest"):
		h.handleDigest(ctx, msg.Chat.ID, user)
	case strings.HasPrefix(text, "/mode"):
		h.reply(msg.Chat.ID, i18n.T(lang, "select_mode"), modeKeyboard(lang))
	case strings.HasPrefix(text, "/time"):
		value := strings.TrimSpace(strings.TrimPrefix(text, "/time"))
		h.handleSetTime(msg.Chat.ID, user, value)
	case strings.HasPrefix(text, "/lang"):
		h.reply(msg.Chat.ID, i18n.T(lang, "select_language"), languageKeyboard())
	default:
		h.reply(msg.Chat.ID, i18n.T(lang, "start"), nil)
	}
}

func (h *Handler) handleAdd(ctx context.Context, chatID int64, user domain.User, handle string) {
	lang := user.Language
	if handle == "" {
		h.reply(chatID, i18n.T(lang, "channel_not_found"), nil)
		return
	}
	result, err := h.routing.Subscribe(ctx, user.ID, handle)
	if err != nil {
		if errors.Is(err, router.ErrHandleInvalid) {
			h.reply(chatID, i18n.T(lang, "channel_not_found"), nil)
			return
		}
		h.log.Error().Err(err).Int64("user", user.ID).Str("handle", handle).Msg("ошибка подписки")
		h.reply(chatID, i18n.T(lang, "error"), nil)
		return
	}
	switch result.Status {
	case domain.SubscribeAdded:
		h.reply(chatID, i18n.Tf(lang, "channel_added", result.Title), nil)
	case domain.SubscribeAlreadyAdded:
		h.reply(chatID, i18n.T(lang, "channel_already_added"), nil)
	case domain.SubscribeNotFound:
		h.reply(chatID, i18n.T(lang, "channel_not_found"), nil)
	}
}

func (h *Handler) handleRemove(ctx context.Context, chatID int64, user domain.User, handle string) {
	lang := user.Language
	if handle == "" {
		h.reply(chatID, i18n.T(lang, "channel_not_in_list"), nil)
		return
	}
	result, err := h.routing.Unsubscribe(ctx, user.ID, handle)
	if err != nil {
		if errors.Is(err, router.ErrHandleInvalid) {
			h.reply(chatID, i18n.T(lang, "channel_not_in_list"), nil)
			return
		}
		h.log.Error().Err(err).Int64("user", user.ID).Str("handle", handle).Msg("ошибка отписки")
		h.reply(chatID, i18n.T(lang, "error"), nil)
		return
	}
	if result.Status == domain.UnsubscribeRemoved {
		h.reply(chatID, i18n.Tf(lang, "channel_removed", result.Title), nil)
		return
	}
	h.reply(chatID, i18n.T(lang, "channel_not_in_list"), nil)
}

func (h *Handler) handleList(chatID int64, user domain.User) {
	lang := user.Language
	subs, err := h.routing.ListSubscriptions(user.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user", user.ID).Msg("ошибка списка подписок")
		h.reply(chatID, i18n.T(lang, "error"), nil)
		return
	}
	if len(subs) == 0 {
		h.reply(chatID, i18n.T(lang, "no_channels"), nil)
		return
	}
	var b strings.Builder
	for i, sub := range subs {
		title := sub.Channel.Title
		if title == "" {
			title = sub.Channel.Handle
		}
		b.WriteString(strconv.Itoa(i+1) + ". " + title + " (@" + sub.Channel.Handle + ")\n")
	}
	h.reply(chatID, i18n.Tf(lang, "your_channels", b.String()), nil)
}

func (h *Handler) handleDigest(ctx context.Context, chatID int64, user domain.User) {
	if _, err := h.digests.ManualDigest(ctx, user); err != nil {
		h.log.Error().Err(err).Int64("user", user.ID).Msg("ошибка ручного дайджеста")
		h.reply(chatID, i18n.T(user.Language, "error"), nil)
	}
}

func (h *Handler) handleSetTime(chatID int64, user domain.User, value string) {
	lang := user.Language
	if err := h.prefs.SetDigestTime(user.ID, value); err != nil {
		if errors.Is(err, schedule.ErrTimeInvalid) {
			h.reply(chatID, i18n.T(lang, "invalid_time"), nil)
			return
		}
		h.log.Error().Err(err).Int64("user", user.ID).Msg("ошибка смены времени")
		h.reply(chatID, i18n.T(lang, "error"), nil)
		return
	}
	h.reply(chatID, i18n.Tf(lang, "time_changed", value), nil)
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	user, err := h.users.GetOrCreateUser(cb.From.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user", cb.From.ID).Msg("не удалось получить пользователя")
		return
	}
	lang := user.Language
	data := cb.Data

	switch {
	case strings.HasPrefix(data, "mode:"):
		raw := strings.TrimPrefix(data, "mode:")
		mode, ok := domain.ParseDeliveryMode(raw)
		if !ok {
			break
		}
		if err := h.prefs.SetMode(user.ID, mode); err != nil {
			h.log.Error().Err(err).Int64("user", user.ID).Msg("ошибка смены режима")
			h.reply(cb.Message.Chat.ID, i18n.T(lang, "error"), nil)
			break
		}
		h.reply(cb.Message.Chat.ID, i18n.Tf(lang, "mode_changed", modeLabel(lang, mode)), nil)
	case strings.HasPrefix(data, "lang:"):
		picked := strings.TrimPrefix(data, "lang:")
		if err := h.prefs.SetLanguage(user.ID, picked); err != nil {
			h.log.Error().Err(err).Int64("user", user.ID).Msg("ошибка смены языка")
			h.reply(cb.Message.Chat.ID, i18n.T(lang, "error"), nil)
			break
		}
		h.reply(cb.Message.Chat.ID, i18n.Tf(picked, "lang_changed", languageLabel(picked)), nil)
	}

	start := time.Now()
	_, err = h.bot.Request(tgbotapi.NewCallback(cb.ID, ""))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(cb.From.ID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func modeLabel(lang string, mode domain.DeliveryMode) string {
	switch mode {
	case domain.DeliveryRealtime:
		return i18n.T(lang, "mode_realtime")
	case domain.DeliveryDigest:
		return i18n.T(lang, "mode_digest")
	default:
		return i18n.T(lang, "mode_off")
	}
}

func languageLabel(lang string) string {
	switch lang {
	case "ru":
		return "Русский"
	case "uz":
		return "O'zbekcha"
	default:
		return lang
	}
}

func modeKeyboard(lang string) *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(i18n.T(lang, "mode_realtime"), "mode:realtime"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(i18n.T(lang, "mode_digest"), "mode:digest"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(i18n.T(lang, "mode_off"), "mode:off"),
		),
	)
	return &markup
}

func languageKeyboard() *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🇺🇿 O'zbekcha", "lang:uz"),
			tgbotapi.NewInlineKeyboardButtonData("🇷🇺 Русский", "lang:ru"),
		),
	)
	return &markup
}
