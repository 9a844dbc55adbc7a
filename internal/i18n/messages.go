// Package i18n хранит каталог пользовательских сообщений.
// Ядро только выбирает содержимое; формулировки живут здесь.
package i18n

import "fmt"

// DefaultLanguage используется, когда язык пользователя неизвестен.
const DefaultLanguage = "uz"

var messages = map[string]map[string]string{
	"uz": {
		"start": "👋 Salom! Men kanal kuzatuvchi botman.\n\n" +
			"📌 <b>Buyruqlar:</b>\n" +
			"/add @kanal - Kanal qo'shish\n" +
			"/remove @kanal - Kanalni o'chirish\n" +
			"/list - Kanallar ro'yxati\n" +
			"/digest - Oxirgi 24 soat xulosasi\n" +
			"/mode - Rejimni tanlash\n" +
			"/time HH:MM - Digest vaqti\n" +
			"/lang - Tilni tanlash",
		"channel_added":         "✅ <b>%s</b> kanali qo'shildi!",
		"channel_removed":       "🗑 <b>%s</b> kanali o'chirildi!",
		"channel_not_found":     "❌ Bu kanal topilmadi.",
		"channel_already_added": "⚠️ Bu kanal allaqachon qo'shilgan.",
		"channel_not_in_list":   "⚠️ Bu kanal ro'yxatda yo'q.",
		"no_channels":           "📭 Sizda hali kanallar yo'q.\n/add @kanal buyrug'i bilan qo'shing.",
		"your_channels":         "📋 <b>Sizning kanallaringiz:</b>\n\n%s",
		"no_posts":              "📭 Oxirgi 24 soatda yangi postlar yo'q.",
		"digest_header":         "📰 <b>Oxirgi 24 soat xulosasi</b>\n\n",
		"digest_channel":        "📢 <b>%s</b> (%d ta post)\n",
		"digest_more":           "  <i>...va yana %d ta</i>\n",
		"new_post":              "📢 <b>%s</b> dan yangi post:",
		"mode_changed":          "✅ Rejim o'zgartirildi: <b>%s</b>",
		"time_changed":          "✅ Digest vaqti o'zgartirildi: <b>%s</b>",
		"lang_changed":          "✅ Til o'zgartirildi: <b>%s</b>",
		"invalid_time":          "❌ Noto'g'ri vaqt formati. Masalan: 09:00",
		"select_mode":           "📡 Xabar rejimini tanlang:",
		"select_language":       "🌐 Tilni tanlang:",
		"mode_realtime":         "🔴 Realtime",
		"mode_digest":           "📰 Digest",
		"mode_off":              "🔕 O'chirilgan",
		"error":                 "❌ Xatolik yuz berdi. Iltimos, qayta urinib ko'ring.",
	},
	"ru": {
		"start": "👋 Привет! Я бот для отслеживания каналов.\n\n" +
			"📌 <b>Команды:</b>\n" +
			"/add @канал - Добавить канал\n" +
			"/remove @канал - Удалить канал\n" +
			"/list - Список каналов\n" +
			"/digest - Сводка за 24 часа\n" +
			"/mode - Выбрать режим\n" +
			"/time HH:MM - Время дайджеста\n" +
			"/lang - Выбрать язык",
		"channel_added":         "✅ Канал <b>%s</b> добавлен!",
		"channel_removed":       "🗑 Канал <b>%s</b> удалён!",
		"channel_not_found":     "❌ Канал не найден.",
		"channel_already_added": "⚠️ Этот канал уже добавлен.",
		"channel_not_in_list":   "⚠️ Этого канала нет в списке.",
		"no_channels":           "📭 У вас пока нет каналов.\nДобавьте командой /add @канал",
		"your_channels":         "📋 <b>Ваши каналы:</b>\n\n%s",
		"no_posts":              "📭 За последние 24 часа новых постов нет.",
		"digest_header":         "📰 <b>Сводка за 24 часа</b>\n\n",
		"digest_channel":        "📢 <b>%s</b> (постов: %d)\n",
		"digest_more":           "  <i>...и ещё %d</i>\n",
		"new_post":              "📢 Новый пост от <b>%s</b>:",
		"mode_changed":          "✅ Режим изменён: <b>%s</b>",
		"time_changed":          "✅ Время дайджеста изменено: <b>%s</b>",
		"lang_changed":          "✅ Язык изменён: <b>%s</b>",
		"invalid_time":          "❌ Неверный формат времени. Например: 09:00",
		"select_mode":           "📡 Выберите режим уведомлений:",
		"select_language":       "🌐 Выберите язык:",
		"mode_realtime":         "🔴 Realtime",
		"mode_digest":           "📰 Дайджест",
		"mode_off":              "🔕 Выключено",
		"error":                 "❌ Произошла ошибка. Попробуйте ещё раз.",
	},
}

// Supported сообщает, есть ли каталог для языка.
func Supported(lang string) bool {
	_, ok := messages[lang]
	return ok
}

// T возвращает сообщение по ключу. При неизвестном языке или ключе
// откатывается к каталогу по умолчанию, в крайнем случае — к самому ключу.
func T(lang, key string) string {
	if catalog, ok := messages[lang]; ok {
		if msg, ok := catalog[key]; ok {
			return msg
		}
	}
	if msg, ok := messages[DefaultLanguage][key]; ok {
		return msg
	}
	return key
}

// Tf форматирует сообщение по ключу.
func Tf(lang, key string, args ...any) string {
	return fmt.Sprintf(T(lang, key), args...)
}
