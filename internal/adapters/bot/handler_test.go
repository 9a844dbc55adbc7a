package bot

import (
	"testing"

	"tg-fanout-bot/internal/domain"
)

func TestModeLabel(t *testing.T) {
	if got := modeLabel("ru", domain.DeliveryDigest); got != "📰 Дайджест" {
		t.Fatalf("неожиданная подпись режима: %q", got)
	}
	if got := modeLabel("ru", domain.DeliveryOff); got != "🔕 Выключено" {
		t.Fatalf("неожиданная подпись режима: %q", got)
	}
}

func TestLanguageLabel(t *testing.T) {
	if got := languageLabel("uz"); got != "O'zbekcha" {
		t.Fatalf("неожиданная подпись языка: %q", got)
	}
	if got := languageLabel("xx"); got != "xx" {
		t.Fatalf("неизвестный язык должен возвращаться как есть: %q", got)
	}
}
