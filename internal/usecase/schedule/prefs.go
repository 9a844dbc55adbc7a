package schedule

import (
	"errors"
	"fmt"
	"regexp"

	"tg-fanout-bot/internal/domain"
	"tg-fanout-bot/internal/i18n"
)

// ErrTimeInvalid возвращается при времени вне формата HH:MM.
var ErrTimeInvalid = errors.New("некорректное время")

// ErrLanguageUnknown возвращается при неподдерживаемом языке.
var ErrLanguageUnknown = errors.New("неизвестный язык")

var timeRegex = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// Prefs изменяет настройки доставки пользователя.
type Prefs struct {
	users domain.UserRepo
}

// NewPrefs создаёт слой настроек.
func NewPrefs(users domain.UserRepo) *Prefs {
	return &Prefs{users: users}
}

// SetMode переключает режим доставки.
func (p *Prefs) SetMode(userID int64, mode domain.DeliveryMode) error {
	if _, err := p.users.GetOrCreateUser(userID); err != nil {
		return fmt.Errorf("получение пользователя: %w", err)
	}
	if err := p.users.UpdateMode(userID, mode); err != nil {
		return fmt.Errorf("смена режима: %w", err)
	}
	return nil
}

// SetDigestTime задаёт время дайджеста. Принимается только строгий
// 24-часовой формат HH:MM.
func (p *Prefs) SetDigestTime(userID int64, hhmm string) error {
	if !timeRegex.MatchString(hhmm) {
		return ErrTimeInvalid
	}
	if _, err := p.users.GetOrCreateUser(userID); err != nil {
		return fmt.Errorf("получение пользователя: %w", err)
	}
	if err := p.users.UpdateDigestTime(userID, hhmm); err != nil {
		return fmt.Errorf("смена времени: %w", err)
	}
	return nil
}

// SetLanguage переключает язык интерфейса.
func (p *Prefs) SetLanguage(userID int64, lang string) error {
	if !i18n.Supported(lang) {
		return ErrLanguageUnknown
	}
	if _, err := p.users.GetOrCreateUser(userID); err != nil {
		return fmt.Errorf("получение пользователя: %w", err)
	}
	if err := p.users.UpdateLanguage(userID, lang); err != nil {
		return fmt.Errorf("смена языка: %w", err)
	}
	return nil
}
