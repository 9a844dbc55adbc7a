package schedule

import (
	"errors"
	"testing"

	"tg-fanout-bot/internal/domain"
)

func TestSetDigestTime(t *testing.T) {
	cases := []struct {
		input string
		ok    bool
	}{
		{"09:00", true},
		{"00:00", true},
		{"23:59", true},
		{"24:00", false},
		{"9:00", false},
		{"09:60", false},
		{"0900", false},
		{"утром", false},
		{"", false},
	}

	for _, tc := range cases {
		users := newStubUserRepo()
		err := NewPrefs(users).SetDigestTime(1, tc.input)
		if tc.ok && err != nil {
			t.Errorf("%q: неожиданная ошибка: %v", tc.input, err)
		}
		if !tc.ok && !errors.Is(err, ErrTimeInvalid) {
			t.Errorf("%q: ожидалась ErrTimeInvalid, получено %v", tc.input, err)
		}
		if tc.ok && users.updated[1] != tc.input {
			t.Errorf("%q: время не сохранено", tc.input)
		}
	}
}

func TestSetLanguage(t *testing.T) {
	users := newStubUserRepo()
	prefs := NewPrefs(users)

	if err := prefs.SetLanguage(1, "ru"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if users.langs[1] != "ru" {
		t.Error("язык не сохранён")
	}
	if err := prefs.SetLanguage(1, "fr"); !errors.Is(err, ErrLanguageUnknown) {
		t.Errorf("ожидалась ErrLanguageUnknown, получено %v", err)
	}
}

func TestSetMode(t *testing.T) {
	users := newStubUserRepo()
	if err := NewPrefs(users).SetMode(1, domain.DeliveryDigest); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if users.modes[1] != domain.DeliveryDigest {
		t.Error("режим не сохранён")
	}
}
