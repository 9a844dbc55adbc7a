package repo

import (
	"testing"
	"time"
)

func TestPurgeCutoffBoundary(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	retention := 7 * 24 * time.Hour
	cutoff := purgeCutoff(now, retention)

	if want := now.Add(-retention); !cutoff.Equal(want) {
		t.Fatalf("ожидалась граница %v, получено %v", want, cutoff)
	}

	// Пост старше окна хранения попадает под удаление.
	if old := now.Add(-8 * 24 * time.Hour); !old.Before(cutoff) {
		t.Errorf("пост возрастом 8 дней должен быть раньше границы %v", cutoff)
	}
	// Свежий пост остаётся, отправлен он или нет — граница зависит
	// только от времени создания.
	if fresh := now.Add(-24 * time.Hour); fresh.Before(cutoff) {
		t.Errorf("пост возрастом 1 день не должен быть раньше границы %v", cutoff)
	}}

func TestTruncateRunes(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{"привет", 10, "привет"},
		{"привет", 3, "при"},
		{"  с пробелами  ", 20, "с пробелами"},
		{"", 5, ""},
	}
	for _, tc := range cases {
		if got := truncateRunes(tc.in, tc.limit); got != tc.want {
			t.Errorf("truncateRunes(%q, %d): ожидалось %q, получено %q", tc.in, tc.limit, tc.want, got)
		}
	}
}
