package domain

import "testing"

func TestParseDeliveryMode(t *testing.T) {
	tests := []struct {
		raw  string
		want DeliveryMode
		ok   bool
	}{
		{raw: "realtime", want: DeliveryRealtime, ok: true},
		{raw: "digest", want: DeliveryDigest, ok: true},
		{raw: "off", want: DeliveryOff, ok: true},
		{raw: "Realtime", ok: false},
		{raw: "", ok: false},
		{raw: "weekly", ok: false},
	}
	for _, tt := range tests {
		mode, ok := ParseDeliveryMode(tt.raw)
		if ok != tt.ok {
			t.Fatalf("ParseDeliveryMode(%q): ожидали ok=%v, получили %v", tt.raw, tt.ok, ok)
		}
		if ok && mode != tt.want {
			t.Fatalf("ParseDeliveryMode(%q) = %v, ожидали %v", tt.raw, mode, tt.want)
		}
	}
}
