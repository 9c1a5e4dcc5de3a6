package util

import "testing"

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0s"},
		{45000, "45s"},
		{154000, "2m 34s"},
		{4980000, "1h 23m"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.ms); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestFormatHumanTime(t *testing.T) {
	if got := FormatHumanTime(""); got != "unknown" {
		t.Errorf("empty input = %q, want unknown", got)
	}
	if got := FormatHumanTime("not-a-timestamp"); got != "not-a-timestamp" {
		t.Errorf("unparseable input = %q, want passed through", got)
	}
}
