package webhook

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateText(t *testing.T) {
	euros := strings.Repeat("€", 300)

	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short ascii", "HTTP 500: nope", 500, "HTTP 500: nope"},
		{"cut on rune boundary", euros, 500, strings.Repeat("€", 166)},
		{"prefix shifts boundary", "HTTP 500: " + euros, 500, "HTTP 500: " + strings.Repeat("€", 163)},
		{"invalid bytes replaced", "\xff\xfe ok", 500, "� ok"},
		{"invalid bytes then cut", strings.Repeat("\xff", 600), 7, "�"},
		{"zero limit", "abc", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateText(tt.in, tt.limit)
			if got != tt.want {
				t.Errorf("truncateText() = %q (%d bytes), want %q", got, len(got), tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("result is not valid UTF-8: %q", got)
			}
			if len(got) > tt.limit {
				t.Errorf("len = %d, want <= %d", len(got), tt.limit)
			}
		})
	}
}
