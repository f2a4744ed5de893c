package webhook

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

const (
	// ClientTimeout is the total request timeout.
	ClientTimeout = 15 * time.Second

	// maxResponseBody bounds how much of a receiver's response is kept for errors.
	maxResponseBody = 512
	// maxErrorLength bounds the stored last_error text in bytes.
	maxErrorLength = 500
)

// Header names set on every delivery.
const (
	HeaderSignature  = "X-VoiceScript-Signature"
	HeaderEvent      = "X-VoiceScript-Event"
	HeaderDeliveryID = "X-VoiceScript-Delivery"
	userAgent        = "VoiceScript-Webhook/1.0"
)

// NewClient creates the HTTP client used for delivery. Redirects are not
// followed so a receiver cannot bounce the request to an internal host.
func NewClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = ClientTimeout
	}
	return resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.NoRedirectPolicy()).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", userAgent)
}

// truncateText returns s as valid UTF-8 of at most limit bytes. Invalid
// sequences become U+FFFD and the cut never splits a character.
func truncateText(s string, limit int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
