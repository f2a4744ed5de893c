// Package webhook delivers signed submission events to admin-configured
// HTTP endpoints.
package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrReplayWindowExceeded is returned when the timestamp is outside the tolerance.
	ErrReplayWindowExceeded = errors.New("timestamp outside replay window")
	// ErrInvalidSignature is returned when signature verification fails.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrMalformedHeader is returned when the signature header cannot be parsed.
	ErrMalformedHeader = errors.New("malformed signature header")
)

// DefaultTolerance is the default replay protection window.
const DefaultTolerance = 5 * time.Minute

// Sign returns the hex HMAC-SHA256 of "{timestamp}.{payload}".
func Sign(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader formats the X-VoiceScript-Signature value.
func SignatureHeader(secret string, timestamp int64, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, Sign(secret, timestamp, payload))
}

// Verify checks a signature header against payload. Receivers use it to
// authenticate deliveries.
func Verify(secret, header string, payload []byte, tolerance time.Duration) error {
	return verifyAt(secret, header, payload, tolerance, time.Now())
}

func verifyAt(secret, header string, payload []byte, tolerance time.Duration, now time.Time) error {
	timestamp, signatures, err := parseHeader(header)
	if err != nil {
		return err
	}
	if tolerance > 0 && now.Sub(time.Unix(timestamp, 0)).Abs() > tolerance {
		return ErrReplayWindowExceeded
	}

	expected := Sign(secret, timestamp, payload)
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// parseHeader splits "t=..,v1=..[,v1=..]". Multiple v1 values allow
// secret rotation on the receiving side.
func parseHeader(header string) (int64, []string, error) {
	var (
		timestamp  int64
		haveTime   bool
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return 0, nil, ErrMalformedHeader
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, ErrMalformedHeader
			}
			timestamp, haveTime = ts, true
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if !haveTime || len(signatures) == 0 {
		return 0, nil, ErrMalformedHeader
	}
	return timestamp, signatures, nil
}

// GenerateSecret creates a random signing secret.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return "whsec_" + hex.EncodeToString(b), nil
}
