package webhook

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSign(t *testing.T) {
	payload := []byte(`{"event_type":"submission.created","event_id":"01HX"}`)

	sig := Sign("whsec_test", 1736600000, payload)
	if len(sig) != 64 {
		t.Fatalf("signature length = %d, want 64", len(sig))
	}
	if sig != Sign("whsec_test", 1736600000, payload) {
		t.Fatal("signature is not deterministic")
	}
	if sig == Sign("whsec_test", 1736600001, payload) {
		t.Fatal("different timestamp should produce different signature")
	}
	if sig == Sign("whsec_other", 1736600000, payload) {
		t.Fatal("different secret should produce different signature")
	}
}

func TestSignatureHeader(t *testing.T) {
	h := SignatureHeader("s", 42, []byte("{}"))
	if !strings.HasPrefix(h, "t=42,v1=") {
		t.Fatalf("unexpected header %q", h)
	}
}

func TestVerify(t *testing.T) {
	secret := "whsec_verify"
	payload := []byte(`{"id":1}`)
	now := time.Unix(1736600000, 0)
	valid := SignatureHeader(secret, now.Unix(), payload)

	tests := []struct {
		name    string
		header  string
		payload []byte
		at      time.Time
		wantErr error
	}{
		{"valid", valid, payload, now, nil},
		{"within_tolerance", valid, payload, now.Add(4 * time.Minute), nil},
		{"rotated_secret", "t=1736600000,v1=deadbeef," + strings.Split(valid, ",")[1], payload, now, nil},
		{"expired", valid, payload, now.Add(6 * time.Minute), ErrReplayWindowExceeded},
		{"future", valid, payload, now.Add(-6 * time.Minute), ErrReplayWindowExceeded},
		{"tampered_payload", valid, []byte(`{"id":2}`), now, ErrInvalidSignature},
		{"wrong_signature", "t=1736600000,v1=00", payload, now, ErrInvalidSignature},
		{"missing_timestamp", "v1=abc", payload, now, ErrMalformedHeader},
		{"missing_signature", "t=1736600000", payload, now, ErrMalformedHeader},
		{"garbage", "nonsense", payload, now, ErrMalformedHeader},
		{"bad_timestamp", "t=abc,v1=00", payload, now, ErrMalformedHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifyAt(secret, tt.header, tt.payload, DefaultTolerance, tt.at)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("verifyAt() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_Now(t *testing.T) {
	payload := []byte("{}")
	header := SignatureHeader("k", time.Now().Unix(), payload)
	if err := Verify("k", header, payload, DefaultTolerance); err != nil {
		t.Fatalf("Verify() = %v", err)
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret() error = %v", err)
	}
	b, _ := GenerateSecret()
	if !strings.HasPrefix(a, "whsec_") || len(a) != len("whsec_")+64 {
		t.Fatalf("unexpected secret %q", a)
	}
	if a == b {
		t.Fatal("secrets should be unique")
	}
}
