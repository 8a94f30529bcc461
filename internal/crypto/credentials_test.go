package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/apierr"
)

func randomKey(t *testing.T) string {
	t.Helper()
	raw := make([]byte, keySize)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := NewSealer(randomKey(t))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	blob, err := s.Seal("tts-provider-api-key")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	plain, err := s.Open(blob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "tts-provider-api-key" {
		t.Fatalf("Open: want=%q got=%q", "tts-provider-api-key", plain)
	}
}

func TestNewSealerRejectsShortKey(t *testing.T) {
	_, err := NewSealer(base64.StdEncoding.EncodeToString([]byte("too-short")))
	if err == nil {
		t.Fatalf("NewSealer: expected error for short key, got nil")
	}
	if kind, ok := apierr.KindOf(err); !ok || kind != apierr.KindEncryptionKeyMissing {
		t.Fatalf("KindOf(err): want=%q got=%q ok=%v", apierr.KindEncryptionKeyMissing, kind, ok)
	}
}

func TestNewSealerRejectsInvalidBase64(t *testing.T) {
	_, err := NewSealer("not-valid-base64!!!")
	if err == nil {
		t.Fatalf("NewSealer: expected error for invalid base64, got nil")
	}
}

func TestNewSealerFromEnvMissing(t *testing.T) {
	t.Setenv("CREDENTIAL_ENCRYPTION_KEY", "")
	_, err := NewSealerFromEnv()
	if err == nil {
		t.Fatalf("NewSealerFromEnv: expected error when unset, got nil")
	}
	if kind, ok := apierr.KindOf(err); !ok || kind != apierr.KindEncryptionKeyMissing {
		t.Fatalf("KindOf(err): want=%q got=%q ok=%v", apierr.KindEncryptionKeyMissing, kind, ok)
	}
}

func TestNewSealerFromEnvValid(t *testing.T) {
	t.Setenv("CREDENTIAL_ENCRYPTION_KEY", randomKey(t))
	s, err := NewSealerFromEnv()
	if err != nil {
		t.Fatalf("NewSealerFromEnv: %v", err)
	}
	if s == nil {
		t.Fatalf("NewSealerFromEnv: expected non-nil sealer")
	}
}

func TestOpenRejectsTruncatedBlob(t *testing.T) {
	s, err := NewSealer(randomKey(t))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	_, err = s.Open([]byte("short"))
	if err == nil {
		t.Fatalf("Open: expected error for truncated blob, got nil")
	}
	if kind, ok := apierr.KindOf(err); !ok || kind != apierr.KindDecryptionFailed {
		t.Fatalf("KindOf(err): want=%q got=%q ok=%v", apierr.KindDecryptionFailed, kind, ok)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	s, err := NewSealer(randomKey(t))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	blob, err := s.Seal("secret-value")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	tampered := make([]byte, len(blob))
	copy(tampered, blob)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = s.Open(tampered)
	if err == nil {
		t.Fatalf("Open: expected error for tampered ciphertext, got nil")
	}
	if kind, ok := apierr.KindOf(err); !ok || kind != apierr.KindDecryptionFailed {
		t.Fatalf("KindOf(err): want=%q got=%q ok=%v", apierr.KindDecryptionFailed, kind, ok)
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	s1, err := NewSealer(randomKey(t))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	s2, err := NewSealer(randomKey(t))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	blob, err := s1.Seal("secret-value")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := s2.Open(blob); err == nil {
		t.Fatalf("Open with wrong key: expected error, got nil")
	}
}

func TestNilSealerMethods(t *testing.T) {
	var s *Sealer
	if _, err := s.Seal("x"); err == nil {
		t.Fatalf("Seal on nil sealer: expected error, got nil")
	}
	if _, err := s.Open([]byte("x")); err == nil {
		t.Fatalf("Open on nil sealer: expected error, got nil")
	}
}

func TestOpenCredentialMissingName(t *testing.T) {
	s, err := NewSealer(randomKey(t))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	_, err = s.OpenCredential(map[string][]byte{}, "tts_api_key")
	if err == nil {
		t.Fatalf("OpenCredential: expected error for missing name, got nil")
	}
}

func TestOpenCredentialRoundTrip(t *testing.T) {
	s, err := NewSealer(randomKey(t))
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	blob, err := s.Seal("sk-live-provider-key")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	creds := map[string][]byte{"tts_api_key": blob}
	plain, err := s.OpenCredential(creds, "tts_api_key")
	if err != nil {
		t.Fatalf("OpenCredential: %v", err)
	}
	if plain != "sk-live-provider-key" {
		t.Fatalf("OpenCredential: want=%q got=%q", "sk-live-provider-key", plain)
	}
}
