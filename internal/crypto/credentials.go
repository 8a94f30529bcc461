// Package crypto encrypts per-channel third-party credentials at rest.
// The teacher already depends on golang.org/x/crypto for password
// hashing (internal/services/auth.go uses bcrypt); this reuses the same
// module's nacl/secretbox for a symmetric authenticated cipher instead
// of hand-rolling an AES-GCM envelope on top of the standard library.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/apierr"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/envutil"
)

const keySize = 32
const nonceSize = 24

// Sealer encrypts and decrypts channel credential blobs with a single
// process-wide key loaded at worker start (spec.md §6.4's FERNET_KEY
// equivalent, §9's "long-lived service singletons... constructed at
// worker start and passed explicitly").
type Sealer struct {
	key [keySize]byte
}

// NewSealerFromEnv loads the encryption key from the
// CREDENTIAL_ENCRYPTION_KEY environment variable, base64-decoded to
// exactly 32 bytes. A missing key is a dedicated, fatal-for-credential-
// access error (spec.md §6.4, §7).
func NewSealerFromEnv() (*Sealer, error) {
	raw := strings.TrimSpace(envutil.String("CREDENTIAL_ENCRYPTION_KEY", ""))
	if raw == "" {
		return nil, apierr.New(apierr.KindEncryptionKeyMissing, fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY is not set"))
	}
	return NewSealer(raw)
}

// NewSealer decodes a base64 key string into a Sealer.
func NewSealer(base64Key string) (*Sealer, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(base64Key))
	if err != nil || len(decoded) != keySize {
		return nil, apierr.New(apierr.KindEncryptionKeyMissing, fmt.Errorf("credential key must decode to %d bytes", keySize))
	}
	s := &Sealer{}
	copy(s.key[:], decoded)
	return s, nil
}

// Seal encrypts plaintext (e.g. a TTS API key) into an opaque blob
// suitable for Channel.EncryptedCredentials. The nonce is generated
// fresh per call and prefixed to the ciphertext.
func (s *Sealer) Seal(plaintext string) ([]byte, error) {
	if s == nil {
		return nil, apierr.New(apierr.KindEncryptionKeyMissing, fmt.Errorf("nil sealer"))
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return out, nil
}

// Open decrypts a blob produced by Seal. Any failure (wrong key,
// truncated blob, tampered ciphertext) surfaces as KindDecryptionFailed
// with a generic message — the ciphertext itself is never included, per
// spec.md §7's "never log ciphertext or key".
func (s *Sealer) Open(blob []byte) (string, error) {
	if s == nil {
		return "", apierr.New(apierr.KindEncryptionKeyMissing, fmt.Errorf("nil sealer"))
	}
	if len(blob) < nonceSize {
		return "", apierr.New(apierr.KindDecryptionFailed, fmt.Errorf("ciphertext too short"))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], blob[:nonceSize])
	plain, ok := secretbox.Open(nil, blob[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", apierr.New(apierr.KindDecryptionFailed, fmt.Errorf("authentication failed"))
	}
	return string(plain), nil
}

// OpenCredential looks up name in creds, decrypts it, and returns a
// short-lived plaintext value. Callers must not store or log the
// returned string; it is meant to be placed directly into a subprocess
// environment for a single Stage Driver invocation (spec.md §5's
// "decrypted on demand into a short-lived value that is never logged").
func (s *Sealer) OpenCredential(creds map[string][]byte, name string) (string, error) {
	blob, ok := creds[name]
	if !ok {
		return "", apierr.New(apierr.KindDecryptionFailed, fmt.Errorf("no credential named %q", name))
	}
	return s.Open(blob)
}
