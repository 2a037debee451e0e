package security

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-mastodon/core"
)

type Option func(*AppKeySecretProvider)

type appKey struct {
	id      string
	version int
	key     []byte
}

// AppKeySecretProvider seals access tokens with AES-GCM under an application
// key. Retired keys registered with WithPreviousKey stay usable for Decrypt
// so credentials written before a rotation can still be read.
type AppKeySecretProvider struct {
	current  appKey
	previous []appKey
	window   KeyRotationWindow
	now      func() time.Time
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			provider.current.id = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.current.version = version
		}
	}
}

func WithPreviousKey(id string, version int, keyMaterial []byte) Option {
	return func(provider *AppKeySecretProvider) {
		key := bytes.TrimSpace(keyMaterial)
		if len(key) == 0 || strings.TrimSpace(id) == "" || version <= 0 {
			return
		}
		provider.previous = append(provider.previous, appKey{
			id:      strings.TrimSpace(id),
			version: version,
			key:     normalizeKey(key),
		})
	}
}

// WithRotationWindow limits when the current key may encrypt.
func WithRotationWindow(window KeyRotationWindow) Option {
	return func(provider *AppKeySecretProvider) {
		provider.window = window
	}
}

func WithClock(now func() time.Time) Option {
	return func(provider *AppKeySecretProvider) {
		if now != nil {
			provider.now = now
		}
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	provider := &AppKeySecretProvider{
		current: appKey{
			id:      "app-key",
			version: 1,
			key:     normalizeKey(key),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	if !p.window.Allows(p.now()) {
		return nil, fmt.Errorf("security: key %q version %d is outside its rotation window", p.current.id, p.current.version)
	}
	env, err := seal(p.current, plaintext)
	if err != nil {
		return nil, err
	}
	return env.marshal()
}

// Decrypt opens envelopes sealed with the current key or any previous key.
// Legacy ciphertexts without the envelope prefix are accepted.
func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	env, _, err := parseEnvelope(ciphertext, true)
	if err != nil {
		return nil, err
	}
	key, err := p.resolveKey(env.KeyID, env.Version)
	if err != nil {
		return nil, err
	}
	return env.open(key.key)
}

func (p *AppKeySecretProvider) resolveKey(keyID string, version int) (appKey, error) {
	if keyID == "" && version <= 0 {
		return p.current, nil
	}
	if matchesKey(p.current, keyID, version) {
		return p.current, nil
	}
	for _, candidate := range p.previous {
		if matchesKey(candidate, keyID, version) {
			return candidate, nil
		}
	}
	return appKey{}, fmt.Errorf("security: key id mismatch: no key for %q version %d", keyID, version)
}

func matchesKey(key appKey, keyID string, version int) bool {
	if keyID != "" && keyID != key.id {
		return false
	}
	if version > 0 && version != key.version {
		return false
	}
	return true
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.current.id
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.current.version
}

func (p *AppKeySecretProvider) Metadata() (string, int) {
	return p.KeyID(), p.Version()
}

// normalizeKey keeps raw AES-128/192/256 keys and derives a 256-bit key from
// any other length with SHA-256.
func normalizeKey(value []byte) []byte {
	switch len(value) {
	case 16, 24, 32:
		return bytes.Clone(value)
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var (
	_ core.SecretProvider         = (*AppKeySecretProvider)(nil)
	_ core.SecretMetadataProvider = (*AppKeySecretProvider)(nil)
)

// KeyRotationWindow bounds when the current key may seal new tokens. A zero
// bound is open.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	at = at.UTC()
	started := w.NotBefore.IsZero() || !at.Before(w.NotBefore.UTC())
	open := w.NotAfter.IsZero() || !at.After(w.NotAfter.UTC())
	return started && open
}
