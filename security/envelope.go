package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	envelopePrefix    = "mastodon.secret.v1:"
	envelopeAlgorithm = "aes-256-gcm"
)

// envelope is the stored form of a sealed token:
// mastodon.secret.v1:{"kid":..,"ver":..,"alg":..,"nonce":..,"ciphertext":..}
// with nonce and ciphertext base64 encoded.
type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      []byte `json:"nonce,omitempty"`
	Ciphertext []byte `json:"ciphertext"`
}

type EnvelopeMetadata struct {
	HasPrefix bool
	KeyID     string
	Version   int
	Algorithm string
}

// ParseEnvelopeMetadata reads key identity from a stored ciphertext without
// decrypting it. Useful to find credentials still sealed with a retired key.
func ParseEnvelopeMetadata(ciphertext []byte, allowMissingPrefix bool) (EnvelopeMetadata, error) {
	env, hasPrefix, err := parseEnvelope(ciphertext, allowMissingPrefix)
	if err != nil {
		return EnvelopeMetadata{}, err
	}
	return EnvelopeMetadata{
		HasPrefix: hasPrefix,
		KeyID:     env.KeyID,
		Version:   env.Version,
		Algorithm: env.Algorithm,
	}, nil
}

func seal(key appKey, plaintext []byte) (envelope, error) {
	gcm, err := newGCM(key.key)
	if err != nil {
		return envelope{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return envelope{}, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	return envelope{
		KeyID:      key.id,
		Version:    key.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
	}, nil
}

func (e envelope) open(key []byte) ([]byte, error) {
	if e.Algorithm != envelopeAlgorithm {
		return nil, fmt.Errorf("security: unsupported envelope algorithm %q", e.Algorithm)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(e.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("security: envelope nonce has %d bytes, want %d", len(e.Nonce), gcm.NonceSize())
	}
	plaintext, err := gcm.Open(nil, e.Nonce, e.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (e envelope) marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return append([]byte(envelopePrefix), data...), nil
}

// parseEnvelope accepts a bare JSON envelope only when allowMissingPrefix is
// set. A missing alg is read as aes-256-gcm.
func parseEnvelope(ciphertext []byte, allowMissingPrefix bool) (envelope, bool, error) {
	if len(ciphertext) == 0 {
		return envelope{}, false, fmt.Errorf("security: ciphertext is required")
	}
	payload, hasPrefix := bytes.CutPrefix(ciphertext, []byte(envelopePrefix))
	if !hasPrefix && !allowMissingPrefix {
		return envelope{}, false, fmt.Errorf("security: invalid ciphertext envelope prefix")
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return envelope{}, false, fmt.Errorf("security: decode envelope: %w", err)
	}
	env.KeyID = strings.TrimSpace(env.KeyID)
	env.Algorithm = strings.ToLower(strings.TrimSpace(env.Algorithm))
	if env.Algorithm == "" {
		env.Algorithm = envelopeAlgorithm
	}
	if len(env.Ciphertext) == 0 {
		return envelope{}, false, fmt.Errorf("security: envelope ciphertext is required")
	}
	return env, hasPrefix, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}
