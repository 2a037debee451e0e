package core

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	CredentialPayloadFormatLegacyToken = "legacy_token"
	CredentialPayloadFormatJSONV1      = "active_credential_json"
	CredentialPayloadVersionV1         = 1
)

type CredentialCodec interface {
	Format() string
	Version() int
	Encode(credential ActiveCredential) ([]byte, error)
	Decode(payload []byte) (ActiveCredential, error)
}

type JSONCredentialCodec struct{}

func (JSONCredentialCodec) Format() string {
	return CredentialPayloadFormatJSONV1
}

func (JSONCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

// credentialJSON mirrors ActiveCredential field for field so the two convert
// directly; only the tags differ.
type credentialJSON struct {
	ConnectionID string         `json:"connection_id,omitempty"`
	BaseURL      string         `json:"base_url,omitempty"`
	TokenType    string         `json:"token_type,omitempty"`
	AccessToken  string         `json:"access_token,omitempty"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	Scopes       []string       `json:"scopes,omitempty"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (JSONCredentialCodec) Encode(credential ActiveCredential) ([]byte, error) {
	encoded, err := json.Marshal(credentialJSON(credential.detached()))
	if err != nil {
		return nil, fmt.Errorf("core: encode credential payload: %w", err)
	}
	return encoded, nil
}

func (JSONCredentialCodec) Decode(payload []byte) (ActiveCredential, error) {
	if len(payload) == 0 {
		return ActiveCredential{}, fmt.Errorf("core: credential payload is empty")
	}
	var decoded credentialJSON
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return ActiveCredential{}, fmt.Errorf("core: decode credential payload: %w", err)
	}
	return ActiveCredential(decoded).detached(), nil
}

// detached returns a trimmed copy sharing no slices, maps or pointers with c.
func (c ActiveCredential) detached() ActiveCredential {
	c.ConnectionID = strings.TrimSpace(c.ConnectionID)
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.TokenType = strings.TrimSpace(c.TokenType)
	c.Scopes = slices.Clone(c.Scopes)
	c.Metadata = copyAnyMap(c.Metadata)
	if c.ExpiresAt != nil {
		expiresAt := c.ExpiresAt.UTC()
		c.ExpiresAt = &expiresAt
	}
	return c
}

// LegacyTokenCredentialCodec stores only the bare access token. Base URL is
// kept on the credential record.
type LegacyTokenCredentialCodec struct{}

func (LegacyTokenCredentialCodec) Format() string {
	return CredentialPayloadFormatLegacyToken
}

func (LegacyTokenCredentialCodec) Version() int {
	return CredentialPayloadVersionV1
}

func (LegacyTokenCredentialCodec) Encode(credential ActiveCredential) ([]byte, error) {
	if strings.TrimSpace(credential.AccessToken) == "" {
		return nil, fmt.Errorf("core: legacy credential payload requires a token")
	}
	return []byte(credential.AccessToken), nil
}

func (LegacyTokenCredentialCodec) Decode(payload []byte) (ActiveCredential, error) {
	if strings.TrimSpace(string(payload)) == "" {
		return ActiveCredential{}, fmt.Errorf("core: legacy credential payload is empty")
	}
	return ActiveCredential{
		TokenType:   "bearer",
		AccessToken: string(payload),
	}, nil
}

func codecForFormat(format string, fallback CredentialCodec) (CredentialCodec, error) {
	switch strings.TrimSpace(format) {
	case "", CredentialPayloadFormatJSONV1:
		if fallback != nil && fallback.Format() == CredentialPayloadFormatJSONV1 {
			return fallback, nil
		}
		return JSONCredentialCodec{}, nil
	case CredentialPayloadFormatLegacyToken:
		return LegacyTokenCredentialCodec{}, nil
	default:
		if fallback != nil && fallback.Format() == format {
			return fallback, nil
		}
		return nil, fmt.Errorf("core: unsupported credential payload format %q", format)
	}
}
