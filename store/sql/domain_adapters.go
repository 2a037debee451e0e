package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-mastodon/core"
	"github.com/goliatone/go-mastodon/providers/mastodon"
)

func newCredentialRecord(in core.SaveCredentialInput, version int, now time.Time) *credentialRecord {
	payloadFormat := in.PayloadFormat
	if payloadFormat == "" {
		payloadFormat = core.CredentialPayloadFormatLegacyToken
	}
	payloadVersion := in.PayloadVersion
	if payloadVersion <= 0 {
		payloadVersion = core.CredentialPayloadVersionV1
	}
	scopes := append([]string(nil), in.Scopes...)
	if scopes == nil {
		scopes = []string{}
	}
	record := &credentialRecord{
		ConnectionID:      in.ConnectionID,
		ProviderID:        strings.ToLower(strings.TrimSpace(in.ProviderID)),
		BaseURL:           strings.TrimSpace(in.BaseURL),
		Version:           version,
		EncryptedPayload:  append([]byte(nil), in.EncryptedPayload...),
		PayloadFormat:     payloadFormat,
		PayloadVersion:    payloadVersion,
		TokenType:         in.TokenType,
		Scopes:            scopes,
		Status:            string(in.Status),
		EncryptionKeyID:   in.EncryptionKeyID,
		EncryptionVersion: in.EncryptionVersion,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.ExpiresAt != nil {
		expiresAt := in.ExpiresAt.UTC()
		record.ExpiresAt = &expiresAt
	}
	return record
}

func (r *credentialRecord) toDomain() core.Credential {
	if r == nil {
		return core.Credential{}
	}
	credential := core.Credential{
		ID:                r.ID,
		ConnectionID:      r.ConnectionID,
		ProviderID:        r.ProviderID,
		BaseURL:           r.BaseURL,
		Version:           r.Version,
		EncryptedPayload:  append([]byte(nil), r.EncryptedPayload...),
		PayloadFormat:     r.PayloadFormat,
		PayloadVersion:    r.PayloadVersion,
		TokenType:         r.TokenType,
		Scopes:            append([]string(nil), r.Scopes...),
		Status:            core.CredentialStatus(r.Status),
		EncryptionKeyID:   r.EncryptionKeyID,
		EncryptionVersion: r.EncryptionVersion,
		RevocationReason:  r.RevocationReason,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		credential.ExpiresAt = *r.ExpiresAt
	}
	return credential
}

func (r *markerSnapshotRecord) toDomain() mastodon.MarkerSnapshot {
	if r == nil {
		return mastodon.MarkerSnapshot{}
	}
	return mastodon.MarkerSnapshot{
		ConnectionID: r.ConnectionID,
		Timeline:     mastodon.Timeline(r.Timeline),
		LastReadID:   r.LastReadID,
		Version:      r.Version,
		UpdatedAt:    r.ServerUpdatedAt,
		RecordedAt:   r.RecordedAt.UTC(),
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
