package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:mastodon_credentials,alias:mc"`

	ID                string     `bun:"id,pk"`
	ConnectionID      string     `bun:"connection_id,notnull"`
	ProviderID        string     `bun:"provider_id,notnull"`
	BaseURL           string     `bun:"base_url,notnull"`
	Version           int        `bun:"version,notnull"`
	EncryptedPayload  []byte     `bun:"encrypted_payload,notnull"`
	PayloadFormat     string     `bun:"payload_format,notnull"`
	PayloadVersion    int        `bun:"payload_version,notnull"`
	TokenType         string     `bun:"token_type,notnull"`
	Scopes            []string   `bun:"scopes,type:jsonb,notnull"`
	ExpiresAt         *time.Time `bun:"expires_at,nullzero"`
	Status            string     `bun:"status,notnull"`
	EncryptionKeyID   string     `bun:"encryption_key_id,notnull"`
	EncryptionVersion int        `bun:"encryption_version,notnull"`
	RevocationReason  string     `bun:"revocation_reason,notnull"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type markerSnapshotRecord struct {
	bun.BaseModel `bun:"table:mastodon_marker_snapshots,alias:mms"`

	ID              string    `bun:"id,pk"`
	ConnectionID    string    `bun:"connection_id,notnull"`
	Timeline        string    `bun:"timeline,notnull"`
	LastReadID      string    `bun:"last_read_id,notnull"`
	Version         int       `bun:"version,notnull"`
	ServerUpdatedAt string    `bun:"server_updated_at,notnull"`
	RecordedAt      time.Time `bun:"recorded_at,notnull"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:mastodon_rate_limit_state,alias:mrl"`

	ID         string         `bun:"id,pk"`
	ProviderID string         `bun:"provider_id,notnull"`
	ScopeID    string         `bun:"scope_id,notnull"`
	BucketKey  string         `bun:"bucket_key,notnull"`
	Limit      int            `bun:"request_limit,notnull"`
	Remaining  int            `bun:"remaining,notnull"`
	ResetAt    *time.Time     `bun:"reset_at,nullzero"`
	RetryAfter *int           `bun:"retry_after_seconds"`
	Throttled  *time.Time     `bun:"throttled_until,nullzero"`
	Attempts   int            `bun:"attempts,notnull"`
	LastStatus int            `bun:"last_status,notnull"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *credentialRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *credentialRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func (r *markerSnapshotRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *markerSnapshotRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func (r *rateLimitStateRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *rateLimitStateRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}
