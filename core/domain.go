package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentialStatusTransition = errors.New("core: invalid credential status transition")
	ErrCredentialNotFound                = errors.New("core: credential not found")
)

type CredentialStatus string

const (
	CredentialStatusActive  CredentialStatus = "active"
	CredentialStatusRevoked CredentialStatus = "revoked"
	CredentialStatusExpired CredentialStatus = "expired"
)

// Credential is a stored, encrypted credential version for one connection.
type Credential struct {
	ID                string
	ConnectionID      string
	ProviderID        string
	BaseURL           string
	Version           int
	EncryptedPayload  []byte
	PayloadFormat     string
	PayloadVersion    int
	TokenType         string
	Scopes            []string
	ExpiresAt         time.Time
	Status            CredentialStatus
	EncryptionKeyID   string
	EncryptionVersion int
	RevocationReason  string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (c *Credential) TransitionTo(status CredentialStatus, now time.Time) error {
	if c == nil {
		return nil
	}
	if c.Status == status {
		c.UpdatedAt = now
		return nil
	}
	if !credentialTransitionAllowed(c.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidCredentialStatusTransition, c.Status, status)
	}
	c.Status = status
	c.UpdatedAt = now
	return nil
}

func credentialTransitionAllowed(current, next CredentialStatus) bool {
	allowed := map[CredentialStatus]map[CredentialStatus]struct{}{
		CredentialStatusActive: {
			CredentialStatusRevoked: {},
			CredentialStatusExpired: {},
		},
		CredentialStatusExpired: {
			CredentialStatusActive:  {},
			CredentialStatusRevoked: {},
		},
		CredentialStatusRevoked: {},
	}
	_, ok := allowed[current][next]
	return ok
}
