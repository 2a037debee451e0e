package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SaveCredential encrypts cred and stores it as the next active version for
// connectionID. Any previous active version is superseded by the store.
func (s *Service) SaveCredential(
	ctx context.Context,
	connectionID string,
	providerID string,
	cred ActiveCredential,
) (stored Credential, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"provider_id":   providerID,
		"connection_id": connectionID,
	}
	defer func() {
		if stored.Version > 0 {
			fields["version"] = stored.Version
		}
		s.observeOperation(ctx, startedAt, "save_credential", err, fields)
	}()

	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		err = s.mapError(fmt.Errorf("core: connection id is required"))
		return Credential{}, err
	}
	if _, err = s.resolveProvider(providerID); err != nil {
		return Credential{}, err
	}
	if strings.TrimSpace(cred.AccessToken) == "" {
		err = s.mapError(fmt.Errorf("core: access token is required"))
		return Credential{}, err
	}
	if strings.TrimSpace(cred.BaseURL) == "" {
		err = s.mapError(fmt.Errorf("core: base url is required"))
		return Credential{}, err
	}
	if s.credentialStore == nil {
		err = s.mapError(fmt.Errorf("core: credential store is not configured"))
		return Credential{}, err
	}
	if s.secretProvider == nil {
		err = s.mapError(fmt.Errorf("core: secret provider is not configured"))
		return Credential{}, err
	}

	cred.ConnectionID = connectionID
	codec := s.credentialCodec
	if codec == nil {
		codec = JSONCredentialCodec{}
	}
	payload, encodeErr := codec.Encode(cred)
	if encodeErr != nil {
		err = s.mapError(encodeErr)
		return Credential{}, err
	}
	encrypted, encryptErr := s.secretProvider.Encrypt(ctx, payload)
	if encryptErr != nil {
		err = s.mapError(fmt.Errorf("core: encrypt credential payload: %w", encryptErr))
		return Credential{}, err
	}

	plain := cred.detached()
	input := SaveCredentialInput{
		ConnectionID:     connectionID,
		ProviderID:       strings.ToLower(strings.TrimSpace(providerID)),
		BaseURL:          plain.BaseURL,
		EncryptedPayload: encrypted,
		PayloadFormat:    codec.Format(),
		PayloadVersion:   codec.Version(),
		TokenType:        plain.TokenType,
		Scopes:           plain.Scopes,
		ExpiresAt:        plain.ExpiresAt,
		Status:           CredentialStatusActive,
	}
	if meta, ok := s.secretProvider.(SecretMetadataProvider); ok {
		input.EncryptionKeyID, input.EncryptionVersion = meta.Metadata()
	}

	stored, err = s.credentialStore.SaveNewVersion(ctx, input)
	if err != nil {
		err = s.mapError(err)
		return Credential{}, err
	}
	return stored, nil
}

// LoadCredential returns the decrypted active credential for connectionID.
func (s *Service) LoadCredential(ctx context.Context, connectionID string) (ActiveCredential, error) {
	if s == nil {
		return ActiveCredential{}, fmt.Errorf("core: service is nil")
	}
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return ActiveCredential{}, s.mapError(fmt.Errorf("core: connection id is required"))
	}
	if s.credentialStore == nil {
		return ActiveCredential{}, s.mapError(fmt.Errorf("core: credential store is not configured"))
	}
	if s.secretProvider == nil {
		return ActiveCredential{}, s.mapError(fmt.Errorf("core: secret provider is not configured"))
	}

	record, err := s.credentialStore.GetActiveByConnection(ctx, connectionID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return ActiveCredential{}, s.mapError(fmt.Errorf("core: active credential not found for connection %s", connectionID))
		}
		return ActiveCredential{}, s.mapError(err)
	}
	if record.Status != CredentialStatusActive {
		return ActiveCredential{}, s.mapError(fmt.Errorf("core: active credential not found for connection %s", connectionID))
	}

	plaintext, err := s.secretProvider.Decrypt(ctx, record.EncryptedPayload)
	if err != nil {
		return ActiveCredential{}, s.mapError(fmt.Errorf("core: decrypt credential payload: %w", err))
	}
	codec, err := codecForFormat(record.PayloadFormat, s.credentialCodec)
	if err != nil {
		return ActiveCredential{}, s.mapError(err)
	}
	active, err := codec.Decode(plaintext)
	if err != nil {
		return ActiveCredential{}, s.mapError(err)
	}

	active.ConnectionID = connectionID
	if strings.TrimSpace(active.BaseURL) == "" {
		active.BaseURL = record.BaseURL
	}
	if strings.TrimSpace(active.TokenType) == "" {
		active.TokenType = record.TokenType
	}
	if len(active.Scopes) == 0 {
		active.Scopes = append([]string(nil), record.Scopes...)
	}
	if active.ExpiresAt == nil && !record.ExpiresAt.IsZero() {
		expiresAt := record.ExpiresAt.UTC()
		active.ExpiresAt = &expiresAt
	}
	return active, nil
}

func (s *Service) RevokeCredential(ctx context.Context, connectionID string, reason string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"connection_id": connectionID,
		"reason":        reason,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "revoke_credential", err, fields)
	}()

	if strings.TrimSpace(connectionID) == "" {
		err = s.mapError(fmt.Errorf("core: connection id is required"))
		return err
	}
	if s.credentialStore == nil {
		err = s.mapError(fmt.Errorf("core: credential store is not configured"))
		return err
	}
	if err = s.credentialStore.RevokeActive(ctx, strings.TrimSpace(connectionID), reason); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) resolveCredential(ctx context.Context, connectionID string, inline *ActiveCredential) (ActiveCredential, error) {
	if inline != nil {
		active := *inline
		if strings.TrimSpace(active.ConnectionID) == "" {
			active.ConnectionID = strings.TrimSpace(connectionID)
		}
		return active, nil
	}
	if strings.TrimSpace(connectionID) == "" {
		return ActiveCredential{}, s.mapError(fmt.Errorf("core: credential or connection id is required"))
	}
	return s.LoadCredential(ctx, connectionID)
}
