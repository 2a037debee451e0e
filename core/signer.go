package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// BearerTokenSigner sets "Authorization: Bearer <token>". The token is used
// as stored; only an all-whitespace token is rejected.
type BearerTokenSigner struct{}

func (BearerTokenSigner) Sign(_ context.Context, req *http.Request, cred ActiveCredential) error {
	if req == nil {
		return fmt.Errorf("core: http request is required")
	}
	if strings.TrimSpace(cred.AccessToken) == "" {
		return fmt.Errorf("core: access token is required for bearer signing")
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	return nil
}

func (s *Service) resolveSignerForProvider(provider Provider) Signer {
	if provider != nil {
		if signerProvider, ok := provider.(ProviderSigner); ok {
			if signer := signerProvider.Signer(); signer != nil {
				return signer
			}
		}
	}
	return s.signer
}

// SignRequest signs req with the provider signer using either the inline
// credential or the active stored credential for connectionID.
func (s *Service) SignRequest(
	ctx context.Context,
	providerID string,
	connectionID string,
	req *http.Request,
	cred *ActiveCredential,
) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	provider, err := s.resolveProvider(providerID)
	if err != nil {
		return err
	}
	signer := s.resolveSignerForProvider(provider)
	if signer == nil {
		return s.mapError(fmt.Errorf("core: signer is not configured"))
	}

	active, err := s.resolveCredential(ctx, connectionID, cred)
	if err != nil {
		return err
	}
	if signErr := signer.Sign(ctx, req, active); signErr != nil {
		return s.mapError(signErr)
	}
	return nil
}
