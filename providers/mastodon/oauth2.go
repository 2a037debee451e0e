package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"github.com/goliatone/go-mastodon/core"
	"golang.org/x/oauth2"
)

const (
	AuthorizePath          = "/oauth/authorize"
	TokenPath              = "/oauth/token"
	DiscoveryPath          = "/.well-known/oauth-authorization-server"
	AppVerifyPath          = "/api/v1/apps/verify_credentials"
	defaultPKCEVerifierTTL = 10 * time.Minute
	pkceMethodS256         = "S256"
)

var DefaultOAuth2Scopes = []string{"read", "write"}

// OAuth2Credential is a registered Mastodon application used for the
// authorization-code flow.
type OAuth2Credential struct {
	BaseURL      string   `json:"baseUrl" yaml:"base_url" mapstructure:"base_url" default:"https://mastodon.social" validate:"required"`
	ClientID     string   `json:"clientId" yaml:"client_id" mapstructure:"client_id" validate:"required"`
	ClientSecret string   `json:"clientSecret" yaml:"client_secret" mapstructure:"client_secret" validate:"required"`
	RedirectURL  string   `json:"redirectUrl" yaml:"redirect_url" mapstructure:"redirect_url"`
	Scopes       []string `json:"scopes" yaml:"scopes" mapstructure:"scopes"`
}

// OAuth2Config builds the golang.org/x/oauth2 config. Trailing slashes on
// BaseURL are dropped before the endpoints are appended.
func (c OAuth2Credential) OAuth2Config() *oauth2.Config {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	scopes := normalizeScopes(c.Scopes)
	if len(scopes) == 0 {
		scopes = append([]string(nil), DefaultOAuth2Scopes...)
	}
	return &oauth2.Config{
		ClientID:     strings.TrimSpace(c.ClientID),
		ClientSecret: strings.TrimSpace(c.ClientSecret),
		RedirectURL:  strings.TrimSpace(c.RedirectURL),
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + AuthorizePath,
			TokenURL:  base + TokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c OAuth2Credential) WithDefaults() OAuth2Credential {
	if err := defaults.Set(&c); err != nil {
		c.BaseURL = DefaultBaseURL
	}
	return c
}

// Validate reports every missing application field in one validation error.
func (c OAuth2Credential) Validate() error {
	trimmed := OAuth2Credential{
		BaseURL:      strings.TrimSpace(c.BaseURL),
		ClientID:     strings.TrimSpace(c.ClientID),
		ClientSecret: strings.TrimSpace(c.ClientSecret),
	}
	return validationError("mastodon: invalid oauth2 credential", validate.Struct(trimmed))
}

// AuthCodeURL returns the authorize URL. A non-empty verifier adds the S256
// PKCE challenge. Login is always forced so several accounts can connect.
func (c OAuth2Credential) AuthCodeURL(state string, verifier string) string {
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("force_login", "true")}
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return c.OAuth2Config().AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for a bearer credential.
func (c OAuth2Credential) Exchange(ctx context.Context, code string, verifier string, httpClient *http.Client) (core.ActiveCredential, error) {
	if err := c.Validate(); err != nil {
		return core.ActiveCredential{}, err
	}
	if strings.TrimSpace(code) == "" {
		return core.ActiveCredential{}, fmt.Errorf("mastodon: authorization code is required")
	}
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	config := c.OAuth2Config()
	token, err := config.Exchange(ctx, strings.TrimSpace(code), opts...)
	if err != nil {
		return core.ActiveCredential{}, fmt.Errorf("mastodon: token exchange failed: %w", err)
	}
	return activeCredentialFromToken(c.BaseURL, config.Scopes, token), nil
}

func activeCredentialFromToken(baseURL string, requested []string, token *oauth2.Token) core.ActiveCredential {
	scopes := requested
	if raw, ok := token.Extra("scope").(string); ok && strings.TrimSpace(raw) != "" {
		scopes = strings.Fields(raw)
	}
	tokenType := strings.ToLower(strings.TrimSpace(token.TokenType))
	if tokenType == "" {
		tokenType = "bearer"
	}
	cred := core.ActiveCredential{
		BaseURL:      strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		TokenType:    tokenType,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scopes:       normalizeScopes(scopes),
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		cred.ExpiresAt = &expiry
	}
	return cred
}

type authorizationServerMetadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	ScopesSupported               []string `json:"scopes_supported"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported"`
}

// SupportsPKCE reads the instance's authorization server metadata. Any
// discovery failure reports false: older instances do not publish it.
func SupportsPKCE(ctx context.Context, httpClient *http.Client, baseURL string) bool {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	spec := core.RequestSpec{BaseURL: baseURL, Path: DiscoveryPath}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL(), nil)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "application/json")
	res, err := httpClient.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return false
	}
	metadata := authorizationServerMetadata{}
	if err := json.NewDecoder(res.Body).Decode(&metadata); err != nil {
		return false
	}
	return slices.Contains(metadata.CodeChallengeMethodsSupported, pkceMethodS256)
}

// PKCEStore holds code verifiers between the authorize redirect and the
// callback. A verifier is returned at most once and expires after its TTL.
type PKCEStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]pkceEntry
}

type pkceEntry struct {
	verifier  string
	expiresAt time.Time
}

func NewPKCEStore(ttl time.Duration) *PKCEStore {
	if ttl <= 0 {
		ttl = defaultPKCEVerifierTTL
	}
	return &PKCEStore{
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		entries: map[string]pkceEntry{},
	}
}

// Begin generates and stores a verifier for state.
func (s *PKCEStore) Begin(state string) string {
	verifier := oauth2.GenerateVerifier()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.entries[state] = pkceEntry{verifier: verifier, expiresAt: s.now().Add(s.ttl)}
	return verifier
}

// Take returns and forgets the verifier for state.
func (s *PKCEStore) Take(state string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[state]
	if !ok {
		return "", false
	}
	delete(s.entries, state)
	if s.now().After(entry.expiresAt) {
		return "", false
	}
	return entry.verifier, true
}

func (s *PKCEStore) prune() {
	now := s.now()
	for state, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, state)
		}
	}
}

func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		for _, field := range strings.Fields(scope) {
			if !slices.Contains(out, field) {
				out = append(out, field)
			}
		}
	}
	return out
}
