package mastodon

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mastodon/core"
)

const (
	DefaultBaseURL         = "https://mastodon.social"
	VerifyCredentialsPath  = "/api/v1/accounts/verify_credentials"
	TokenCredentialName    = "mastodonTokenApi"
	TokenDocumentationURL  = "https://docs.joinmastodon.org/client/token/"
	fieldBaseURL           = "baseUrl"
	fieldAccessToken       = "accessToken"
	fieldClientID          = "clientId"
	fieldClientSecret      = "clientSecret"
	tokenCredentialDisplay = "Mastodon Access Token API"
)

var validate = validator.New()

// TokenCredential is the operator-entered access token for one instance.
type TokenCredential struct {
	BaseURL     string `json:"baseUrl" yaml:"base_url" mapstructure:"base_url" default:"https://mastodon.social" validate:"required"`
	AccessToken string `json:"accessToken" yaml:"access_token" mapstructure:"access_token" validate:"required"`
}

// TokenCredentialDescriptor describes the fields and test request of the
// access-token credential.
func TokenCredentialDescriptor() core.CredentialDescriptor {
	return core.CredentialDescriptor{
		Name:             TokenCredentialName,
		DisplayName:      tokenCredentialDisplay,
		DocumentationURL: TokenDocumentationURL,
		Fields: []core.CredentialField{
			{
				Name:        fieldBaseURL,
				DisplayName: "Mastodon Instance URL",
				Type:        core.CredentialFieldString,
				Required:    true,
				Default:     DefaultBaseURL,
				Placeholder: DefaultBaseURL,
				Description: "The base URL of your Mastodon instance (e.g., https://mastodon.social)",
			},
			{
				Name:        fieldAccessToken,
				DisplayName: "Access Token",
				Type:        core.CredentialFieldSecret,
				Required:    true,
				Description: "Access token generated under Development > Your applications.",
			},
		},
		Test: core.RequestSpec{
			Method:  http.MethodGet,
			BaseURL: "{{" + fieldBaseURL + "}}",
			Path:    VerifyCredentialsPath,
		},
	}
}

// WithDefaults fills an empty BaseURL with DefaultBaseURL.
func (c TokenCredential) WithDefaults() TokenCredential {
	if err := defaults.Set(&c); err != nil {
		c.BaseURL = DefaultBaseURL
	}
	return c
}

// Validate reports every missing required field in one validation error.
func (c TokenCredential) Validate() error {
	trimmed := TokenCredential{
		BaseURL:     strings.TrimSpace(c.BaseURL),
		AccessToken: strings.TrimSpace(c.AccessToken),
	}
	return validationError("mastodon: invalid token credential", validate.Struct(trimmed))
}

// validationError turns validator failures into one go-errors validation
// error listing each field by its credential name.
func validationError(message string, err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !goerrors.As(err, &fieldErrs) {
		return goerrors.Wrap(err, goerrors.CategoryValidation, message).
			WithTextCode(core.ServiceErrorBadInput)
	}
	failures := make([]goerrors.FieldError, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		name := credentialFieldName(fieldErr.StructField())
		failures = append(failures, goerrors.FieldError{
			Field:   name,
			Message: fmt.Sprintf("%s is %s", name, fieldErr.Tag()),
		})
	}
	return goerrors.NewValidation(message, failures...).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput)
}

// Authenticate sets Authorization to "Bearer <accessToken>". The token is used
// verbatim and no other part of the request is touched.
func (c TokenCredential) Authenticate(req *http.Request) error {
	if req == nil {
		return fmt.Errorf("mastodon: request is required")
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	return nil
}

// TestRequest is the request used to verify the credential. BaseURL is kept
// verbatim; the token does not influence the result.
func (c TokenCredential) TestRequest() core.RequestSpec {
	return core.RequestSpec{
		Method:  http.MethodGet,
		BaseURL: c.BaseURL,
		Path:    VerifyCredentialsPath,
	}
}

// ActiveCredential converts the credential for use with core.Service.
func (c TokenCredential) ActiveCredential(connectionID string) core.ActiveCredential {
	return core.ActiveCredential{
		ConnectionID: strings.TrimSpace(connectionID),
		BaseURL:      c.BaseURL,
		TokenType:    "bearer",
		AccessToken:  c.AccessToken,
	}
}

// String never prints the access token.
func (c TokenCredential) String() string {
	token := ""
	if c.AccessToken != "" {
		token = core.RedactedValue
	}
	return fmt.Sprintf("TokenCredential{BaseURL:%q AccessToken:%q}", c.BaseURL, token)
}

// Sign lets TokenCredential act as a core.Signer for callers that hold the
// credential directly.
func (c TokenCredential) Sign(_ context.Context, req *http.Request, _ core.ActiveCredential) error {
	return c.Authenticate(req)
}

func credentialFieldName(structField string) string {
	switch structField {
	case "BaseURL":
		return fieldBaseURL
	case "AccessToken":
		return fieldAccessToken
	case "ClientID":
		return fieldClientID
	case "ClientSecret":
		return fieldClientSecret
	default:
		return structField
	}
}

var _ core.Signer = TokenCredential{}
