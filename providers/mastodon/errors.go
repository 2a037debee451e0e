package mastodon

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mastodon/core"
)

const (
	ErrorInvalidToken        = "MASTODON_INVALID_TOKEN"
	ErrorInstanceUnreachable = "MASTODON_INSTANCE_UNREACHABLE"
)

// classifyVerifyError maps a failed credential check: 401/403 become an
// invalid token, transport failures an unreachable instance. Anything else is
// returned unchanged.
func classifyVerifyError(err error, baseURL string) error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return err
	}
	// Stored connections resolve their base URL inside Execute, which
	// already carries it in the error metadata.
	extra := map[string]any{}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		extra["base_url"] = baseURL
	}
	switch {
	case rich.TextCode == core.ServiceErrorUnauthorized, rich.TextCode == core.ServiceErrorForbidden:
		classified := goerrors.New("mastodon: invalid token", goerrors.CategoryAuth).
			WithCode(http.StatusUnauthorized).
			WithTextCode(ErrorInvalidToken).
			WithMetadata(rich.Metadata, extra)
		classified.Source = err
		return classified
	case rich.TextCode == core.ServiceErrorUnreachable:
		classified := goerrors.New("mastodon: instance unreachable", goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(ErrorInstanceUnreachable).
			WithMetadata(rich.Metadata, extra)
		classified.Source = err
		return classified
	default:
		return err
	}
}

// IsInvalidToken reports whether err is a failed credential check caused by
// a rejected token.
func IsInvalidToken(err error) bool {
	return core.HasTextCode(err, ErrorInvalidToken)
}

func IsInstanceUnreachable(err error) bool {
	return core.HasTextCode(err, ErrorInstanceUnreachable)
}
