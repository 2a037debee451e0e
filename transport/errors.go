package transport

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mastodon/core"
)

// failure builds the envelope for a request the adapter could not complete.
// A nil source yields a plain error; otherwise source is wrapped.
func failure(category goerrors.Category, message string, source error, metadata map[string]any) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(source, category, message)
	}
	err = err.WithCode(statusFor(category)).WithTextCode(textCodeFor(category))
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// unreachable marks a request that never produced an HTTP response: DNS,
// TLS, a refused connection or a timeout.
func unreachable(source error, metadata map[string]any) error {
	err := goerrors.Wrap(source, goerrors.CategoryExternal, "transport: instance unreachable").
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ServiceErrorUnreachable)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func statusFor(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func textCodeFor(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ServiceErrorBadInput
	case goerrors.CategoryExternal:
		return core.ServiceErrorExternalFailure
	default:
		return core.ServiceErrorInternal
	}
}
