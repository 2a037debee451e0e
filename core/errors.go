package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput           = "MASTODON_BAD_INPUT"
	ServiceErrorProviderNotFound   = "MASTODON_PROVIDER_NOT_FOUND"
	ServiceErrorCredentialNotFound = "MASTODON_CREDENTIAL_NOT_FOUND"
	ServiceErrorUnauthorized       = "MASTODON_UNAUTHORIZED"
	ServiceErrorForbidden          = "MASTODON_FORBIDDEN"
	ServiceErrorNotFound           = "MASTODON_NOT_FOUND"
	ServiceErrorRateLimited        = "MASTODON_RATE_LIMITED"
	ServiceErrorUnreachable        = "MASTODON_UNREACHABLE"
	ServiceErrorExternalFailure    = "MASTODON_UPSTREAM_FAILURE"
	ServiceErrorOperationFailed    = "MASTODON_OPERATION_FAILED"
	ServiceErrorInternal           = "MASTODON_INTERNAL_ERROR"
)

// serviceErrorConverter is implemented by package errors that know their own
// envelope, e.g. ratelimit.ThrottledError.
type serviceErrorConverter interface {
	ToServiceError() *goerrors.Error
}

type categoryEnvelope struct {
	status   int
	textCode string
}

// categoryEnvelopes fills Code and TextCode on errors that only set a
// category. Categories missing here map to 500 and ServiceErrorInternal.
var categoryEnvelopes = map[goerrors.Category]categoryEnvelope{
	goerrors.CategoryBadInput:   {http.StatusBadRequest, ServiceErrorBadInput},
	goerrors.CategoryValidation: {http.StatusBadRequest, ServiceErrorBadInput},
	goerrors.CategoryNotFound:   {http.StatusNotFound, ServiceErrorNotFound},
	goerrors.CategoryAuth:       {http.StatusUnauthorized, ServiceErrorUnauthorized},
	goerrors.CategoryAuthz:      {http.StatusForbidden, ServiceErrorForbidden},
	goerrors.CategoryConflict:   {http.StatusConflict, ServiceErrorInternal},
	goerrors.CategoryRateLimit:  {http.StatusTooManyRequests, ServiceErrorRateLimited},
	goerrors.CategoryExternal:   {http.StatusBadGateway, ServiceErrorExternalFailure},
	goerrors.CategoryOperation:  {http.StatusInternalServerError, ServiceErrorOperationFailed},
}

func envelopeFor(category goerrors.Category) categoryEnvelope {
	if env, ok := categoryEnvelopes[category]; ok {
		return env
	}
	return categoryEnvelope{http.StatusInternalServerError, ServiceErrorInternal}
}

// serviceErrorMapper turns any error into a go-errors envelope. Sentinels
// are matched first; plain errors from lower layers are classified by their
// message.
func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return withEnvelope(rich)
	}
	if convertible, ok := err.(serviceErrorConverter); ok {
		if converted := convertible.ToServiceError(); converted != nil {
			return withEnvelope(converted)
		}
	}

	msg := strings.ToLower(err.Error())
	contains := func(parts ...string) bool {
		for _, part := range parts {
			if strings.Contains(msg, part) {
				return true
			}
		}
		return false
	}
	switch {
	case errors.Is(err, ErrProviderNotFound) || contains("not registered"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorProviderNotFound)
	case errors.Is(err, ErrCredentialNotFound) || contains("credential not found"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorCredentialNotFound)
	case contains("throttl", "rate limit"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ServiceErrorRateLimited)
	case contains("required", "invalid", "mismatch"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}
	return withEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return withEnvelope(goerrors.New(message, category).WithTextCode(textCode))
}

func withEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	env := envelopeFor(err.Category)
	if err.Code == 0 {
		err.Code = env.status
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = env.textCode
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

// UpstreamStatusError builds the error envelope for a non-2xx API response.
// The upstream "error" field, when present, is carried in metadata.
func UpstreamStatusError(statusCode int, upstreamMessage string, metadata map[string]any) *goerrors.Error {
	category, textCode := upstreamStatusClassification(statusCode)
	message := "mastodon: request failed"
	if text := http.StatusText(statusCode); text != "" {
		message += " with status " + text
	}
	meta := copyAnyMap(metadata)
	meta["status_code"] = statusCode
	if upstreamMessage = strings.TrimSpace(upstreamMessage); upstreamMessage != "" {
		meta["upstream_error"] = upstreamMessage
	}
	return goerrors.New(message, category).
		WithCode(statusCode).
		WithTextCode(textCode).
		WithMetadata(meta)
}

func upstreamStatusClassification(statusCode int) (goerrors.Category, string) {
	switch statusCode {
	case http.StatusUnauthorized:
		return goerrors.CategoryAuth, ServiceErrorUnauthorized
	case http.StatusForbidden:
		return goerrors.CategoryAuthz, ServiceErrorForbidden
	case http.StatusNotFound:
		return goerrors.CategoryNotFound, ServiceErrorNotFound
	case http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit, ServiceErrorRateLimited
	}
	if statusCode >= 400 && statusCode < 500 {
		return goerrors.CategoryBadInput, ServiceErrorBadInput
	}
	return goerrors.CategoryExternal, ServiceErrorExternalFailure
}

// HasTextCode reports whether err carries a go-errors envelope with code.
func HasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

// MissingDependencyError reports a handler built without its collaborator.
func MissingDependencyError(message string) error {
	return newServiceError(message, goerrors.CategoryInternal, ServiceErrorInternal)
}

// FieldValidationError is the bad-input envelope for one invalid message
// field. scope prefixes the summary, e.g. "command" or "query".
func FieldValidationError(scope string, field string, message string) error {
	return goerrors.NewValidation(scope+": validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

// WrapBadInput wraps a validation failure from a nested value, keeping any
// field errors it already carries.
func WrapBadInput(err error, message string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorBadInput)
}
