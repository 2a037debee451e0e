package query

import "github.com/goliatone/go-mastodon/core"

func queryDependencyError(message string) error {
	return core.MissingDependencyError(message)
}

func queryValidationError(field string, message string) error {
	return core.FieldValidationError("query", field, message)
}

func queryWrapValidation(err error, message string) error {
	return core.WrapBadInput(err, message)
}
