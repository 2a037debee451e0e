package command

import "github.com/goliatone/go-mastodon/core"

func commandDependencyError(message string) error {
	return core.MissingDependencyError(message)
}

func commandValidationError(field string, message string) error {
	return core.FieldValidationError("command", field, message)
}

func commandWrapValidation(err error, message string) error {
	return core.WrapBadInput(err, message)
}
