package sqlstore

import (
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// record is implemented by every table model; ids are stored as text.
type record interface {
	recordID() string
	setRecordID(id string)
}

func recordHandlers[T record](newRecord func() T) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(r T) uuid.UUID {
			return parseUUID(r.recordID())
		},
		SetID: func(r T, id uuid.UUID) {
			r.setRecordID(id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(r T) string {
			return strings.TrimSpace(r.recordID())
		},
	}
}

// newRepository builds and validates a go-repository-bun repository for one
// table model. name only labels the error.
func newRepository[T record](db *bun.DB, name string, newRecord func() T) (repository.Repository[T], error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[T](db, recordHandlers(newRecord))
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid %s repository wiring: %w", name, err)
		}
	}
	return repo, nil
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
