package core

import (
	"errors"
	"fmt"
)

// Error taxonomy for materialization. These are matched with errors.Is
// across the service, storage and HTTP layers.
var (
	// ErrTemplateNotFound means the requested template does not exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrInactiveTemplate means materialization was attempted on a
	// deactivated template. Never auto-retried.
	ErrInactiveTemplate = errors.New("template is inactive")

	// ErrDuplicateOccurrence means the (template, occurrence date) pair
	// is already materialized. A benign no-op in batch flows.
	ErrDuplicateOccurrence = errors.New("occurrence already materialized")

	// ErrNoDueOccurrence means the rule engine yields no occurrence:
	// the template is past its end date or has nothing to materialize.
	ErrNoDueOccurrence = errors.New("template has no due occurrence")

	// ErrTransactionFailed means the atomic insert-plus-cursor-advance
	// failed in storage. Template state is unchanged and a retry is safe.
	ErrTransactionFailed = errors.New("transaction failed")
)

// ValidationError reports a malformed template field. Validation runs at
// create/update time so invalid templates never reach the scheduler.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
