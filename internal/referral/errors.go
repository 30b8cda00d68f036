package referral

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify with errors.Is; messages carry the details.
var (
	ErrValidation        = errors.New("validation")
	ErrConflict          = errors.New("conflict")
	ErrNotFound          = errors.New("not found")
	ErrExhausted         = errors.New("attempts exhausted")
	ErrTransient         = errors.New("transient storage error")
	ErrFatalDistribution = errors.New("reward distribution failed")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func conflictError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func notFoundError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// IsCallerError reports errors caused by the request itself; they are never retried.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound)
}
