package fraud

import "fmt"

// ValidationError rejects a transaction before the scoring pipeline runs.
// It is the only error that crosses the pipeline boundary; every other
// failure mode degrades to a safe decision instead.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transaction: %s %s", e.Field, e.Message)
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
