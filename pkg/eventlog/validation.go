package eventlog

import (
	"fmt"

	customvalidator "github.com/madeneat/wplogify/pkg/customValidator"
)

var eventValidator = customvalidator.NewCustomValidator()

// validateEvent checks an event before any repository writes it.
func validateEvent(e *Event) error {
	if err := eventValidator.Validate(e.record()); err != nil {
		return fmt.Errorf("eventlog: invalid event: %w", err)
	}
	return nil
}
