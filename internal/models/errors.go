package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrCapacityViolation = errors.New("table capacity exceeded")
	ErrLockedTable       = errors.New("table is locked")
	ErrLinkDrift         = errors.New("guest/table link drift")
	ErrInfeasibleGroup   = errors.New("group does not fit any unlocked table")
	ErrIneligibleGuest   = errors.New("guest has not accepted the invitation")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags on guests, tables and arrangement options.
// Failures wrap ErrInvalidInput.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
