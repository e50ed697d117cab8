package domain

import (
	"errors"
	"fmt"
)

// ErrNoActiveSession is returned when free text arrives for a user without an
// intake session in progress.
var ErrNoActiveSession = errors.New("no active intake session")

// ValidationError reports rejected user input. The message is safe to show to
// the user as is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Invalid builds a ValidationError for field.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// StoreError wraps a persistence failure. Never shown to users verbatim.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return "store " + e.Op + " failed"
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// DeliveryError reports a reminder that could not be delivered to one recipient.
type DeliveryError struct {
	UserID  int64
	EventID int64
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver event %d to user %d: %v", e.EventID, e.UserID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ConfigError is fatal at startup.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsStore(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

func IsDelivery(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}

func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
