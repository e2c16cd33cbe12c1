package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mango3/identity/internal/identity/store"
)

var (
	ErrAuthenticationFailed = errors.New("authentication_failed")
	ErrRegistrationClosed   = errors.New("registration_closed")
	ErrConfirmationInvalid  = errors.New("confirmation_invalid")
	ErrInvalidApplication   = errors.New("invalid_application")
)

// Enqueuer appends a payload to a named queue on the async backbone. Defined
// here so services stay decoupled from the worker runtime; the jobs package
// provides the durable implementation.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload any) error

	// EnqueueIn appends within an open transaction, so the job commits or
	// rolls back together with the state change that caused it.
	EnqueueIn(ctx context.Context, tx store.Tx, queue string, payload any) error
}

// ValidationErrors maps field names to human-readable problems. It is
// returned whole so boundaries can render every failing field at once.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, v[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// AsValidationErrors unwraps err into ValidationErrors when applicable.
func AsValidationErrors(err error) (ValidationErrors, bool) {
	var v ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
