package domain

import (
	"errors"
	"fmt"
)

// NotFoundError reports an absent entity.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// AlreadyExistsError reports an ID collision on create.
type AlreadyExistsError struct {
	Entity EntityType
	ID     string
}

func (e AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.ID)
}

// InvalidArgumentError reports a malformed enum or decision value.
type InvalidArgumentError struct {
	Field string
	Value string
}

func (e InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// EligibilityReason is the machine-readable code attached to a rejected
// allocation precondition.
type EligibilityReason string

// Allocation rejection reasons.
const (
	ReasonNotVerified      EligibilityReason = "NotVerified"
	ReasonBloodMismatch    EligibilityReason = "BloodMismatch"
	ReasonOrganUnavailable EligibilityReason = "OrganUnavailable"
)

// NotEligibleError reports an unmet allocation precondition. It is a
// terminal business-rule rejection, never retried.
type NotEligibleError struct {
	Reason EligibilityReason
}

func (e NotEligibleError) Error() string {
	return fmt.Sprintf("pair not eligible: %s", e.Reason)
}

// AuthFailedError rejects hospital authentication. The message never
// distinguishes a missing hospital from a bad credential or an inactive
// record, so callers cannot probe the registry.
type AuthFailedError struct{}

func (AuthFailedError) Error() string {
	return "authentication failed"
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsAlreadyExists reports whether err carries an AlreadyExistsError.
func IsAlreadyExists(err error) bool {
	var ae AlreadyExistsError
	return errors.As(err, &ae)
}

// IsNotEligible reports whether err carries a NotEligibleError, returning
// the rejection reason when it does.
func IsNotEligible(err error) (EligibilityReason, bool) {
	var ne NotEligibleError
	if errors.As(err, &ne) {
		return ne.Reason, true
	}
	return "", false
}
