package errors

import (
	"errors"
	"fmt"
)

// Builder error taxonomy. Every builder operation returns one of these,
// possibly wrapped with context; match with errors.Is.
var (
	ErrOutOfMemory         = errors.New("allocation failed")
	ErrWeightOverflow      = errors.New("weight out of range")
	ErrInvalidAlgorithm    = errors.New("invalid bucket algorithm")
	ErrInvariantViolation  = errors.New("bucket invariant violation")
	ErrAlreadyExists       = errors.New("identifier already in use")
	ErrTooManyRules        = errors.New("too many rules")
	ErrItemNotFound        = errors.New("item not found in bucket")
	ErrInvalidID           = errors.New("invalid identifier")
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrBucketInUse         = errors.New("bucket is still referenced")
	ErrRuleNotFound        = errors.New("rule not found")
	ErrStepOutOfRange      = errors.New("rule step position out of range")
	ErrDanglingReference   = errors.New("unresolved reference")
	ErrAlgorithmNotAllowed = errors.New("bucket algorithm not allowed by map")
	ErrCycle               = errors.New("bucket hierarchy contains a cycle")
	ErrNotFinalized        = errors.New("map is not finalized")
)

var (
	ErrMissingRequiredFields = errors.New("missing required fields")
	ErrUnknownName           = errors.New("unknown name")
	ErrInsufficientDomains   = errors.New("not enough failure domains")
	ErrMapNotPublished       = errors.New("map not published")
)

// BucketError annotates err with the bucket it was raised for.
func BucketError(id int32, err error) error {
	return fmt.Errorf("bucket %d: %w", id, err)
}

// RuleError annotates err with the rule it was raised for.
func RuleError(id int, err error) error {
	return fmt.Errorf("rule %d: %w", id, err)
}

func ConfigNotSetError(config string) error {
	return fmt.Errorf("The %s configuration value must be set", config)
}
