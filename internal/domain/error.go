package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrNoSubscription     = errors.New("no subscription for user")
	ErrUnknownPlan        = errors.New("unknown plan code")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvariantViolation = errors.New("catalog invariant violated")
	ErrNoDefaultPlan      = errors.New("no default plan configured")

	// Infra-level errors surfaced by repositories
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
