package domain

import "errors"

// Common errors
var (
	ErrNotFound  = errors.New("record not found")
	ErrForbidden = errors.New("access forbidden: you don't own this resource")
	ErrInvalidID = errors.New("invalid id")
)

// Membership errors
var (
	// ErrPreconditionViolation means an upgrade was requested without a valid active term.
	// Callers should take the fresh-purchase path instead.
	ErrPreconditionViolation = errors.New("upgrade requires a current active membership")
	ErrInvalidPlanDuration   = errors.New("plan has no duration for the requested billing period")
	ErrInvalidBillingPeriod  = errors.New("invalid billing period (must be monthly or yearly)")
	ErrConcurrentUpdate      = errors.New("membership was modified concurrently")
	ErrInvalidPurchase       = errors.New("invalid purchase metadata")
	ErrLeadLimitReached      = errors.New("monthly lead allowance exhausted")
	ErrPlanInactive          = errors.New("plan is not active")
	ErrDuplicateEvent        = errors.New("payment event already processed")
	ErrInvalidPlan           = errors.New("invalid plan definition")
)
