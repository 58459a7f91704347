package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrNotRegistered     = errors.New("agent not registered")
	ErrNotEligible       = errors.New("agent not eligible")
	ErrMarketTerminated  = errors.New("market has no further openings")
	ErrUnknownMechanism  = errors.New("unknown market mechanism")
	ErrQueryUnsupported  = errors.New("unmatched-orders query not supported")
	ErrCoverageViolation = errors.New("clearing result does not cover resting orders")
	ErrContextDone       = errors.New("context cancelled")
)
