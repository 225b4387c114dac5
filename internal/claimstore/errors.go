package claimstore

import "errors"

var (
	// ErrClaimFailed wraps any storage-layer failure while attempting a claim.
	// Callers treat this as transient and skip the document for the cycle.
	ErrClaimFailed = errors.New("claim store: claim attempt failed")

	// ErrMarkStatusFailed wraps any storage-layer failure while updating a
	// claim's status.
	ErrMarkStatusFailed = errors.New("claim store: mark status failed")
)
