package repository

import "errors"

var (
	// ErrNotFound is returned when a row does not exist or is not owned by
	// the requesting user. Callers must not distinguish the two cases.
	ErrNotFound = errors.New("not found")

	// ErrOverQuota is returned when the guarded usage-meter increment
	// affects zero rows.
	ErrOverQuota = errors.New("monthly project quota exceeded")

	// ErrApprovedImmutable is returned when editing an approved requirement
	// without an explicit reopen.
	ErrApprovedImmutable = errors.New("approved requirements are immutable until reopened")
)
