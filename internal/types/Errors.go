/*

This file contains the error classes surfaced by the engine. Every rejection wraps exactly one of
these so callers can tell a degraded-but-served request from a refused one with errors.Is.

*/

package types

import (
	errorsmod "cosmossdk.io/errors"
)

// Codespace is the error codespace of the allocation engine.
const Codespace = "engine"

var (
	// ErrConfiguration: invalid parameter bounds. Rejected synchronously, never partially applied.
	ErrConfiguration = errorsmod.Register(Codespace, 2, "configuration error")
	// ErrDataUnavailable: oracle quorum / variance failure or unusable venue data.
	ErrDataUnavailable = errorsmod.Register(Codespace, 3, "data unavailable")
	// ErrConstraintViolation: a venue-level constraint failed; the venue is skipped.
	ErrConstraintViolation = errorsmod.Register(Codespace, 4, "constraint violation")
	// ErrTimelockViolation: early or repeated execution of a fee proposal.
	ErrTimelockViolation = errorsmod.Register(Codespace, 5, "timelock violation")
	// ErrResourceExhaustion: registration beyond configured maxima.
	ErrResourceExhaustion = errorsmod.Register(Codespace, 6, "resource exhaustion")
	ErrUnauthorized       = errorsmod.Register(Codespace, 7, "unauthorized")
	ErrCycleInProgress    = errorsmod.Register(Codespace, 8, "cycle in progress")
	ErrNotFound           = errorsmod.Register(Codespace, 9, "not found")
)

// Wrapf wraps one of the registered classes with call-site context.
func Wrapf(class error, format string, args ...interface{}) error {
	return errorsmod.Wrapf(class, format, args...)
}

// ErrorClass returns the short class name of err, or "internal" when err does not wrap a
// registered class. Used for metrics labels and HTTP responses.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errorsmod.IsOf(err, ErrConfiguration):
		return "configuration"
	case errorsmod.IsOf(err, ErrDataUnavailable):
		return "data_unavailable"
	case errorsmod.IsOf(err, ErrConstraintViolation):
		return "constraint_violation"
	case errorsmod.IsOf(err, ErrTimelockViolation):
		return "timelock_violation"
	case errorsmod.IsOf(err, ErrResourceExhaustion):
		return "resource_exhaustion"
	case errorsmod.IsOf(err, ErrUnauthorized):
		return "unauthorized"
	case errorsmod.IsOf(err, ErrCycleInProgress):
		return "cycle_in_progress"
	case errorsmod.IsOf(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
