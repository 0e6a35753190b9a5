// Package errors provides structured error handling with error codes for
// the 2FA core.
//
// Every user-facing failure carries a typed ErrorCode so callers can branch
// on the kind of failure without string matching, and the HTTP layer can map
// codes to status codes with MapErrorCodeToHTTPStatus.
//
// Creating errors:
//
//	err := errors.New(errors.ErrCodeNotEnrolled, "subject has no active enrollment")
//	err := errors.Newf(errors.ErrCodeInvalidInput, "invalid subject id: %s", raw)
//	err := errors.Wrap(dbErr, errors.ErrCodeInternal, "failed to load enrollment")
//
// Inspecting errors:
//
//	if errors.IsCode(err, errors.ErrCodeCodeAlreadyUsed) { ... }
//	status := errors.GetCode(err)
package errors
