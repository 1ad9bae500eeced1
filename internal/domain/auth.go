package domain

import (
	"errors"
	"fmt"
)

// Error classes. Transport maps each class to one status code.
var (
	ErrConflict     = errors.New("conflict")
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Error is a user-facing error that belongs to one of the classes above.
// Its message is safe to return to clients.
type Error struct {
	class error
	msg   string
}

func newError(class error, msg string) *Error {
	return &Error{class: class, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Is(target error) bool { return target == e.class }

// Registration
var (
	ErrTenantNameTaken = newError(ErrConflict, "A school with this name is already registered.")
	ErrEmailTaken      = newError(ErrConflict, "A user with this email already exists.")
)

// Verification
var (
	ErrInvalidOTP       = newError(ErrBadRequest, "Invalid or expired OTP.")
	ErrAccountNotFound  = newError(ErrBadRequest, "User with this email not found.")
	ErrTenantNotFound   = newError(ErrBadRequest, "School not found for this email.")
	ErrAlreadyVerified  = newError(ErrBadRequest, "School is already verified.")
	ErrResendThrottled  = newError(ErrBadRequest, "Too many resend attempts.")
	ErrInvalidLogin     = newError(ErrBadRequest, "Invalid credentials")
	ErrLoginUnverified  = newError(ErrBadRequest, "Account is not verified")
	ErrResetTokenBad    = newError(ErrBadRequest, "Invalid or expired token")
	ErrResetTokenScope  = newError(ErrBadRequest, "Invalid token")
	ErrWrongPassword    = newError(ErrBadRequest, "Current password is incorrect")
	ErrPasswordTooShort = newError(ErrBadRequest, "Password must be at least 8 characters")
)

// Authentication gate
var (
	ErrMissingToken     = newError(ErrUnauthorized, "Missing authentication token")
	ErrTokenInvalid     = newError(ErrUnauthorized, "Invalid or expired authentication token")
	ErrAccountInactive  = newError(ErrUnauthorized, "User not found or inactive")
	ErrStaleToken       = newError(ErrUnauthorized, "Token is no longer valid")
	ErrTenantMissing    = newError(ErrForbidden, "Tenant not found")
	ErrTenantUnverified = newError(ErrForbidden, "Tenant is not verified")
	ErrInsufficientRole = newError(ErrForbidden, "Insufficient role")
)

// Internal errors. These never reach clients verbatim.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrTenantAbsent    = errors.New("tenant not found")
	ErrOTPNotFound     = errors.New("otp entry not found")
	ErrDispatchFailed  = errors.New("could not send verification email")
	ErrMalformedDigest = errors.New("malformed password digest")
	ErrVersionChanged  = errors.New("token version changed")
)

// ResendThrottledError reports how long the caller has to wait.
type ResendThrottledError struct {
	MinutesLeft int
}

func (e *ResendThrottledError) Error() string {
	return fmt.Sprintf("Too many resend attempts. Please try again in %d minutes.", e.MinutesLeft)
}

func (e *ResendThrottledError) Is(target error) bool {
	return target == ErrResendThrottled || target == ErrBadRequest
}

// PublicMessage returns the client-safe message carried by err, if any.
func PublicMessage(err error) (string, bool) {
	var throttled *ResendThrottledError
	if errors.As(err, &throttled) {
		return throttled.Error(), true
	}
	var de *Error
	if errors.As(err, &de) {
		return de.msg, true
	}
	return "", false
}

func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsBadRequest(err error) bool   { return errors.Is(err, ErrBadRequest) }
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }
func IsForbidden(err error) bool    { return errors.Is(err, ErrForbidden) }
