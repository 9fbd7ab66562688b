package auth

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials       = "INVALID_CREDENTIALS"
	TextCodeAccountLocked            = "ACCOUNT_LOCKED"
	TextCodeAccountUnverified        = "ACCOUNT_UNVERIFIED"
	TextCodeAccountDisabled          = "ACCOUNT_DISABLED"
	TextCodeTokenExpired             = "TOKEN_EXPIRED"
	TextCodeTokenInvalid             = "TOKEN_INVALID"
	TextCodeKindMismatch             = "ACTOR_KIND_MISMATCH"
	TextCodePermissionDenied         = "PERMISSION_DENIED"
	TextCodeDuplicateEmail           = "DUPLICATE_EMAIL"
	TextCodeInsufficientRoleToCreate = "INSUFFICIENT_ROLE_TO_CREATE"
	TextCodeInvalidRoleRequested     = "INVALID_ROLE_REQUESTED"
	TextCodeValidation               = "VALIDATION_ERROR"
	TextCodeRootExists               = "ROOT_ALREADY_EXISTS"
	TextCodeActorNotFound            = "ACTOR_NOT_FOUND"
	TextCodeConcurrentUpdate         = "CONCURRENT_UPDATE"
	TextCodeInvalidTransition        = "INVALID_ACTOR_STATE_TRANSITION"
	TextCodeEmptyPassword            = "EMPTY_PASSWORD"
)

// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountLocked is returned while the lockout window is open.
var ErrAccountLocked = goerrors.New("account is temporarily locked", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountLocked).
	WithCode(http.StatusLocked)

var ErrAccountUnverified = goerrors.New("account is not verified", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountUnverified).
	WithCode(goerrors.CodeForbidden)

var ErrAccountDisabled = goerrors.New("account is deactivated", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(goerrors.CodeForbidden)

var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid is returned for every token failure other than expiry.
var ErrTokenInvalid = goerrors.New("token is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrKindMismatch is returned when a token for one actor kind is presented
// to the surface of the other.
var ErrKindMismatch = goerrors.New("token does not belong to this actor kind", goerrors.CategoryAuth).
	WithTextCode(TextCodeKindMismatch).
	WithCode(goerrors.CodeUnauthorized)

var ErrPermissionDenied = goerrors.New("permission denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodePermissionDenied).
	WithCode(goerrors.CodeForbidden)

var ErrDuplicateEmail = goerrors.New("email already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

var ErrInsufficientRoleToCreate = goerrors.New("role is not allowed to create the requested role", goerrors.CategoryAuthz).
	WithTextCode(TextCodeInsufficientRoleToCreate).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidRoleRequested is returned when provisioning asks for root or an
// unknown role.
var ErrInvalidRoleRequested = goerrors.New("requested role cannot be assigned", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidRoleRequested).
	WithCode(goerrors.CodeBadRequest)

var ErrValidation = goerrors.New("validation failed", goerrors.CategoryValidation).
	WithTextCode(TextCodeValidation).
	WithCode(goerrors.CodeBadRequest)

var ErrRootExists = goerrors.New("a root actor already exists for this kind", goerrors.CategoryConflict).
	WithTextCode(TextCodeRootExists).
	WithCode(goerrors.CodeConflict)

var ErrActorNotFound = goerrors.New("actor not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeActorNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrConcurrentUpdate is returned when a compare-and-swap write keeps losing.
var ErrConcurrentUpdate = goerrors.New("actor was modified concurrently", goerrors.CategoryConflict).
	WithTextCode(TextCodeConcurrentUpdate).
	WithCode(goerrors.CodeConflict)

var ErrInvalidTransition = goerrors.New("invalid actor state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryBadInput).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the hasher level mismatch. Callers turn it
// into ErrInvalidCredentials after updating lockout state.
var ErrMismatchedHashAndPassword = errors.New("password does not match hash")

// ErrorStatus resolves the HTTP status carried by err, defaulting to 500.
func ErrorStatus(err error) int {
	var richErr *goerrors.Error
	if errors.As(err, &richErr) && richErr.Code != 0 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}

// ErrorTextCode resolves the text code carried by err, if any.
func ErrorTextCode(err error) string {
	var richErr *goerrors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return ErrorTextCode(err) == TextCodeTokenExpired
}

// HasTextCode compares the text code carried by err.
func HasTextCode(err error, code string) bool {
	return err != nil && ErrorTextCode(err) == code
}

// IsAuthError reports whether err should be answered as an authentication
// failure rather than an internal error.
func IsAuthError(err error) bool {
	var richErr *goerrors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryAuth || richErr.Category == goerrors.CategoryAuthz
}
