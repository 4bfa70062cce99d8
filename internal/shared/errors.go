package shared

import "errors"

var (
	// ErrValidation indicates missing or malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthenticated indicates an absent, invalid or expired credential.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInvalidCredentials indicates login failure. Unknown email and wrong
	// password both collapse to it.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrForbidden indicates an authenticated caller lacking permission.
	ErrForbidden = errors.New("access denied")
	// ErrAccountInactive indicates a deactivated account at login.
	ErrAccountInactive = errors.New("user account is deactivated")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrRoleInUse blocks deleting a role still referenced by users.
	ErrRoleInUse = errors.New("cannot delete role that is assigned to users")
	// ErrInternal marks an unexpected fault whose detail stays server-side.
	ErrInternal = errors.New("internal server error")
)

// Error is a domain error with a caller-safe message.
type Error struct {
	kind error
	msg  string
}

// NewError wraps kind with a message that may be shown to the caller.
func NewError(kind error, msg string) error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }
