package library

import "errors"

var (
	// ErrDuplicateKey is returned when a unique field (email, ISBN) collides.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound is returned when a book, loan or user id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable is returned when issuing a book with no copies available.
	ErrUnavailable = errors.New("no copies available")
	// ErrInvalidState is returned when a loan is not in the state an operation requires.
	ErrInvalidState = errors.New("invalid loan state")
	// ErrInvalidCredentials is returned by Authenticate for unknown emails and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccessDenied is returned when the acting user lacks the required role.
	ErrAccessDenied = errors.New("access denied")
)

// RequireRole returns ErrAccessDenied unless u holds one of the given roles.
func RequireRole(u *User, roles ...Role) error {
	if u == nil {
		return ErrAccessDenied
	}
	for _, r := range roles {
		if u.Role == r {
			return nil
		}
	}
	return ErrAccessDenied
}
