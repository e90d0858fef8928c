package errors

import (
	"errors"
	"fmt"
)

// Error classes shared by the authorization flow and the resource server.
var (
	// Authorization flow errors
	ErrInvalidRequest             = errors.New("invalid request")
	ErrUnsupportedChallengeMethod = errors.New("unsupported code challenge method")
	ErrInvalidScope               = errors.New("invalid scope")
	ErrIdentityInvalid            = errors.New("identity assertion invalid")
	ErrAttemptInProgress          = errors.New("authorization attempt in progress")
	ErrInvalidGrant               = errors.New("invalid grant")
	ErrUnsupportedGrantType       = errors.New("unsupported grant type")

	// Token errors
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")
	ErrInsufficientScope = errors.New("insufficient scope")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// DescribedError attaches a caller-safe description to an error class.
// The description is suitable for an OAuth error_description field.
type DescribedError struct {
	Kind        error
	Description string
}

func (e *DescribedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

func (e *DescribedError) Unwrap() error {
	return e.Kind
}

// Describe returns an error of class kind carrying a formatted description.
func Describe(kind error, format string, args ...interface{}) error {
	return &DescribedError{Kind: kind, Description: fmt.Sprintf(format, args...)}
}

// DescriptionOf returns the description of the first DescribedError in err's chain.
func DescriptionOf(err error) (string, bool) {
	var de *DescribedError
	if errors.As(err, &de) {
		return de.Description, true
	}
	return "", false
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
