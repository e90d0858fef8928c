package resource

import (
	"fmt"

	apperrors "github.com/jrsteele09/go-resource-auth/internal/errors"
)

// ErrorKind classifies a failed validation. Every failure is exactly one kind.
type ErrorKind int

const (
	// KindUnauthorized means no usable bearer token was presented.
	KindUnauthorized ErrorKind = iota + 1
	// KindInvalidToken means the token failed signature, algorithm, issuer or audience checks.
	KindInvalidToken
	// KindTokenExpired means an otherwise valid token is past its expiry.
	KindTokenExpired
	// KindInsufficientScope means the token lacks a required scope.
	KindInsufficientScope
	// KindServerError means validation itself failed.
	KindServerError
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidToken:
		return "invalid_token"
	case KindTokenExpired:
		return "token_expired"
	case KindInsufficientScope:
		return "insufficient_scope"
	case KindServerError:
		return "server_error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return apperrors.ErrUnauthorized
	case KindInvalidToken:
		return apperrors.ErrInvalidToken
	case KindTokenExpired:
		return apperrors.ErrTokenExpired
	case KindInsufficientScope:
		return apperrors.ErrInsufficientScope
	}
	return apperrors.ErrInternal
}

// ValidationError is returned by Validator.Validate for every failure.
type ValidationError struct {
	Kind ErrorKind
	// Description is safe to return to the caller.
	Description string
	// RequiredScopes is set for KindInsufficientScope.
	RequiredScopes []string
	// Err is the underlying cause, for logs only.
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

func newUnauthorized() *ValidationError {
	return &ValidationError{Kind: KindUnauthorized, Description: "No access token was provided in this request"}
}

func newInvalidToken(cause error) *ValidationError {
	return &ValidationError{Kind: KindInvalidToken, Description: "The access token is invalid", Err: cause}
}

func newTokenExpired(cause error) *ValidationError {
	return &ValidationError{Kind: KindTokenExpired, Description: "The access token expired", Err: cause}
}

func newInsufficientScope(required []string) *ValidationError {
	return &ValidationError{
		Kind:           KindInsufficientScope,
		Description:    "The request requires higher privileges than provided by the access token",
		RequiredScopes: required,
	}
}

func newServerError(cause error) *ValidationError {
	return &ValidationError{Kind: KindServerError, Description: "The server encountered an error while validating the access token", Err: cause}
}
