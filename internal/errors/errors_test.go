package errors_test

import (
	"fmt"
	"testing"

	apperrors "github.com/jrsteele09/go-resource-auth/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	err := apperrors.Describe(apperrors.ErrInvalidRequest, "%s is required", "state")
	wrapped := fmt.Errorf("[Handler] %w", err)

	require.True(t, apperrors.Is(wrapped, apperrors.ErrInvalidRequest))
	require.False(t, apperrors.Is(wrapped, apperrors.ErrInvalidScope))

	desc, ok := apperrors.DescriptionOf(wrapped)
	require.True(t, ok)
	require.Equal(t, "state is required", desc)
	require.Equal(t, "[Handler] invalid request: state is required", wrapped.Error())
}

func TestDescriptionOfPlainError(t *testing.T) {
	_, ok := apperrors.DescriptionOf(apperrors.ErrInternal)
	require.False(t, ok)
}

func TestWrapf(t *testing.T) {
	require.NoError(t, apperrors.Wrapf(nil, "ignored"))

	err := apperrors.Wrapf(apperrors.ErrTokenExpired, "inspect %s", "access token")
	require.EqualError(t, err, "inspect access token: token expired")
	require.True(t, apperrors.Is(err, apperrors.ErrTokenExpired))
}
