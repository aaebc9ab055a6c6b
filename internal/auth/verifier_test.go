package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDevVerifier_AcceptsAnyKeyIncludingEmpty(t *testing.T) {
	v := NewDevVerifier()

	ok, err := v.VerifyAPIKey(context.Background(), "")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = v.VerifyAPIKey(context.Background(), "anything")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMasterKeyVerifier_ExactMatchOnly(t *testing.T) {
	v := NewMasterKeyVerifier("s3cret")

	ok, err := v.VerifyAPIKey(context.Background(), "s3cret")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = v.VerifyAPIKey(context.Background(), "wrong")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = v.VerifyAPIKey(context.Background(), "")
	require.NoError(t, err)
	require.False(t, ok)
}
