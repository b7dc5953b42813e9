package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTicketSignVerify(t *testing.T) {
	t.Parallel()

	signer, err := NewTicketSigner("mfagate", time.Minute)
	require.NoError(t, err)

	raw, err := signer.Sign("42", "alice", []string{"otp"})
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := signer.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "42", claims.Subject)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, []string{"otp"}, claims.AMR)
	require.Equal(t, "mfagate", claims.Issuer)
}

func TestTicketVerifyRejectsForeignKey(t *testing.T) {
	t.Parallel()

	a, err := NewTicketSigner("mfagate", time.Minute)
	require.NoError(t, err)
	b, err := NewTicketSigner("mfagate", time.Minute)
	require.NoError(t, err)

	raw, err := a.Sign("42", "alice", nil)
	require.NoError(t, err)

	_, err = b.Verify(raw)
	require.ErrorIs(t, err, ErrInvalidTicket)
}

func TestTicketVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	signer, err := NewTicketSigner("mfagate", time.Minute)
	require.NoError(t, err)
	signer.ttl = -time.Minute

	raw, err := signer.Sign("42", "alice", nil)
	require.NoError(t, err)

	_, err = signer.Verify(raw)
	require.ErrorIs(t, err, ErrExpiredTicket)
}

func TestTicketVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()

	signer, err := NewTicketSigner("mfagate", time.Minute)
	require.NoError(t, err)

	_, err = signer.Verify("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidTicket)
}
