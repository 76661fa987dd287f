package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pdfworker/internal/report"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier("shh", 15*time.Second, fixedClock{now: now})
	require.NoError(t, err)
	return v
}

func TestVerifyAcceptsFreshToken(t *testing.T) {
	t.Parallel()

	token, err := Issue("shh", "42", "u-1", now.Add(-10*time.Second))
	require.NoError(t, err)

	claims, err := newVerifier(t).Verify("Bearer "+token, "42", "u-1")
	require.NoError(t, err)
	require.Equal(t, "42", claims.TaskID)
	require.Equal(t, "u-1", claims.UserID)
	require.True(t, claims.Timestamp.Equal(now.Add(-10*time.Second)))
}

func TestVerifyAcceptsNumericIDs(t *testing.T) {
	t.Parallel()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"task_id":   42,
		"user_id":   7,
		"timestamp": now.UnixMilli(),
	}).SignedString([]byte("shh"))
	require.NoError(t, err)

	_, err = newVerifier(t).Verify("Bearer "+token, "42", "7")
	require.NoError(t, err)
}

func TestVerifyFailures(t *testing.T) {
	t.Parallel()

	fresh, err := Issue("shh", "42", "u-1", now)
	require.NoError(t, err)
	stale, err := Issue("shh", "42", "u-1", now.Add(-16*time.Second))
	require.NoError(t, err)
	forged, err := Issue("other", "42", "u-1", now)
	require.NoError(t, err)
	noTimestamp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"task_id": "42", "user_id": "u-1",
	}).SignedString([]byte("shh"))
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		task   string
		want   *Error
	}{
		{name: "missing header", header: "", task: "42", want: ErrNoToken},
		{name: "scheme only", header: "Bearer", task: "42", want: ErrNoToken},
		{name: "task mismatch", header: "Bearer " + fresh, task: "43", want: ErrInvalidPayload},
		{name: "stale", header: "Bearer " + stale, task: "42", want: ErrExpired},
		{name: "wrong secret", header: "Bearer " + forged, task: "42", want: ErrInvalidToken},
		{name: "garbage", header: "Bearer abc.def.ghi", task: "42", want: ErrInvalidToken},
		{name: "missing timestamp", header: "Bearer " + noTimestamp, task: "42", want: ErrInvalidPayload},
	}
	v := newVerifier(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := v.Verify(tc.header, tc.task, "u-1")
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, report.ErrUnauthorized)
			var authErr *Error
			require.True(t, errors.As(err, &authErr))
			require.Equal(t, tc.want.Message, authErr.Message)
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	require.Equal(t, "abc", BearerToken("Bearer abc"))
	require.Equal(t, "abc", BearerToken("  Bearer   abc "))
	require.Empty(t, BearerToken("abc"))
	require.Empty(t, BearerToken(""))
}

func TestNewVerifierValidation(t *testing.T) {
	t.Parallel()

	_, err := NewVerifier("", time.Second, fixedClock{})
	require.Error(t, err)
	_, err = NewVerifier("s", 0, fixedClock{})
	require.Error(t, err)
	_, err = NewVerifier("s", time.Second, nil)
	require.Error(t, err)
}
