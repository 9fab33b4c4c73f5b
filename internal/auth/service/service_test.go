package service

import (
	"testing"
	"time"

	authdomain "github.com/Nikjeremic/uptiomio/internal/auth/domain"
	"github.com/Nikjeremic/uptiomio/internal/clock"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Now())
	return NewWithKey("test-secret", "uptiomio", time.Hour, clk, nil), clk
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)

	raw, err := svc.Issue(authdomain.Actor{ID: "u-1", Email: "client@example.com", Role: authdomain.RoleUser}, 0)
	require.NoError(t, err)

	actor, err := svc.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "u-1", actor.ID)
	require.Equal(t, "client@example.com", actor.Email)
	require.Equal(t, authdomain.RoleUser, actor.Role)
	require.False(t, actor.IsAdmin())
}

func TestIssueRejectsSystemRole(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Issue(authdomain.SystemActor("reminder"), time.Minute)
	require.ErrorIs(t, err, authdomain.ErrInvalidRole)
}

func TestParseExpiredToken(t *testing.T) {
	svc, _ := newTestService(t)

	// Issued two hours in the past with a one minute lifetime.
	past := NewWithKey("test-secret", "uptiomio", time.Minute, clock.NewFakeClock(time.Now().Add(-2*time.Hour)), nil)
	raw, err := past.Issue(authdomain.Actor{ID: "u-1", Role: authdomain.RoleAdmin}, 0)
	require.NoError(t, err)

	_, err = svc.Parse(raw)
	require.ErrorIs(t, err, authdomain.ErrTokenExpired)
}

func TestParseRejectsForeignKeyAndIssuer(t *testing.T) {
	svc, _ := newTestService(t)

	other := NewWithKey("another-secret", "uptiomio", time.Hour, nil, nil)
	raw, err := other.Issue(authdomain.Actor{ID: "u-1", Role: authdomain.RoleAdmin}, 0)
	require.NoError(t, err)
	_, err = svc.Parse(raw)
	require.ErrorIs(t, err, authdomain.ErrInvalidToken)

	foreign := NewWithKey("test-secret", "someone-else", time.Hour, nil, nil)
	raw, err = foreign.Issue(authdomain.Actor{ID: "u-1", Role: authdomain.RoleAdmin}, 0)
	require.NoError(t, err)
	_, err = svc.Parse(raw)
	require.ErrorIs(t, err, authdomain.ErrInvalidToken)
}

func TestParseRejectsNoneAlgorithm(t *testing.T) {
	svc, _ := newTestService(t)

	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u-1", Role: "admin"})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Parse(raw)
	require.ErrorIs(t, err, authdomain.ErrInvalidToken)
}

func TestParseEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Parse("  ")
	require.ErrorIs(t, err, authdomain.ErrUnauthorized)
}
