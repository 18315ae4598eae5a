package auth

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/bookable/internal/clock"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

func TestIssueAndParse(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	issuer := NewIssuer("test-secret", time.Hour, clk)
	user := &model.User{ID: uuid.New(), Username: "ana", Roles: []model.Role{model.RoleUser, model.RoleProvider}}

	token, expires, err := issuer.Issue(user)
	require.NoError(t, err)
	assert.Equal(t, clk.Now().Add(time.Hour), expires)

	p, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, p.UserID)
	assert.True(t, p.CanPublish())
	assert.False(t, p.IsAdmin())

	clk.Advance(2 * time.Hour)
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsForeignTokens(t *testing.T) {
	clk := clock.NewManual(time.Now())
	issuer := NewIssuer("test-secret", time.Hour, clk)
	user := &model.User{ID: uuid.New(), Username: "ana", Roles: []model.Role{model.RoleAdmin}}

	token, _, err := NewIssuer("other-secret", time.Hour, clk).Issue(user)
	require.NoError(t, err)
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID.String(), Issuer: "bookable"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = issuer.Parse(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
