package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
	"github.com/Shivanand-hulikatti/bookable/internal/service"
)

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.users.Register(ctx, model.RegisterRequest{
		Username: "ana",
		Email:    "ana@example.com",
		Password: "s3cret-pass",
		Provider: true,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Role{model.RoleUser, model.RoleProvider}, user.Roles)
	assert.NotEqual(t, "s3cret-pass", user.PasswordHash)

	events := f.store.AllOutboxEvents(ctx)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventUserCreated, events[0].EventType)
	assert.Equal(t, "ana@example.com", events[0].RecipientAddress())

	got, err := f.users.Login(ctx, model.LoginRequest{Username: "ana", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = f.users.Login(ctx, model.LoginRequest{Username: "ana", Password: "wrong-pass"})
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = f.users.Login(ctx, model.LoginRequest{Username: "bob", Password: "whatever1"})
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestRegisterRejectsDuplicatesAndBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := model.RegisterRequest{Username: "ana", Email: "ana@example.com", Password: "s3cret-pass"}

	_, err := f.users.Register(ctx, req)
	require.NoError(t, err)

	_, err = f.users.Register(ctx, req)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.users.Register(ctx, model.RegisterRequest{Username: "x", Email: "nope", Password: "short"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "Username must be at least 3")
}

func TestFailedEventsRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	_, err := service.FailedEvents(context.Background(), f.store, f.addUser(t), 10)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	events, err := service.FailedEvents(context.Background(), f.store, f.addUser(t, model.RoleAdmin), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
