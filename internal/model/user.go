package model

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that can book items or, with the PROVIDER role,
// publish them.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, Roles: u.Roles}
}

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Provider bool   `json:"provider"`
}

// LoginRequest is the payload for exchanging credentials for a token.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserCreatedPayload is the USER_CREATED outbox payload.
type UserCreatedPayload struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}
