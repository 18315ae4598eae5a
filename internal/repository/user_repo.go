package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

const userColumns = `id, username, email, password_hash, roles, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u     model.User
		roles []string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &roles, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Roles = make([]model.Role, 0, len(roles))
	for _, r := range roles {
		u.Roles = append(u.Roles, model.Role(r))
	}
	return &u, nil
}

// GetUserByUsername looks up an account for login.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return nil, notFoundOr(err, "user", username)
	}
	return u, nil
}

func (t *txStore) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := scanUser(t.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "user", id)
	}
	return u, nil
}

func (t *txStore) InsertUser(ctx context.Context, u *model.User) error {
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, string(r))
	}

	_, err := t.q.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.Email, u.PasswordHash, roles, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("username %q is already taken", u.Username)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}
