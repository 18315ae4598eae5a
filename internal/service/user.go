package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Shivanand-hulikatti/bookable/internal/apperr"
	"github.com/Shivanand-hulikatti/bookable/internal/clock"
	"github.com/Shivanand-hulikatti/bookable/internal/logging"
	"github.com/Shivanand-hulikatti/bookable/internal/model"
)

// ErrInvalidCredentials is returned by Login for an unknown user or a wrong
// password. The two cases are indistinguishable on purpose.
var ErrInvalidCredentials = errors.New("invalid username or password")

// UserService registers accounts and checks credentials.
type UserService struct {
	store      Store
	clock      clock.Clock
	logger     *zap.Logger
	bcryptCost int
}

func NewUserService(store Store, clk clock.Clock, logger *zap.Logger) *UserService {
	return &UserService{store: store, clock: clk, logger: logger, bcryptCost: bcrypt.DefaultCost}
}

// WithBcryptCost lowers the hashing cost, mainly for tests.
func (s *UserService) WithBcryptCost(cost int) *UserService {
	s.bcryptCost = cost
	return s
}

// Register creates an account and, in the same transaction, queues the
// USER_CREATED notification.
func (s *UserService) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByUsername(ctx, req.Username); err == nil {
		return nil, apperr.Conflict("username %q is already taken", req.Username)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("lookup username: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	roles := []model.Role{model.RoleUser}
	if req.Provider {
		roles = append(roles, model.RoleProvider)
	}

	now := s.clock.Now()
	user := &model.User{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Roles:        roles,
		CreatedAt:    now,
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertUser(ctx, user); err != nil {
			return err
		}

		event, err := model.NewOutboxEvent(
			model.EventUserCreated,
			model.UserCreatedPayload{ID: user.ID, Username: user.Username},
			user.Email,
			now,
		)
		if err != nil {
			return err
		}
		return tx.AppendOutboxEvent(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	logging.Info(ctx, s.logger, "user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
	)
	return user, nil
}

// Login verifies a username and password pair.
func (s *UserService) Login(ctx context.Context, req model.LoginRequest) (*model.User, error) {
	if err := validateStruct(&req); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		logging.Warn(ctx, s.logger, "failed login", zap.String("username", req.Username))
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
