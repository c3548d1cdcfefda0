package user

import (
	"context"
	"database/sql"
	"errors"

	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/logger"

	"go.uber.org/zap"
)

// Repository reads accounts owned by the identity service.
type Repository interface {
	GetByID(ctx context.Context, q db.DBTX, userID uint) (*User, error)
}

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

func (r *repository) GetByID(ctx context.Context, q db.DBTX, userID uint) (*User, error) {
	var u User
	err := q.QueryRowContext(ctx,
		"SELECT id, email, username, role FROM users WHERE id = $1",
		userID,
	).Scan(&u.ID, &u.Email, &u.Username, &u.Role)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		logger.FromCtx(ctx).Error("db: failed to load user",
			zap.Uint("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}

	return &u, nil
}
