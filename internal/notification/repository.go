package notification

import (
	"context"
	"database/sql"
	"errors"

	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/logger"

	"go.uber.org/zap"
)

type Repository interface {
	// ExistsForSubject reports whether the user was already sent a
	// notification on channel whose subject contains fragment.
	ExistsForSubject(ctx context.Context, q db.DBTX, userID uint, channel Channel, fragment string) (bool, error)
	// Insert returns false when the dedupe key is already taken.
	Insert(ctx context.Context, q db.DBTX, n *Notification) (bool, error)
	MarkSent(ctx context.Context, q db.DBTX, id uint) error
	MarkFailed(ctx context.Context, q db.DBTX, id uint) error
	GetTemplate(ctx context.Context, q db.DBTX, name string) (*EmailTemplate, error)
}

type repository struct{}

func NewRepository() Repository {
	return &repository{}
}

func (r *repository) ExistsForSubject(ctx context.Context, q db.DBTX, userID uint, channel Channel, fragment string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = $1 AND type = $2 AND subject LIKE '%' || $3 || '%'
		)
	`, userID, channel, fragment).Scan(&exists)
	return exists, err
}

func (r *repository) Insert(ctx context.Context, q db.DBTX, n *Notification) (bool, error) {
	err := q.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, type, subject, message, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (dedupe_key) DO NOTHING
		RETURNING id, created_at
	`, n.UserID, n.Type, n.Subject, n.Message, n.Status, n.DedupeKey).Scan(&n.ID, &n.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to insert notification",
			zap.String("layer", "repository"),
			zap.Uint("user_id", n.UserID),
			zap.Error(err),
		)
		return false, err
	}
	return true, nil
}

func (r *repository) MarkSent(ctx context.Context, q db.DBTX, id uint) error {
	_, err := q.ExecContext(ctx,
		`UPDATE notifications SET status = $2, sent_at = NOW() WHERE id = $1`,
		id, StatusSent,
	)
	return err
}

func (r *repository) MarkFailed(ctx context.Context, q db.DBTX, id uint) error {
	_, err := q.ExecContext(ctx,
		`UPDATE notifications SET status = $2 WHERE id = $1`,
		id, StatusFailed,
	)
	return err
}

func (r *repository) GetTemplate(ctx context.Context, q db.DBTX, name string) (*EmailTemplate, error) {
	var t EmailTemplate
	err := q.QueryRowContext(ctx, `
		SELECT id, name, subject, html_content, text_content
		FROM email_templates
		WHERE name = $1
	`, name).Scan(&t.ID, &t.Name, &t.Subject, &t.HTMLContent, &t.TextContent)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
