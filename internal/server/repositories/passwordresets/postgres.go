package passwordresets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/taskmanager/internal/common"
	"github.com/dmitrijs2005/taskmanager/internal/dbx"
	"github.com/dmitrijs2005/taskmanager/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, reset *models.PasswordReset) (*models.PasswordReset, error) {
	query := `
		INSERT INTO password_resets (email, otp_hash, expires_at, used)
		VALUES ($1, $2, $3, FALSE)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, reset.Email, reset.OTPHash, reset.ExpiresAt).
		Scan(&reset.ID, &reset.CreatedAt, &reset.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	reset.Used = false
	return reset, nil
}

func (r *PostgresRepository) FindLatestUnused(ctx context.Context, email string) (*models.PasswordReset, error) {
	query := `
		SELECT id, email, otp_hash, expires_at, used, created_at, updated_at
		FROM password_resets
		WHERE email = $1 AND used = FALSE
		ORDER BY created_at DESC
		LIMIT 1
	`
	reset := &models.PasswordReset{}
	err := r.db.QueryRowContext(ctx, query, email).
		Scan(&reset.ID, &reset.Email, &reset.OTPHash, &reset.ExpiresAt, &reset.Used, &reset.CreatedAt, &reset.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return reset, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id int64) error {
	query := `
		UPDATE password_resets
		SET used = TRUE, updated_at = now()
		WHERE id = $1 AND used = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	query := `
		DELETE FROM password_resets
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByEmail(ctx context.Context, email string) error {
	query := `
		DELETE FROM password_resets
		WHERE email = $1
	`
	if _, err := r.db.ExecContext(ctx, query, email); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM password_resets
		WHERE expires_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
