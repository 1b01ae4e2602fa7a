package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/core/port"
	"github.com/jumbojolt/identity/internal/repository"
)

// BackupCodeRepository implements port.BackupCodeRepository using PostgreSQL.
type BackupCodeRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewBackupCodeRepository wires a PostgreSQL-backed backup code repository.
func NewBackupCodeRepository(exec pgExecutor) *BackupCodeRepository {
	return &BackupCodeRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ReplaceSet deletes the previous set and stores codes atomically.
func (r *BackupCodeRepository) ReplaceSet(ctx context.Context, userID string, codes []domain.BackupCode) (int, error) {
	if len(codes) == 0 {
		return 0, errors.New("backup code set must not be empty")
	}

	deleteSQL, deleteArgs, err := r.builder.Delete("identity.backup_codes").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete backup codes sql: %w", err)
	}

	insert := r.builder.Insert("identity.backup_codes").
		Columns("id", "user_id", "position", "code_hash", "created_at")
	for _, code := range codes {
		insert = insert.Values(code.ID, userID, code.Position, code.CodeHash, code.CreatedAt)
	}
	insertSQL, insertArgs, err := insert.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert backup codes sql: %w", err)
	}

	var invalidated int
	err = inTx(ctx, r.exec, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}

		ct, err := tx.Exec(ctx, deleteSQL, deleteArgs...)
		if err != nil {
			return fmt.Errorf("delete backup codes: %w", err)
		}
		invalidated = int(ct.RowsAffected())

		if _, err := tx.Exec(ctx, insertSQL, insertArgs...); err != nil {
			if _, ok := conflictField(err, nil); ok {
				return repository.ErrConflict
			}
			return fmt.Errorf("insert backup codes: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return invalidated, nil
}

// ConsumeByHash marks one unused code consumed and returns its owner.
func (r *BackupCodeRepository) ConsumeByHash(ctx context.Context, codeHash string, at time.Time) (string, error) {
	stmt, args, err := r.builder.Update("identity.backup_codes").
		Set("consumed_at", at).
		Where(squirrel.Eq{"code_hash": codeHash}).
		Where("consumed_at IS NULL").
		Suffix("RETURNING user_id").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build consume backup code sql: %w", err)
	}

	var userID string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("consume backup code: %w", err)
	}

	return userID, nil
}

// Status summarizes the user's current set.
func (r *BackupCodeRepository) Status(ctx context.Context, userID string) (domain.BackupCodeStatus, error) {
	stmt, args, err := r.builder.
		Select(
			"count(*)",
			"count(*) FILTER (WHERE consumed_at IS NULL)",
			"min(created_at)",
		).
		From("identity.backup_codes").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return domain.BackupCodeStatus{}, fmt.Errorf("build backup code status sql: %w", err)
	}

	var (
		status      domain.BackupCodeStatus
		generatedAt sql.NullTime
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&status.Total, &status.Remaining, &generatedAt); err != nil {
		return domain.BackupCodeStatus{}, fmt.Errorf("select backup code status: %w", err)
	}
	if generatedAt.Valid {
		t := generatedAt.Time
		status.GeneratedAt = &t
	}

	return status, nil
}

var _ port.BackupCodeRepository = (*BackupCodeRepository)(nil)
