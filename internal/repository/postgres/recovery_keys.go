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

var recoveryKeyColumns = []string{
	"id",
	"user_id",
	"key_hash",
	"qr_payload",
	"created_at",
	"consumed_at",
	"revoked_at",
}

// RecoveryKeyRepository implements port.RecoveryKeyRepository using PostgreSQL.
type RecoveryKeyRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRecoveryKeyRepository wires a PostgreSQL-backed recovery key repository.
func NewRecoveryKeyRepository(exec pgExecutor) *RecoveryKeyRepository {
	return &RecoveryKeyRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Rotate revokes the user's usable keys and inserts key in one transaction.
func (r *RecoveryKeyRepository) Rotate(ctx context.Context, key domain.RecoveryKey) (int, error) {
	revokeSQL, revokeArgs, err := r.builder.Update("identity.recovery_keys").
		Set("revoked_at", key.CreatedAt).
		Where(squirrel.Eq{"user_id": key.UserID}).
		Where("consumed_at IS NULL").
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke recovery keys sql: %w", err)
	}

	insertSQL, insertArgs, err := r.builder.Insert("identity.recovery_keys").
		Columns("id", "user_id", "key_hash", "qr_payload", "created_at").
		Values(key.ID, key.UserID, key.KeyHash, key.QRPayload, key.CreatedAt).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert recovery key sql: %w", err)
	}

	var revoked int
	err = inTx(ctx, r.exec, func(tx pgx.Tx) error {
		if err := lockUser(ctx, tx, key.UserID); err != nil {
			return err
		}

		ct, err := tx.Exec(ctx, revokeSQL, revokeArgs...)
		if err != nil {
			return fmt.Errorf("revoke recovery keys: %w", err)
		}
		revoked = int(ct.RowsAffected())

		if _, err := tx.Exec(ctx, insertSQL, insertArgs...); err != nil {
			if _, ok := conflictField(err, nil); ok {
				return repository.ErrConflict
			}
			return fmt.Errorf("insert recovery key: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return revoked, nil
}

// ConsumeByHash marks a usable key consumed and returns its owner.
func (r *RecoveryKeyRepository) ConsumeByHash(ctx context.Context, keyHash string, at time.Time) (string, error) {
	stmt, args, err := r.builder.Update("identity.recovery_keys").
		Set("consumed_at", at).
		Where(squirrel.Eq{"key_hash": keyHash}).
		Where("consumed_at IS NULL").
		Where("revoked_at IS NULL").
		Suffix("RETURNING user_id").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build consume recovery key sql: %w", err)
	}

	var userID string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("consume recovery key: %w", err)
	}

	return userID, nil
}

// GetByHash loads a key regardless of its state.
func (r *RecoveryKeyRepository) GetByHash(ctx context.Context, keyHash string) (*domain.RecoveryKey, error) {
	stmt, args, err := r.builder.
		Select(recoveryKeyColumns...).
		From("identity.recovery_keys").
		Where(squirrel.Eq{"key_hash": keyHash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select recovery key sql: %w", err)
	}

	key, err := scanRecoveryKey(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select recovery key: %w", err)
	}
	return &key, nil
}

// ListByUser returns every key issued to the user, newest first.
func (r *RecoveryKeyRepository) ListByUser(ctx context.Context, userID string) ([]domain.RecoveryKey, error) {
	stmt, args, err := r.builder.
		Select(recoveryKeyColumns...).
		From("identity.recovery_keys").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list recovery keys sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list recovery keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.RecoveryKey
	for rows.Next() {
		key, err := scanRecoveryKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recovery key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recovery keys: %w", err)
	}

	return keys, nil
}

func scanRecoveryKey(row pgx.Row) (domain.RecoveryKey, error) {
	var (
		key        domain.RecoveryKey
		qrPayload  sql.NullString
		consumedAt sql.NullTime
		revokedAt  sql.NullTime
	)

	if err := row.Scan(
		&key.ID,
		&key.UserID,
		&key.KeyHash,
		&qrPayload,
		&key.CreatedAt,
		&consumedAt,
		&revokedAt,
	); err != nil {
		return domain.RecoveryKey{}, err
	}

	key.QRPayload = qrPayload.String
	if consumedAt.Valid {
		t := consumedAt.Time
		key.ConsumedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		key.RevokedAt = &t
	}

	return key, nil
}

var _ port.RecoveryKeyRepository = (*RecoveryKeyRepository)(nil)
