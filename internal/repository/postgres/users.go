package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/jumbojolt/identity/internal/core/domain"
	"github.com/jumbojolt/identity/internal/core/port"
	"github.com/jumbojolt/identity/internal/repository"
)

var userConflictFields = map[string]string{
	"users_handle_norm_key": "handle",
	"users_email_norm_key":  "email",
}

var userColumns = []string{
	"id",
	"kind",
	"handle",
	"email",
	"password_hash",
	"secret_key_hash",
	"points",
	"level",
	"role",
	"created_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	var emailValue, emailNorm any
	if user.Email != nil && *user.Email != "" {
		emailValue = *user.Email
		emailNorm = domain.NormalizeEmail(*user.Email)
	}

	var passwordHash, secretKeyHash any
	if user.PasswordHash != "" {
		passwordHash = user.PasswordHash
	}
	if user.SecretKeyHash != "" {
		secretKeyHash = user.SecretKeyHash
	}

	stmt, args, err := r.builder.Insert("identity.users").
		Columns(
			"id",
			"kind",
			"handle",
			"handle_norm",
			"email",
			"email_norm",
			"password_hash",
			"secret_key_hash",
			"points",
			"level",
			"role",
			"created_at",
		).
		Values(
			user.ID,
			user.Kind,
			user.Handle,
			domain.NormalizeHandle(user.Handle),
			emailValue,
			emailNorm,
			passwordHash,
			secretKeyHash,
			user.Points,
			user.Level,
			user.Role,
			user.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if field, ok := conflictField(err, userConflictFields); ok {
			return &repository.ConflictError{Field: field}
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("identity.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanOne(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByHandle retrieves a user by handle, ignoring case.
func (r *UserRepository) GetByHandle(ctx context.Context, handle string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("identity.users").
		Where(squirrel.Eq{"handle_norm": domain.NormalizeHandle(handle)}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by handle sql: %w", err)
	}

	return r.scanOne(r.exec.QueryRow(ctx, stmt, args...))
}

// Delete removes the user row; recovery keys and backup codes cascade.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("identity.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *UserRepository) scanOne(row pgx.Row) (*domain.User, error) {
	var (
		user          domain.User
		email         sql.NullString
		passwordHash  sql.NullString
		secretKeyHash sql.NullString
	)

	if err := row.Scan(
		&user.ID,
		&user.Kind,
		&user.Handle,
		&email,
		&passwordHash,
		&secretKeyHash,
		&user.Points,
		&user.Level,
		&user.Role,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if email.Valid {
		val := email.String
		user.Email = &val
	}
	user.PasswordHash = passwordHash.String
	user.SecretKeyHash = secretKeyHash.String

	return &user, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
