package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/users/migrations"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// pgUniqueViolation is the SQLSTATE of a unique constraint failure.
const pgUniqueViolation = "23505"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresRepository reads and writes the users table.
type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// OpenPostgres opens dsn through the pgx stdlib driver and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	const op = "users.OpenPostgres"

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return db, nil
}

// Migrate applies the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	const op = "users.Migrate"

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

const selectUserColumns = `SELECT id, tenant_id, username, password_hash, disabled, roles FROM users`

func (r *PostgresRepository) FindByUsername(ctx context.Context, tenantID, username string) (*tenantauth.User, error) {
	const op = "users.PostgresRepository.FindByUsername"

	u, err := scanUser(r.db.QueryRowContext(ctx,
		selectUserColumns+` WHERE tenant_id = $1 AND username = $2`, tenantID, username))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, userID string) (*tenantauth.User, error) {
	const op = "users.PostgresRepository.FindByID"

	u, err := scanUser(r.db.QueryRowContext(ctx, selectUserColumns+` WHERE id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// Create inserts u. A taken id or (tenant, username) yields ErrDuplicate.
func (r *PostgresRepository) Create(ctx context.Context, u *tenantauth.User) error {
	const op = "users.PostgresRepository.Create"

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, username, password_hash, disabled, roles)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.TenantID, u.Username, u.PasswordHash, u.Disabled, u.Roles.String())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%s: %w", op, ErrDuplicate)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	const op = "users.PostgresRepository.UpdatePasswordHash"
	return r.exec(ctx, op, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, userID, passwordHash)
}

func (r *PostgresRepository) SetDisabled(ctx context.Context, userID string, disabled bool) error {
	const op = "users.PostgresRepository.SetDisabled"
	return r.exec(ctx, op, `UPDATE users SET disabled = $2, updated_at = now() WHERE id = $1`, userID, disabled)
}

func (r *PostgresRepository) SetRoles(ctx context.Context, userID string, roles tenantauth.RoleSet) error {
	const op = "users.PostgresRepository.SetRoles"
	return r.exec(ctx, op, `UPDATE users SET roles = $2, updated_at = now() WHERE id = $1`, userID, roles.String())
}

// exec runs a single-row update and maps zero affected rows to ErrNotFound.
func (r *PostgresRepository) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, tenantauth.ErrNotFound)
	}
	return nil
}

func scanUser(row *sql.Row) (*tenantauth.User, error) {
	var (
		u     tenantauth.User
		roles string
	)
	err := row.Scan(&u.ID, &u.TenantID, &u.Username, &u.PasswordHash, &u.Disabled, &roles)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tenantauth.ErrNotFound
		}
		return nil, err
	}
	u.Roles = tenantauth.ParseRoles(roles)
	return &u, nil
}
