package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/scholara/account-service/internal/model"
)

const userColumns = `
	id, email, username, credential_hash, status, pending_code,
	pending_code_expiry, role, coin_balance, referral_count, created_at,
	last_active_at
`

// UserRepository defines the methods we need for storing and retrieving
// identity records. Methods resolve their executor from context: inside
// WithinTx they run on the transaction, otherwise on the pool.
type UserRepository interface {
	// WithinTx runs fn inside a single transaction with at least snapshot
	// isolation. It commits when fn returns nil and rolls back otherwise;
	// no statement issued by fn is ever left partially applied.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByEmailForUpdate(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.User, error)
	UsernameTaken(ctx context.Context, username string, excludeID uuid.UUID) (bool, error)

	CreatePending(ctx context.Context, email, placeholderUsername, credentialHash string) (*model.User, error)
	CreateVerified(ctx context.Context, email, username, credentialHash string, role model.Role) (*model.User, error)
	SavePendingCode(ctx context.Context, id uuid.UUID, code string, expiry time.Time) error
	Activate(ctx context.Context, id uuid.UUID, username, credentialHash string, now time.Time) error
	CreditReferrer(ctx context.Context, id uuid.UUID, coins int64) error
	TouchLastActive(ctx context.Context, id uuid.UUID, now time.Time) error
	AdminExists(ctx context.Context) (bool, error)
}

type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs a new UserRepository backed by a sqlx.DB.
func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) q(ctx context.Context) querier {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return r.db
}

// WithinTx opens a REPEATABLE READ transaction, which on postgres gives the
// snapshot isolation the activation procedure relies on. Row locks taken by
// the ForUpdate reads serialize concurrent activations of the same record.
func (r *userRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(withTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *userRepository) getBy(ctx context.Context, where string, forUpdate bool, arg interface{}) (*model.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE %s", userColumns, where)
	if forUpdate {
		query += " FOR UPDATE"
	}
	var u model.User
	err := sqlx.GetContext(ctx, r.q(ctx), &u, query, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error selecting user: %w", err)
	}
	return &u, nil
}

// GetByEmail fetches a user row by its email. Returns (nil, nil) if not found.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getBy(ctx, "email = $1", false, email)
}

// GetByEmailForUpdate is GetByEmail with a row lock; only meaningful inside
// WithinTx.
func (r *userRepository) GetByEmailForUpdate(ctx context.Context, email string) (*model.User, error) {
	return r.getBy(ctx, "email = $1", true, email)
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getBy(ctx, "id = $1", false, id)
}

func (r *userRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getBy(ctx, "id = $1", true, id)
}

// UsernameTaken reports whether another verified identity already owns the
// username. Placeholder names on pending records do not count.
func (r *userRepository) UsernameTaken(ctx context.Context, username string, excludeID uuid.UUID) (bool, error) {
	var taken bool
	err := sqlx.GetContext(ctx, r.q(ctx), &taken,
		"SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 AND status = $2 AND id <> $3)",
		username, model.StatusVerified, excludeID,
	)
	if err != nil {
		return false, fmt.Errorf("error checking username: %w", err)
	}
	return taken, nil
}

// CreatePending inserts a fresh unverified identity record. The caller
// supplies the generated placeholder username and an unusable credential.
func (r *userRepository) CreatePending(ctx context.Context, email, placeholderUsername, credentialHash string) (*model.User, error) {
	return r.create(ctx, email, placeholderUsername, credentialHash, model.StatusPending, model.RoleStandard)
}

// CreateVerified inserts an already-verified record; used by the one-time
// admin bootstrap.
func (r *userRepository) CreateVerified(ctx context.Context, email, username, credentialHash string, role model.Role) (*model.User, error) {
	return r.create(ctx, email, username, credentialHash, model.StatusVerified, role)
}

func (r *userRepository) create(ctx context.Context, email, username, credentialHash string, status model.Status, role model.Role) (*model.User, error) {
	query := fmt.Sprintf(`
		INSERT INTO users (
			id, email, username, credential_hash, status, role,
			coin_balance, referral_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)
		RETURNING %s
	`, userColumns)

	var u model.User
	err := sqlx.GetContext(ctx, r.q(ctx), &u, query,
		uuid.New(), email, username, credentialHash, status, role, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("error inserting user: %w", err)
	}
	return &u, nil
}

// SavePendingCode attaches a fresh one-time code, overwriting any prior one.
// Code and expiry always move together.
func (r *userRepository) SavePendingCode(ctx context.Context, id uuid.UUID, code string, expiry time.Time) error {
	res, err := r.q(ctx).ExecContext(ctx,
		"UPDATE users SET pending_code = $1, pending_code_expiry = $2 WHERE id = $3",
		code, expiry, id,
	)
	if err != nil {
		return fmt.Errorf("error saving pending code: %w", err)
	}
	return oneRow(res, id)
}

// Activate flips the record to verified, finalizes username and credential,
// and clears the pending code, all in one statement.
func (r *userRepository) Activate(ctx context.Context, id uuid.UUID, username, credentialHash string, now time.Time) error {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE users SET
			username = $1,
			credential_hash = $2,
			status = $3,
			pending_code = NULL,
			pending_code_expiry = NULL,
			last_active_at = $4
		WHERE id = $5`,
		username, credentialHash, model.StatusVerified, now, id,
	)
	if err != nil {
		return fmt.Errorf("error activating user: %w", err)
	}
	return oneRow(res, id)
}

// CreditReferrer applies the referral reward: balance and counter change
// together in a single statement.
func (r *userRepository) CreditReferrer(ctx context.Context, id uuid.UUID, coins int64) error {
	res, err := r.q(ctx).ExecContext(ctx,
		"UPDATE users SET coin_balance = coin_balance + $1, referral_count = referral_count + 1 WHERE id = $2",
		coins, id,
	)
	if err != nil {
		return fmt.Errorf("error crediting referrer: %w", err)
	}
	return oneRow(res, id)
}

func (r *userRepository) TouchLastActive(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.q(ctx).ExecContext(ctx,
		"UPDATE users SET last_active_at = $1 WHERE id = $2", now, id,
	)
	if err != nil {
		return fmt.Errorf("error updating last activity: %w", err)
	}
	return nil
}

func (r *userRepository) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, r.q(ctx), &exists,
		"SELECT EXISTS(SELECT 1 FROM users WHERE role = $1)", model.RoleAdmin,
	)
	if err != nil {
		return false, fmt.Errorf("error checking for admin: %w", err)
	}
	return exists, nil
}

func oneRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("user %s: expected 1 row updated, got %d", id, n)
	}
	return nil
}
