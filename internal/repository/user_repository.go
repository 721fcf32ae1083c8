package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lumoflow/auth-server/internal/model"
	"github.com/lumoflow/auth-server/internal/utils"
)

const userColumns = "id,name,email,password_hash,pin_code,role,status,reset_code,reset_code_expires_at,created_at,updated_at"

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create hashes the password and inserts a new Active user, returning its ID.
// A duplicate email surfaces as ErrEmailExists whether it is caught by the
// pre-insert path in the handler or by the unique index losing a race.
func (r *UserRepo) Create(ctx context.Context, name, email, password, pinCode, role string, cost int) (uint64, error) {
	email = strings.TrimSpace(email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, pin_code, role, status) VALUES (?,?,?,?,?,?)",
		name, email, hash, pinCode, role, model.StatusActive)
	if err != nil {
		// MySQL 1062 = duplicate key on the unique email index.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by email. Email is matched as stored.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1",
		strings.TrimSpace(email)))
}

// GetByEmailAndRole fetches a user matching both email and role. Used by the
// role-gated login so that a wrong role is indistinguishable from a wrong
// email.
func (r *UserRepo) GetByEmailAndRole(ctx context.Context, email, role string) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? AND role=? LIMIT 1",
		strings.TrimSpace(email), role))
}

// SetResetChallenge stores a fresh reset code and expiry on the user row,
// superseding any pending challenge.
func (r *UserRepo) SetResetChallenge(ctx context.Context, userID uint64, code string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_code=?, reset_code_expires_at=? WHERE id=?",
		code, expiresAt, userID)
	return err
}

// ConsumeResetChallenge atomically verifies the challenge and rotates the
// password in one UPDATE: the row must match email and code and hold an
// expiry strictly in the future. On a match the password is replaced and
// both challenge columns are cleared, so the same code cannot be replayed.
// No matching row yields ErrResetCodeInvalid.
func (r *UserRepo) ConsumeResetChallenge(ctx context.Context, email, code, newPassword string, cost int, now time.Time) error {
	hash, err := utils.HashPassword(newPassword, cost)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, reset_code=NULL, reset_code_expires_at=NULL WHERE email=? AND reset_code=? AND reset_code_expires_at > ?",
		hash, strings.TrimSpace(email), code, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrResetCodeInvalid
	}
	return nil
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.PinCode,
		&u.Role, &u.Status, &u.ResetCode, &u.ResetCodeExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
