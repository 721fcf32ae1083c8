package model

import (
	"database/sql"
	"time"
)

// Account status values stored in users.status.  Only Active accounts may
// pass the role-gated login; plain login does not look at status.
const (
	StatusActive  = "Active"
	StatusFrozen  = "Frozen"
	StatusBlocked = "Blocked"
)

// DefaultRole is assigned when a signup request omits the role field.
const DefaultRole = "Student"

// User mirrors a row of the `users` table.  Role is a free-form string
// ("Student", "NGO", "Family", "Police", ...); status is one of the
// constants above.  ResetCode and ResetCodeExpiresAt together form the
// password-reset challenge: both are NULL unless a forgot-password request
// is pending, and both are cleared when the code is consumed.
type User struct {
	ID                 uint64         // users.id
	Name               string         // users.name
	Email              string         // users.email (unique)
	PasswordHash       string         // users.password_hash (bcrypt)
	PinCode            string         // users.pin_code (optional, may be empty)
	Role               string         // users.role
	Status             string         // users.status
	ResetCode          sql.NullString // users.reset_code
	ResetCodeExpiresAt sql.NullTime   // users.reset_code_expires_at
	CreatedAt          time.Time      // users.created_at
	UpdatedAt          time.Time      // users.updated_at
}
