package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the registration state of an identity record. It replaces the
// placeholder-username convention the legacy system used to mark accounts
// that had not finished verification.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
)

type Role string

const (
	RoleStandard Role = "standard"
	RoleAdmin    Role = "admin"
)

// User is one identity record. Exactly one exists per email. PendingCode and
// PendingCodeExpiry are set and cleared together; a verified record never
// carries a pending code.
type User struct {
	ID                uuid.UUID  `db:"id"`
	Email             string     `db:"email"`
	Username          string     `db:"username"`
	CredentialHash    string     `db:"credential_hash"`
	Status            Status     `db:"status"`
	PendingCode       *string    `db:"pending_code"`
	PendingCodeExpiry *time.Time `db:"pending_code_expiry"`
	Role              Role       `db:"role"`
	CoinBalance       int64      `db:"coin_balance"`
	ReferralCount     int64      `db:"referral_count"`
	CreatedAt         time.Time  `db:"created_at"`
	LastActiveAt      *time.Time `db:"last_active_at"`
}

func (u *User) Verified() bool {
	return u.Status == StatusVerified
}

// CodeExpired reports whether the pending code is unusable at the given
// instant. A missing expiry counts as expired.
func (u *User) CodeExpired(now time.Time) bool {
	if u.PendingCodeExpiry == nil {
		return true
	}
	return !now.Before(*u.PendingCodeExpiry)
}

// PublicUser is the externally visible view of an identity, returned from
// verification, login and profile reads. Roles is an array for forward
// compatibility with multi-role accounts.
type PublicUser struct {
	ID            string   `json:"id"`
	Username      string   `json:"username"`
	Email         string   `json:"email"`
	Roles         []string `json:"roles"`
	Verified      bool     `json:"verified"`
	CoinBalance   int64    `json:"coinBalance"`
	ReferralCount int64    `json:"referralCount"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID.String(),
		Username:      u.Username,
		Email:         u.Email,
		Roles:         []string{string(u.Role)},
		Verified:      u.Verified(),
		CoinBalance:   u.CoinBalance,
		ReferralCount: u.ReferralCount,
	}
}
