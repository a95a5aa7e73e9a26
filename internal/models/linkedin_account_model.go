package models

import (
	"time"
)

// LinkedinAccount stores the OAuth credentials of a connected LinkedIn
// profile. AccessToken and RefreshToken are AES-GCM encrypted at rest.
type LinkedinAccount struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	MemberID       string    `db:"member_id" json:"member_id"`
	MemberName     string    `db:"member_name" json:"member_name"`
	AccessToken    string    `db:"access_token" json:"-"`
	RefreshToken   string    `db:"refresh_token" json:"-"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`
	Scopes         string    `db:"scopes" json:"scopes"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
