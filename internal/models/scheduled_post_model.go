package models

import (
	"database/sql"
	"time"
)

type ScheduledPost struct {
	ID             int64          `db:"id" json:"id"`
	UserID         int64          `db:"user_id" json:"user_id"`
	ContentText    string         `db:"content_text" json:"content_text"`
	ScheduledAt    time.Time      `db:"scheduled_at" json:"scheduled_at"`
	Status         string         `db:"status" json:"status"` // pending, publishing, published, failed
	RetryCount     int            `db:"retry_count" json:"retry_count"`
	MaxRetries     int            `db:"max_retries" json:"max_retries"`
	LinkedinPostID sql.NullString `db:"linkedin_post_id" json:"linkedin_post_id"`
	ErrorMessage   sql.NullString `db:"error_message" json:"error_message"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusPending    = "pending"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)
