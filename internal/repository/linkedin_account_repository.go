// repository/linkedin_account_repository.go
package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/winningsales/contenthub/internal/models"
)

type LinkedinAccountRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*models.LinkedinAccount, bool, error)
	Upsert(ctx context.Context, la *models.LinkedinAccount) (int64, error)
	ListExpiring(ctx context.Context, initialTime, finalTime time.Time) ([]*models.LinkedinAccount, error)
	SetToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error
	Remove(ctx context.Context, userID int64) error
}

type linkedinAccountRepository struct {
	db *sql.DB
}

func NewLinkedinAccountRepository(db *sql.DB) LinkedinAccountRepository {
	return &linkedinAccountRepository{db: db}
}

func (r *linkedinAccountRepository) GetByUserID(ctx context.Context, userID int64) (*models.LinkedinAccount, bool, error) {
	query := `
		SELECT id, user_id, member_id, member_name, access_token, refresh_token,
		       token_expires_at, scopes, created_at, updated_at
		FROM linkedin_accounts
		WHERE user_id = $1
	`
	row := r.db.QueryRowContext(ctx, query, userID)

	var la models.LinkedinAccount
	err := row.Scan(&la.ID, &la.UserID, &la.MemberID, &la.MemberName, &la.AccessToken,
		&la.RefreshToken, &la.TokenExpiresAt, &la.Scopes, &la.CreatedAt, &la.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}

	return &la, true, nil
}

// Upsert keeps at most one LinkedIn account per user; reconnecting replaces
// the stored tokens.
func (r *linkedinAccountRepository) Upsert(ctx context.Context, la *models.LinkedinAccount) (int64, error) {
	query := `
		INSERT INTO linkedin_accounts (
			user_id,
			member_id,
			member_name,
			access_token,
			refresh_token,
			token_expires_at,
			scopes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET member_id = EXCLUDED.member_id,
		    member_name = EXCLUDED.member_name,
		    access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    token_expires_at = EXCLUDED.token_expires_at,
		    scopes = EXCLUDED.scopes,
		    updated_at = NOW()
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		la.UserID,
		la.MemberID,
		la.MemberName,
		la.AccessToken,
		la.RefreshToken,
		la.TokenExpiresAt,
		la.Scopes,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *linkedinAccountRepository) ListExpiring(ctx context.Context, initialTime, finalTime time.Time) ([]*models.LinkedinAccount, error) {
	query := `
		SELECT id, user_id, member_id, member_name, access_token, refresh_token,
		       token_expires_at, scopes, created_at, updated_at
		FROM linkedin_accounts
		WHERE token_expires_at BETWEEN $1 AND $2
	`

	rows, err := r.db.QueryContext(ctx, query, initialTime, finalTime)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.LinkedinAccount
	for rows.Next() {
		var la models.LinkedinAccount
		err := rows.Scan(&la.ID, &la.UserID, &la.MemberID, &la.MemberName, &la.AccessToken,
			&la.RefreshToken, &la.TokenExpiresAt, &la.Scopes, &la.CreatedAt, &la.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, &la)
	}
	return accounts, nil
}

func (r *linkedinAccountRepository) SetToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE linkedin_accounts
		SET access_token = $1,
			refresh_token = $2,
			token_expires_at = $3,
			updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, accessToken, refreshToken, expiresAt, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *linkedinAccountRepository) Remove(ctx context.Context, userID int64) error {
	query := `DELETE FROM linkedin_accounts WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
