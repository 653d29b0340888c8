package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// RecipientRepositoryInterface holds the per-recipient state machine. Outcome writes are
// conditioned on status = 'SENDING' so only the claim holder can settle a recipient.
type RecipientRepositoryInterface interface {
	// FetchPending returns up to limit claimable recipients: PENDING, or SENDING with a claim older than lease.
	FetchPending(ctx context.Context, campaignID, limit int, lease time.Duration) ([]*model.Recipient, error)
	Claim(ctx context.Context, id int, lease time.Duration) (bool, error)
	Release(ctx context.Context, id int) error
	MarkSent(ctx context.Context, id int, messageID string) (bool, error)
	MarkFailed(ctx context.Context, id int, errorCode string) (bool, error)
	// RecordRetryableFailure bumps attempts and lets the store choose PENDING (attempts < maxAttempts) or FAILED.
	// A nil outcome means the claim was lost.
	RecordRetryableFailure(ctx context.Context, id int, errorCode string, maxAttempts int) (*model.RecipientOutcome, error)
}

type RecipientRepository struct {
	DB *sql.DB
}

func NewRecipientRepository(db *sql.DB) *RecipientRepository {
	return &RecipientRepository{DB: db}
}

func (r *RecipientRepository) FetchPending(ctx context.Context, campaignID, limit int, lease time.Duration) ([]*model.Recipient, error) {
	query := `
		SELECT id, campaign_id, phone, status, attempts, message_id, error_code, variables, created_at, updated_at
		FROM recipients
		WHERE campaign_id = $1 AND (status = 'PENDING' OR (status = 'SENDING' AND updated_at < NOW() - ($2 * INTERVAL '1 second')))
		ORDER BY id
		LIMIT $3
	`
	rows, err := r.DB.QueryContext(ctx, query, campaignID, lease.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("error querying pending recipients: %w", err)
	}
	defer rows.Close()

	list := []*model.Recipient{}
	for rows.Next() {
		var rec model.Recipient
		err = rows.Scan(
			&rec.ID,
			&rec.CampaignID,
			&rec.Phone,
			&rec.Status,
			&rec.Attempts,
			&rec.MessageID,
			&rec.ErrorCode,
			pq.Array(&rec.Variables),
			&rec.CreatedAt,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning recipient: %w", err)
		}
		list = append(list, &rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipients: %w", err)
	}
	return list, nil
}

func (r *RecipientRepository) Claim(ctx context.Context, id int, lease time.Duration) (bool, error) {
	query := `UPDATE recipients SET status = 'SENDING', updated_at = NOW() WHERE id = $1 AND (status = 'PENDING' OR (status = 'SENDING' AND updated_at < NOW() - ($2 * INTERVAL '1 second')))`
	return r.execOne(ctx, "claim", id, query, id, lease.Seconds())
}

func (r *RecipientRepository) Release(ctx context.Context, id int) error {
	query := `UPDATE recipients SET status = 'PENDING', updated_at = NOW() WHERE id = $1 AND status = 'SENDING'`
	_, err := r.execOne(ctx, "release", id, query, id)
	return err
}

func (r *RecipientRepository) MarkSent(ctx context.Context, id int, messageID string) (bool, error) {
	query := `UPDATE recipients SET status = 'SENT', message_id = $2, attempts = attempts + 1, error_code = NULL, updated_at = NOW() WHERE id = $1 AND status = 'SENDING'`
	return r.execOne(ctx, "mark sent", id, query, id, messageID)
}

func (r *RecipientRepository) MarkFailed(ctx context.Context, id int, errorCode string) (bool, error) {
	query := `UPDATE recipients SET status = 'FAILED', error_code = $2, attempts = attempts + 1, updated_at = NOW() WHERE id = $1 AND status = 'SENDING'`
	return r.execOne(ctx, "mark failed", id, query, id, errorCode)
}

func (r *RecipientRepository) RecordRetryableFailure(ctx context.Context, id int, errorCode string, maxAttempts int) (*model.RecipientOutcome, error) {
	query := `
		UPDATE recipients
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 < $3 THEN 'PENDING' ELSE 'FAILED' END,
		    error_code = $2,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'SENDING'
		RETURNING status, attempts
	`
	var out model.RecipientOutcome
	err := r.DB.QueryRowContext(ctx, query, id, errorCode, maxAttempts).Scan(&out.Status, &out.Attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("record retryable failure for recipient %d: %w", id, err)
	}
	return &out, nil
}

func (r *RecipientRepository) execOne(ctx context.Context, op string, id int, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s recipient %d: %w", op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
