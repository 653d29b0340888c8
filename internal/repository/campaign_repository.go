package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

type CampaignRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	ListIDsByStatus(ctx context.Context, status model.CampaignStatus) ([]int, error)

	// Transition moves the campaign from -> to only if it is currently in from.
	// It reports whether this call changed the row.
	Transition(ctx context.Context, id int, from, to model.CampaignStatus, reason *string) (bool, error)

	// CompleteIfDrained moves RUNNING -> COMPLETED only when no recipient is PENDING or SENDING.
	CompleteIfDrained(ctx context.Context, id int) (bool, error)

	IncrementSent(ctx context.Context, id int) error
	IncrementFailed(ctx context.Context, id int) error
	GetRecipientStats(ctx context.Context, id int) (map[string]int, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{DB: db}
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `
		SELECT id, name, template_name, language_code, status, total_recipients, sent_count, failed_count, paused_reason, created_at, updated_at
		FROM campaigns WHERE id = $1
	`
	var c model.Campaign
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.TemplateName, &c.LanguageCode, &c.Status,
		&c.TotalRecipients, &c.SentCount, &c.FailedCount, &c.PausedReason,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, fmt.Errorf("get campaign %d: %w", id, err)
	}
	return &c, nil
}

func (r *CampaignRepository) ListIDsByStatus(ctx context.Context, status model.CampaignStatus) ([]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id FROM campaigns WHERE status = $1 ORDER BY id`, status)
	if err != nil {
		return nil, fmt.Errorf("list campaigns by status: %w", err)
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *CampaignRepository) Transition(ctx context.Context, id int, from, to model.CampaignStatus, reason *string) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("campaign %d: illegal transition %s -> %s", id, from, to)
	}
	query := `UPDATE campaigns SET status = $1, paused_reason = $2, updated_at = NOW() WHERE id = $3 AND status = $4`
	res, err := r.DB.ExecContext(ctx, query, to, reason, id, from)
	if err != nil {
		return false, fmt.Errorf("transition campaign %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRepository) CompleteIfDrained(ctx context.Context, id int) (bool, error) {
	query := `
		UPDATE campaigns SET status = 'COMPLETED', paused_reason = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'RUNNING'
		  AND NOT EXISTS (SELECT 1 FROM recipients WHERE campaign_id = $1 AND status IN ('PENDING', 'SENDING'))
	`
	res, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("complete campaign %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRepository) IncrementSent(ctx context.Context, id int) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE campaigns SET sent_count = sent_count + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment sent for campaign %d: %w", id, err)
	}
	return nil
}

func (r *CampaignRepository) IncrementFailed(ctx context.Context, id int) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE campaigns SET failed_count = failed_count + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment failed for campaign %d: %w", id, err)
	}
	return nil
}

func (r *CampaignRepository) GetRecipientStats(ctx context.Context, id int) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM recipients WHERE campaign_id = $1 GROUP BY status`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"PENDING": 0, "SENDING": 0, "SENT": 0, "FAILED": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
