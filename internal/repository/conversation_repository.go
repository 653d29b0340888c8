package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// ConversationRepository persists conversation windows and the daily counter in Postgres.
// It satisfies quota.Store.
type ConversationRepository struct {
	DB *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{DB: db}
}

func (r *ConversationRepository) GetWindow(ctx context.Context, phone string) (*model.ConversationWindow, error) {
	query := `SELECT phone, conversation_started_at, last_message_at, status, message_count FROM conversation_windows WHERE phone = $1`
	var w model.ConversationWindow
	err := r.DB.QueryRowContext(ctx, query, phone).Scan(&w.Phone, &w.ConversationStartedAt, &w.LastMessageAt, &w.Status, &w.MessageCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation window: %w", err)
	}
	return &w, nil
}

// TouchWindow bumps an active window. It reports false when the window is missing, closed or expired.
func (r *ConversationRepository) TouchWindow(ctx context.Context, phone string, now time.Time) (bool, error) {
	query := `UPDATE conversation_windows SET message_count = message_count + 1, last_message_at = $2 WHERE phone = $1 AND status = 'open' AND last_message_at > $3`
	res, err := r.DB.ExecContext(ctx, query, phone, now, now.Add(-model.ConversationWindowTTL))
	if err != nil {
		return false, fmt.Errorf("touch conversation window: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// OpenWindow starts a fresh window for phone, replacing any expired or closed one.
func (r *ConversationRepository) OpenWindow(ctx context.Context, phone string, now time.Time) error {
	query := `
		INSERT INTO conversation_windows (phone, conversation_started_at, last_message_at, status, message_count)
		VALUES ($1, $2, $2, 'open', 1)
		ON CONFLICT (phone) DO UPDATE
		SET conversation_started_at = EXCLUDED.conversation_started_at,
		    last_message_at = EXCLUDED.last_message_at,
		    status = 'open',
		    message_count = 1
	`
	if _, err := r.DB.ExecContext(ctx, query, phone, now); err != nil {
		return fmt.Errorf("open conversation window: %w", err)
	}
	return nil
}

func (r *ConversationRepository) CloseWindow(ctx context.Context, phone string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE conversation_windows SET status = 'closed' WHERE phone = $1 AND status = 'open'`, phone)
	if err != nil {
		return false, fmt.Errorf("close conversation window: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IncrementDailyIfBelow adds one to day's counter only while it is below limit. The comparison
// runs inside the upsert, so concurrent callers at limit-1 cannot both succeed.
func (r *ConversationRepository) IncrementDailyIfBelow(ctx context.Context, day string, limit int) (int, bool, error) {
	if limit <= 0 {
		count, err := r.GetDailyCount(ctx, day)
		return count, false, err
	}
	query := `
		INSERT INTO daily_conversation_counts (day, count)
		VALUES ($1::date, 1)
		ON CONFLICT (day) DO UPDATE
		SET count = daily_conversation_counts.count + 1
		WHERE daily_conversation_counts.count < $2
		RETURNING count
	`
	var count int
	err := r.DB.QueryRowContext(ctx, query, day, limit).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		current, gerr := r.GetDailyCount(ctx, day)
		return current, false, gerr
	}
	if err != nil {
		return 0, false, fmt.Errorf("increment daily counter: %w", err)
	}
	return count, true, nil
}

func (r *ConversationRepository) GetDailyCount(ctx context.Context, day string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `SELECT count FROM daily_conversation_counts WHERE day = $1::date`, day).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get daily counter: %w", err)
	}
	return count, nil
}
