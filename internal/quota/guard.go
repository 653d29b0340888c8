// Package quota enforces the provider's daily limit on newly opened conversations.
//
// The guard holds no state of its own. Every decision is taken by a single atomic
// operation against the Store, so any number of processes may call CheckLimit
// concurrently. On any storage error the guard fails closed.
package quota

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-dispatch/internal/logger"
	"github.com/unclebandit/campaign-dispatch/internal/model"
)

// Store is a durable key-value substrate with single-record conditional writes.
type Store interface {
	GetWindow(ctx context.Context, phone string) (*model.ConversationWindow, error)
	TouchWindow(ctx context.Context, phone string, now time.Time) (bool, error)
	OpenWindow(ctx context.Context, phone string, now time.Time) error
	CloseWindow(ctx context.Context, phone string) (bool, error)
	IncrementDailyIfBelow(ctx context.Context, day string, limit int) (count int, ok bool, err error)
	GetDailyCount(ctx context.Context, day string) (int, error)
}

const (
	ReasonActiveWindow     = "active conversation window"
	ReasonNewConversation  = "new conversation opened"
	ReasonLimitReached     = "daily conversation limit reached"
	ReasonStoreUnavailable = "quota store unavailable"
)

type Decision struct {
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason"`
	CurrentCount    *int   `json:"current_count,omitempty"`
	Limit           *int   `json:"limit,omitempty"`
	HasActiveWindow bool   `json:"has_active_window"`
}

type Guard struct {
	store Store
	limit int
	loc   *time.Location
	now   func() time.Time
	log   *logger.Logger
}

type Option func(*Guard)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithLocation sets the timezone whose calendar day keys the daily counter.
func WithLocation(loc *time.Location) Option {
	return func(g *Guard) {
		if loc != nil {
			g.loc = loc
		}
	}
}

func NewGuard(store Store, dailyLimit int, log *logger.Logger, opts ...Option) *Guard {
	if log == nil {
		log = logger.Nop()
	}
	g := &Guard{
		store: store,
		limit: dailyLimit,
		loc:   time.UTC,
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) Limit() int { return g.limit }

func (g *Guard) today() string {
	return g.now().In(g.loc).Format("2006-01-02")
}

// CheckLimit answers whether phone may be messaged now without exceeding the daily quota.
// An allowed decision has already been accounted for in the store.
func (g *Guard) CheckLimit(ctx context.Context, phone string) Decision {
	now := g.now()

	w, err := g.store.GetWindow(ctx, phone)
	if err != nil {
		return g.failClosed("get window", phone, err)
	}
	if w.IsActive(now) {
		touched, err := g.store.TouchWindow(ctx, phone, now)
		if err != nil {
			return g.failClosed("touch window", phone, err)
		}
		if touched {
			return Decision{Allowed: true, Reason: ReasonActiveWindow, HasActiveWindow: true}
		}
		// window expired or closed between read and write; fall through to a new conversation
	}

	day := g.today()
	count, ok, err := g.store.IncrementDailyIfBelow(ctx, day, g.limit)
	if err != nil {
		return g.failClosed("increment daily counter", phone, err)
	}
	limit := g.limit
	if !ok {
		g.log.Warn("daily conversation limit reached",
			zap.String("phone", phone), zap.String("day", day), zap.Int("count", count), zap.Int("limit", limit))
		return Decision{Allowed: false, Reason: ReasonLimitReached, CurrentCount: &count, Limit: &limit}
	}

	if err := g.store.OpenWindow(ctx, phone, now); err != nil {
		// the slot stays consumed; under-sending is the safe side
		return g.failClosed("open window", phone, err)
	}
	return Decision{Allowed: true, Reason: ReasonNewConversation, CurrentCount: &count, Limit: &limit}
}

func (g *Guard) failClosed(op, phone string, err error) Decision {
	g.log.Error("quota store error, blocking send", zap.String("op", op), zap.String("phone", phone), zap.Error(err))
	return Decision{Allowed: false, Reason: ReasonStoreUnavailable}
}

func (g *Guard) GetCurrentCount(ctx context.Context) (int, error) {
	return g.store.GetDailyCount(ctx, g.today())
}

func (g *Guard) GetRemainingSlots(ctx context.Context) (int, error) {
	count, err := g.GetCurrentCount(ctx)
	if err != nil {
		return 0, err
	}
	if remaining := g.limit - count; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

// CloseConversation ends phone's window early; the next send opens a new conversation.
func (g *Guard) CloseConversation(ctx context.Context, phone string) (bool, error) {
	closed, err := g.store.CloseWindow(ctx, phone)
	if err != nil {
		return false, err
	}
	g.log.Info("conversation window closed", zap.String("phone", phone), zap.Bool("changed", closed))
	return closed, nil
}
