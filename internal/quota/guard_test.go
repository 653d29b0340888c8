package quota_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/quota"
	"github.com/unclebandit/campaign-dispatch/internal/quota/quotatest"
)

var fixedNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func newGuard(store quota.Store, limit int) *quota.Guard {
	return quota.NewGuard(store, limit, nil, quota.WithClock(func() time.Time { return fixedNow }))
}

func TestCheckLimit_NewConversationConsumesSlot(t *testing.T) {
	store := quotatest.NewMemStore()
	g := newGuard(store, 10)

	d := g.CheckLimit(context.Background(), "254712000001")

	assert.True(t, d.Allowed)
	assert.False(t, d.HasActiveWindow)
	assert.Equal(t, quota.ReasonNewConversation, d.Reason)
	require.NotNil(t, d.CurrentCount)
	assert.Equal(t, 1, *d.CurrentCount)
	assert.Equal(t, 10, *d.Limit)

	w, ok := store.Window("254712000001")
	require.True(t, ok)
	assert.Equal(t, model.WindowOpen, w.Status)
	assert.Equal(t, 1, w.MessageCount)
	assert.Equal(t, fixedNow, w.ConversationStartedAt)
}

func TestCheckLimit_ActiveWindowIsFree(t *testing.T) {
	store := quotatest.NewMemStore()
	store.SetDaily("2026-03-14", 10)
	store.SetWindow(model.ConversationWindow{
		Phone:         "254712000001",
		LastMessageAt: fixedNow.Add(-23 * time.Hour),
		Status:        model.WindowOpen,
		MessageCount:  4,
	})
	g := newGuard(store, 10)

	d := g.CheckLimit(context.Background(), "254712000001")

	assert.True(t, d.Allowed, "an active window is allowed even at the limit")
	assert.True(t, d.HasActiveWindow)
	assert.Nil(t, d.CurrentCount)
	w, _ := store.Window("254712000001")
	assert.Equal(t, 5, w.MessageCount)
	assert.Equal(t, fixedNow, w.LastMessageAt)
	n, _ := store.GetDailyCount(context.Background(), "2026-03-14")
	assert.Equal(t, 10, n)
}

func TestCheckLimit_ExpiredOrClosedWindowOpensNewConversation(t *testing.T) {
	for name, w := range map[string]model.ConversationWindow{
		"expired": {Phone: "254712000001", LastMessageAt: fixedNow.Add(-25 * time.Hour), Status: model.WindowOpen, MessageCount: 3},
		"closed":  {Phone: "254712000001", LastMessageAt: fixedNow.Add(-time.Hour), Status: model.WindowClosed, MessageCount: 3},
	} {
		t.Run(name, func(t *testing.T) {
			store := quotatest.NewMemStore()
			store.SetWindow(w)
			d := newGuard(store, 10).CheckLimit(context.Background(), "254712000001")

			assert.True(t, d.Allowed)
			assert.False(t, d.HasActiveWindow)
			assert.Equal(t, 1, *d.CurrentCount)
			got, _ := store.Window("254712000001")
			assert.Equal(t, 1, got.MessageCount)
			assert.Equal(t, model.WindowOpen, got.Status)
		})
	}
}

func TestCheckLimit_LimitReached(t *testing.T) {
	store := quotatest.NewMemStore()
	store.SetDaily("2026-03-14", 10)
	g := newGuard(store, 10)

	d := g.CheckLimit(context.Background(), "254712000001")

	assert.False(t, d.Allowed)
	assert.Equal(t, quota.ReasonLimitReached, d.Reason)
	assert.Equal(t, 10, *d.CurrentCount)
	assert.Equal(t, 10, *d.Limit)
	_, created := store.Window("254712000001")
	assert.False(t, created, "no window without a slot")
}

func TestCheckLimit_ConcurrentCallersAtLastSlot(t *testing.T) {
	store := quotatest.NewMemStore()
	store.SetDaily("2026-03-14", 9)
	g := newGuard(store, 10)

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			phone := fmt.Sprintf("2547120000%02d", i)
			if g.CheckLimit(context.Background(), phone).Allowed {
				allowed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), allowed.Load())
	n, _ := store.GetDailyCount(context.Background(), "2026-03-14")
	assert.Equal(t, 10, n)
}

func TestCheckLimit_FailsClosedOnStoreError(t *testing.T) {
	store := quotatest.NewMemStore()
	store.Err = errors.New("connection refused")

	d := newGuard(store, 10).CheckLimit(context.Background(), "254712000001")

	assert.False(t, d.Allowed)
	assert.Equal(t, quota.ReasonStoreUnavailable, d.Reason)
	assert.Nil(t, d.CurrentCount)
	assert.Nil(t, d.Limit)
}

func TestCheckLimit_DayFollowsConfiguredTimezone(t *testing.T) {
	nairobi, err := time.LoadLocation("Africa/Nairobi")
	require.NoError(t, err)
	store := quotatest.NewMemStore()
	// 22:30 UTC is already the next day in Nairobi (UTC+3)
	late := time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)
	g := quota.NewGuard(store, 10, nil, quota.WithClock(func() time.Time { return late }), quota.WithLocation(nairobi))

	require.True(t, g.CheckLimit(context.Background(), "254712000001").Allowed)

	n, _ := store.GetDailyCount(context.Background(), "2026-03-15")
	assert.Equal(t, 1, n)
}

func TestRemainingSlotsAndClose(t *testing.T) {
	store := quotatest.NewMemStore()
	store.SetDaily("2026-03-14", 7)
	g := newGuard(store, 10)
	ctx := context.Background()

	count, err := g.GetCurrentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	remaining, err := g.GetRemainingSlots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	store.SetDaily("2026-03-14", 12)
	remaining, _ = g.GetRemainingSlots(ctx)
	assert.Zero(t, remaining)

	closed, err := g.CloseConversation(ctx, "254712000001")
	require.NoError(t, err)
	assert.False(t, closed)

	store.SetWindow(model.ConversationWindow{Phone: "254712000001", LastMessageAt: fixedNow, Status: model.WindowOpen, MessageCount: 1})
	closed, err = g.CloseConversation(ctx, "254712000001")
	require.NoError(t, err)
	assert.True(t, closed)
	w, _ := store.Window("254712000001")
	assert.Equal(t, model.WindowClosed, w.Status)
}
