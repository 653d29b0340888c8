// Package quotatest provides an in-memory quota.Store for tests.
package quotatest

import (
	"context"
	"sync"
	"time"

	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/quota"
)

// MemStore applies every operation under one mutex, which gives it the same
// single-record atomicity as the real stores.
type MemStore struct {
	mu      sync.Mutex
	windows map[string]model.ConversationWindow
	daily   map[string]int

	// Err, when set, is returned by every operation.
	Err error
}

func NewMemStore() *MemStore {
	return &MemStore{windows: map[string]model.ConversationWindow{}, daily: map[string]int{}}
}

func (s *MemStore) GetWindow(_ context.Context, phone string) (*model.ConversationWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	w, ok := s.windows[phone]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (s *MemStore) TouchWindow(_ context.Context, phone string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	w, ok := s.windows[phone]
	if !ok || !w.IsActive(now) {
		return false, nil
	}
	w.LastMessageAt = now
	w.MessageCount++
	s.windows[phone] = w
	return true, nil
}

func (s *MemStore) OpenWindow(_ context.Context, phone string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.windows[phone] = model.ConversationWindow{
		Phone:                 phone,
		ConversationStartedAt: now,
		LastMessageAt:         now,
		Status:                model.WindowOpen,
		MessageCount:          1,
	}
	return nil
}

func (s *MemStore) CloseWindow(_ context.Context, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	w, ok := s.windows[phone]
	if !ok || w.Status != model.WindowOpen {
		return false, nil
	}
	w.Status = model.WindowClosed
	s.windows[phone] = w
	return true, nil
}

func (s *MemStore) IncrementDailyIfBelow(_ context.Context, day string, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, false, s.Err
	}
	count := s.daily[day]
	if count >= limit {
		return count, false, nil
	}
	count++
	s.daily[day] = count
	return count, true, nil
}

func (s *MemStore) GetDailyCount(_ context.Context, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	return s.daily[day], nil
}

// SetDaily seeds the counter for day.
func (s *MemStore) SetDaily(day string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daily[day] = count
}

// SetWindow seeds a window record.
func (s *MemStore) SetWindow(w model.ConversationWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[w.Phone] = w
}

// Window returns a copy of phone's window, if any.
func (s *MemStore) Window(phone string) (model.ConversationWindow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[phone]
	return w, ok
}

var _ quota.Store = (*MemStore)(nil)
