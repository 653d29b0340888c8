package service_test

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	appErrors "github.com/unclebandit/campaign-dispatch/internal/errors"
	"github.com/unclebandit/campaign-dispatch/internal/model"
	"github.com/unclebandit/campaign-dispatch/internal/provider"
	"github.com/unclebandit/campaign-dispatch/internal/repository"
)

// MemRepo keeps campaigns and recipients in memory with the same conditional-write
// semantics as the SQL repositories.
type MemRepo struct {
	mu         sync.Mutex
	campaigns  map[int]*model.Campaign
	recipients map[int]*model.Recipient
	claimedAt  map[int]time.Time
	nextID     int

	sentIncrements   int
	failedIncrements int
	transitions      []string
}

func NewMemRepo() *MemRepo {
	return &MemRepo{
		campaigns:  map[int]*model.Campaign{},
		recipients: map[int]*model.Recipient{},
		claimedAt:  map[int]time.Time{},
	}
}

func (m *MemRepo) AddCampaign(id int, status model.CampaignStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[id] = &model.Campaign{ID: id, Name: "promo", TemplateName: "promo_v1", LanguageCode: "en_US", Status: status}
}

// AddRecipients adds n PENDING recipients with distinct valid phones and returns their ids.
func (m *MemRepo) AddRecipients(campaignID, n int) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, n)
	for i := 0; i < n; i++ {
		m.nextID++
		m.recipients[m.nextID] = &model.Recipient{
			ID:         m.nextID,
			CampaignID: campaignID,
			Phone:      phoneFor(m.nextID),
			Status:     model.RecipientPending,
			Variables:  []string{"Alice"},
		}
		ids = append(ids, m.nextID)
	}
	m.campaigns[campaignID].TotalRecipients += n
	return ids
}

// phoneFor returns a distinct, possible Kenyan mobile number.
func phoneFor(i int) string {
	return "254" + strconv.Itoa(712000000+i)
}

func (m *MemRepo) Campaign(id int) model.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.campaigns[id]
}

func (m *MemRepo) Recipient(id int) model.Recipient {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.recipients[id]
}

func (m *MemRepo) SetRecipient(r model.Recipient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipients[r.ID] = &r
}

func (m *MemRepo) CountByStatus(campaignID int, status model.RecipientStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.recipients {
		if r.CampaignID == campaignID && r.Status == status {
			n++
		}
	}
	return n
}

// campaign side

func (m *MemRepo) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *MemRepo) ListIDsByStatus(_ context.Context, status model.CampaignStatus) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []int{}
	for id, c := range m.campaigns {
		if c.Status == status {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (m *MemRepo) Transition(_ context.Context, id int, from, to model.CampaignStatus, reason *string) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, errors.New("illegal transition")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.PausedReason = reason
	m.transitions = append(m.transitions, string(from)+"->"+string(to))
	return true, nil
}

func (m *MemRepo) CompleteIfDrained(_ context.Context, id int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.Status != model.CampaignRunning {
		return false, nil
	}
	for _, r := range m.recipients {
		if r.CampaignID == id && (r.Status == model.RecipientPending || r.Status == model.RecipientSending) {
			return false, nil
		}
	}
	c.Status = model.CampaignCompleted
	c.PausedReason = nil
	m.transitions = append(m.transitions, "RUNNING->COMPLETED")
	return true, nil
}

func (m *MemRepo) IncrementSent(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[id].SentCount++
	m.sentIncrements++
	return nil
}

func (m *MemRepo) IncrementFailed(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[id].FailedCount++
	m.failedIncrements++
	return nil
}

func (m *MemRepo) GetRecipientStats(_ context.Context, id int) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := map[string]int{"PENDING": 0, "SENDING": 0, "SENT": 0, "FAILED": 0}
	for _, r := range m.recipients {
		if r.CampaignID == id {
			stats[string(r.Status)]++
		}
	}
	return stats, nil
}

// recipient side

func (m *MemRepo) claimable(r *model.Recipient, lease time.Duration) bool {
	if r.Status == model.RecipientPending {
		return true
	}
	return r.Status == model.RecipientSending && time.Since(m.claimedAt[r.ID]) > lease
}

func (m *MemRepo) FetchPending(_ context.Context, campaignID, limit int, lease time.Duration) ([]*model.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*model.Recipient
	for _, r := range m.recipients {
		if r.CampaignID == campaignID && m.claimable(r, lease) {
			cp := *r
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *MemRepo) Claim(_ context.Context, id int, lease time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recipients[id]
	if r == nil || !m.claimable(r, lease) {
		return false, nil
	}
	r.Status = model.RecipientSending
	m.claimedAt[id] = time.Now()
	return true, nil
}

func (m *MemRepo) Release(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.recipients[id]; r != nil && r.Status == model.RecipientSending {
		r.Status = model.RecipientPending
	}
	return nil
}

func (m *MemRepo) MarkSent(_ context.Context, id int, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recipients[id]
	if r == nil || r.Status != model.RecipientSending {
		return false, nil
	}
	r.Status = model.RecipientSent
	r.Attempts++
	r.MessageID = &messageID
	r.ErrorCode = nil
	return true, nil
}

func (m *MemRepo) MarkFailed(_ context.Context, id int, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recipients[id]
	if r == nil || r.Status != model.RecipientSending {
		return false, nil
	}
	r.Status = model.RecipientFailed
	r.Attempts++
	r.ErrorCode = &code
	return true, nil
}

func (m *MemRepo) RecordRetryableFailure(_ context.Context, id int, code string, maxAttempts int) (*model.RecipientOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.recipients[id]
	if r == nil || r.Status != model.RecipientSending {
		return nil, nil
	}
	r.Attempts++
	if r.Attempts < maxAttempts {
		r.Status = model.RecipientPending
	} else {
		r.Status = model.RecipientFailed
	}
	r.ErrorCode = &code
	return &model.RecipientOutcome{Status: r.Status, Attempts: r.Attempts}, nil
}

var (
	_ repository.CampaignRepositoryInterface  = (*MemRepo)(nil)
	_ repository.RecipientRepositoryInterface = (*MemRepo)(nil)
)

// FuncDispatcher answers each send with fn; calls are counted per phone.
type FuncDispatcher struct {
	mu    sync.Mutex
	calls map[string]int
	total int
	fn    func(phone string, call int) (*provider.SendResult, error)
}

func NewFuncDispatcher(fn func(phone string, call int) (*provider.SendResult, error)) *FuncDispatcher {
	return &FuncDispatcher{calls: map[string]int{}, fn: fn}
}

func (d *FuncDispatcher) SendTemplate(_ context.Context, phone, _, _ string, _ []provider.Component) (*provider.SendResult, error) {
	d.mu.Lock()
	d.calls[phone]++
	d.total++
	call := d.total
	d.mu.Unlock()
	return d.fn(phone, call)
}

func (d *FuncDispatcher) Calls(phone string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[phone]
}

func (d *FuncDispatcher) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

func alwaysOK(phone string, _ int) (*provider.SendResult, error) {
	return &provider.SendResult{MessageIDs: []string{"wamid." + phone}}, nil
}
