package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/broadcast-dispatcher/internal/errors"
	"github.com/unclebandit/broadcast-dispatcher/internal/media"
	"github.com/unclebandit/broadcast-dispatcher/internal/model"
	"github.com/unclebandit/broadcast-dispatcher/internal/queue"
)

// Mock repositories

type MockCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	leased    map[string]bool
	now       time.Time

	commitErr error
}

func newMockCampaignRepo(cs ...*model.Campaign) *MockCampaignRepo {
	r := &MockCampaignRepo{
		campaigns: map[string]*model.Campaign{},
		leased:    map[string]bool{},
		now:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, c := range cs {
		cp := *c
		r.campaigns[c.ID] = &cp
	}
	return r
}

func (r *MockCampaignRepo) tick() time.Time {
	r.now = r.now.Add(time.Second)
	return r.now
}

func (r *MockCampaignRepo) get(id string) model.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.campaigns[id]
}

func (r *MockCampaignRepo) oldest(filter func(c *model.Campaign) bool) *model.Campaign {
	var eligible []*model.Campaign
	for _, c := range r.campaigns {
		if c.Status == model.StatusRunning && !r.leased[c.ID] && filter(c) {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].UpdatedAt.Before(eligible[j].UpdatedAt) })
	return eligible[0]
}

func (r *MockCampaignRepo) lease(c *model.Campaign) *model.Campaign {
	r.leased[c.ID] = true
	c.UpdatedAt = r.tick()
	cp := *c
	return &cp
}

func (r *MockCampaignRepo) SelectAndReserve(ctx context.Context, leaseTTL time.Duration) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.oldest(func(*model.Campaign) bool { return true })
	if c == nil {
		return nil, nil
	}
	return r.lease(c), nil
}

func (r *MockCampaignRepo) ReserveStalled(ctx context.Context, idleFor, leaseTTL time.Duration) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.oldest(func(c *model.Campaign) bool { return c.UpdatedAt.Before(r.now.Add(-idleFor)) })
	if c == nil {
		return nil, nil
	}
	return r.lease(c), nil
}

func (r *MockCampaignRepo) ReserveByID(ctx context.Context, id string, offset int, leaseTTL time.Duration) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	if c.Status != model.StatusRunning || r.leased[id] || c.SentCount != offset {
		return nil, appErrors.ErrStaleContinuation
	}
	return r.lease(c), nil
}

func (r *MockCampaignRepo) CommitChunk(ctx context.Context, c *model.Campaign, prevSentCount int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commitErr != nil {
		return false, r.commitErr
	}
	stored := r.campaigns[c.ID]
	if stored.SentCount != prevSentCount {
		return false, nil
	}
	status := stored.Status
	if status == model.StatusRunning {
		status = c.Status
	}
	cp := *c
	cp.Status = status
	cp.UpdatedAt = r.tick()
	r.campaigns[c.ID] = &cp
	r.leased[c.ID] = false
	return true, nil
}

func (r *MockCampaignRepo) MarkCompleted(ctx context.Context, id string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.campaigns[id]
	if c.Status == model.StatusRunning {
		c.Status = model.StatusCompleted
		c.Progress = progress
	}
	r.leased[id] = false
	return nil
}

func (r *MockCampaignRepo) MarkFailed(ctx context.Context, id, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.campaigns[id]
	if c.Status == model.StatusRunning {
		c.Status = model.StatusFailed
		c.ErrorMessage = &message
	}
	r.leased[id] = false
	return nil
}

func (r *MockCampaignRepo) Release(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leased[id] = false
	return nil
}

type MockDestinationRepo struct {
	destinations map[string]*model.Destination
}

func (m *MockDestinationRepo) GetByID(ctx context.Context, id string) (*model.Destination, error) {
	d, ok := m.destinations[id]
	if !ok {
		return nil, nil
	}
	return d, nil
}

type MockCredentialRepo struct {
	byID   map[string]*model.Integration
	byUser map[string]*model.Integration
}

func (m *MockCredentialRepo) GetConnected(ctx context.Context, id string) (*model.Integration, error) {
	return m.byID[id], nil
}

func (m *MockCredentialRepo) LatestConnected(ctx context.Context, userID string) (*model.Integration, error) {
	return m.byUser[userID], nil
}

type MockUsageRepo struct {
	mu    sync.Mutex
	added map[string]int
	err   error
}

func (m *MockUsageRepo) IncrementLifetime(ctx context.Context, userID string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.added == nil {
		m.added = map[string]int{}
	}
	m.added[userID] += n
	return nil
}

// listResolver serves a fixed URL list by window.
type listResolver struct {
	urls []string
	err  error
}

func (l *listResolver) Resolve(ctx context.Context, c *model.Campaign, start, end int) ([]media.Item, error) {
	if l.err != nil {
		return nil, l.err
	}
	var items []media.Item
	for i := start; i < end && i < len(l.urls); i++ {
		items = append(items, media.Item{Offset: i, URL: l.urls[i], Kind: media.Classify(l.urls[i])})
	}
	return items, nil
}

type sentItem struct {
	Token   string
	ChatID  string
	Offset  int
	Caption string
}

type recordingSender struct {
	mu     sync.Mutex
	sent   []sentItem
	fail   map[int]error
	panics map[int]bool
}

func (s *recordingSender) Send(ctx context.Context, token, chatID string, item media.Item, caption string) error {
	s.mu.Lock()
	s.sent = append(s.sent, sentItem{Token: token, ChatID: chatID, Offset: item.Offset, Caption: caption})
	s.mu.Unlock()
	if s.panics[item.Offset] {
		panic("boom")
	}
	return s.fail[item.Offset]
}

func (s *recordingSender) captions() map[int]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int]string{}
	for _, it := range s.sent {
		if it.Caption != "" {
			out[it.Offset] = it.Caption
		}
	}
	return out
}

type published struct {
	Topic string
	Body  []byte
}

type fakeQueue struct {
	mu       sync.Mutex
	msgs     []published
	failures int
}

func (q *fakeQueue) Publish(ctx context.Context, topic string, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failures > 0 {
		q.failures--
		return errors.New("broker unavailable")
	}
	q.msgs = append(q.msgs, published{Topic: topic, Body: body})
	return nil
}

func (q *fakeQueue) Subscribe(topic string, handler queue.Handler) error {
	return nil
}

func (q *fakeQueue) take() []published {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.msgs
	q.msgs = nil
	return out
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func strPtr(s string) *string { return &s }
