package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/broadcast-dispatcher/internal/model"
	"github.com/unclebandit/broadcast-dispatcher/internal/queue"
)

func TestPacingDelay(t *testing.T) {
	tests := []struct {
		in   float64
		want time.Duration
	}{
		{0, time.Millisecond},
		{-3, time.Millisecond},
		{0.0001, time.Millisecond},
		{0.5, 500 * time.Millisecond},
		{2, 2 * time.Second},
		{30, 2 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PacingDelay(tt.in), "delay_seconds=%v", tt.in)
	}
}

func newTestContinuation(q queue.Queue) (*Continuation, *[]time.Duration) {
	var slept []time.Duration
	c := &Continuation{
		Queue:    q,
		Attempts: 3,
		Backoff:  200 * time.Millisecond,
		Log:      zerolog.Nop(),
		sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
		now: func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) },
	}
	return c, &slept
}

func TestMaybeContinueSkipsCompleteCampaigns(t *testing.T) {
	q := &fakeQueue{}
	c, slept := newTestContinuation(q)

	for _, camp := range []*model.Campaign{
		{ID: "a", TotalCount: 10, SentCount: 10, Status: model.StatusCompleted},
		{ID: "b", TotalCount: 10, SentCount: 10, Status: model.StatusRunning},
		{ID: "c", TotalCount: 10, SentCount: 3, Status: model.StatusFailed},
	} {
		require.NoError(t, c.MaybeContinue(context.Background(), camp))
	}
	assert.Empty(t, q.take())
	assert.Empty(t, *slept)
}

func TestMaybeContinuePublishesAfterPacingDelay(t *testing.T) {
	q := &fakeQueue{}
	c, slept := newTestContinuation(q)

	err := c.MaybeContinue(context.Background(), &model.Campaign{ID: "c1", TotalCount: 120, SentCount: 50, DelaySeconds: 1.5, Status: model.StatusRunning})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, *slept)
	msgs := q.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, queue.ContinueTopic, msgs[0].Topic)
	assert.JSONEq(t, `{"campaign_id":"c1","offset":50,"issued_at":"2026-03-01T00:00:00Z"}`, string(msgs[0].Body))
}

func TestMaybeContinueRetriesPublish(t *testing.T) {
	q := &fakeQueue{failures: 2}
	c, slept := newTestContinuation(q)

	err := c.MaybeContinue(context.Background(), &model.Campaign{ID: "c1", TotalCount: 120, SentCount: 50, Status: model.StatusRunning})
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, *slept)
	assert.Len(t, q.take(), 1)
}

func TestMaybeContinueGivesUp(t *testing.T) {
	q := &fakeQueue{failures: 5}
	c, _ := newTestContinuation(q)

	err := c.MaybeContinue(context.Background(), &model.Campaign{ID: "c1", TotalCount: 120, SentCount: 50, Status: model.StatusRunning})
	assert.ErrorContains(t, err, "after 3 attempts")
	assert.Empty(t, q.take())
	assert.Equal(t, 2, q.failures)
}

type closedQueue struct{ publishes int }

func (q *closedQueue) Publish(ctx context.Context, topic string, body []byte) error {
	q.publishes++
	return queue.ErrClosed
}

func (q *closedQueue) Subscribe(topic string, handler queue.Handler) error { return nil }

func TestMaybeContinueStopsOnClosedQueue(t *testing.T) {
	q := &closedQueue{}
	c, slept := newTestContinuation(q)

	err := c.MaybeContinue(context.Background(), &model.Campaign{ID: "c1", TotalCount: 120, SentCount: 50, Status: model.StatusRunning})
	require.NoError(t, err)

	assert.Equal(t, 1, q.publishes)
	assert.Equal(t, []time.Duration{time.Millisecond}, *slept)
}
