package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/broadcast-dispatcher/internal/errors"
	"github.com/unclebandit/broadcast-dispatcher/internal/model"
)

func failures(offsets ...int) []Failure {
	out := make([]Failure, 0, len(offsets))
	for i, off := range offsets {
		out = append(out, Failure{Index: i, Offset: off, URL: "u", Message: "boom", At: time.Unix(int64(off), 0)})
	}
	return out
}

func TestApplyChunk(t *testing.T) {
	c := model.Campaign{ID: "c1", TotalCount: 120, SentCount: 50, SuccessCount: 49, ErrorCount: 1, Status: model.StatusRunning}

	next := ApplyChunk(c, ChunkResult{Successes: 48, Failures: failures(60, 61), Elapsed: 5 * time.Second})

	assert.Equal(t, 100, next.SentCount)
	assert.Equal(t, 97, next.SuccessCount)
	assert.Equal(t, 3, next.ErrorCount)
	assert.Equal(t, next.SentCount, next.SuccessCount+next.ErrorCount)
	assert.Equal(t, 83, next.Progress)
	assert.Equal(t, 100, next.AvgSendTimeMs)
	assert.Equal(t, model.StatusRunning, next.Status)
	require.Len(t, next.ErrorsLog, 2)
	assert.Equal(t, 60, next.ErrorsLog[0].Offset)

	// input untouched
	assert.Equal(t, 50, c.SentCount)
	assert.Empty(t, c.ErrorsLog)
}

func TestApplyChunkCompletes(t *testing.T) {
	c := model.Campaign{TotalCount: 120, SentCount: 100, SuccessCount: 100, Status: model.StatusRunning}
	next := ApplyChunk(c, ChunkResult{Successes: 20, Elapsed: time.Second})

	assert.Equal(t, 120, next.SentCount)
	assert.Equal(t, 100, next.Progress)
	assert.Equal(t, model.StatusCompleted, next.Status)
}

func TestApplyChunkWithNothingProcessedKeepsAverage(t *testing.T) {
	c := model.Campaign{TotalCount: 10, AvgSendTimeMs: 250, Status: model.StatusRunning}
	next := ApplyChunk(c, ChunkResult{})
	assert.Equal(t, 250, next.AvgSendTimeMs)
	assert.Equal(t, 0, next.Progress)
}

func TestProgressRounds(t *testing.T) {
	assert.Equal(t, 33, progress(1, 3))
	assert.Equal(t, 67, progress(2, 3))
	assert.Equal(t, 100, progress(0, 0))
}

func TestErrorLogBoundedAcrossChunks(t *testing.T) {
	c := model.Campaign{TotalCount: 75, Status: model.StatusRunning}
	var offs []int
	for i := 0; i < 50; i++ {
		offs = append(offs, i)
	}
	c = ApplyChunk(c, ChunkResult{Failures: failures(offs...)})
	offs = offs[:0]
	for i := 50; i < 75; i++ {
		offs = append(offs, i)
	}
	c = ApplyChunk(c, ChunkResult{Failures: failures(offs...)})

	require.Len(t, c.ErrorsLog, model.MaxErrorLogEntries)
	assert.Equal(t, 25, c.ErrorsLog[0].Offset)
	assert.Equal(t, 74, c.ErrorsLog[49].Offset)
	assert.Equal(t, 75, c.ErrorCount)
	assert.Equal(t, model.StatusCompleted, c.Status)
}

func TestLedgerCommitSwallowsUsageFailure(t *testing.T) {
	c := &model.Campaign{ID: "c1", UserID: "u1", TotalCount: 10, Status: model.StatusRunning}
	repo := newMockCampaignRepo(c)
	usage := &MockUsageRepo{err: errors.New("db down")}
	l := &Ledger{Campaigns: repo, Usage: usage, Log: zerolog.Nop()}

	next, err := l.Commit(context.Background(), c, ChunkResult{Successes: 10})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, next.Status)
	assert.Equal(t, model.StatusCompleted, repo.get("c1").Status)
}

func TestLedgerCommitCountsUsageOnlyOnCompletion(t *testing.T) {
	c := &model.Campaign{ID: "c1", UserID: "u1", TotalCount: 20, Status: model.StatusRunning}
	repo := newMockCampaignRepo(c)
	usage := &MockUsageRepo{}
	l := &Ledger{Campaigns: repo, Usage: usage, Log: zerolog.Nop()}

	next, err := l.Commit(context.Background(), c, ChunkResult{Successes: 9, Failures: failures(3)})
	require.NoError(t, err)
	assert.Empty(t, usage.added)

	_, err = l.Commit(context.Background(), next, ChunkResult{Successes: 10})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"u1": 19}, usage.added)
}

func TestLedgerCommitNeverDoubleAdvances(t *testing.T) {
	c := &model.Campaign{ID: "c1", TotalCount: 100, Status: model.StatusRunning}
	repo := newMockCampaignRepo(c)
	l := &Ledger{Campaigns: repo, Log: zerolog.Nop()}

	_, err := l.Commit(context.Background(), c, ChunkResult{Successes: 50})
	require.NoError(t, err)

	// a second commit from the same snapshot is rejected
	_, err = l.Commit(context.Background(), c, ChunkResult{Successes: 50})
	assert.ErrorIs(t, err, appErrors.ErrLedgerConflict)
	assert.Equal(t, 50, repo.get("c1").SentCount)
}

func TestLedgerCommitKeepsExternalStatus(t *testing.T) {
	c := &model.Campaign{ID: "c1", TotalCount: 10, Status: model.StatusRunning}
	repo := newMockCampaignRepo(c)
	repo.campaigns["c1"].Status = model.StatusFailed
	l := &Ledger{Campaigns: repo, Log: zerolog.Nop()}

	_, err := l.Commit(context.Background(), c, ChunkResult{Successes: 5})
	require.NoError(t, err)
	stored := repo.get("c1")
	assert.Equal(t, model.StatusFailed, stored.Status)
	assert.Equal(t, 5, stored.SentCount)
}

func TestFinalWindowLandsOnTotal(t *testing.T) {
	s := &Scheduler{ChunkSize: 50}
	c := model.Campaign{TotalCount: 120, SentCount: 100, SuccessCount: 100, Status: model.StatusRunning}

	start, end := s.Window(&c)
	got := ApplyChunk(c, ChunkResult{Successes: end - start - 1, Failures: []Failure{{Offset: 119}}})

	assert.Equal(t, 120, got.SentCount)
	assert.Equal(t, got.SentCount, got.SuccessCount+got.ErrorCount)
	assert.Zero(t, got.Remaining())
	assert.Equal(t, model.StatusCompleted, got.Status)
}
