package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/broadcast-dispatcher/internal/media"
	"github.com/unclebandit/broadcast-dispatcher/internal/metrics"
)

const (
	maxErrorMessageLen = 200
	maxErrorURLLen     = 100
)

// SendFunc delivers one item.
type SendFunc func(ctx context.Context, item media.Item) error

// Failure is one item that could not be delivered.
type Failure struct {
	Index   int
	Offset  int
	URL     string
	Message string
	At      time.Time
}

type ChunkResult struct {
	Successes int
	Failures  []Failure
	Elapsed   time.Duration
}

// Processed counts every item that reached an outcome.
func (r ChunkResult) Processed() int {
	return r.Successes + len(r.Failures)
}

// Executor runs a chunk in consecutive groups of Parallelism concurrent sends.
type Executor struct {
	Parallelism int
	GroupPause  time.Duration
	Metrics     *metrics.Metrics
	Log         zerolog.Logger

	// pause waits between groups; replaced in tests.
	pause func(d time.Duration)
}

// RunChunk never fails as a whole: every error or panic from send becomes a
// Failure for that item. Group k+1 starts only after every send of group k
// returned.
func (e *Executor) RunChunk(ctx context.Context, items []media.Item, send SendFunc) ChunkResult {
	started := time.Now()
	size := e.Parallelism
	if size <= 0 {
		size = 1
	}
	pause := e.pause
	if pause == nil {
		pause = time.Sleep
	}

	var res ChunkResult
	for lo := 0; lo < len(items); lo += size {
		hi := min(lo+size, len(items))
		group := items[lo:hi]

		outcomes := make([]error, len(group))
		var g errgroup.Group
		for i, item := range group {
			i, item := i, item
			g.Go(func() error {
				outcomes[i] = safeSend(ctx, item, send)
				return nil
			})
		}
		_ = g.Wait()

		for i, err := range outcomes {
			if err == nil {
				res.Successes++
				e.Metrics.Item("success")
				continue
			}
			item := group[i]
			e.Metrics.Item("failure")
			e.Log.Warn().Err(err).Int("offset", item.Offset).Str("kind", string(item.Kind)).Msg("item failed")
			res.Failures = append(res.Failures, Failure{
				Index:   lo + i,
				Offset:  item.Offset,
				URL:     truncate(item.URL, maxErrorURLLen),
				Message: truncate(err.Error(), maxErrorMessageLen),
				At:      time.Now().UTC(),
			})
		}

		if hi < len(items) && e.GroupPause > 0 {
			pause(e.GroupPause)
		}
	}

	res.Elapsed = time.Since(started)
	e.Metrics.Chunk(res.Elapsed.Seconds())
	return res
}

func safeSend(ctx context.Context, item media.Item, send SendFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return send(ctx, item)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
