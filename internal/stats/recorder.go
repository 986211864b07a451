package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Recorder hands match results to its sinks on a background goroutine so
// the game loop never waits on disk or database I/O.
type Recorder struct {
	sinks   []Sink
	queue   chan MatchResult
	timeout time.Duration
	log     *zap.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewRecorder(queueSize int, log *zap.Logger, sinks ...Sink) *Recorder {
	if queueSize <= 0 {
		queueSize = 16
	}
	r := &Recorder{
		sinks:   sinks,
		queue:   make(chan MatchResult, queueSize),
		timeout: 5 * time.Second,
		log:     log,
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Submit queues a result. A full queue drops it with a warning.
func (r *Recorder) Submit(res MatchResult) bool {
	select {
	case r.queue <- res:
		return true
	default:
		r.log.Warn("stats queue full, dropping match result",
			zap.Uint32("generation", res.Generation))
		return false
	}
}

// Close drains the queue and waits for the writer to finish.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() { close(r.queue) })
	r.wg.Wait()
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for res := range r.queue {
		for _, s := range r.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			if err := s.Record(ctx, res); err != nil {
				r.log.Error("record match result",
					zap.Uint32("generation", res.Generation),
					zap.String("sink", fmt.Sprintf("%T", s)),
					zap.Error(err))
			}
			cancel()
		}
		r.log.Info("match result recorded",
			zap.Uint32("generation", res.Generation),
			zap.Int("players", len(res.Players)),
			zap.String("winner", res.Winner))
	}
}
