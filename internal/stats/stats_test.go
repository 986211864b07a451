package stats

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func result(gen uint32, at time.Time, agents ...string) MatchResult {
	r := MatchResult{Generation: gen, FinishedAt: at, Reason: "last player standing"}
	for i, a := range agents {
		r.Players = append(r.Players, PlayerResult{
			Agent: a, Shots: 3 + i, Hits: 1, Score: 7, Survival: 12.5, Winner: i == 0,
		})
	}
	if len(agents) > 0 {
		r.Winner = agents[0]
	}
	return r
}

func TestCSVKeepsLastMatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats", "last.csv")
	w := NewCSVWriter(path, 2)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := w.Record(ctx, result(uint32(i), base, "alpha", "bravo")); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	rows, err := w.Rows()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows for two matches, got %d", len(rows))
	}
	if rows[0][1] != "1" || rows[3][1] != "2" {
		t.Errorf("expected generations 1 and 2 to remain, got %q and %q", rows[0][1], rows[3][1])
	}
	if rows[0][0] != "2026-01-02T03:04:05Z" || rows[0][2] != "alpha" || rows[0][8] != "12.50" || rows[0][9] != "true" {
		t.Errorf("unexpected row %v", rows[0])
	}
	if rows[1][3] != "4" || rows[1][9] != "false" {
		t.Errorf("unexpected row %v", rows[1])
	}
}

func TestCSVMissingFileIsEmpty(t *testing.T) {
	w := NewCSVWriter(filepath.Join(t.TempDir(), "none.csv"), 10)
	rows, err := w.Rows()
	if err != nil || len(rows) != 0 {
		t.Fatalf("expected no rows, got %d (%v)", len(rows), err)
	}
}

type memSink struct {
	mu   sync.Mutex
	got  []MatchResult
	fail bool
	gate chan struct{}
}

func (s *memSink) Record(_ context.Context, r MatchResult) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, r)
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func TestRecorderDeliversToEverySink(t *testing.T) {
	a, b := &memSink{}, &memSink{fail: true}
	r := NewRecorder(4, zaptest.NewLogger(t), a, b)
	r.Submit(result(1, time.Now(), "alpha"))
	r.Submit(result(2, time.Now(), "alpha"))
	r.Close()

	if len(a.got) != 2 || len(b.got) != 2 {
		t.Fatalf("expected both sinks to get 2 results, got %d and %d", len(a.got), len(b.got))
	}
	if a.got[0].Generation != 1 || a.got[1].Generation != 2 {
		t.Error("results delivered out of order")
	}
	r.Close() // second close is harmless
}

func TestRecorderDropsWhenFull(t *testing.T) {
	s := &memSink{gate: make(chan struct{})}
	r := NewRecorder(1, zap.NewNop(), s)

	// the writer holds one result at the gate and the queue holds one more
	r.Submit(result(1, time.Now()))
	deadline := time.Now().Add(time.Second)
	for len(r.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !r.Submit(result(2, time.Now())) {
		t.Fatal("queue rejected a result while it had room")
	}
	if r.Submit(result(3, time.Now())) {
		t.Fatal("expected a full queue to drop the result")
	}
	close(s.gate)
	r.Close()
	if len(s.got) != 2 {
		t.Errorf("expected 2 recorded results, got %d", len(s.got))
	}
}
