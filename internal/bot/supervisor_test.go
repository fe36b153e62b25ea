package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/claim-bot/internal/inbox"
)

// fakeSource errors on the first Stream call and serves queued messages
// on later calls, closing each stream after draining its batch.
type fakeSource struct {
	batches  [][]inbox.Message
	failures int
	opens    int
}

func (s *fakeSource) Stream(ctx context.Context) (<-chan inbox.Message, error) {
	s.opens++
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("broker unreachable")
	}
	var batch []inbox.Message
	if len(s.batches) > 0 {
		batch = s.batches[0]
		s.batches = s.batches[1:]
	}
	out := make(chan inbox.Message, len(batch))
	for _, m := range batch {
		out <- m
	}
	close(out)
	return out, nil
}

func TestSupervisorRecoversAndConsumes(t *testing.T) {
	f := newFixture()
	source := &fakeSource{
		failures: 1,
		batches: [][]inbox.Message{
			{msg("m1", "anyone", "ping")},
			{msg("m2", "anyone", "ping")},
		},
	}
	s := NewSupervisor(source, f.d, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for f.replier.replyCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out with %d replies", f.replier.replyCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() returned %v, want context.Canceled", err)
	}
	if source.opens < 3 {
		t.Errorf("stream opened %d times, want at least 3 (one failure, two batches)", source.opens)
	}
}

func TestSupervisorStopsOnCancel(t *testing.T) {
	f := newFixture()
	source := &fakeSource{failures: 1 << 30} // never succeeds
	s := NewSupervisor(source, f.d, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
