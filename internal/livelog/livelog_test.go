package livelog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/narvanalabs/pipeline-console/web/api"
)

// **Feature: pipeline-console, Property 9: Bounded Log Buffer**
// *For any* sequence of appended lines, the buffer SHALL hold at most its
// limit and SHALL equal the last min(n, limit) lines in arrival order.

func TestBufferKeepsNewestLinesInOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("buffer equals the tail of the input", prop.ForAll(
		func(n, limit int) bool {
			b := NewBuffer(limit)
			var all []string
			for i := 0; i < n; i++ {
				line := fmt.Sprintf("line %d", i)
				all = append(all, line)
				b.Append(line)
				if b.Len() > limit {
					return false
				}
			}

			want := all
			if len(want) > limit {
				want = want[len(want)-limit:]
			}
			got := b.Lines()
			if len(got) != len(want) {
				return false
			}
			for i := range want {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 1500),
		gen.IntRange(1, 600),
	))

	properties.TestingRun(t)
}

func TestBufferDefaults(t *testing.T) {
	b := NewBuffer(0)
	if b.Limit() != DefaultLimit || DefaultLimit != 500 {
		t.Fatalf("limit = %d", b.Limit())
	}
	for i := 0; i < 501; i++ {
		b.Append(fmt.Sprint(i))
	}
	lines := b.Lines()
	if len(lines) != 500 || lines[0] != "1" || lines[499] != "500" {
		t.Fatalf("lines = %d, first %q, last %q", len(lines), lines[0], lines[len(lines)-1])
	}
}

// *For any* reader position, Since SHALL return exactly the unseen lines
// while they are still buffered, and the whole buffer once some were evicted.

func TestBufferSinceFollowsSequence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("since returns unseen lines or the whole buffer", prop.ForAll(
		func(n, limit, seen int) bool {
			if seen > n {
				seen = n
			}
			b := NewBuffer(limit)
			for i := 0; i < n; i++ {
				b.Append(fmt.Sprintf("line %d", i))
			}

			lines, next, complete := b.Since(uint64(seen))
			if next != uint64(n) {
				return false
			}
			if n-seen > limit {
				return !complete && equalLines(lines, b.Lines()...)
			}
			if !complete || len(lines) != n-seen {
				return false
			}
			for i, l := range lines {
				if l != fmt.Sprintf("line %d", seen+i) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 1200),
		gen.IntRange(1, 600),
		gen.IntRange(0, 1200),
	))

	properties.TestingRun(t)
}

func TestBufferSinceFromStart(t *testing.T) {
	b := NewBuffer(3)
	if lines, next, complete := b.Since(0); len(lines) != 0 || next != 0 || !complete {
		t.Fatalf("empty buffer: %v %d %v", lines, next, complete)
	}
	for _, l := range []string{"a", "b", "c", "d"} {
		b.Append(l)
	}
	lines, next, complete := b.Since(0)
	if complete || next != 4 || !equalLines(lines, "b", "c", "d") {
		t.Fatalf("after eviction: %v %d %v", lines, next, complete)
	}
	if lines, _, complete := b.Since(next); len(lines) != 0 || !complete {
		t.Fatalf("caught up: %v %v", lines, complete)
	}
}

type fakeStream struct {
	topic  string
	events chan api.Event
	closed chan struct{}
	once   sync.Once
}

func newFakeStream(topic string) *fakeStream {
	return &fakeStream{topic: topic, events: make(chan api.Event, 16), closed: make(chan struct{})}
}

func (s *fakeStream) Next() (api.Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return api.Event{}, io.EOF
		}
		return ev, nil
	case <-s.closed:
		return api.Event{}, errors.New("use of closed stream")
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// fakeUpstream hands out one fakeStream per connection.
type fakeUpstream struct {
	opened  chan *fakeStream
	mu      sync.Mutex
	count   int
	failure error
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{opened: make(chan *fakeStream, 8)}
}

func (u *fakeUpstream) open(ctx context.Context, topic string) (Stream, error) {
	u.mu.Lock()
	u.count++
	err := u.failure
	u.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s := newFakeStream(topic)
	u.opened <- s
	return s, nil
}

func (u *fakeUpstream) opens() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}

func (u *fakeUpstream) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-u.opened:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no connection opened")
		return nil
	}
}

func message(data string) api.Event {
	return api.Event{Type: "message", Data: data}
}

// waitFor polls cond until it holds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func equalLines(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestTailAppendsMessageData(t *testing.T) {
	up := newFakeUpstream()
	var mu sync.Mutex
	var pushed []string
	tail := NewTail(up.open, "", WithLineHandler(func(line string) {
		mu.Lock()
		pushed = append(pushed, line)
		mu.Unlock()
	}))
	if tail.Topic() != DefaultTopic {
		t.Fatalf("topic = %q", tail.Topic())
	}

	tail.Start(context.Background())
	defer tail.Stop()

	s := up.next(t)
	s.events <- message("a")
	s.events <- api.Event{Type: "heartbeat", Data: "skip"}
	s.events <- message("b")

	waitFor(t, "two lines", func() bool { return len(tail.Lines()) == 2 })
	if !equalLines(tail.Lines(), "a", "b") {
		t.Fatalf("lines = %v", tail.Lines())
	}
	mu.Lock()
	defer mu.Unlock()
	if !equalLines(pushed, "a", "b") {
		t.Fatalf("pushed = %v", pushed)
	}
}

func TestTailTopicChangeRestartsAndDropsOldConnection(t *testing.T) {
	up := newFakeUpstream()
	tail := NewTail(up.open, "alpha")
	ctx := context.Background()

	tail.Start(ctx)
	defer tail.Stop()
	first := up.next(t)
	first.events <- message("from alpha")
	waitFor(t, "alpha line", func() bool { return len(tail.Lines()) == 1 })

	if tail.SetTopic(ctx, "alpha") {
		t.Fatal("same topic restarted the tail")
	}
	if !tail.SetTopic(ctx, "beta") {
		t.Fatal("new topic did not restart the tail")
	}
	second := up.next(t)
	if second.topic != "beta" || !first.isClosed() {
		t.Fatalf("second topic = %q, first closed = %v", second.topic, first.isClosed())
	}

	// Anything still queued on the superseded stream never arrives.
	first.events <- message("late alpha")
	second.events <- message("from beta")
	waitFor(t, "beta line", func() bool { return len(tail.Lines()) == 2 })
	time.Sleep(20 * time.Millisecond)
	if !equalLines(tail.Lines(), "from alpha", "from beta") {
		t.Fatalf("lines = %v", tail.Lines())
	}
	if up.opens() != 2 {
		t.Fatalf("opens = %d, want 2", up.opens())
	}
}

func TestTailStreamErrorDoesNotRetry(t *testing.T) {
	up := newFakeUpstream()
	states := make(chan State, 16)
	var lastErr error
	tail := NewTail(up.open, "events", WithStateHandler(func(s State, err error) {
		if err != nil {
			lastErr = err
		}
		states <- s
	}))

	tail.Start(context.Background())
	s := up.next(t)
	close(s.events)

	waitFor(t, "tail to stop", func() bool { return !tail.Running() })
	time.Sleep(20 * time.Millisecond)
	if up.opens() != 1 {
		t.Fatalf("opens = %d, want no retry", up.opens())
	}

	var seen []State
	for len(states) > 0 {
		seen = append(seen, <-states)
	}
	if len(seen) == 0 || seen[len(seen)-1] != StateError {
		t.Fatalf("states = %v, want to end in error", seen)
	}
	if !errors.Is(lastErr, io.ErrUnexpectedEOF) {
		t.Fatalf("error = %v", lastErr)
	}

	tail.Reconnect(context.Background())
	up.next(t)
	if !tail.Running() {
		t.Fatal("reconnect did not start a connection")
	}
	tail.Stop()
	if tail.Running() {
		t.Fatal("stop left the tail running")
	}
}

func TestTailOpenFailure(t *testing.T) {
	up := newFakeUpstream()
	up.failure = errors.New("401 Unauthorized")
	done := make(chan error, 1)
	tail := NewTail(up.open, "events", WithStateHandler(func(s State, err error) {
		if s == StateError {
			done <- err
		}
	}))

	tail.Start(context.Background())
	select {
	case err := <-done:
		if err == nil || err.Error() != "401 Unauthorized" {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("open failure not reported")
	}
	waitFor(t, "tail to stop", func() bool { return !tail.Running() })
}

func TestRegistryShutdownStopsTails(t *testing.T) {
	up := newFakeUpstream()
	reg := NewRegistry(nil)

	a := NewTail(up.open, "a")
	b := NewTail(up.open, "b")
	reg.Add(a)
	removeB := reg.Add(b)
	a.Start(context.Background())
	b.Start(context.Background())
	sa, sb := up.next(t), up.next(t)

	removeB()
	if reg.Count() != 1 || b.Running() {
		t.Fatalf("count = %d, b running = %v", reg.Count(), b.Running())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := reg.Check(ctx); err != nil {
		t.Fatalf("Check before shutdown: %v", err)
	}
	if err := reg.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if reg.Count() != 0 || a.Running() || !sa.isClosed() || !sb.isClosed() {
		t.Fatal("shutdown left a connection open")
	}
	if err := reg.Check(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Check after shutdown = %v", err)
	}
	if reg.Name() == "" {
		t.Fatal("registry has no component name")
	}
}
