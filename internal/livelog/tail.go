package livelog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/narvanalabs/pipeline-console/web/api"
)

// DefaultTopic is the topic tailed when none is chosen.
const DefaultTopic = "pipeline_events"

// Stream is an open event stream.
type Stream interface {
	Next() (api.Event, error)
	Close() error
}

// Opener connects to the event stream of a topic.
type Opener func(ctx context.Context, topic string) (Stream, error)

// ClientOpener opens log streams through an API client.
func ClientOpener(c *api.Client) Opener {
	return func(ctx context.Context, topic string) (Stream, error) {
		return c.OpenLogStream(ctx, topic)
	}
}

// State is the connection state of a Tail.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateStopped    State = "stopped"
	StateError      State = "error"
)

// Tail follows one topic over one upstream connection at a time.
//
// Start always closes the previous connection first. A stream error leaves
// the tail stopped; there is no automatic retry. Lines that arrive from a
// superseded connection are discarded.
type Tail struct {
	ID string

	mu      sync.Mutex
	open    Opener
	topic   string
	buf     *Buffer
	gen     uint64
	cancel  context.CancelFunc
	stream  Stream
	done    chan struct{}
	onLine  func(string)
	onState func(State, error)
	logger  *slog.Logger
}

// TailOption configures a Tail.
type TailOption func(*Tail)

// WithBuffer sets the line buffer.
func WithBuffer(b *Buffer) TailOption {
	return func(t *Tail) {
		t.buf = b
	}
}

// WithLineHandler registers a callback for every accepted line. It runs with
// the tail locked and must not block or call back into the tail.
func WithLineHandler(fn func(string)) TailOption {
	return func(t *Tail) {
		t.onLine = fn
	}
}

// WithStateHandler registers a callback for connection state changes. The
// same locking rules as WithLineHandler apply.
func WithStateHandler(fn func(State, error)) TailOption {
	return func(t *Tail) {
		t.onState = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TailOption {
	return func(t *Tail) {
		t.logger = logger
	}
}

// NewTail creates a stopped tail for topic. An empty topic uses DefaultTopic.
func NewTail(open Opener, topic string, opts ...TailOption) *Tail {
	if topic == "" {
		topic = DefaultTopic
	}
	t := &Tail{
		ID:     uuid.NewString(),
		open:   open,
		topic:  topic,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.buf == nil {
		t.buf = NewBuffer(DefaultLimit)
	}
	return t
}

// Topic returns the tailed topic.
func (t *Tail) Topic() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.topic
}

// Lines returns the buffered lines, oldest first.
func (t *Tail) Lines() []string {
	return t.buf.Lines()
}

// Since returns the lines buffered after sequence number seq; see Buffer.Since.
func (t *Tail) Since(seq uint64) ([]string, uint64, bool) {
	return t.buf.Since(seq)
}

// Running reports whether a connection is active.
func (t *Tail) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Start opens a new connection, closing the current one first. The
// connection lives until Stop, the next Start, or cancellation of ctx.
func (t *Tail) Start(ctx context.Context) {
	t.Stop()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	gen := t.gen
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	t.notifyState(StateConnecting, nil)

	go t.run(runCtx, gen, t.topic, done)
}

// Reconnect is Start under the name of the explicit user action.
func (t *Tail) Reconnect(ctx context.Context) {
	t.Start(ctx)
}

// SetTopic switches topics, restarting the connection when the topic changes.
// It reports whether a restart happened.
func (t *Tail) SetTopic(ctx context.Context, topic string) bool {
	if topic == "" {
		topic = DefaultTopic
	}
	t.mu.Lock()
	if topic == t.topic {
		t.mu.Unlock()
		return false
	}
	t.topic = topic
	t.mu.Unlock()

	t.Start(ctx)
	return true
}

// Stop closes the current connection and waits for its reader to exit.
func (t *Tail) Stop() {
	t.mu.Lock()
	cancel, stream, done := t.cancel, t.stream, t.done
	if cancel == nil {
		t.mu.Unlock()
		return
	}
	t.gen++
	t.cancel, t.stream, t.done = nil, nil, nil
	t.notifyState(StateStopped, nil)
	t.mu.Unlock()

	cancel()
	if stream != nil {
		stream.Close()
	}
	<-done
}

func (t *Tail) run(ctx context.Context, gen uint64, topic string, done chan struct{}) {
	defer close(done)

	stream, err := t.open(ctx, topic)
	if err != nil {
		t.fail(gen, err)
		return
	}
	defer stream.Close()

	t.mu.Lock()
	if t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.stream = stream
	t.notifyState(StateOpen, nil)
	t.mu.Unlock()

	t.logger.Debug("log stream opened", "tail_id", t.ID, "topic", topic)

	for {
		ev, err := stream.Next()
		if err != nil {
			if ctx.Err() == nil {
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				t.fail(gen, err)
			}
			return
		}
		// Named events are not log lines.
		if ev.Type != "message" {
			continue
		}
		if !t.accept(gen, ev.Data) {
			return
		}
	}
}

// accept appends a line of connection gen, reporting false once gen is stale.
func (t *Tail) accept(gen uint64, line string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		return false
	}
	t.buf.Append(line)
	if t.onLine != nil {
		t.onLine(line)
	}
	return true
}

func (t *Tail) fail(gen uint64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		return
	}
	t.logger.Warn("log stream failed", "tail_id", t.ID, "topic", t.topic, "error", err)
	// The connection is left down; reconnecting is an explicit action.
	t.cancel()
	t.cancel, t.stream, t.done = nil, nil, nil
	t.notifyState(StateError, err)
}

func (t *Tail) notifyState(s State, err error) {
	if t.onState != nil {
		t.onState(s, err)
	}
}
