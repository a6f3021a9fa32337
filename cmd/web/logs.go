package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/narvanalabs/pipeline-console/internal/livelog"
	"github.com/narvanalabs/pipeline-console/web/pages/logs"
)

const (
	wsWriteTimeout = 10 * time.Second
	// wsControlLimit bounds queued status and error messages per socket.
	wsControlLimit = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// logCommand is a message from the browser.
type logCommand struct {
	Action string `json:"action"`
	Topic  string `json:"topic,omitempty"`
}

// logMessage is a message to the browser.
type logMessage struct {
	Type    string   `json:"type"`
	Data    string   `json:"data,omitempty"`
	State   string   `json:"state,omitempty"`
	Message string   `json:"message,omitempty"`
	Lines   []string `json:"lines,omitempty"`
}

// outbox queues control messages for one socket and wakes its writer. Log
// lines are not queued: the writer reads them from the tail's buffer.
type outbox struct {
	mu      sync.Mutex
	queue   []logMessage
	resync  bool
	dropped int
	wake    chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

// signal never blocks; it runs inside tail callbacks.
func (o *outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// push queues m, dropping the oldest queued message when full.
func (o *outbox) push(m logMessage) {
	o.mu.Lock()
	if len(o.queue) >= wsControlLimit {
		o.queue = o.queue[1:]
		o.dropped++
	}
	o.queue = append(o.queue, m)
	o.mu.Unlock()
	o.signal()
}

// requestSnapshot makes the writer send the whole buffer next.
func (o *outbox) requestSnapshot() {
	o.mu.Lock()
	o.resync = true
	o.mu.Unlock()
	o.signal()
}

// drain takes the queued messages and any pending snapshot request.
func (o *outbox) drain() ([]logMessage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	q, resync := o.queue, o.resync
	o.queue, o.resync = nil, false
	return q, resync
}

func (o *outbox) droppedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped
}

func (s *server) logTopic(r *http.Request) string {
	if topic := strings.TrimSpace(r.URL.Query().Get("topic")); topic != "" {
		return topic
	}
	return s.cfg.LiveLog.DefaultTopic
}

func (s *server) handleLogs(w http.ResponseWriter, r *http.Request) {
	s.page(w, r, "Live Logs", logs.Page(logs.Data{
		Topic: s.logTopic(r),
		Limit: s.cfg.LiveLog.BufferLines,
	}))
}

// handleLogsWS bridges one upstream log stream to one browser socket. The
// tail lives exactly as long as the socket.
//
// The browser first receives a snapshot of the buffered lines, then one
// message per new line. When it falls behind far enough that lines were
// evicted before being sent, it gets a fresh snapshot instead.
func (s *server) handleLogsWS(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)

	if err := s.tails.Check(r.Context()); err != nil {
		http.Error(w, "Live logs unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("failed to upgrade log websocket", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	box := newOutbox()
	tail := livelog.NewTail(livelog.ClientOpener(s.clientFor(r)), s.logTopic(r),
		livelog.WithBuffer(livelog.NewBuffer(s.cfg.LiveLog.BufferLines)),
		livelog.WithLogger(log.Logger),
		livelog.WithLineHandler(func(string) {
			box.signal()
		}),
		livelog.WithStateHandler(func(state livelog.State, err error) {
			box.push(logMessage{Type: "status", State: string(state)})
			if err != nil {
				box.push(logMessage{Type: "error", Message: err.Error()})
			}
		}),
	)
	remove := s.tails.Add(tail)
	defer remove()

	var snapshots atomic.Int64
	go func() {
		write := func(m logMessage) bool {
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(m); err != nil {
				log.Debug("log websocket write failed", "tail_id", tail.ID, "error", err)
				cancel()
				conn.Close()
				return false
			}
			return true
		}

		var sent uint64
		first := true
		for {
			queued, resync := box.drain()
			for _, m := range queued {
				if !write(m) {
					return
				}
			}

			lines, next, complete := tail.Since(sent)
			if first || resync || !complete {
				if !write(logMessage{Type: "snapshot", Lines: lines}) {
					return
				}
				snapshots.Add(1)
			} else {
				for _, line := range lines {
					if !write(logMessage{Type: "line", Data: line}) {
						return
					}
				}
			}
			sent, first = next, false

			select {
			case <-ctx.Done():
				return
			case <-box.wake:
			}
		}
	}()

	log.Info("live log attached", "tail_id", tail.ID, "topic", tail.Topic())
	tail.Start(ctx)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var cmd logCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			box.push(logMessage{Type: "error", Message: "invalid command"})
			continue
		}
		s.applyLogCommand(ctx, tail, cmd, box)
	}

	log.Info("live log detached", "tail_id", tail.ID,
		"snapshots", snapshots.Load(), "dropped_control", box.droppedCount())
}

func (s *server) applyLogCommand(ctx context.Context, tail *livelog.Tail, cmd logCommand, box *outbox) {
	topic := strings.TrimSpace(cmd.Topic)
	switch cmd.Action {
	case "reconnect":
		if topic == "" || !tail.SetTopic(ctx, topic) {
			tail.Reconnect(ctx)
		}
		box.requestSnapshot()
	case "stop":
		tail.Stop()
	case "topic":
		tail.SetTopic(ctx, topic)
	default:
		box.push(logMessage{Type: "error", Message: "unknown action " + cmd.Action})
	}
}
