package api

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Event is one Server-Sent Event.
type Event struct {
	Type string
	Data string
	ID   string
}

// EventReader parses a text/event-stream body.
type EventReader struct {
	r *bufio.Reader
}

// NewEventReader returns a reader over an event-stream body.
func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{r: bufio.NewReader(r)}
}

// Next returns the next dispatched event, or io.EOF at end of stream.
// Multiple data lines are joined with "\n"; comments and unknown fields are skipped.
// An event is dispatched only by its terminating blank line, so a trailing
// event cut off by the end of the stream is discarded.
func (er *EventReader) Next() (Event, error) {
	var (
		ev      Event
		data    []string
		hasData bool
	)

	for {
		line, err := er.r.ReadString('\n')
		if err != nil {
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				return finishEvent(ev, data), nil
			}
			ev = Event{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Type = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			ev.ID = value
		}
	}
}

func finishEvent(ev Event, data []string) Event {
	if ev.Type == "" {
		ev.Type = "message"
	}
	ev.Data = strings.Join(data, "\n")
	return ev
}

// EventStream is an open server-push connection.
type EventStream struct {
	body   io.ReadCloser
	reader *EventReader
}

// Next returns the next event from the stream.
func (s *EventStream) Next() (Event, error) {
	return s.reader.Next()
}

// Close closes the underlying connection.
func (s *EventStream) Close() error {
	return s.body.Close()
}

// LogStreamURL builds the log stream URL for a topic. The API key travels as
// a query parameter because browser event sources cannot set headers.
func (c *Client) LogStreamURL(topic string) string {
	q := url.Values{}
	q.Set("topic", topic)
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	return c.endpoint("/logs/stream", q)
}

// OpenLogStream connects to the log event stream of a topic. The stream
// stays open until ctx is cancelled or Close is called.
func (c *Client) OpenLogStream(ctx context.Context, topic string) (*EventStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.LogStreamURL(topic), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening log stream: %w", err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return &EventStream{
		body:   resp.Body,
		reader: NewEventReader(resp.Body),
	}, nil
}
