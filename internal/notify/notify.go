// Package notify implements the notification sink (§6): a single outbound
// webhook URL, delivered fire-and-forget. Failures are swallowed with a
// log entry, never surfaced to task state.
package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("component", "notify")

// Event is the payload posted to the notification sink.
type Event struct {
	EventType string         `json:"event_type"`
	TaskID    string         `json:"task_id"`
	TaskName  string         `json:"task_name"`
	Submitter string         `json:"submitter"`
	Details   map[string]any `json:"details,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink posts Events to one configured URL.
type Sink struct {
	http *resty.Client
	url  string
}

func New(url string) *Sink {
	return &Sink{
		http: resty.New().SetTimeout(10 * time.Second),
		url:  url,
	}
}

// Emit sends evt in its own goroutine and never blocks the caller; errors
// are logged, not returned, since notification delivery is best-effort.
func (s *Sink) Emit(evt Event) {
	if s == nil || s.url == "" {
		return
	}
	evt.Timestamp = time.Now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := s.http.R().SetContext(ctx).SetBody(evt).Post(s.url)
		if err != nil {
			logger.WithError(err).WithField("event_type", evt.EventType).Warn("notification delivery failed")
		}
	}()
}
