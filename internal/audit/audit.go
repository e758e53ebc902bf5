// Package audit records security-relevant events: logins, token rejections,
// access denials and account changes.
package audit

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Event describes a single security decision or account change.
type Event struct {
	Name    string
	Subject string
	Method  string
	Path    string
	Status  int
	Reason  string
	Failure bool
	Fields  logrus.Fields
}

// Sink receives security events. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// LogSink writes events to a logrus logger tagged with type=security.
type LogSink struct {
	log logrus.FieldLogger
}

func NewLogSink(log logrus.FieldLogger) *LogSink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Record(_ context.Context, event Event) {
	fields := logrus.Fields{
		"type":  "security",
		"event": event.Name,
	}
	for k, v := range event.Fields {
		fields[k] = v
	}
	if event.Subject != "" {
		fields["subject"] = event.Subject
	}
	if event.Method != "" {
		fields["method"] = event.Method
		fields["path"] = event.Path
	}
	if event.Status != 0 {
		fields["status"] = event.Status
	}
	if event.Reason != "" {
		fields["reason"] = event.Reason
	}

	entry := s.log.WithFields(fields)
	switch {
	case event.Status >= 500:
		entry.Error(event.Name)
	case event.Failure || event.Status >= 400:
		entry.Warn(event.Name)
	default:
		entry.Info(event.Name)
	}
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Record(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Named returns the recorded events with the given name.
func (s *MemorySink) Named(name string) []Event {
	var out []Event
	for _, ev := range s.Events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}
