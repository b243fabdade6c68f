// Package notify delivers the coordination layer's notifications (index
// reached, done speaking, ducking changes) to the structured log and to NATS.
package notify

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/worldvoice/worldvoice/internal/engine"
)

// EventType names a notification.
type EventType string

const (
	EventIndexReached EventType = "index_reached"
	EventDoneSpeaking EventType = "done_speaking"
	EventDucking      EventType = "ducking"
)

// Event is the published form of a notification.
type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	Voice  string    `json:"voice,omitempty"`
	Index  int       `json:"index,omitempty"`
	Active bool      `json:"active,omitempty"`
	Level  float64   `json:"level,omitempty"`
	Time   time.Time `json:"time"`
}

// Sink is a Listener that also observes ducking changes.
type Sink interface {
	engine.Listener
	DuckingChanged(active bool, level float64)
}

// LogSink writes every notification to the package logger.
type LogSink struct{}

// IndexReached implements engine.Listener.
func (LogSink) IndexReached(voice string, index int) {
	log.Debug("Index reached", "voice", voice, "index", index)
}

// DoneSpeaking implements engine.Listener.
func (LogSink) DoneSpeaking(voice string) {
	log.Debug("Done speaking", "voice", voice)
}

// DuckingChanged implements Sink.
func (LogSink) DuckingChanged(active bool, level float64) {
	log.Debug("Ducking changed", "active", active, "level", level)
}

// Multi fans every notification out to its sinks in order.
type Multi []Sink

// IndexReached implements engine.Listener.
func (m Multi) IndexReached(voice string, index int) {
	for _, s := range m {
		s.IndexReached(voice, index)
	}
}

// DoneSpeaking implements engine.Listener.
func (m Multi) DoneSpeaking(voice string) {
	for _, s := range m {
		s.DoneSpeaking(voice)
	}
}

// DuckingChanged implements Sink.
func (m Multi) DuckingChanged(active bool, level float64) {
	for _, s := range m {
		s.DuckingChanged(active, level)
	}
}
