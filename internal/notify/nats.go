package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject prefix events are published under.
const DefaultSubject = "worldvoice.events"

// NATSSink publishes each notification as a JSON Event on
// "<subject>.<event type>". Publishing is asynchronous; failures are logged.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	owned   bool
}

// Connect dials url and returns a sink that closes the connection on Close.
func Connect(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("worldvoice"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("Disconnected from NATS", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("Reconnected to NATS", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	s := NewNATSSink(conn, subject)
	s.owned = true
	return s, nil
}

// NewNATSSink publishes on an existing connection.
func NewNATSSink(conn *nats.Conn, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{conn: conn, subject: subject}
}

// Subject returns the subject for events of type t.
func (s *NATSSink) Subject(t EventType) string {
	return s.subject + "." + string(t)
}

// IndexReached implements engine.Listener.
func (s *NATSSink) IndexReached(voice string, index int) {
	s.publish(Event{Type: EventIndexReached, Voice: voice, Index: index})
}

// DoneSpeaking implements engine.Listener.
func (s *NATSSink) DoneSpeaking(voice string) {
	s.publish(Event{Type: EventDoneSpeaking, Voice: voice})
}

// DuckingChanged implements Sink.
func (s *NATSSink) DuckingChanged(active bool, level float64) {
	s.publish(Event{Type: EventDucking, Active: active, Level: level})
}

func (s *NATSSink) publish(e Event) {
	e.ID = uuid.NewString()
	e.Time = time.Now().UTC()

	data, err := json.Marshal(e)
	if err != nil {
		log.Error("Could not encode event", "type", e.Type, "err", err)
		return
	}
	if err := s.conn.Publish(s.Subject(e.Type), data); err != nil {
		log.Warn("Could not publish event", "type", e.Type, "voice", e.Voice, "err", err)
	}
}

// Close flushes pending events and closes the connection if the sink dialed it.
func (s *NATSSink) Close() error {
	if !s.owned {
		return s.conn.Flush()
	}
	return s.conn.Drain()
}
