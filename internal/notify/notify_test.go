package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldvoice/worldvoice/internal/engine"
)

var (
	_ engine.Listener = LogSink{}
	_ Sink            = Multi{}
	_ Sink            = (*NATSSink)(nil)
)

func startServer(t *testing.T) *server.Server {
	t.Helper()
	opts := test.DefaultTestOptions
	opts.Port = -1
	s := test.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s
}

func next(t *testing.T, sub *nats.Subscription) (string, Event) {
	t.Helper()
	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var e Event
	require.NoError(t, json.Unmarshal(msg.Data, &e))
	return msg.Subject, e
}

func TestNATSSink_Publishes(t *testing.T) {
	srv := startServer(t)

	sink, err := Connect(srv.ClientURL(), "test.voice")
	require.NoError(t, err)
	defer sink.Close()

	sub, err := sink.conn.SubscribeSync("test.voice.>")
	require.NoError(t, err)
	require.NoError(t, sink.conn.Flush())

	sink.IndexReached("Alice", 7)
	sink.DoneSpeaking("Alice")
	sink.DuckingChanged(true, 0.3)

	subject, e := next(t, sub)
	assert.Equal(t, "test.voice.index_reached", subject)
	assert.Equal(t, EventIndexReached, e.Type)
	assert.Equal(t, "Alice", e.Voice)
	assert.Equal(t, 7, e.Index)
	_, err = uuid.Parse(e.ID)
	assert.NoError(t, err)
	assert.False(t, e.Time.IsZero())

	subject, e = next(t, sub)
	assert.Equal(t, "test.voice.done_speaking", subject)
	assert.Equal(t, "Alice", e.Voice)

	subject, e = next(t, sub)
	assert.Equal(t, "test.voice.ducking", subject)
	assert.True(t, e.Active)
	assert.Equal(t, 0.3, e.Level)
}

func TestNATSSink_SharedConnection(t *testing.T) {
	srv := startServer(t)
	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer conn.Close()

	sink := NewNATSSink(conn, "")
	assert.Equal(t, DefaultSubject+".done_speaking", sink.Subject(EventDoneSpeaking))

	sub, err := conn.SubscribeSync(sink.Subject(EventDoneSpeaking))
	require.NoError(t, err)
	sink.DoneSpeaking("Bob")
	require.NoError(t, sink.Close())
	assert.False(t, conn.IsClosed(), "a borrowed connection stays open")

	_, e := next(t, sub)
	assert.Equal(t, "Bob", e.Voice)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect("nats://127.0.0.1:1", "")
	assert.Error(t, err)
}

type recorder struct {
	calls []string
}

func (r *recorder) IndexReached(voice string, _ int) { r.calls = append(r.calls, "index:"+voice) }
func (r *recorder) DoneSpeaking(voice string) { r.calls = append(r.calls, "done:"+voice) }
func (r *recorder) DuckingChanged(active bool, _ float64) {
	if active {
		r.calls = append(r.calls, "duck:on")
	} else {
		r.calls = append(r.calls, "duck:off")
	}
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, LogSink{}, b}

	m.IndexReached("Carl", 1)
	m.DoneSpeaking("Carl")
	m.DuckingChanged(true, 0.5)
	m.DuckingChanged(false, 0.5)

	want := []string{"index:Carl", "done:Carl", "duck:on", "duck:off"}
	assert.Equal(t, want, a.calls)
	assert.Equal(t, want, b.calls)
}
