// Package bridge translates begin and end signals raised on a playback
// engine's own goroutine into listener notifications, queue completion and
// release of the exclusion token.
//
// Native engines only hand back an opaque user-data word with each signal.
// Bind registers the speaking instance under a fresh cookie that the engine
// passes as that word, so every signal is attributed to the instance that
// produced it rather than to whichever instance spoke last.
package bridge

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/worldvoice/worldvoice/internal/engine"
)

// Event is a native playback lifecycle signal.
type Event uint32

const (
	// EventBegin is raised when audio starts and whenever an index mark is reached.
	EventBegin Event = iota + 1
	// EventEnd is raised once when the utterance has finished or was stopped.
	EventEnd
)

func (e Event) String() string {
	switch e {
	case EventBegin:
		return "begin"
	case EventEnd:
		return "end"
	default:
		return fmt.Sprintf("event(%d)", uint32(e))
	}
}

// Target is the speaking instance a binding reports on.
type Target interface {
	Name() string
	SetLastIndex(index int)
	SetPlaying(playing bool)
}

// Completer marks the current queue item finished. Engines that do not route
// through the playback worker bind a nil Completer.
type Completer interface {
	TaskDone()
}

type binding struct {
	target Target
	sink   Completer
	hold   engine.Ticket
	began  bool
	muted  bool
}

// Stats counts signals seen by a bridge.
type Stats struct {
	Bound    int64
	Begins   int64
	Indexes  int64
	Ends     int64
	Spurious int64
	Canceled int64
	Muted    int64
}

// Bridge is safe for concurrent use from any number of native goroutines.
type Bridge struct {
	name     string
	token    *engine.Token
	listener engine.Listener

	mu       sync.Mutex
	next     uintptr
	bindings map[uintptr]*binding
	stats    Stats
}

// New creates a bridge that releases token on end of speech and notifies
// listener. A nil listener discards notifications.
func New(name string, token *engine.Token, listener engine.Listener) *Bridge {
	if listener == nil {
		listener = engine.NopListener{}
	}
	return &Bridge{
		name:     name,
		token:    token,
		listener: listener,
		bindings: make(map[uintptr]*binding),
	}
}

// Bind registers one utterance and returns the cookie the engine must pass as
// user data with every signal for it. Cookies are never zero and never reused.
// hold is the token ticket the utterance speaks under; zero binds none.
func (b *Bridge) Bind(target Target, sink Completer, hold engine.Ticket) uintptr {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	cookie := b.next
	b.bindings[cookie] = &binding{target: target, sink: sink, hold: hold}
	b.stats.Bound++
	return cookie
}

// Callback is the entry point handed to the native engine. data carries the
// index for EventBegin (zero means none). It always returns 0 and never lets a
// panic escape.
func (b *Bridge) Callback(event Event, data uintptr, user uintptr) uint32 {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic in speech callback", "bridge", b.name, "event", event, "panic", r)
		}
	}()

	switch event {
	case EventBegin:
		b.begin(user, int(data))
	case EventEnd:
		b.end(user)
	default:
		log.Debug("Ignoring unknown speech callback", "bridge", b.name, "event", event)
	}
	return 0
}

// Begin reports start of speech or an index mark. An index of zero means the
// utterance started without a mark.
func (b *Bridge) Begin(user uintptr, index int) {
	b.Callback(EventBegin, uintptr(index), user)
}

// End reports end of speech.
func (b *Bridge) End(user uintptr) {
	b.Callback(EventEnd, 0, user)
}

func (b *Bridge) begin(user uintptr, index int) {
	b.mu.Lock()
	bd, ok := b.bindings[user]
	muted := false
	if ok {
		muted = bd.muted
		bd.began = true
		b.stats.Begins++
		if index != 0 {
			b.stats.Indexes++
		}
	} else {
		b.stats.Spurious++
	}
	b.mu.Unlock()

	if !ok {
		b.spurious(EventBegin, user)
		return
	}

	if muted {
		return
	}
	bd.target.SetLastIndex(index)
	if index == 0 {
		return
	}
	b.listener.IndexReached(bd.target.Name(), index)
}

func (b *Bridge) end(user uintptr) {
	b.mu.Lock()
	bd, ok := b.bindings[user]
	if ok {
		delete(b.bindings, user)
		if bd.muted {
			b.stats.Canceled++
		} else {
			b.stats.Ends++
		}
	} else {
		b.stats.Spurious++
	}
	b.mu.Unlock()

	if !ok {
		b.spurious(EventEnd, user)
		return
	}

	b.finish(bd, !bd.muted)
}

// finish runs the end-of-utterance fan-out for a binding that has already
// been removed from the map, so it runs at most once per binding.
func (b *Bridge) finish(bd *binding, notify bool) {
	bd.target.SetPlaying(false)
	if notify {
		b.listener.DoneSpeaking(bd.target.Name())
	}
	if bd.sink != nil {
		bd.sink.TaskDone()
	}
	b.token.Release(bd.hold)
}

func (b *Bridge) spurious(event Event, user uintptr) {
	err := engine.NewError(engine.KindSpuriousCallback, "no outstanding utterance", nil).
		WithContext("cookie", user)
	log.Debug("Absorbed speech callback", "bridge", b.name, "event", event, "err", err)
}

// Forget removes a binding whose utterance never reached the engine. Nothing
// is notified, marked done or released; the caller owns that cleanup.
func (b *Bridge) Forget(user uintptr) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.bindings[user]
	delete(b.bindings, user)
	return ok
}

// Mute marks target's outstanding utterances as stopped without ending them.
// Their end signal still releases the token and completes the queue item but
// no longer notifies the listener, so a device reset can return the audio
// before the hold is given back. Index marks for them are not reported.
func (b *Bridge) Mute(target Target) int {
	return b.mute(func(bd *binding) bool { return bd.target == target })
}

// MuteAll mutes every outstanding utterance.
func (b *Bridge) MuteAll() int {
	return b.mute(func(*binding) bool { return true })
}

func (b *Bridge) mute(match func(*binding) bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, bd := range b.bindings {
		if match(bd) && !bd.muted {
			bd.muted = true
			n++
		}
	}
	b.stats.Muted += int64(n)
	return n
}

// Cancel drops every outstanding binding for target without notifying the
// listener. Queue items are marked done and the holds of dropped bindings
// are released. Later signals for the dropped cookies are absorbed.
func (b *Bridge) Cancel(target Target) int {
	return b.cancel(func(bd *binding) bool { return bd.target == target })
}

// CancelAll drops every outstanding binding.
func (b *Bridge) CancelAll() int {
	return b.cancel(func(*binding) bool { return true })
}

func (b *Bridge) cancel(match func(*binding) bool) int {
	b.mu.Lock()
	var dropped []*binding
	for cookie, bd := range b.bindings {
		if match(bd) {
			dropped = append(dropped, bd)
			delete(b.bindings, cookie)
		}
	}
	b.stats.Canceled += int64(len(dropped))
	b.mu.Unlock()

	for _, bd := range dropped {
		b.finish(bd, false)
	}
	if len(dropped) > 0 {
		log.Debug("Cancelled outstanding utterances", "bridge", b.name, "count", len(dropped))
	}
	return len(dropped)
}

// Outstanding returns the number of utterances bound and not yet ended.
func (b *Bridge) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bindings)
}

// GetStats returns a copy of the signal counters.
func (b *Bridge) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
