package engine

import (
	"context"
	"sync"
)

// Ticket identifies one hold of a Token. The zero Ticket is never issued.
type Ticket uint64

// Token is the single exclusion primitive that keeps at most one utterance
// audible at a time across all engines sharing the output hardware.
//
// Acquire and release are deliberately asymmetric: the request path acquires
// the token right before a request reaches the native engine, and the callback
// path releases it when the engine signals end of speech, usually from a
// goroutine the acquirer knows nothing about. Every hold is identified by the
// Ticket Acquire returns and only that ticket can release it, so a late end
// signal or a cancel racing a newer utterance never frees someone else's hold.
type Token struct {
	slot chan struct{}

	mu     sync.Mutex
	seq    Ticket
	holder Ticket
}

// NewToken creates a released token.
func NewToken() *Token {
	return &Token{slot: make(chan struct{}, 1)}
}

// Acquire blocks until the token is free or ctx is done.
func (t *Token) Acquire(ctx context.Context) (Ticket, error) {
	select {
	case t.slot <- struct{}{}:
		return t.grant(), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// TryAcquire takes the token if it is free.
func (t *Token) TryAcquire() (Ticket, bool) {
	select {
	case t.slot <- struct{}{}:
		return t.grant(), true
	default:
		return 0, false
	}
}

func (t *Token) grant() Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	t.holder = t.seq
	return t.holder
}

// Release frees the token if k is the current hold and reports whether it
// did. Stale and zero tickets are ignored.
func (t *Token) Release(k Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if k == 0 || k != t.holder {
		return false
	}
	t.holder = 0
	<-t.slot
	return true
}

// Reset frees the token whoever holds it. Only teardown may call it, once
// nothing can signal for the current hold any more.
func (t *Token) Reset() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.holder == 0 {
		return false
	}
	t.holder = 0
	<-t.slot
	return true
}

// Holder returns the ticket of the current hold, or zero when free.
func (t *Token) Holder() Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.holder
}

// Held reports whether the token is currently acquired.
func (t *Token) Held() bool {
	return t.Holder() != 0
}
