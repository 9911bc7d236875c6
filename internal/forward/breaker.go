package forward

import (
	"sync"
	"time"
)

type state int

const (
	closed state = iota
	open
	halfOpen
)

// breaker trips after failThreshold consecutive failures and lets a single
// probe through once openFor has elapsed.
type breaker struct {
	mu            sync.Mutex
	st            state
	fails         int
	failThreshold int
	openFor       time.Duration
	nextTryAt     time.Time
	probing       bool
	now           func() time.Time
}

func newBreaker(threshold int, openFor time.Duration, now func() time.Time) *breaker {
	return &breaker{failThreshold: threshold, openFor: openFor, now: now}
}

// allow reports whether a call may proceed; in open/half-open state only one probe is admitted.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case open:
		if b.now().Before(b.nextTryAt) || b.probing {
			return false
		}
		b.st = halfOpen
		b.probing = true
		return true
	case halfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

func (b *breaker) done(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ok {
		b.fails = 0
		b.st = closed
		b.probing = false
		return
	}

	if b.st == halfOpen {
		b.trip()
		return
	}
	b.fails++
	if b.fails >= b.failThreshold {
		b.trip()
	}
}

func (b *breaker) trip() {
	b.st = open
	b.nextTryAt = b.now().Add(b.openFor)
	b.probing = false
}

// breakers holds one breaker per tenant webhook URL.
type breakers struct {
	mu        sync.Mutex
	byURL     map[string]*breaker
	threshold int
	openFor   time.Duration
	now       func() time.Time
}

func (s *breakers) get(url string) *breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byURL[url]
	if !ok {
		b = newBreaker(s.threshold, s.openFor, s.now)
		s.byURL[url] = b
	}
	return b
}
