package settlement

import (
	"sync"
	"time"

	"stockdesk/internal/ledger"
)

type admission int

const (
	admitted admission = iota
	replay
	conflict
	unknown
	inFlight
)

type slotState int

const (
	slotPending slotState = iota
	slotDone
	// slotUnknown means a debit was sent and its outcome was never learned.
	// The key stays blocked until it expires.
	slotUnknown
)

// admissionKey scopes a client key to one user in one guild. The ids stay
// separate fields so no pair of scopes can produce the same key.
type admissionKey struct {
	scope ledger.Scope
	key   string
}

type slot struct {
	state       slotState
	fingerprint string
	result      Result
	expires     time.Time
}

// admissions remembers idempotency keys for a bounded time.
type admissions struct {
	mu  sync.Mutex
	m   map[admissionKey]*slot
	ttl time.Duration
	now func() time.Time
}

func newAdmissions(ttl time.Duration, now func() time.Time) *admissions {
	return &admissions{m: make(map[admissionKey]*slot), ttl: ttl, now: now}
}

// admit claims key for an order with the given fingerprint.
func (a *admissions) admit(key admissionKey, fingerprint string) (admission, Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	a.sweepLocked(now)

	s, ok := a.m[key]
	if !ok {
		a.m[key] = &slot{state: slotPending, fingerprint: fingerprint, expires: now.Add(a.ttl)}
		return admitted, Result{}
	}
	if s.fingerprint != fingerprint {
		return conflict, Result{}
	}
	switch s.state {
	case slotDone:
		return replay, s.result
	case slotUnknown:
		return unknown, Result{}
	default:
		return inFlight, Result{}
	}
}

func (a *admissions) complete(key admissionKey, r Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.m[key]; ok {
		s.state = slotDone
		s.result = r
		s.expires = a.now().Add(a.ttl)
	}
}

// release forgets key; the order provably had no effect.
func (a *admissions) release(key admissionKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.m, key)
}

func (a *admissions) poison(key admissionKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.m[key]; ok {
		s.state = slotUnknown
		s.expires = a.now().Add(a.ttl)
	}
}

func (a *admissions) sweepLocked(now time.Time) {
	for k, s := range a.m {
		if s.state != slotPending && now.After(s.expires) {
			delete(a.m, k)
		}
	}
}
