package coordinator

import "sync"

// DefaultRequestLimit caps the outbound HTTP calls outstanding at any
// moment. Privileged requests are never refused, but their reservations
// count toward the total.
const DefaultRequestLimit = 56

// outcallLimiter is the admission-control counter. A request reserves the
// number of outcalls its plan could issue before fetching and releases the
// reservation when it replies.
type outcallLimiter struct {
	mu       sync.Mutex
	limit    int
	reserved int
}

func newOutcallLimiter(limit int) *outcallLimiter {
	if limit <= 0 {
		limit = DefaultRequestLimit
	}
	return &outcallLimiter{limit: limit}
}

// wouldExceed reports whether reserving n more outcalls would pass the
// limit.
func (l *outcallLimiter) wouldExceed(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserved+n > l.limit
}

// reserve books n outcalls. The returned release function must run on every
// exit path.
func (l *outcallLimiter) reserve(n int) (release func()) {
	l.mu.Lock()
	l.reserved += n
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.reserved -= n
		l.mu.Unlock()
	}
}

// outstanding reports the currently reserved outcall count.
func (l *outcallLimiter) outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserved
}
