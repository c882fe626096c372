package monitor

import (
	"time"

	"xrate-oracle/internal/rate"
)

// Record is one persisted observation of the oracle's answer for a pair.
type Record struct {
	ID          int64
	Pair        string
	TsMinute    time.Time
	Rate        *rate.ExchangeRate
	ErrKind     *string
	ErrDetail   *string
	CyclesSpent uint64
	CreatedAt   time.Time
}

// Ok reports whether the observation carried a rate.
func (r Record) Ok() bool { return r.Rate != nil }
