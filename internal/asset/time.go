package asset

// Second counts for the canonical alignment boundaries.
const (
	MinuteSeconds uint64 = 60
	HourSeconds   uint64 = 60 * MinuteSeconds
	DaySeconds    uint64 = 24 * HourSeconds
)

// MinuteStart aligns a UNIX timestamp to the start of its UTC minute.
// Crypto rates are keyed by this form.
func MinuteStart(ts uint64) uint64 {
	return ts - ts%MinuteSeconds
}

// DayStart aligns a UNIX timestamp to the start of its UTC day.
// Forex rates are keyed by this form.
func DayStart(ts uint64) uint64 {
	return ts - ts%DaySeconds
}
