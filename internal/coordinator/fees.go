package coordinator

// FeeSchedule prices a request in cycles. A base fee is retained on every
// answered call, each outbound HTTP call costs extra, and whatever was
// attached beyond the retained amount is refunded by the runtime.
type FeeSchedule struct {
	// BaseFee is retained on every call that passes validation.
	BaseFee uint64
	// OutcallFee is retained per outbound HTTP call actually issued.
	OutcallFee uint64
	// MinimumFee is retained when a request fails after passing the cycles
	// check (Pending, RateLimited, or a forex-store miss).
	MinimumFee uint64
}

// DefaultFees mirrors the production deployment's schedule.
func DefaultFees() FeeSchedule {
	return FeeSchedule{
		BaseFee:    200_000_000,
		OutcallFee: 2_000_000_000,
		MinimumFee: 100_000_000,
	}
}

// WorstCase returns the cycles a caller must attach before any outcall is
// issued: the base fee plus every outcall the plan could need.
func (f FeeSchedule) WorstCase(maxOutcalls int) uint64 {
	return f.BaseFee + f.OutcallFee*uint64(maxOutcalls)
}

// Total prices an answered request given the outcalls actually issued.
func (f FeeSchedule) Total(outcalls int) uint64 {
	return f.BaseFee + f.OutcallFee*uint64(outcalls)
}
