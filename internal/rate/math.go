package rate

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Median returns the median of the given values. For even-length input the
// lower of the two middle values is returned so the result is always a
// member of the set. Returns zero for empty input.
func Median(values []uint64) uint64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]uint64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[(len(sorted)-1)/2]
}

// Mean returns the arithmetic mean of the given values with half-up
// rounding. Returns zero for empty input.
func Mean(values []uint64) uint64 {
	if len(values) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromUint64(v))
	}
	mean := sum.DivRound(decimal.NewFromInt(int64(len(values))), 0)
	return clampUint64(mean)
}

// StandardDeviation returns the sample standard deviation of the given
// values, in the same scale as the inputs. Sets of fewer than two values
// have no spread and yield zero.
func StandardDeviation(values []uint64) uint64 {
	if len(values) < 2 {
		return 0
	}
	mean := decimal.Zero
	for _, v := range values {
		mean = mean.Add(decimal.NewFromUint64(v))
	}
	count := decimal.NewFromInt(int64(len(values)))
	mean = mean.Div(count)

	variance := decimal.Zero
	for _, v := range values {
		diff := decimal.NewFromUint64(v).Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(count.Sub(decimal.NewFromInt(1)))

	stddev := math.Sqrt(variance.InexactFloat64())
	if stddev >= float64(math.MaxUint64) {
		return math.MaxUint64
	}
	return uint64(stddev)
}

func clampUint64(d decimal.Decimal) uint64 {
	if d.Sign() <= 0 {
		return 0
	}
	if !d.BigInt().IsUint64() {
		return math.MaxUint64
	}
	return d.BigInt().Uint64()
}
