package rate

import "fmt"

// Kind enumerates the failure variants a rate resolution can report.
type Kind string

// The failure variants of the resolution engine.
const (
	KindAnonymousPrincipalNotAllowed Kind = "AnonymousPrincipalNotAllowed"
	KindPending                      Kind = "Pending"
	KindCryptoBaseAssetNotFound      Kind = "CryptoBaseAssetNotFound"
	KindCryptoQuoteAssetNotFound     Kind = "CryptoQuoteAssetNotFound"
	KindStablecoinRateNotFound       Kind = "StablecoinRateNotFound"
	KindStablecoinRateTooFewRates    Kind = "StablecoinRateTooFewRates"
	KindStablecoinRateZeroRate       Kind = "StablecoinRateZeroRate"
	KindForexInvalidTimestamp        Kind = "ForexInvalidTimestamp"
	KindForexBaseAssetNotFound       Kind = "ForexBaseAssetNotFound"
	KindForexQuoteAssetNotFound      Kind = "ForexQuoteAssetNotFound"
	KindForexAssetsNotFound          Kind = "ForexAssetsNotFound"
	KindRateLimited                  Kind = "RateLimited"
	KindNotEnoughCycles              Kind = "NotEnoughCycles"
	KindFailedToAcceptCycles         Kind = "FailedToAcceptCycles"
	KindInconsistentRatesReceived    Kind = "InconsistentRatesReceived"
	KindOther                        Kind = "Other"
)

// Error is the typed failure surface of the resolution engine. Code and
// Description are populated for the Other variant only.
type Error struct {
	Kind        Kind   `json:"kind"`
	Code        uint32 `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

func (e *Error) Error() string {
	if e.Kind == KindOther {
		return fmt.Sprintf("exchange rate error: %s (code %d): %s", e.Kind, e.Code, e.Description)
	}
	return fmt.Sprintf("exchange rate error: %s", e.Kind)
}

// Is reports variant equality so errors.Is works against the sentinels below.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinel errors, one per variant without payload.
var (
	ErrAnonymousPrincipalNotAllowed = &Error{Kind: KindAnonymousPrincipalNotAllowed}
	ErrPending                      = &Error{Kind: KindPending}
	ErrCryptoBaseAssetNotFound      = &Error{Kind: KindCryptoBaseAssetNotFound}
	ErrCryptoQuoteAssetNotFound     = &Error{Kind: KindCryptoQuoteAssetNotFound}
	ErrStablecoinRateNotFound       = &Error{Kind: KindStablecoinRateNotFound}
	ErrStablecoinRateTooFewRates    = &Error{Kind: KindStablecoinRateTooFewRates}
	ErrStablecoinRateZeroRate       = &Error{Kind: KindStablecoinRateZeroRate}
	ErrForexInvalidTimestamp        = &Error{Kind: KindForexInvalidTimestamp}
	ErrForexBaseAssetNotFound       = &Error{Kind: KindForexBaseAssetNotFound}
	ErrForexQuoteAssetNotFound      = &Error{Kind: KindForexQuoteAssetNotFound}
	ErrForexAssetsNotFound          = &Error{Kind: KindForexAssetsNotFound}
	ErrRateLimited                  = &Error{Kind: KindRateLimited}
	ErrNotEnoughCycles              = &Error{Kind: KindNotEnoughCycles}
	ErrFailedToAcceptCycles         = &Error{Kind: KindFailedToAcceptCycles}
	ErrInconsistentRatesReceived    = &Error{Kind: KindInconsistentRatesReceived}
)

// Codes used with the Other variant.
const (
	CodeTimestampInFuture  uint32 = 1
	CodeBaseSymbolInvalid  uint32 = 2
	CodeQuoteSymbolInvalid uint32 = 3
	CodeRateOverflow       uint32 = 4
)

// OtherError builds an Other variant with the given code and description.
func OtherError(code uint32, description string) *Error {
	return &Error{Kind: KindOther, Code: code, Description: description}
}

// TimestampInFutureError reports a requested timestamp ahead of current time.
func TimestampInFutureError(requested, current uint64) *Error {
	return OtherError(CodeTimestampInFuture,
		fmt.Sprintf("current time is %d; %d is in the future", current, requested))
}

// BaseSymbolInvalidError reports an unusable base asset symbol.
func BaseSymbolInvalidError(symbol string) *Error {
	return OtherError(CodeBaseSymbolInvalid, fmt.Sprintf("base asset symbol %q is invalid", symbol))
}

// QuoteSymbolInvalidError reports an unusable quote asset symbol.
func QuoteSymbolInvalidError(symbol string) *Error {
	return OtherError(CodeQuoteSymbolInvalid, fmt.Sprintf("quote asset symbol %q is invalid", symbol))
}

// OverflowError reports a scaled rate that no longer fits in 64 bits.
func OverflowError() *Error {
	return OtherError(CodeRateOverflow, "scaled rate overflows 64 bits")
}
