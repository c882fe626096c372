package forex

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"xrate-oracle/internal/rate"
)

// Central Bank of Myanmar: {"timestamp": <day>, "rates": {"USD": "1,850.0",
// ...}} quoted in MMK, with JPY reported per 100 units.
var myanmarSource = &Source{
	ID:               "cbm-myanmar",
	Name:             "CentralBankOfMyanmar",
	URLTemplate:      "https://forex.cbm.gov.mm/api/history/DATE",
	MaxResponseBytes: 3 * OneKiB,
	UTCOffsetHours:   6,
	extract:          extractMyanmar,
}

func extractMyanmar(body []byte, dayStart uint64) (RateMap, error) {
	var response struct {
		Timestamp uint64            `json:"timestamp"`
		Rates     map[string]string `json:"rates"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}
	if response.Timestamp != dayStart {
		return nil, errors.New("response is for a different day")
	}
	values := make(RateMap, len(response.Rates))
	for symbol, raw := range response.Rates {
		parsed, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err != nil {
			continue
		}
		scaled := parsed.Mul(decimal.NewFromUint64(rate.RateUnit))
		if strings.EqualFold(symbol, "JPY") {
			scaled = scaled.Div(decimal.NewFromInt(100))
		}
		values[strings.ToUpper(symbol)] = scaledToUint64(scaled)
	}
	return normalizeToUSD(values)
}
