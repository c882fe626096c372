package forex

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"xrate-oracle/internal/rate"
)

// Bank of Canada Valet observations: series keyed FXEURCAD etc. with a
// label naming the pair, quoted in CAD.
var canadaSource = &Source{
	ID:               "boc-canada",
	Name:             "BankOfCanada",
	URLTemplate:      "https://www.bankofcanada.ca/valet/observations/group/FX_RATES_DAILY/json?start_date=DATE&end_date=DATE",
	MaxResponseBytes: 10 * OneKiB,
	// The westmost Canadian timezone.
	UTCOffsetHours: -8,
	extract:        extractCanada,
}

func extractCanada(body []byte, dayStart uint64) (RateMap, error) {
	var response struct {
		SeriesDetail map[string]struct {
			Label string `json:"label"`
		} `json:"seriesDetail"`
		Observations []map[string]json.RawMessage `json:"observations"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}

	values := make(RateMap)
	for _, observation := range response.Observations {
		var date string
		if raw, ok := observation["d"]; ok {
			if err := json.Unmarshal(raw, &date); err != nil {
				return nil, err
			}
		}
		reported, err := parseDay("2006-01-02", date)
		if err != nil || reported != dayStart {
			return nil, errors.New("response is for a different day")
		}

		for series, raw := range observation {
			if series == "d" {
				continue
			}
			detail, ok := response.SeriesDetail[series]
			if !ok {
				continue
			}
			symbol := strings.ToUpper(strings.SplitN(detail.Label, "/", 2)[0])
			var cell struct {
				V string `json:"v"`
			}
			if err := json.Unmarshal(raw, &cell); err != nil {
				continue
			}
			parsed, err := decimal.NewFromString(cell.V)
			if err != nil {
				continue
			}
			values[symbol] = scaledToUint64(parsed.Mul(decimal.NewFromUint64(rate.RateUnit)))
		}
	}
	values["CAD"] = rate.RateUnit
	return normalizeToUSD(values)
}
