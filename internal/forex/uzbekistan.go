package forex

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"xrate-oracle/internal/rate"
)

// Central Bank of Uzbekistan: a flat array of currency entries quoted in
// UZS with dotted European dates.
var uzbekistanSource = &Source{
	ID:               "cbu-uzbekistan",
	Name:             "CentralBankOfUzbekistan",
	URLTemplate:      "https://cbu.uz/ru/arkhiv-kursov-valyut/json/all/DATE/",
	MaxResponseBytes: 30 * OneKiB,
	UTCOffsetHours:   5,
	extract:          extractUzbekistan,
}

func extractUzbekistan(body []byte, dayStart uint64) (RateMap, error) {
	var entries []struct {
		Ccy     string `json:"Ccy"`
		Rate    string `json:"Rate"`
		Date    string `json:"Date"`
		Nominal string `json:"Nominal"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, err
	}

	values := make(RateMap, len(entries))
	for _, entry := range entries {
		reported, err := parseDay("02.01.2006", entry.Date)
		if err != nil || reported != dayStart {
			return nil, errors.New("response is for a different day")
		}
		parsed, err := decimal.NewFromString(entry.Rate)
		if err != nil {
			continue
		}
		scaled := parsed.Mul(decimal.NewFromUint64(rate.RateUnit))
		if nominal, err := decimal.NewFromString(entry.Nominal); err == nil && !nominal.IsZero() {
			scaled = scaled.Div(nominal)
		}
		values[strings.ToUpper(entry.Ccy)] = scaledToUint64(scaled)
	}
	return normalizeToUSD(values)
}
