package forex

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"xrate-oracle/internal/rate"
)

// Central Bank of Bosnia & Herzegovina: {"CurrencyExchangeItems": [...],
// "Date": "2022-06-28T00:00:00"} quoted in BAM, with per-item unit counts
// and decimal commas. The bank expects the day after the one being asked
// for in the query string.
var bosniaSource = &Source{
	ID:               "cbbh-bosnia",
	Name:             "CentralBankOfBosniaHerzegovina",
	URLTemplate:      "https://www.cbbh.ba/CurrencyExchange/GetJson?date=DATE%2000%3A00%3A00",
	MaxResponseBytes: 30 * OneKiB,
	UTCOffsetHours:   1,
	formatDate: func(day uint64) string {
		return usDate(day)
	},
	queryOffsetDays: 1,
	extract:         extractBosnia,
}

func extractBosnia(body []byte, dayStart uint64) (RateMap, error) {
	var response struct {
		Items []struct {
			AlphaCode string `json:"AlphaCode"`
			Units     string `json:"Units"`
			Middle    string `json:"Middle"`
		} `json:"CurrencyExchangeItems"`
		Date string `json:"Date"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}
	reported, err := parseDay("2006-01-02T15:04:05", response.Date)
	if err != nil || reported != dayStart {
		return nil, errors.New("response is for a different day")
	}

	values := make(RateMap, len(response.Items))
	for _, item := range response.Items {
		units, err := strconv.ParseUint(item.Units, 10, 64)
		if err != nil || units == 0 {
			continue
		}
		middle, err := decimal.NewFromString(strings.ReplaceAll(item.Middle, ",", "."))
		if err != nil {
			continue
		}
		scaled := middle.Mul(decimal.NewFromUint64(rate.RateUnit)).Div(decimal.NewFromUint64(units))
		values[strings.ToUpper(item.AlphaCode)] = scaledToUint64(scaled)
	}
	return normalizeToUSD(values)
}
