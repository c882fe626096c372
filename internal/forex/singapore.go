package forex

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"xrate-oracle/internal/rate"
)

// Monetary Authority of Singapore: one record per day with keys like
// "eur_sgd" and "jpy_sgd_100", everything quoted in SGD.
var singaporeSource = &Source{
	ID:               "mas-singapore",
	Name:             "MonetaryAuthorityOfSingapore",
	URLTemplate:      "https://eservices.mas.gov.sg/api/action/datastore/search.json?resource_id=95932927-c8bc-4e7a-b484-68a66a24edfe&limit=100&filters[end_of_day]=DATE",
	MaxResponseBytes: 3 * OneKiB,
	UTCOffsetHours:   8,
	extract:          extractSingapore,
}

func extractSingapore(body []byte, dayStart uint64) (RateMap, error) {
	var response struct {
		Result struct {
			Records []map[string]string `json:"records"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}
	if len(response.Result.Records) == 0 {
		return nil, errors.New("no records")
	}
	record := response.Result.Records[0]

	reported, err := parseDay("2006-01-02", record["end_of_day"])
	if err != nil || reported != dayStart {
		return nil, fmt.Errorf("response is for a different day")
	}

	values := make(RateMap)
	for key, raw := range record {
		if !strings.Contains(key, "_sgd") {
			continue
		}
		symbol := strings.ToUpper(strings.SplitN(key, "_", 2)[0])
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		scaled := parsed.Mul(decimal.NewFromUint64(rate.RateUnit))
		if strings.HasSuffix(key, "_100") {
			scaled = scaled.Div(decimal.NewFromInt(100))
		}
		values[symbol] = scaledToUint64(scaled)
	}
	values["SGD"] = rate.RateUnit
	return normalizeToUSD(values)
}

func scaledToUint64(d decimal.Decimal) uint64 {
	rounded := d.Round(0)
	if rounded.Sign() <= 0 || !rounded.BigInt().IsUint64() {
		return 0
	}
	return rounded.BigInt().Uint64()
}
