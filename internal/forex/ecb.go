package forex

import (
	"encoding/xml"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"xrate-oracle/internal/rate"
)

// European Central Bank: the eurofxref XML envelope, quoted as units per
// EUR, so every rate is inverted before normalization. The feed always
// serves the latest day and takes no date argument.
var ecbSource = &Source{
	ID:               "ecb-europe",
	Name:             "EuropeanCentralBank",
	URLTemplate:      "https://www.ecb.europa.eu/stats/eurofxref/eurofxref-daily.xml",
	MaxResponseBytes: 3 * OneKiB,
	UTCOffsetHours:   1,
	extract:          extractECB,
}

func extractECB(body []byte, dayStart uint64) (RateMap, error) {
	var envelope struct {
		Cube struct {
			Day struct {
				Time  string `xml:"time,attr"`
				Rates []struct {
					Currency string `xml:"currency,attr"`
					Rate     string `xml:"rate,attr"`
				} `xml:"Cube"`
			} `xml:"Cube"`
		} `xml:"Cube"`
	}
	if err := xml.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	reported, err := parseDay("2006-01-02", envelope.Cube.Day.Time)
	if err != nil || reported != dayStart {
		return nil, errors.New("response is for a different day")
	}

	unit := decimal.NewFromUint64(rate.RateUnit)
	values := make(RateMap, len(envelope.Cube.Day.Rates)+1)
	for _, entry := range envelope.Cube.Day.Rates {
		parsed, err := decimal.NewFromString(entry.Rate)
		if err != nil || parsed.IsZero() {
			continue
		}
		// Rebase from "currency per EUR" to "EUR per currency".
		values[strings.ToUpper(entry.Currency)] = scaledToUint64(unit.Div(parsed))
	}
	values["EUR"] = rate.RateUnit
	return normalizeToUSD(values)
}
