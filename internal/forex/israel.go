package forex

import (
	"encoding/xml"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"xrate-oracle/internal/rate"
)

// Bank of Israel: XML CURRENCIES document with per-currency unit counts,
// everything quoted in ILS.
var israelSource = &Source{
	ID:               "boi-israel",
	Name:             "BankOfIsrael",
	URLTemplate:      "https://www.boi.org.il/currency.xml?rdate=DATE",
	MaxResponseBytes: 3 * OneKiB,
	UTCOffsetHours:   2,
	formatDate: func(day uint64) string {
		return time.Unix(int64(day), 0).UTC().Format("20060102")
	},
	extract: extractIsrael,
}

func extractIsrael(body []byte, dayStart uint64) (RateMap, error) {
	var response struct {
		LastUpdate string `xml:"LAST_UPDATE"`
		Currencies []struct {
			Code string `xml:"CURRENCYCODE"`
			Unit uint64 `xml:"UNIT"`
			Rate string `xml:"RATE"`
		} `xml:"CURRENCY"`
	}
	if err := xml.Unmarshal(body, &response); err != nil {
		return nil, err
	}
	reported, err := parseDay("2006-01-02", response.LastUpdate)
	if err != nil || reported != dayStart {
		return nil, errors.New("response is for a different day")
	}

	values := make(RateMap, len(response.Currencies)+1)
	for _, currency := range response.Currencies {
		if currency.Unit == 0 {
			continue
		}
		parsed, err := decimal.NewFromString(currency.Rate)
		if err != nil {
			continue
		}
		scaled := parsed.Mul(decimal.NewFromUint64(rate.RateUnit)).Div(decimal.NewFromUint64(currency.Unit))
		values[strings.ToUpper(currency.Code)] = scaledToUint64(scaled)
	}
	values["ILS"] = rate.RateUnit
	return normalizeToUSD(values)
}
