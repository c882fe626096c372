package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"xrate-oracle/internal/rate"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// Show prints recent recorded rates.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if a.Config.Database.DSN == "" {
		return errors.New("database not configured; cannot show records")
	}
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListRecent(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no records found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPair\tRate\tStdDev\tReceived/Queried\tError")

	for _, record := range records {
		rateCell, stddevCell, countsCell, errCell := "-", "-", "-", ""
		if record.Rate != nil {
			rateCell = formatScaled(record.Rate.Rate)
			stddevCell = formatScaled(record.Rate.Metadata.StandardDeviation)
			countsCell = fmt.Sprintf("%d/%d",
				record.Rate.Metadata.BaseAssetNumReceivedRates+record.Rate.Metadata.QuoteAssetNumReceivedRates,
				record.Rate.Metadata.BaseAssetNumQueriedSources+record.Rate.Metadata.QuoteAssetNumQueriedSources,
			)
		}
		if record.ErrKind != nil {
			errCell = sanitizeInline(*record.ErrKind)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			record.TsMinute.UTC().Format(time.RFC3339),
			record.Pair,
			rateCell,
			stddevCell,
			countsCell,
			errCell,
		)
	}

	writer.Flush()
	return nil
}

func formatScaled(v uint64) string {
	return decimal.NewFromUint64(v).Div(decimal.NewFromUint64(rate.RateUnit)).StringFixed(4)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
