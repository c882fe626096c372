package app

import (
	"context"
	"errors"
	"time"

	"xrate-oracle/internal/monitor"
)

// ExportOptions hold parameters for exporting recorded rates.
type ExportOptions struct {
	Pair      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// Export renders recorded rates for one pair as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Pair == "" {
		return errors.New("--pair is required")
	}
	if a.Config.Database.DSN == "" {
		return errors.New("database not configured; cannot export")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListRecordsBetween(ctx, opts.Pair, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Str("pair", opts.Pair).Msg("no records found for export window")
		return nil
	}

	a.Logger.Info().Int("total", len(records)).Str("pair", opts.Pair).Msg("exporting records")
	return monitor.Export(records, monitor.ExportOptions{
		Pair:      opts.Pair,
		From:      opts.From,
		To:        opts.To,
		PNGPath:   opts.PNGPath,
		CSVPath:   opts.CSVPath,
		MaxPoints: opts.MaxPoints,
	})
}
