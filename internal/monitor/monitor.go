// Package monitor is the companion recorder: it polls a running oracle for
// a configured list of pairs each interval and persists the answers for
// later inspection and export.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"xrate-oracle/internal/asset"
)

// RecordStore is the persistence surface the poller needs.
type RecordStore interface {
	InsertRecord(ctx context.Context, record Record) error
}

// Poller drives the recording loop.
type Poller struct {
	client *Client
	store  RecordStore
	pairs  []asset.Pair
	logger zerolog.Logger
}

// NewPoller builds a Poller for the given pair list.
func NewPoller(client *Client, store RecordStore, pairs []asset.Pair, logger zerolog.Logger) *Poller {
	return &Poller{
		client: client,
		store:  store,
		pairs:  pairs,
		logger: logger.With().Str("component", "monitor").Logger(),
	}
}

// ParsePairs converts "BASE/QUOTE" strings into crypto/fiat aware pairs:
// the well-known fiat symbols resolve to the fiat class, everything else is
// treated as a cryptocurrency.
func ParsePairs(raw []string, fiatSymbols []string) ([]asset.Pair, error) {
	fiat := make(map[string]struct{}, len(fiatSymbols))
	for _, s := range fiatSymbols {
		fiat[strings.ToUpper(s)] = struct{}{}
	}
	classify := func(symbol string) asset.Asset {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if _, ok := fiat[symbol]; ok {
			return asset.Asset{Symbol: symbol, Class: asset.Fiat}
		}
		return asset.Asset{Symbol: symbol, Class: asset.Crypto}
	}

	pairs := make([]asset.Pair, 0, len(raw))
	for _, entry := range raw {
		parts := strings.SplitN(entry, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid pair %q", entry)
		}
		pairs = append(pairs, asset.Pair{Base: classify(parts[0]), Quote: classify(parts[1])})
	}
	return pairs, nil
}

// Tick queries every configured pair for the given bucket and records the
// results. Per-pair failures are logged and do not stop the sweep.
func (p *Poller) Tick(ctx context.Context, bucket time.Time) error {
	tsMinute := asset.MinuteStart(uint64(bucket.UTC().Unix()))
	for _, pair := range p.pairs {
		record := Record{
			Pair:     pair.Key(),
			TsMinute: time.Unix(int64(tsMinute), 0).UTC(),
		}

		ok, rateErr, accepted, err := p.client.GetExchangeRate(ctx, pair, tsMinute)
		if err != nil {
			p.logger.Error().Err(err).Str("pair", pair.Key()).Msg("oracle unreachable")
			continue
		}
		record.CyclesSpent = accepted
		if rateErr != nil {
			kind := string(rateErr.Kind)
			record.ErrKind = &kind
			if rateErr.Description != "" {
				detail := rateErr.Description
				record.ErrDetail = &detail
			}
		} else {
			record.Rate = ok
		}

		if p.store != nil {
			if err := p.store.InsertRecord(ctx, record); err != nil {
				p.logger.Error().Err(err).Str("pair", pair.Key()).Msg("failed to persist record")
				continue
			}
		}
		p.logger.Info().
			Str("pair", pair.Key()).
			Uint64("minute", tsMinute).
			Bool("ok", record.Ok()).
			Msg("pair recorded")
	}
	return nil
}
