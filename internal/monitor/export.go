package monitor

import (
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"xrate-oracle/internal/rate"
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

// Export renders a pair's records as CSV and/or PNG.
func Export(records []Record, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if len(records) == 0 {
		return errors.New("no records in export window")
	}

	downsampled := Downsample(records, opts.MaxPoints)

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeRecordsPNG(opts.PNGPath, opts.Pair, downsampled); err != nil {
			return err
		}
	}
	return nil
}

// Downsample thins records to at most max points, keeping the endpoints.
func Downsample(records []Record, max int) []Record {
	if max <= 0 || len(records) <= max {
		return records
	}
	result := make([]Record, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeRecordsCSV(path string, records []Record) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"ts_minute", "pair", "rate", "standard_deviation", "received", "queried", "err_kind", "cycles_spent"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, record := range records {
		row := []string{
			record.TsMinute.UTC().Format(time.RFC3339),
			record.Pair,
			"", "", "", "",
			"",
			strconv.FormatUint(record.CyclesSpent, 10),
		}
		if record.Rate != nil {
			row[2] = strconv.FormatUint(record.Rate.Rate, 10)
			row[3] = strconv.FormatUint(record.Rate.Metadata.StandardDeviation, 10)
			row[4] = strconv.Itoa(record.Rate.Metadata.BaseAssetNumReceivedRates + record.Rate.Metadata.QuoteAssetNumReceivedRates)
			row[5] = strconv.Itoa(record.Rate.Metadata.BaseAssetNumQueriedSources + record.Rate.Metadata.QuoteAssetNumQueriedSources)
		}
		if record.ErrKind != nil {
			row[6] = *record.ErrKind
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	return writer.Error()
}

func writeRecordsPNG(path, pair string, records []Record) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	var (
		x     []time.Time
		rates []float64
	)
	for _, record := range records {
		if record.Rate == nil {
			continue
		}
		x = append(x, record.TsMinute)
		rates = append(rates, float64(record.Rate.Rate)/float64(rate.RateUnit))
	}
	if len(x) == 0 {
		return errors.New("no successful records to chart")
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Rate (" + pair + ")",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.4f")
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    pair,
				XValues: x,
				YValues: rates,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
