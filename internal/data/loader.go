package data

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog/log"
)

// BarRecord is the parquet row schema for price files.
// Timestamps are Unix milliseconds, matching the columnar store layout.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// LoadPricesParquet reads a price frame from a parquet file
func LoadPricesParquet(path string) (*PriceFrame, error) {
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet file %s: %w", path, err)
	}

	rows := make([]Bar, 0, len(records))
	for _, rec := range records {
		rows = append(rows, Bar{
			Timestamp: time.UnixMilli(rec.Timestamp).UTC(),
			Symbol:    rec.Symbol,
			Open:      rec.Open,
			High:      rec.High,
			Low:       rec.Low,
			Close:     rec.Close,
			Volume:    rec.Volume,
		})
	}

	frame := NewPriceFrame(rows)
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("invalid price data in %s: %w", path, err)
	}

	log.Debug().Str("path", path).Int("rows", frame.Len()).Msg("Loaded parquet price frame")
	return frame, nil
}

// LoadPricesCSV reads a price frame from a CSV file with a header row.
// Required columns: timestamp (RFC3339 or YYYY-MM-DD), symbol, close.
// Optional: open, high, low, volume.
func LoadPricesCSV(path string) (*PriceFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("price file %s has no data rows", path)
	}

	col := make(map[string]int)
	for i, name := range records[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"timestamp", "symbol", "close"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("price file %s missing required column %q", path, required)
		}
	}

	rows := make([]Bar, 0, len(records)-1)
	for i, rec := range records[1:] {
		ts, err := parseTimestamp(rec[col["timestamp"]])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		closePrice, err := strconv.ParseFloat(rec[col["close"]], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: bad close price %q", i+1, rec[col["close"]])
		}

		bar := Bar{
			Timestamp: ts,
			Symbol:    strings.TrimSpace(rec[col["symbol"]]),
			Close:     closePrice,
		}
		bar.Open = optionalFloat(rec, col, "open")
		bar.High = optionalFloat(rec, col, "high")
		bar.Low = optionalFloat(rec, col, "low")
		bar.Volume = optionalFloat(rec, col, "volume")
		rows = append(rows, bar)
	}

	frame := NewPriceFrame(rows)
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("invalid price data in %s: %w", path, err)
	}

	log.Debug().Str("path", path).Int("rows", frame.Len()).Msg("Loaded CSV price frame")
	return frame, nil
}

// LoadHoldingsCSV reads the trading universe from a CSV with columns
// symbol and optional sector.
func LoadHoldingsCSV(path string) ([]Holding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open holdings file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse holdings CSV %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("holdings file %s has no data rows", path)
	}

	col := make(map[string]int)
	for i, name := range records[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	symIdx, ok := col["symbol"]
	if !ok {
		return nil, fmt.Errorf("holdings file %s missing required column %q", path, "symbol")
	}

	holdings := make([]Holding, 0, len(records)-1)
	for _, rec := range records[1:] {
		h := Holding{Symbol: strings.TrimSpace(rec[symIdx])}
		if sectorIdx, ok := col["sector"]; ok && sectorIdx < len(rec) {
			h.Sector = strings.TrimSpace(rec[sectorIdx])
		}
		holdings = append(holdings, h)
	}
	return holdings, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

func optionalFloat(rec []string, col map[string]int, name string) float64 {
	idx, ok := col[name]
	if !ok || idx >= len(rec) {
		return 0
	}
	v, err := strconv.ParseFloat(rec[idx], 64)
	if err != nil {
		return 0
	}
	return v
}
