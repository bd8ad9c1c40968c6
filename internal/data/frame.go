package data

import (
	"fmt"
	"sort"
	"time"
)

// Bar represents a single daily price row for one symbol
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PriceFrame holds price rows in ascending timestamp order. Gaps in the
// date axis are allowed; lookups fall back to the most recent prior row.
type PriceFrame struct {
	rows []Bar
}

// NewPriceFrame creates a frame from rows, sorting them into ascending
// timestamp order (stable, so same-timestamp rows keep input order).
func NewPriceFrame(rows []Bar) *PriceFrame {
	sorted := make([]Bar, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return &PriceFrame{rows: sorted}
}

// Len returns the number of rows in the frame
func (f *PriceFrame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.rows)
}

// Rows returns the underlying rows in ascending timestamp order.
// Callers must treat the slice as read-only.
func (f *PriceFrame) Rows() []Bar {
	if f == nil {
		return nil
	}
	return f.rows
}

// UpTo returns a view containing only rows with timestamp <= date.
// The view shares backing storage with the parent frame.
func (f *PriceFrame) UpTo(date time.Time) *PriceFrame {
	if f == nil {
		return &PriceFrame{}
	}
	idx := sort.Search(len(f.rows), func(i int) bool {
		return f.rows[i].Timestamp.After(date)
	})
	return &PriceFrame{rows: f.rows[:idx]}
}

// LatestClose returns the most recent close price for symbol at or before
// date. The second return is false when no such row exists.
func (f *PriceFrame) LatestClose(symbol string, date time.Time) (float64, bool) {
	if f == nil {
		return 0, false
	}
	for i := len(f.rows) - 1; i >= 0; i-- {
		row := f.rows[i]
		if row.Timestamp.After(date) {
			continue
		}
		if row.Symbol == symbol {
			return row.Close, true
		}
	}
	return 0, false
}

// CloseSeries returns the close prices for symbol in chronological order,
// restricted to rows at or before date.
func (f *PriceFrame) CloseSeries(symbol string, date time.Time) []float64 {
	if f == nil {
		return nil
	}
	var series []float64
	for _, row := range f.rows {
		if row.Timestamp.After(date) {
			break
		}
		if row.Symbol == symbol {
			series = append(series, row.Close)
		}
	}
	return series
}

// Symbols returns the distinct symbols present in the frame
func (f *PriceFrame) Symbols() []string {
	if f == nil {
		return nil
	}
	seen := make(map[string]bool)
	var symbols []string
	for _, row := range f.rows {
		if !seen[row.Symbol] {
			seen[row.Symbol] = true
			symbols = append(symbols, row.Symbol)
		}
	}
	return symbols
}

// Dates returns the sorted distinct timestamps in the frame. This is the
// date axis the engine replays.
func (f *PriceFrame) Dates() []time.Time {
	if f == nil {
		return nil
	}
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, row := range f.rows {
		if !seen[row.Timestamp] {
			seen[row.Timestamp] = true
			dates = append(dates, row.Timestamp)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// DatesBetween returns the distinct timestamps within [start, end]
func (f *PriceFrame) DatesBetween(start, end time.Time) []time.Time {
	var out []time.Time
	for _, d := range f.Dates() {
		if d.Before(start) || d.After(end) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Validate checks that rows are in non-decreasing timestamp order and have
// positive close prices.
func (f *PriceFrame) Validate() error {
	for i, row := range f.rows {
		if row.Close <= 0 {
			return fmt.Errorf("row %d (%s @ %s): close price must be positive, got %f",
				i, row.Symbol, row.Timestamp.Format("2006-01-02"), row.Close)
		}
		if i > 0 && row.Timestamp.Before(f.rows[i-1].Timestamp) {
			return fmt.Errorf("row %d: timestamp %s out of order", i,
				row.Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// TechnicalRow represents one row of an indicator table keyed like prices
type TechnicalRow struct {
	Timestamp time.Time          `json:"timestamp"`
	Symbol    string             `json:"symbol"`
	Values    map[string]float64 `json:"values"`
}

// Frame holds technical indicator rows with the same slicing discipline as
// PriceFrame. Strategies read it; the engine never interprets the values.
type Frame struct {
	rows []TechnicalRow
}

// NewFrame creates a technical frame sorted by timestamp
func NewFrame(rows []TechnicalRow) *Frame {
	sorted := make([]TechnicalRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return &Frame{rows: sorted}
}

// UpTo returns a view of rows with timestamp <= date
func (f *Frame) UpTo(date time.Time) *Frame {
	if f == nil {
		return &Frame{}
	}
	idx := sort.Search(len(f.rows), func(i int) bool {
		return f.rows[i].Timestamp.After(date)
	})
	return &Frame{rows: f.rows[:idx]}
}

// Rows returns the rows in ascending timestamp order (read-only)
func (f *Frame) Rows() []TechnicalRow {
	if f == nil {
		return nil
	}
	return f.rows
}

// Holding defines one universe member the engine iterates per date
type Holding struct {
	Symbol string `json:"symbol" yaml:"symbol"`
	Sector string `json:"sector,omitempty" yaml:"sector,omitempty"`
}
