package data

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func TestLoadPricesCSV(t *testing.T) {
	path := writeTemp(t, "prices.csv",
		"timestamp,symbol,open,close,volume\n"+
			"2024-01-02,AAPL,99.5,100.0,1000\n"+
			"2024-01-03,AAPL,100.5,101.5,1200\n"+
			"2024-01-02,MSFT,200.0,201.0,800\n")

	frame, err := LoadPricesCSV(path)
	if err != nil {
		t.Fatalf("LoadPricesCSV failed: %v", err)
	}
	if frame.Len() != 3 {
		t.Fatalf("Expected 3 rows, got %d", frame.Len())
	}

	price, ok := frame.LatestClose("AAPL", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	if !ok || price != 101.5 {
		t.Errorf("Expected close 101.5, got %f ok=%v", price, ok)
	}
	if symbols := frame.Symbols(); len(symbols) != 2 {
		t.Errorf("Expected 2 symbols, got %v", symbols)
	}
}

func TestLoadPricesCSVMissingColumn(t *testing.T) {
	path := writeTemp(t, "prices.csv",
		"timestamp,symbol,open\n2024-01-02,AAPL,99.5\n")

	if _, err := LoadPricesCSV(path); err == nil {
		t.Error("Missing close column must be rejected")
	}
}

func TestLoadPricesCSVBadTimestamp(t *testing.T) {
	path := writeTemp(t, "prices.csv",
		"timestamp,symbol,close\nnot-a-date,AAPL,100\n")

	if _, err := LoadPricesCSV(path); err == nil {
		t.Error("Unparseable timestamp must be rejected")
	}
}

func TestLoadPricesCSVEmpty(t *testing.T) {
	path := writeTemp(t, "prices.csv", "timestamp,symbol,close\n")
	if _, err := LoadPricesCSV(path); err == nil {
		t.Error("Header-only file must be rejected")
	}
}

func TestLoadHoldingsCSV(t *testing.T) {
	path := writeTemp(t, "holdings.csv",
		"symbol,sector\nAAPL,tech\nXOM,energy\n")

	holdings, err := LoadHoldingsCSV(path)
	if err != nil {
		t.Fatalf("LoadHoldingsCSV failed: %v", err)
	}
	if len(holdings) != 2 {
		t.Fatalf("Expected 2 holdings, got %d", len(holdings))
	}
	if holdings[0].Symbol != "AAPL" || holdings[0].Sector != "tech" {
		t.Errorf("Unexpected first holding %+v", holdings[0])
	}
}

func TestLoadHoldingsCSVWithoutSector(t *testing.T) {
	path := writeTemp(t, "holdings.csv", "symbol\nAAPL\n")

	holdings, err := LoadHoldingsCSV(path)
	if err != nil {
		t.Fatalf("LoadHoldingsCSV failed: %v", err)
	}
	if holdings[0].Sector != "" {
		t.Errorf("Expected empty sector, got %q", holdings[0].Sector)
	}
}

func TestParseTimestampFormats(t *testing.T) {
	cases := map[string]time.Time{
		"2024-01-02":           time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		"2024-01-02 15:30:00":  time.Date(2024, 1, 2, 15, 30, 0, 0, time.UTC),
		"2024-01-02T15:30:00Z": time.Date(2024, 1, 2, 15, 30, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		got, err := parseTimestamp(raw)
		if err != nil {
			t.Errorf("parseTimestamp(%q) failed: %v", raw, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", raw, got, want)
		}
	}

	if _, err := parseTimestamp("01/02/2024"); err == nil {
		t.Error("US-style date must be rejected")
	}
}
