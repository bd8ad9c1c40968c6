package harness

import (
	"context"
	"testing"
	"time"
)

func TestPartitionWindows(t *testing.T) {
	start := testStart
	end := start.AddDate(0, 0, 100)

	windows, err := Partition(start, end, 60, 20)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("Expected 2 windows over 100 days (train=60, test=20), got %d", len(windows))
	}

	for i, w := range windows {
		if w.Index != i {
			t.Errorf("Window %d has index %d", i, w.Index)
		}
		if !w.TestStart.Equal(w.TrainEnd) {
			t.Errorf("Window %d: test must start where training ends", i)
		}
		if gotTrain := w.TrainEnd.Sub(w.TrainStart); gotTrain != 60*24*time.Hour {
			t.Errorf("Window %d: train span %v", i, gotTrain)
		}
		if gotTest := w.TestEnd.Sub(w.TestStart); gotTest != 20*24*time.Hour {
			t.Errorf("Window %d: test span %v", i, gotTest)
		}
	}

	// Consecutive test windows are contiguous and non-overlapping
	if !windows[1].TestStart.Equal(windows[0].TestEnd) {
		t.Error("Second test window must begin where the first ends")
	}
	if !windows[1].TestEnd.Equal(end) {
		t.Errorf("Last window must end at range end, got %s", windows[1].TestEnd)
	}
}

func TestPartitionRejectsBadArgs(t *testing.T) {
	start := testStart
	end := start.AddDate(0, 0, 100)

	if _, err := Partition(start, end, 0, 20); err == nil {
		t.Error("Zero train days must be rejected")
	}
	if _, err := Partition(start, end, 60, -1); err == nil {
		t.Error("Negative test days must be rejected")
	}
	if _, err := Partition(end, start, 60, 20); err == nil {
		t.Error("Inverted range must be rejected")
	}
}

func TestPartitionRangeTooShort(t *testing.T) {
	start := testStart
	end := start.AddDate(0, 0, 30)

	windows, err := Partition(start, end, 60, 20)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if len(windows) != 0 {
		t.Errorf("Expected no windows for a 30-day range, got %d", len(windows))
	}
}

func TestWalkForwardRunsTestWindows(t *testing.T) {
	cfg := testHarnessConfig(120)

	results, err := WalkForward(context.Background(), cfg, 60, 20)
	if err != nil {
		t.Fatalf("WalkForward failed: %v", err)
	}
	// 119-day range: test windows end at day 80 and day 100; day 120 overruns
	if len(results) != 2 {
		t.Fatalf("Expected 2 window results, got %d", len(results))
	}

	for i, wr := range results {
		if wr.Window.Index != i {
			t.Errorf("Result %d carries window index %d", i, wr.Window.Index)
		}
		if _, ok := wr.Metrics["sharpe"]; !ok {
			t.Errorf("Window %d missing sharpe metric", i)
		}
	}
}

func TestWalkForwardShortRange(t *testing.T) {
	cfg := testHarnessConfig(30)

	results, err := WalkForward(context.Background(), cfg, 60, 20)
	if err != nil {
		t.Fatalf("WalkForward failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results for a short range, got %d", len(results))
	}
}
