package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// dateValue is a pflag.Value parsing YYYY-MM-DD dates
type dateValue struct {
	t   time.Time
	set bool
}

var _ pflag.Value = (*dateValue)(nil)

func newDateValue() *dateValue {
	return &dateValue{}
}

func (d *dateValue) String() string {
	if !d.set {
		return ""
	}
	return d.t.Format("2006-01-02")
}

func (d *dateValue) Set(raw string) error {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return fmt.Errorf("expected YYYY-MM-DD, got %q", raw)
	}
	d.t = t.UTC()
	d.set = true
	return nil
}

func (d *dateValue) Type() string {
	return "date"
}

// dateFlag reads a date flag back out of a cobra flag set
func dateFlag(fs *pflag.FlagSet, name string) (time.Time, bool) {
	flag := fs.Lookup(name)
	if flag == nil {
		return time.Time{}, false
	}
	dv, ok := flag.Value.(*dateValue)
	if !ok || !dv.set {
		return time.Time{}, false
	}
	return dv.t, true
}
