package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	_ pflag.Value = (*durationValue)(nil)
	_ pflag.Value = (*fractionValue)(nil)
)

// durationValue implements pflag.Value for hailerter's duration syntax
// (spec §6): a plain positive integer (seconds) or an integer with suffix
// s/m/h. Custom rather than cobra's built-in --duration flag because the
// spec's syntax is a strict subset of Go's time.ParseDuration (no
// fractional or compound values like "1h30m").
type durationValue struct {
	d *time.Duration
}

func newDurationValue(d *time.Duration, def time.Duration) *durationValue {
	*d = def
	return &durationValue{d: d}
}

func (v *durationValue) String() string {
	if v.d == nil {
		return "0s"
	}
	return v.d.String()
}

func (v *durationValue) Type() string { return "duration" }

func (v *durationValue) Set(s string) error {
	if s == "" {
		return fmt.Errorf("empty duration")
	}
	unit := time.Second
	numeric := s
	switch s[len(s)-1] {
	case 's':
		numeric = s[:len(s)-1]
	case 'm':
		unit = time.Minute
		numeric = s[:len(s)-1]
	case 'h':
		unit = time.Hour
		numeric = s[:len(s)-1]
	}
	n, err := strconv.Atoi(numeric)
	if err != nil {
		return fmt.Errorf("invalid duration %q: integer seconds, or integer with suffix s/m/h", s)
	}
	if n <= 0 {
		return fmt.Errorf("invalid duration %q: must be positive", s)
	}
	*v.d = time.Duration(n) * unit
	return nil
}

// fractionValue implements pflag.Value for a real number in [0.0, 1.0]
// (spec §6 fraction syntax, used by --flapping-threshold).
type fractionValue struct {
	f *float64
}

func newFractionValue(f *float64, def float64) *fractionValue {
	*f = def
	return &fractionValue{f: f}
}

func (v *fractionValue) String() string {
	if v.f == nil {
		return "0"
	}
	return strconv.FormatFloat(*v.f, 'g', -1, 64)
}

func (v *fractionValue) Type() string { return "fraction" }

func (v *fractionValue) Set(s string) error {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid fraction %q: %w", s, err)
	}
	if n < 0 || n > 1 {
		return fmt.Errorf("invalid fraction %q: must be in [0.0, 1.0]", s)
	}
	*v.f = n
	return nil
}

// ClientFlags holds the flags shared by every client-mode subcommand.
type ClientFlags struct {
	Socket string
}

// RunFlags holds the main-loop flags (spec §6 hailerter flags). Socket is
// shared with ClientFlags via the root command's persistent --socket flag.
type RunFlags struct {
	SkipInitialError bool
	RemindInterval   time.Duration
	WarningExpected  bool
	DefaultInterval  time.Duration
	Missing          int
	FlapWindow       int
	FlapThreshold    float64
	LogLevel         string
	HTTPAddr         string
	HistoryDB        string
}

func registerRunFlags(cmd *cobra.Command, f *RunFlags) {
	cmd.Flags().BoolVar(&f.SkipInitialError, "skip-initial-error", false, "do not notify on a flow's first-ever error observation")
	cmd.Flags().Var(newDurationValue(&f.RemindInterval, 0), "remind-interval", "minimum interval between repeat notifications for an unchanged status (e.g. 5m, 30s)")
	cmd.Flags().BoolVar(&f.WarningExpected, "warning-expected", false, "treat severity=warning as ok rather than error")
	cmd.Flags().Var(newDurationValue(&f.DefaultInterval, 0), "default-interval", "assumed message interval when a message omits its own `interval` field")
	cmd.Flags().IntVar(&f.Missing, "missing", 0, "multiplier on the interval after which a silent flow is declared missing; 0 disables missing detection")
	cmd.Flags().IntVar(&f.FlapWindow, "flapping-window", 10, "number of recent status changes tracked for flap detection")
	cmd.Flags().Var(newFractionValue(&f.FlapThreshold, 0.5), "flapping-threshold", "fraction of the flapping window that must be changes for a flow to be reported as flapping")
	cmd.Flags().StringVar(&f.LogLevel, "log-level", "info", "slog level: debug, info, warn, error")
	cmd.Flags().StringVar(&f.HTTPAddr, "http-addr", "", "optional debug/metrics HTTP address (e.g. 127.0.0.1:9101)")
	cmd.Flags().StringVar(&f.HistoryDB, "history-db", "", "optional SQLite file recording flow notification history")
}
