package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/seismometer/toolbox/internal/hailerter"
	"github.com/seismometer/toolbox/internal/history"
)

// runMain is the main-loop entrypoint (spec §6 hailerter flags): it builds
// a Tracker from the parsed flags and drives stdin/stdout through a
// MainLoop until EOF, a terminating signal, or a broken output pipe.
func runMain(f *RunFlags, socket string) error {
	log := buildLogger(f.LogLevel)

	hist, err := history.Open(f.HistoryDB)
	if err != nil {
		return fmt.Errorf("startup: open history db: %w", err)
	}
	defer func() { _ = hist.Close() }()

	reg := prometheus.NewRegistry()
	metrics, err := hailerter.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("startup: register metrics: %w", err)
	}

	tracker := hailerter.NewTracker(hailerter.Options{
		WarningExpected:  f.WarningExpected,
		SkipInitialError: f.SkipInitialError,
		RemindInterval:   f.RemindInterval,
		DefaultInterval:  f.DefaultInterval,
		Missing:          f.Missing,
		FlapWindow:       f.FlapWindow,
		FlapThreshold:    f.FlapThreshold,
	})

	ml, err := hailerter.NewMainLoop(tracker, socket, log)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	ml.WithMetrics(metrics).WithHistory(hist)

	if f.HTTPAddr != "" {
		srv := hailerter.NewServer(f.HTTPAddr, socket)
		defer func() { _ = srv.Close() }()
	}

	return ml.Run(context.Background(), os.Stdin, os.Stdout)
}

func buildLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
