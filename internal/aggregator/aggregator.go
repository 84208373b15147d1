// Package aggregator drives the fetcher across the three-year window and concatenates
// the filtered rows under one header.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/brensch/climatepart/internal/fetcher"
	"github.com/brensch/climatepart/internal/table"
)

// Window is the number of years fetched, ending at the input year.
const Window = 3

// ErrHeaderMismatch means two successfully fetched years disagree on their columns.
var ErrHeaderMismatch = errors.New("header mismatch between years")

// YearFetcher is satisfied by *fetcher.Fetcher.
type YearFetcher interface {
	FetchYear(ctx context.Context, year int) (fetcher.YearResult, error)
}

// YearOutcome records what happened to one year of the window.
type YearOutcome struct {
	Year     int
	Rows     int
	RawRows  int
	Err      error
	Duration time.Duration
}

// Report summarises the fetch window.
type Report struct {
	Years []YearOutcome
}

// Failed counts years that contributed nothing because of an error.
func (r Report) Failed() int {
	n := 0
	for _, y := range r.Years {
		if y.Err != nil {
			n++
		}
	}
	return n
}

// Err joins the per-year errors.
func (r Report) Err() error {
	var errs []error
	for _, y := range r.Years {
		if y.Err != nil {
			errs = append(errs, fmt.Errorf("year %d: %w", y.Year, y.Err))
		}
	}
	return errors.Join(errs...)
}

// Years lists the years fetched for inputYear, ascending.
func Years(inputYear int) []int {
	out := make([]int, 0, Window)
	for y := inputYear - (Window - 1); y <= inputYear; y++ {
		out = append(out, y)
	}
	return out
}

// Aggregate fetches each year in ascending order. A failed year is logged and contributes no rows.
// The first successful header is authoritative; a later year with a different header aborts with
// ErrHeaderMismatch. onYear, if set, is called after each year.
func Aggregate(ctx context.Context, f YearFetcher, inputYear int, logger *slog.Logger, onYear func(YearOutcome)) (*table.Table, Report, error) {
	combined := &table.Table{}
	var report Report

	for _, year := range Years(inputYear) {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		l := logger.With(slog.Int("year", year))
		start := time.Now()
		res, err := f.FetchYear(ctx, year)
		outcome := YearOutcome{Year: year, RawRows: res.RawRows, Duration: time.Since(start)}

		if err != nil {
			if ctx.Err() != nil {
				return nil, report, ctx.Err()
			}
			outcome.Err = err
			l.Warn("Failed to download data for year.", "error", err)
			report.Years = append(report.Years, outcome)
			if onYear != nil {
				onYear(outcome)
			}
			continue
		}

		if combined.Header == nil {
			combined.Header = slices.Clone(res.Header)
		} else if !slices.Equal(combined.Header, res.Header) {
			outcome.Err = fmt.Errorf("%w: year %d has %d columns %v, expected %d columns %v",
				ErrHeaderMismatch, year, len(res.Header), res.Header, len(combined.Header), combined.Header)
			report.Years = append(report.Years, outcome)
			if onYear != nil {
				onYear(outcome)
			}
			return nil, report, outcome.Err
		}

		records, err := table.FromRows(combined.Header, res.Rows)
		if err != nil {
			// The fetcher already rejects long rows, so this is a programming error.
			return nil, report, fmt.Errorf("year %d: %w", year, err)
		}
		combined.Records = append(combined.Records, records...)
		outcome.Rows = len(records)
		report.Years = append(report.Years, outcome)
		l.Info("Data downloaded for year.", slog.Int("rows_kept", outcome.Rows), slog.Int("rows_received", outcome.RawRows),
			slog.Duration("duration", outcome.Duration.Round(time.Millisecond)))
		if onYear != nil {
			onYear(outcome)
		}
	}

	logger.Info("Fetch window complete.", slog.Int("rows", combined.Len()), slog.Int("failed_years", report.Failed()))
	return combined, report, nil
}
