// Package fetcher downloads one year of daily observations for a station and keeps
// the rows that belong to that year and carry a max temperature.
package fetcher

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/brensch/climatepart/internal/table"
	"github.com/brensch/climatepart/internal/util"
)

const userAgent = "climatepart/0.1 (Go-client)"

// BreakerThreshold is how many consecutive failed years open the circuit breaker. It is
// larger than one run's window, so a single run always requests every year.
const BreakerThreshold = 5

var (
	// ErrTransport covers network failures, non-200 responses, timeouts and an open breaker.
	ErrTransport = errors.New("transport failure")
	// ErrMalformed covers bodies that are not the expected CSV table.
	ErrMalformed = errors.New("malformed response")
)

// BackoffConfig controls exponential backoff between attempts.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Options configures a Fetcher.
type Options struct {
	BaseURL   string
	StationID string
	Timeframe string
	Submit    string

	Client  *http.Client
	Backoff BackoffConfig

	// RequiredColumns must all be present in the header, on top of Year and the max temperature.
	RequiredColumns []string
}

// YearResult is the filtered content of one year's response.
type YearResult struct {
	Year    int
	URL     string
	Header  []string
	Rows    [][]string
	RawRows int // data rows before filtering
}

// Fetcher issues one logical request per year. Attempts are sequential.
type Fetcher struct {
	opts    Options
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// New returns a Fetcher with a circuit breaker named after the station.
func New(opts Options, logger *slog.Logger) *Fetcher {
	if opts.Client == nil {
		opts.Client = util.DefaultHTTPClient(0)
	}
	if opts.Backoff.InitialInterval <= 0 {
		opts.Backoff.InitialInterval = 500 * time.Millisecond
	}
	if opts.Backoff.MaxInterval <= 0 {
		opts.Backoff.MaxInterval = 10 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "weather-" + opts.StationID,
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= BreakerThreshold
		},
	})
	return &Fetcher{opts: opts, circuit: cb, logger: logger}
}

// URL builds the request URL for a year.
func (f *Fetcher) URL(year int) (string, error) {
	u, err := url.Parse(f.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", f.opts.BaseURL, err)
	}
	q := u.Query()
	q.Set("format", "csv")
	q.Set("stationID", f.opts.StationID)
	q.Set("Year", strconv.Itoa(year))
	q.Set("timeframe", f.opts.Timeframe)
	q.Set("submit", f.opts.Submit)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchYear downloads and filters one year. Errors wrap ErrTransport or ErrMalformed.
func (f *Fetcher) FetchYear(ctx context.Context, year int) (YearResult, error) {
	res := YearResult{Year: year}
	u, err := f.URL(year)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	res.URL = u

	body, err := f.download(ctx, u)
	if err != nil {
		return res, fmt.Errorf("%w: year %d: %w", ErrTransport, year, err)
	}

	header, rows, raw, err := f.parse(body, year)
	if err != nil {
		return res, fmt.Errorf("%w: year %d: %w", ErrMalformed, year, err)
	}
	res.Header, res.Rows, res.RawRows = header, rows, raw
	return res, nil
}

// download runs the whole retry sequence for one URL as a single breaker call, so a
// year counts once toward BreakerThreshold however many attempts it took.
func (f *Fetcher) download(ctx context.Context, u string) ([]byte, error) {
	out, err := f.circuit.Execute(func() (interface{}, error) {
		return f.attempt(ctx, u)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("circuit breaker open: %w", err)
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// attempt retries retryable failures with exponential backoff.
func (f *Fetcher) attempt(ctx context.Context, u string) ([]byte, error) {
	b := f.opts.Backoff
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "text/csv,*/*")
		req.Header.Set("Accept-Language", "en-CA,en;q=0.9")

		body, err := util.DownloadFile(f.opts.Client, req)
		if err == nil {
			return body, nil
		}
		if !util.IsRetryable(err) || n >= b.MaxRetries || ctx.Err() != nil {
			return nil, err
		}

		delay := b.InitialInterval * time.Duration(math.Pow(2, float64(n)))
		if delay > b.MaxInterval {
			delay = b.MaxInterval
		}
		f.logger.Warn("Fetch attempt failed, retrying.", "url", u, "attempt", n+1, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (f *Fetcher) parse(body []byte, year int) ([]string, [][]string, int, error) {
	body = util.StripBOM(body)
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil, 0, errors.New("empty body")
	}
	if util.LooksLikeHTML(body) {
		if title := util.HTMLTitle(body); title != "" {
			return nil, nil, 0, fmt.Errorf("got HTML page %q instead of CSV", title)
		}
		return nil, nil, 0, errors.New("got HTML page instead of CSV")
	}

	cr := csv.NewReader(bytes.NewReader(body))
	cr.FieldsPerRecord = -1
	data, err := cr.ReadAll()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("parse csv: %w", err)
	}
	header := data[0]

	yearIdx := slices.Index(header, table.ColYear)
	if yearIdx < 0 {
		return nil, nil, 0, fmt.Errorf("missing column %q", table.ColYear)
	}
	tempIdx := slices.Index(header, table.ColMaxTemp)
	if tempIdx < 0 {
		return nil, nil, 0, fmt.Errorf("missing column %q", table.ColMaxTemp)
	}
	if missing := table.HasColumns(header, f.opts.RequiredColumns); missing != "" {
		return nil, nil, 0, fmt.Errorf("missing column %q", missing)
	}

	want := strconv.Itoa(year)
	kept := make([][]string, 0, len(data)-1)
	for i, row := range data[1:] {
		if len(row) > len(header) {
			return nil, nil, 0, fmt.Errorf("row %d has %d fields, header has %d", i+2, len(row), len(header))
		}
		if field(row, yearIdx) == want && field(row, tempIdx) != "" {
			kept = append(kept, row)
		}
	}
	return header, kept, len(data) - 1, nil
}

func field(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
