package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/brensch/climatepart/internal/logging"
)

const sampleCSV = "\xEF\xBB\xBF\"Station Name\",\"Climate ID\",\"Year\",\"Month\",\"Max Temp (°C)\"\n" +
	"\"TORONTO CITY\",\"6158355\",\"2023\",\"01\",\"5.1\"\n" +
	"\"TORONTO CITY\",\"6158355\",\"2023\",\"01\",\"\"\n" +
	"\"TORONTO CITY\",\"6158355\",\"2024\",\"01\",\"3.0\"\n" +
	"\"TORONTO CITY\",\"6158355\",\"2023\",\"02\",\"-2.4\"\n"

func newTestFetcher(srvURL string, retries int) *Fetcher {
	return New(Options{
		BaseURL:   srvURL + "/climate_data/bulk_data_e.html",
		StationID: "31688",
		Timeframe: "2",
		Submit:    "Download Data",
		Client:    &http.Client{Timeout: 2 * time.Second},
		Backoff:   BackoffConfig{MaxRetries: retries, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	}, logging.Discard())
}

func TestFetchYear_FiltersYearAndMissingTemperature(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		fmt.Fprint(w, sampleCSV)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, 0)
	res, err := f.FetchYear(context.Background(), 2023)
	if err != nil {
		t.Fatalf("FetchYear() error = %v", err)
	}

	if res.Header[0] != "Station Name" {
		t.Errorf("Header[0] = %q, want BOM stripped %q", res.Header[0], "Station Name")
	}
	if res.RawRows != 4 {
		t.Errorf("RawRows = %d, want 4", res.RawRows)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(res.Rows))
	}
	for _, row := range res.Rows {
		if row[2] != "2023" || row[4] == "" {
			t.Errorf("row %v violates filter", row)
		}
	}
	if res.Rows[0][4] != "5.1" || res.Rows[1][4] != "-2.4" {
		t.Errorf("response order not preserved: %v", res.Rows)
	}

	q := gotQuery.Load().(url.Values)
	want := map[string]string{"format": "csv", "stationID": "31688", "Year": "2023", "timeframe": "2", "submit": "Download Data"}
	for k, v := range want {
		if len(q[k]) != 1 || q[k][0] != v {
			t.Errorf("query %s = %v, want %q", k, q[k], v)
		}
	}
}

func TestFetchYear_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		required []string
	}{
		{name: "empty body", body: ""},
		{name: "missing temperature column", body: "\"Year\",\"Month\"\n\"2023\",\"01\"\n"},
		{name: "missing year column", body: "\"Max Temp (°C)\"\n\"1\"\n"},
		{name: "missing required column", body: sampleCSV, required: []string{"Total Precip (mm)"}},
		{name: "html page", body: "<!DOCTYPE html><html><head><title>Invalid request</title></head><body></body></html>"},
		{name: "long row", body: "\"Year\",\"Max Temp (°C)\"\n\"2023\",\"1\",\"extra\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			f := newTestFetcher(srv.URL, 0)
			f.opts.RequiredColumns = tt.required
			_, err := f.FetchYear(context.Background(), 2023)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("FetchYear() error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestFetchYear_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, sampleCSV)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, 3)
	res, err := f.FetchYear(context.Background(), 2023)
	if err != nil {
		t.Fatalf("FetchYear() error = %v", err)
	}
	if len(res.Rows) != 2 {
		t.Errorf("len(Rows) = %d, want 2", len(res.Rows))
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestFetchYear_TransportFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, 3)
	_, err := f.FetchYear(context.Background(), 2023)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("FetchYear() error = %v, want ErrTransport", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("404 retried: calls = %d, want 1", got)
	}

	srv.Close()
	_, err = f.FetchYear(context.Background(), 2022)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("FetchYear() on closed server error = %v, want ErrTransport", err)
	}
}

func TestFetchYear_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, 0)
	f.opts.Client = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := f.FetchYear(context.Background(), 2023)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("FetchYear() error = %v, want ErrTransport on timeout", err)
	}
}

func TestURL_KeepsBaseQuery(t *testing.T) {
	f := New(Options{BaseURL: "https://example.com/bulk?lang=e", StationID: "1", Timeframe: "2", Submit: "Download Data"}, logging.Discard())
	u, err := f.URL(2021)
	if err != nil {
		t.Fatalf("URL() error = %v", err)
	}
	for _, part := range []string{"lang=e", "format=csv", "stationID=1", "Year=2021", "timeframe=2", "submit=Download+Data"} {
		if !strings.Contains(u, part) {
			t.Errorf("URL() = %q, missing %q", u, part)
		}
	}
}

func TestFetchYear_BreakerCountsYearsNotAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	const retries = 3
	f := newTestFetcher(srv.URL, retries)
	for i := 0; i < BreakerThreshold; i++ {
		year := 2000 + i
		before := calls.Load()
		_, err := f.FetchYear(context.Background(), year)
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("FetchYear(%d) error = %v, want ErrTransport", year, err)
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			t.Fatalf("FetchYear(%d) tripped the breaker after %d failed years", year, i)
		}
		if got := calls.Load() - before; got != retries+1 {
			t.Errorf("FetchYear(%d) sent %d requests, want %d", year, got, retries+1)
		}
	}

	before := calls.Load()
	_, err := f.FetchYear(context.Background(), 2100)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("FetchYear() after %d failed years error = %v, want open breaker", BreakerThreshold, err)
	}
	if got := calls.Load(); got != before {
		t.Errorf("open breaker still sent %d requests", got-before)
	}
}
