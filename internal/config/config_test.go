package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validJSON = `{
  "base_url": "https://climate.weather.gc.ca/climate_data/bulk_data_e.html",
  "station_id": "48549",
  "timeframe": "2",
  "submit": "Download+Data",
  "input_year": 2023,
  "aws_access_key_id": "AKIAFILE",
  "aws_secret_access_key": "secret",
  "region": "ca-central-1",
  "bucket_name": "weather-partitions"
}`

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "config.json", validJSON)

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if got.StationID != "48549" {
		t.Errorf("StationID = %q, want %q", got.StationID, "48549")
	}
	if got.InputYear != 2023 {
		t.Errorf("InputYear = %d, want 2023", got.InputYear)
	}
	if got.StationDataPath != DefaultStationDataPath {
		t.Errorf("StationDataPath = %q, want %q", got.StationDataPath, DefaultStationDataPath)
	}
	if got.WorkbookPath != DefaultWorkbookPath {
		t.Errorf("WorkbookPath = %q, want %q", got.WorkbookPath, DefaultWorkbookPath)
	}
	if got.HTTPTimeout != DefaultHTTPTimeout {
		t.Errorf("HTTPTimeout = %v, want %v", got.HTTPTimeout, DefaultHTTPTimeout)
	}
	if got.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", got.MaxRetries, DefaultMaxRetries)
	}
	if !got.UploadConfigured() {
		t.Errorf("UploadConfigured() = false, want true")
	}
}

func TestLoad_EnvOverridesCredentials(t *testing.T) {
	path := writeConfig(t, "config.json", validJSON)
	t.Setenv("CLIMATEPART_AWS_ACCESS_KEY_ID", "AKIAENV")
	t.Setenv("CLIMATEPART_HTTP_TIMEOUT", "5s")

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}
	if got.AWSAccessKeyID != "AKIAENV" {
		t.Errorf("AWSAccessKeyID = %q, want %q", got.AWSAccessKeyID, "AKIAENV")
	}
	if got.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout = %v, want 5s", got.HTTPTimeout)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"base_url": `},
		{name: "missing station", body: `{"base_url": "https://example.com/x", "timeframe": "2", "input_year": 2023}`},
		{name: "missing year", body: `{"base_url": "https://example.com/x", "station_id": "1", "timeframe": "2"}`},
		{name: "bad url", body: `{"base_url": "not a url", "station_id": "1", "timeframe": "2", "input_year": 2023}`},
		{name: "negative retries", body: `{"base_url": "https://example.com/x", "station_id": "1", "timeframe": "2", "input_year": 2023, "max_retries": -1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.json", tt.body)
			if _, err := Load(path); err == nil {
				t.Fatalf("Load() error = nil, want non-nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("Load() error = nil, want non-nil for missing file")
	}
}
