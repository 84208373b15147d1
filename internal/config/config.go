package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/brensch/climatepart/internal/util"
)

// Defaults for keys the configuration document may omit.
const (
	DefaultConfigPath        = "config.json"
	DefaultStationDataPath   = "station_data.csv"
	DefaultOutputDir         = "."
	DefaultWorkbookPath      = "Final_weather_report.xlsx"
	DefaultJoinedCSVPath     = "joined_data.csv"
	DefaultJoinedParquetPath = "joined_data.parquet"
	DefaultDbPath            = "climatepart_state.duckdb"
	DefaultHTTPTimeout       = util.DefaultHTTPTimeout
	DefaultMaxRetries        = 3

	envPrefix = "CLIMATEPART"
)

// Config holds every parameter a run needs. It is loaded once and passed by value.
type Config struct {
	BaseURL   string `mapstructure:"base_url" validate:"required,url"`
	StationID string `mapstructure:"station_id" validate:"required"`
	Timeframe string `mapstructure:"timeframe" validate:"required"`
	Submit    string `mapstructure:"submit"`
	InputYear int    `mapstructure:"input_year" validate:"required,gte=1840,lte=9999"`

	AWSAccessKeyID     string `mapstructure:"aws_access_key_id"`
	AWSSecretAccessKey string `mapstructure:"aws_secret_access_key"`
	Region             string `mapstructure:"region"`
	BucketName         string `mapstructure:"bucket_name"`
	S3Endpoint         string `mapstructure:"s3_endpoint" validate:"omitempty,url"`

	StationDataPath   string        `mapstructure:"station_data_path" validate:"required"`
	OutputDir         string        `mapstructure:"output_dir" validate:"required"`
	WorkbookPath      string        `mapstructure:"workbook_path" validate:"required"`
	JoinedCSVPath     string        `mapstructure:"joined_csv_path"`
	JoinedParquetPath string        `mapstructure:"joined_parquet_path"`
	DbPath            string        `mapstructure:"db_path" validate:"required"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
}

// UploadConfigured reports whether enough object-storage settings exist to attempt uploads.
func (c Config) UploadConfigured() bool {
	return c.BucketName != "" && c.Region != ""
}

// LogValue keeps credentials out of debug logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base_url", c.BaseURL),
		slog.String("station_id", c.StationID),
		slog.String("timeframe", c.Timeframe),
		slog.Int("input_year", c.InputYear),
		slog.String("region", c.Region),
		slog.String("bucket_name", c.BucketName),
		slog.String("s3_endpoint", c.S3Endpoint),
		slog.Bool("credentials_set", c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != ""),
		slog.String("station_data_path", c.StationDataPath),
		slog.String("output_dir", c.OutputDir),
		slog.String("workbook_path", c.WorkbookPath),
		slog.String("db_path", c.DbPath),
		slog.Duration("http_timeout", c.HTTPTimeout),
		slog.Int("max_retries", c.MaxRetries),
	)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the configuration document at path, applies a .env file if one exists next to the
// working directory, then lets CLIMATEPART_* environment variables override document keys.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType(configType(path))
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field constraints and returns a readable list of violations.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("submit", "Download Data")
	v.SetDefault("station_data_path", DefaultStationDataPath)
	v.SetDefault("output_dir", DefaultOutputDir)
	v.SetDefault("workbook_path", DefaultWorkbookPath)
	v.SetDefault("joined_csv_path", DefaultJoinedCSVPath)
	v.SetDefault("joined_parquet_path", DefaultJoinedParquetPath)
	v.SetDefault("db_path", DefaultDbPath)
	v.SetDefault("http_timeout", DefaultHTTPTimeout)
	v.SetDefault("max_retries", DefaultMaxRetries)
	// Bound so AutomaticEnv can supply keys the document leaves out.
	for _, key := range []string{"aws_access_key_id", "aws_secret_access_key", "region", "bucket_name", "s3_endpoint"} {
		v.SetDefault(key, "")
	}
}

func configType(path string) string {
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return "yaml"
	case strings.HasSuffix(path, ".toml"):
		return "toml"
	default:
		return "json"
	}
}
