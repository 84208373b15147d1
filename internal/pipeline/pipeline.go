// Package pipeline runs one extract, join and partition cycle and publishes the result to both sinks.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/brensch/climatepart/internal/aggregator"
	"github.com/brensch/climatepart/internal/artifact"
	"github.com/brensch/climatepart/internal/config"
	"github.com/brensch/climatepart/internal/db"
	"github.com/brensch/climatepart/internal/fetcher"
	"github.com/brensch/climatepart/internal/join"
	"github.com/brensch/climatepart/internal/partition"
	"github.com/brensch/climatepart/internal/stations"
	"github.com/brensch/climatepart/internal/storage"
	"github.com/brensch/climatepart/internal/table"
	"github.com/brensch/climatepart/internal/util"
	"github.com/brensch/climatepart/internal/workbook"
)

// Deps are the collaborators a run talks to.
type Deps struct {
	Fetcher aggregator.YearFetcher
	// Uploader is nil when uploads are skipped.
	Uploader storage.Uploader
	// DB receives the run event log. Nil disables it.
	DB *sql.DB
}

// Result is everything a run produced.
type Result struct {
	RunID     string
	InputYear int

	Fetch    aggregator.Report
	Stations int
	Join     join.Stats

	CSVPath     string
	ParquetPath string
	ParquetRows int
	ArtifactErr error

	Partitions    int
	Upload        storage.Summary
	UploadSkipped bool

	Workbook    workbook.Summary
	WorkbookErr error

	Duration time.Duration
}

// Err joins the non-fatal failures of the publishing stages.
func (r Result) Err() error {
	var errs []error
	if r.ArtifactErr != nil {
		errs = append(errs, fmt.Errorf("artifacts: %w", r.ArtifactErr))
	}
	if err := r.Upload.Err(); err != nil {
		errs = append(errs, fmt.Errorf("upload: %w", err))
	}
	if r.WorkbookErr != nil {
		errs = append(errs, fmt.Errorf("workbook: %w", r.WorkbookErr))
	}
	return errors.Join(errs...)
}

// fixedSteps counts every step except uploads: the fetch window, stations, join, two artifacts,
// partition and workbook.
const fixedSteps = aggregator.Window + 6

// NewFetcher builds the production fetcher from cfg.
func NewFetcher(cfg config.Config, logger *slog.Logger) *fetcher.Fetcher {
	return fetcher.New(fetcher.Options{
		BaseURL:         cfg.BaseURL,
		StationID:       cfg.StationID,
		Timeframe:       cfg.Timeframe,
		Submit:          cfg.Submit,
		Client:          util.DefaultHTTPClient(cfg.HTTPTimeout),
		Backoff:         fetcher.BackoffConfig{MaxRetries: cfg.MaxRetries},
		RequiredColumns: join.WeatherColumns,
	}, logger)
}

// NewUploader builds the S3 uploader from cfg.
func NewUploader(cfg config.Config) (*storage.S3Uploader, error) {
	return storage.NewS3Uploader(storage.S3Config{
		Region:          cfg.Region,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Endpoint:        cfg.S3Endpoint,
	})
}

type runner struct {
	cfg     config.Config
	deps    Deps
	logger  *slog.Logger
	events  chan<- Event
	runID   string
	current int
	total   int
}

// Run executes the stages in order. It returns an error only for fatal conditions: an unreadable
// station file, mismatched headers across years, or cancellation. Non-fatal failures are in Result.
// events, if non-nil, receives progress and is not closed.
func Run(ctx context.Context, cfg config.Config, deps Deps, logger *slog.Logger, events chan<- Event) (Result, error) {
	r := &runner{
		cfg:    cfg,
		deps:   deps,
		events: events,
		runID:  uuid.NewString(),
		total:  fixedSteps,
	}
	r.logger = logger.With(slog.String("run_id", r.runID))
	start := time.Now()
	res := Result{RunID: r.runID, InputYear: cfg.InputYear}

	r.logger.Info("Starting run.", slog.Int("input_year", cfg.InputYear), slog.String("station_id", cfg.StationID))
	r.log(ctx, db.StageRun, strconv.Itoa(cfg.InputYear), db.EventStart, "", nil)

	err := r.run(ctx, &res)
	res.Duration = time.Since(start)
	switch {
	case err != nil:
		r.log(ctx, db.StageRun, strconv.Itoa(cfg.InputYear), db.EventError, err.Error(), &res.Duration)
		r.logger.Error("Run failed.", "error", err)
	case res.Err() != nil:
		r.log(ctx, db.StageRun, strconv.Itoa(cfg.InputYear), db.EventError, res.Err().Error(), &res.Duration)
		r.logger.Warn("Run finished with failures.", "error", res.Err(), slog.Duration("duration", res.Duration.Round(time.Millisecond)))
	default:
		r.log(ctx, db.StageRun, strconv.Itoa(cfg.InputYear), db.EventEnd, "", &res.Duration)
		r.logger.Info("Run complete.", slog.Duration("duration", res.Duration.Round(time.Millisecond)))
	}
	return res, err
}

func (r *runner) run(ctx context.Context, res *Result) error {
	// Fetch window.
	weather, report, err := aggregator.Aggregate(ctx, r.deps.Fetcher, r.cfg.InputYear, r.logger, func(o aggregator.YearOutcome) {
		subject := strconv.Itoa(o.Year)
		if o.Err != nil {
			r.step(ctx, db.StageFetch, subject, StatusFailed, o.Err.Error(), o.Duration)
			return
		}
		r.step(ctx, db.StageFetch, subject, StatusDone, fmt.Sprintf("%d rows kept of %d", o.Rows, o.RawRows), o.Duration)
	})
	res.Fetch = report
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	// Station metadata.
	t := time.Now()
	stationTable, err := stations.Load(r.cfg.StationDataPath, join.StationColumns)
	if err != nil {
		r.step(ctx, db.StageStations, r.cfg.StationDataPath, StatusFailed, err.Error(), time.Since(t))
		return fmt.Errorf("stations: %w", err)
	}
	idx := stations.NewIndex(stationTable.Records)
	res.Stations = idx.Len()
	if idx.Duplicates() > 0 {
		r.logger.Warn("Station file has duplicate Climate IDs, first row wins.", slog.Int("duplicates", idx.Duplicates()))
	}
	r.step(ctx, db.StageStations, r.cfg.StationDataPath, StatusDone, fmt.Sprintf("%d stations", idx.Len()), time.Since(t))

	if err := ctx.Err(); err != nil {
		return err
	}

	// Join.
	t = time.Now()
	joined, stats := join.Join(weather.Records, idx)
	res.Join = stats
	if stats.Unmatched > 0 {
		r.logger.Info("Dropped weather rows with no station.", slog.Int("rows", stats.Unmatched), slog.Any("climate_ids", stats.UnmatchedIDs))
	}
	r.logger.Info("Join complete.", slog.Int("input", stats.Input), slog.Int("joined", stats.Joined))
	r.step(ctx, db.StageJoin, "weather", StatusDone, fmt.Sprintf("%d of %d rows joined", stats.Joined, stats.Input), time.Since(t))

	fieldnames := join.Fieldnames()

	// Write-only artifacts.
	res.ArtifactErr = r.writeArtifacts(ctx, res, fieldnames, joined)

	if err := ctx.Err(); err != nil {
		return err
	}

	// Partition.
	t = time.Now()
	pt := partition.Build(joined)
	res.Partitions = pt.Count()
	r.total += res.Partitions
	r.logger.Info("Partitioning complete.", slog.Int("stations", len(pt.Stations())), slog.Int("partitions", res.Partitions))
	r.step(ctx, db.StagePartition, "joined", StatusDone, fmt.Sprintf("%d partitions", res.Partitions), time.Since(t))

	// Object storage.
	pub := &storage.Publisher{
		OutputDir:  r.cfg.OutputDir,
		Bucket:     r.cfg.BucketName,
		Fieldnames: fieldnames,
		Uploader:   r.deps.Uploader,
		Logger:     r.logger.With(slog.String("stage", db.StageUpload)),
		OnPartition: func(p storage.PartitionResult) {
			switch {
			case p.Err != nil:
				r.step(ctx, db.StageUpload, p.ObjectKey, StatusFailed, p.Err.Error(), p.Duration)
			case !p.Uploaded:
				r.step(ctx, db.StageUpload, p.ObjectKey, StatusSkipped, "written locally only", p.Duration)
			default:
				r.step(ctx, db.StageUpload, p.ObjectKey, StatusDone, fmt.Sprintf("%d rows", p.Rows), p.Duration)
			}
		},
	}
	res.UploadSkipped = r.deps.Uploader == nil
	res.Upload = pub.Publish(ctx, pt)
	for _, p := range res.Upload.Results {
		if errors.Is(p.Err, context.Canceled) || errors.Is(p.Err, context.DeadlineExceeded) {
			return p.Err
		}
	}

	// Workbook, independent of upload outcome.
	t = time.Now()
	res.Workbook, res.WorkbookErr = workbook.Write(r.cfg.WorkbookPath, fieldnames, pt, r.logger)
	if res.WorkbookErr != nil {
		r.logger.Error("Failed to write workbook.", "path", r.cfg.WorkbookPath, "error", res.WorkbookErr)
		r.step(ctx, db.StageWorkbook, r.cfg.WorkbookPath, StatusFailed, res.WorkbookErr.Error(), time.Since(t))
	} else {
		r.step(ctx, db.StageWorkbook, r.cfg.WorkbookPath, StatusDone, fmt.Sprintf("%d sheets", len(res.Workbook.Sheets)), time.Since(t))
	}
	return nil
}

func (r *runner) writeArtifacts(ctx context.Context, res *Result, fieldnames []string, joined []table.Record) error {
	var errs error

	if path := r.cfg.JoinedCSVPath; path != "" {
		t := time.Now()
		if err := artifact.WriteCSV(path, fieldnames, joined); err != nil {
			r.logger.Error("Failed to write joined CSV.", "path", path, "error", err)
			r.step(ctx, db.StageArtifact, path, StatusFailed, err.Error(), time.Since(t))
			errs = errors.Join(errs, err)
		} else {
			res.CSVPath = path
			r.logger.Info("Joined data written.", slog.String("path", path), slog.Int("rows", len(joined)))
			r.step(ctx, db.StageArtifact, path, StatusDone, fmt.Sprintf("%d rows", len(joined)), time.Since(t))
		}
	} else {
		r.step(ctx, db.StageArtifact, "csv", StatusSkipped, "no path configured", 0)
	}

	if path := r.cfg.JoinedParquetPath; path != "" {
		t := time.Now()
		n, err := artifact.WriteParquet(path, fieldnames, joined, r.logger)
		if err != nil {
			r.logger.Error("Failed to write joined parquet.", "path", path, "error", err)
			r.step(ctx, db.StageArtifact, path, StatusFailed, err.Error(), time.Since(t))
			errs = errors.Join(errs, err)
		} else {
			res.ParquetPath, res.ParquetRows = path, n
			r.logger.Info("Joined parquet written.", slog.String("path", path), slog.Int("rows", n))
			r.step(ctx, db.StageArtifact, path, StatusDone, fmt.Sprintf("%d rows", n), time.Since(t))
		}
	} else {
		r.step(ctx, db.StageArtifact, "parquet", StatusSkipped, "no path configured", 0)
	}
	return errs
}

// step records a finished step in the event log and forwards it to the progress channel.
func (r *runner) step(ctx context.Context, stage, subject string, status Status, message string, d time.Duration) {
	r.current++
	event := db.EventEnd
	switch status {
	case StatusFailed:
		event = db.EventError
	case StatusSkipped:
		event = db.EventSkip
	}
	r.log(ctx, stage, subject, event, message, &d)
	r.emit(ctx, Event{Stage: stage, Subject: subject, Status: status, Message: message, Duration: d, Current: r.current, Total: r.total})
}

func (r *runner) emit(ctx context.Context, e Event) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- e:
	case <-ctx.Done():
	}
}

func (r *runner) log(ctx context.Context, stage, subject, event, message string, d *time.Duration) {
	if r.deps.DB == nil {
		return
	}
	// The event log must survive a cancelled run.
	if err := db.LogEvent(context.WithoutCancel(ctx), r.deps.DB, r.runID, stage, subject, event, message, d); err != nil {
		r.logger.Warn("Failed to record run event.", "stage", stage, "subject", subject, "error", err)
	}
}
