// Package storage writes one CSV per (station, year) partition and uploads it to object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/brensch/climatepart/internal/partition"
	"github.com/brensch/climatepart/internal/table"
)

// PartitionResult is the outcome for one partition.
type PartitionResult struct {
	Key       partition.Key
	LocalPath string
	ObjectKey string
	Rows      int
	Written   bool
	Uploaded  bool
	Err       error
	Duration  time.Duration
}

// Summary collects every partition result. Failures never stop later partitions.
type Summary struct {
	Results []PartitionResult
}

// Written counts partitions whose local CSV was written.
func (s Summary) Written() int {
	n := 0
	for _, r := range s.Results {
		if r.Written {
			n++
		}
	}
	return n
}

// Uploaded counts partitions that reached object storage.
func (s Summary) Uploaded() int {
	n := 0
	for _, r := range s.Results {
		if r.Uploaded {
			n++
		}
	}
	return n
}

// Failed counts partitions with an error.
func (s Summary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Err joins the per-partition errors, or returns nil.
func (s Summary) Err() error {
	var errs []error
	for _, r := range s.Results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", r.Key.Station, r.Key.Year, r.Err))
		}
	}
	return errors.Join(errs...)
}

// Publisher writes partitions under OutputDir and uploads them to Bucket.
// A nil Uploader writes local files only.
type Publisher struct {
	OutputDir  string
	Bucket     string
	Fieldnames []string
	Uploader   Uploader
	Logger     *slog.Logger
	// OnPartition, if set, is called after each partition.
	OnPartition func(PartitionResult)
}

// ObjectKey is the bucket key for a partition: <station>/<year>/<year>.csv.
func ObjectKey(k partition.Key) string {
	return path.Join(safeSegment(k.Station), safeSegment(k.Year), safeSegment(k.Year)+".csv")
}

// LocalPath is the on-disk location for a partition under dir.
func LocalPath(dir string, k partition.Key) string {
	return filepath.Join(dir, filepath.FromSlash(ObjectKey(k)))
}

// safeSegment keeps a name from escaping its directory level.
func safeSegment(s string) string {
	s = strings.NewReplacer("/", "_", `\`, "_").Replace(s)
	switch s {
	case "", ".", "..":
		return "_" + s
	}
	return s
}

// Publish processes partitions in order. A cancelled context stops before the next partition.
func (p *Publisher) Publish(ctx context.Context, pt *partition.Table) Summary {
	var sum Summary
	parts := pt.Partitions()
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			p.Logger.Warn("Publishing cancelled.", "remaining", len(parts)-i, "error", err)
			for _, rest := range parts[i:] {
				sum.Results = append(sum.Results, PartitionResult{Key: rest.Key, ObjectKey: ObjectKey(rest.Key), Rows: len(rest.Records), Err: err})
			}
			break
		}
		res := p.publishOne(ctx, part)
		sum.Results = append(sum.Results, res)
		if p.OnPartition != nil {
			p.OnPartition(res)
		}
	}

	if sum.Failed() > 0 {
		p.Logger.Error("Partition publishing finished with failures.", slog.Int("partitions", len(parts)),
			slog.Int("uploaded", sum.Uploaded()), slog.Int("failed", sum.Failed()))
	} else if p.Uploader != nil {
		p.Logger.Info("Data uploaded to S3 bucket.", slog.String("bucket", p.Bucket), slog.Int("partitions", sum.Uploaded()))
	} else {
		p.Logger.Info("Partition files written, upload skipped.", slog.Int("partitions", sum.Written()))
	}
	return sum
}

func (p *Publisher) publishOne(ctx context.Context, part partition.Partition) PartitionResult {
	start := time.Now()
	res := PartitionResult{
		Key:       part.Key,
		LocalPath: LocalPath(p.OutputDir, part.Key),
		ObjectKey: ObjectKey(part.Key),
		Rows:      len(part.Records),
	}
	l := p.Logger.With(slog.String("station", part.Key.Station), slog.String("year", part.Key.Year))

	if err := writePartition(res.LocalPath, p.Fieldnames, part.Records); err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		l.Error("Failed to write partition file.", "path", res.LocalPath, "error", err)
		return res
	}
	res.Written = true

	if p.Uploader != nil {
		if err := p.Uploader.Upload(ctx, res.LocalPath, p.Bucket, res.ObjectKey); err != nil {
			res.Err = err
			res.Duration = time.Since(start)
			l.Error("Failed to upload partition.", "key", res.ObjectKey, "error", err)
			return res
		}
		res.Uploaded = true
	}
	res.Duration = time.Since(start)
	l.Debug("Partition published.", slog.String("key", res.ObjectKey), slog.Int("rows", res.Rows), slog.Bool("uploaded", res.Uploaded))
	return res
}

func writePartition(localPath string, fieldnames []string, records []table.Record) (err error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", localPath, cerr)
		}
	}()
	if err := table.WriteCSV(f, fieldnames, records); err != nil {
		return fmt.Errorf("write %s: %w", localPath, err)
	}
	return nil
}
