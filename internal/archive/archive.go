// Package archive uploads analytics reports to S3-compatible object storage
// on a fixed interval.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/conveyortwin/conveyortwin/internal/analytics"
	"github.com/conveyortwin/conveyortwin/internal/config"
)

// objectPutter is satisfied by *minio.Client.
type objectPutter interface {
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Reporter produces analytics reports.
type Reporter interface {
	GenerateReport(periodHours float64) analytics.Report
}

// Archiver periodically stores a report as a JSON object.
type Archiver struct {
	store       objectPutter
	reports     Reporter
	bucket      string
	prefix      string
	interval    time.Duration
	periodHours float64
	now         func() time.Time
}

// New connects to the object store described by cfg.
func New(cfg config.ArchiveConfig, reports Reporter) (*Archiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey(), cfg.SecretKey(), ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: new client: %w", err)
	}
	return &Archiver{
		store:       client,
		reports:     reports,
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
		interval:    cfg.Interval,
		periodHours: cfg.PeriodHours,
		now:         time.Now,
	}, nil
}

// ObjectName returns the key a report generated at t is stored under.
func (a *Archiver) ObjectName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%s/report-%s.json", a.prefix, t.Format("2006/01/02"), t.Format("20060102T150405Z"))
}

// ArchiveOnce generates one report and uploads it, returning the object key.
func (a *Archiver) ArchiveOnce(ctx context.Context) (string, error) {
	report := a.reports.GenerateReport(a.periodHours)
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("archive: encode report: %w", err)
	}

	key := a.ObjectName(a.now())
	_, err = a.store.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("archive: put %s/%s: %w", a.bucket, key, err)
	}
	return key, nil
}

// Run archives a report every interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			key, err := a.ArchiveOnce(ctx)
			if err != nil {
				slog.Error("archive: upload failed", "err", err)
				continue
			}
			slog.Info("archive: report stored", "bucket", a.bucket, "key", key)
		}
	}
}
