// Package archive uploads finished job transcripts to S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/martijn/vmorch/internal/core/domain"
	"github.com/martijn/vmorch/internal/core/repository"
)

// Config holds the object storage connection settings.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Source reads the job and its transcript.
type Source interface {
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	GetLogs(ctx context.Context, jobID string, afterSeq int64, limit int) ([]domain.LogEntry, error)
}

// objectStore is the subset of *minio.Client used by the archiver.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Archiver struct {
	client objectStore
	bucket string
	source Source
	logger *slog.Logger

	mu          sync.Mutex
	bucketReady bool
}

func New(cfg Config, source Source, logger *slog.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return newArchiver(client, cfg.Bucket, source, logger), nil
}

func newArchiver(client objectStore, bucket string, source Source, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{client: client, bucket: bucket, source: source, logger: logger}
}

// ObjectName returns the key a job transcript is stored under.
func ObjectName(jobID string) string {
	return "jobs/" + jobID + ".log"
}

// Archive renders the transcript of jobID and uploads it.
func (a *Archiver) Archive(ctx context.Context, jobID string) error {
	job, err := a.source.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	var entries []domain.LogEntry
	var after int64
	for {
		page, err := a.source.GetLogs(ctx, jobID, after, repository.MaxLogLimit)
		if err != nil {
			return fmt.Errorf("failed to load job logs: %w", err)
		}
		entries = append(entries, page...)
		if len(page) < repository.MaxLogLimit {
			break
		}
		after = page[len(page)-1].Seq
	}

	if err := a.ensureBucket(ctx); err != nil {
		return err
	}

	body := Render(entries)
	_, err = a.client.PutObject(ctx, a.bucket, ObjectName(jobID), bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
		UserMetadata: map[string]string{
			"job-status":   string(job.Status),
			"job-strategy": job.Strategy,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload transcript: %w", err)
	}

	a.logger.Debug("archived job transcript", "job_id", jobID, "bytes", len(body), "entries", len(entries))
	return nil
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bucketReady {
		return nil
	}
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
		}
	}
	a.bucketReady = true
	return nil
}

// Render formats entries as "<timestamp> [stream] data" lines.
func Render(entries []domain.LogEntry) []byte {
	var b bytes.Buffer
	for _, e := range entries {
		b.WriteString(e.Timestamp.UTC().Format(time.RFC3339Nano))
		b.WriteString(" [")
		b.WriteString(string(e.Stream))
		b.WriteString("] ")
		b.WriteString(e.Data)
		if !strings.HasSuffix(e.Data, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.Bytes()
}
