// Package archive batches readings into CSV windows and writes them to object
// storage. Every push re-uploads the whole current window to the same key
// until the window exceeds the batch size, at which point the key index
// advances and a fresh window starts.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"cloudpico-probe/internal/probe"
	"cloudpico-probe/internal/status"
)

// DefaultBatchSize is the rotation threshold. A window holds up to
// DefaultBatchSize+1 rows before it rotates.
const DefaultBatchSize = 1000

// TimestampLayout is RFC 3339 with millisecond precision. With a UTC time it
// always ends in "Z".
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var ErrUpload = errors.New("archive: upload failed")

// ObjectStore overwrites the object at key with body.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte) error
}

// ArchivalReporter receives the outcome of each upload attempt.
type ArchivalReporter interface {
	SetArchival(status.Archival)
}

type Options struct {
	BatchSize int
	Status    ArchivalReporter
	Logger    *slog.Logger
	Now       func() time.Time
}

type row struct {
	celsius float64
	at      time.Time
}

// Uploader is owned by a single consumer goroutine and is not safe for
// concurrent use.
type Uploader struct {
	store     ObjectStore
	prefix    string
	batchSize int
	status    ArchivalReporter
	logger    *slog.Logger
	now       func() time.Time

	window []row
	key    int
}

// NewUploader returns an uploader writing under prefix. A nil store puts the
// uploader in disabled mode: pushes succeed and readings are dropped.
func NewUploader(store ObjectStore, prefix string, opts Options) *Uploader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Uploader{
		store:     store,
		prefix:    strings.TrimSuffix(prefix, "/"),
		batchSize: opts.BatchSize,
		status:    opts.Status,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

func (u *Uploader) Name() string { return "archive" }

// Enabled reports whether pushes reach an object store.
func (u *Uploader) Enabled() bool { return u.store != nil }

// Push appends r to the window, timestamped now, and uploads the window.
// A failed upload leaves the window and key index as they are; the next push
// retries with the larger window under the same key.
func (u *Uploader) Push(ctx context.Context, r probe.Reading) error {
	if u.store == nil {
		return nil
	}

	if len(u.window) > u.batchSize {
		u.window = u.window[:0]
		u.key++
		u.logger.Info("archive: window rotated", "key", u.Key())
	}

	u.window = append(u.window, row{celsius: r.Celsius, at: u.now().UTC()})

	key := u.Key()
	body := u.Serialize()
	u.report(status.Writing)
	u.logger.Debug("archive: uploading", "key", key, "rows", len(u.window), "bytes", len(body))

	if err := u.store.Put(ctx, key, body); err != nil {
		u.report(status.Error)
		return fmt.Errorf("%w: %s: %w", ErrUpload, key, err)
	}
	return nil
}

// Serialize renders the window most-recent-first as "temp,timestamp" rows
// joined by newlines, with no trailing newline.
func (u *Uploader) Serialize() []byte {
	var b strings.Builder
	for i := len(u.window) - 1; i >= 0; i-- {
		r := u.window[i]
		b.WriteString(strconv.FormatFloat(r.celsius, 'f', -1, 64))
		b.WriteByte(',')
		b.WriteString(r.at.Format(TimestampLayout))
		if i > 0 {
			b.WriteByte('\n')
		}
	}
	return []byte(b.String())
}

// Key is the object key the next upload without rotation targets.
func (u *Uploader) Key() string {
	return u.prefix + "/" + strconv.Itoa(u.key) + ".csv"
}

func (u *Uploader) KeyIndex() int { return u.key }

func (u *Uploader) Len() int { return len(u.window) }

func (u *Uploader) report(a status.Archival) {
	if u.status != nil {
		u.status.SetArchival(a)
	}
}
