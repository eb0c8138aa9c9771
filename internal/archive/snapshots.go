package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"parimutuel-market/internal/models"
)

const contentTypeJSONL = "application/x-ndjson"

// BlobWriter stores one object.
type BlobWriter interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// SnapshotArchiver serialises odds snapshots to JSONL and uploads them as a
// single object per retention run.
type SnapshotArchiver struct {
	writer BlobWriter
	prefix string
}

// NewSnapshotArchiver writes objects under prefix (default "archive").
func NewSnapshotArchiver(writer BlobWriter, prefix string) *SnapshotArchiver {
	if prefix == "" {
		prefix = "archive"
	}
	return &SnapshotArchiver{writer: writer, prefix: prefix}
}

// ArchiveSnapshots uploads snapshots and returns the object key. Nothing is
// written for an empty batch.
func (a *SnapshotArchiver) ArchiveSnapshots(ctx context.Context, snapshots []models.OddsSnapshot, cutoff time.Time) (string, error) {
	if len(snapshots) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(snapshots)
	if err != nil {
		return "", fmt.Errorf("archive: marshal snapshots: %w", err)
	}

	key := archivePath(a.prefix, "odds_snapshots", cutoff)
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), contentTypeJSONL); err != nil {
		return "", err
	}
	return key, nil
}

// archivePath partitions objects by the month of the cutoff and names them
// after the cutoff instant, so consecutive runs never overwrite each other.
//
//	archive/odds_snapshots/2026-05/20260501T120000Z.jsonl
func archivePath(prefix, kind string, cutoff time.Time) string {
	cutoff = cutoff.UTC()
	return fmt.Sprintf("%s/%s/%s/%s.jsonl",
		prefix, kind, cutoff.Format("2006-01"), cutoff.Format("20060102T150405Z"))
}

// marshalJSONL encodes each record on its own line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
