// Package backup uploads timestamped snapshots of the editable state to an
// S3-compatible object store.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"redbook/api/internal/store"
)

const objectPrefix = "redbook_backup_"

// Snapshotter provides the data to back up.
type Snapshotter interface {
	ExportAll(ctx context.Context) (store.Snapshot, error)
}

// Service takes and prunes backups.
type Service struct {
	client *minio.Client
	stored Snapshotter
	bucket string
	keep   int
	now    func() time.Time
}

// New dials the object store and ensures the bucket exists.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool, keep int, stored Snapshotter) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	if keep <= 0 {
		keep = 14
	}
	return &Service{client: client, stored: stored, bucket: bucket, keep: keep, now: time.Now}, nil
}

// Run takes one snapshot, uploads it, and prunes old backups. Pruning
// failures are logged but do not fail the run.
func (s *Service) Run(ctx context.Context) error {
	snap, err := s.stored.ExportAll(ctx)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	snap.TakenAt = s.now().UTC()

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	name := ObjectName(snap.TakenAt)
	_, err = s.client.PutObject(ctx, s.bucket, name,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	log.Printf("backup: uploaded %s (%d bytes)", name, len(payload))

	if err := s.prune(ctx); err != nil {
		log.Printf("backup: prune failed: %v", err)
	}
	return nil
}

func (s *Service) prune(ctx context.Context) error {
	var names []string
	for object := range s.client.ListObjects(ctx, s.bucket,
		minio.ListObjectsOptions{Prefix: objectPrefix}) {
		if object.Err != nil {
			return object.Err
		}
		names = append(names, object.Key)
	}

	for _, name := range Expired(names, s.keep) {
		if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
			log.Printf("backup: remove %s: %v", name, err)
			continue
		}
		log.Printf("backup: pruned %s", name)
	}
	return nil
}

// ObjectName builds the timestamped object key for a backup.
func ObjectName(takenAt time.Time) string {
	return objectPrefix + takenAt.Format("20060102_150405") + ".json"
}

// Expired returns the backup object names beyond the newest keep entries.
// Names sort chronologically because of the timestamp format.
func Expired(names []string, keep int) []string {
	var backups []string
	for _, name := range names {
		if strings.HasPrefix(name, objectPrefix) && strings.HasSuffix(name, ".json") {
			backups = append(backups, name)
		}
	}
	if len(backups) <= keep {
		return nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups[keep:]
}
