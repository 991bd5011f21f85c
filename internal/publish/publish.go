package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"gocloud.dev/blob"
)

// ManifestSuffix is appended to a published key to name its manifest.
const ManifestSuffix = ".json"

// Manifest describes a published raster.
type Manifest struct {
	Key         string            `json:"key"`
	Size        int64             `json:"size"`
	SHA256      string            `json:"sha256"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Publisher uploads produced rasters into a bucket.
type Publisher struct {
	bucket *blob.Bucket
	prefix string
	owned  bool

	// now is replaced in tests.
	now func() time.Time
}

// New returns a Publisher writing under prefix in bucket. The caller keeps
// ownership of bucket.
func New(bucket *blob.Bucket, prefix string) *Publisher {
	return &Publisher{bucket: bucket, prefix: prefix, now: time.Now}
}

// Open opens bucketURL and returns a Publisher that closes it on Close.
func Open(ctx context.Context, bucketURL, prefix string) (*Publisher, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("publish: open bucket: %w", err)
	}
	p := New(bucket, prefix)
	p.owned = true
	return p, nil
}

// Close releases the bucket if the Publisher opened it.
func (p *Publisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.bucket.Close()
}

// Key returns the object key a local file is published under.
func (p *Publisher) Key(path string) string {
	return p.prefix + filepath.Base(path)
}

// Publish streams the file at path to the bucket and writes its manifest
// next to it. The manifest is written last, so its presence marks a
// complete upload.
func (p *Publisher) Publish(ctx context.Context, path string, metadata map[string]string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	defer f.Close()

	key := p.Key(path)
	size, sum, err := p.upload(ctx, key, f)
	if err != nil {
		return "", err
	}

	m := Manifest{
		Key:         key,
		Size:        size,
		SHA256:      sum,
		Metadata:    metadata,
		CompletedAt: p.now().UTC(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("publish: marshal manifest: %w", err)
	}
	if err := p.bucket.WriteAll(ctx, key+ManifestSuffix, data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return "", fmt.Errorf("publish: write manifest: %w", err)
	}

	log.WithFields(log.Fields{
		"key":    key,
		"size":   humanize.IBytes(uint64(size)),
		"sha256": sum,
	}).Info("published raster")
	return key, nil
}

func (p *Publisher) upload(ctx context.Context, key string, r io.Reader) (int64, string, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := p.bucket.NewWriter(wctx, key, &blob.WriterOptions{ContentType: "image/tiff"})
	if err != nil {
		return 0, "", fmt.Errorf("publish: create writer: %w", err)
	}

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, hash), r)
	if err != nil {
		// Cancelling before Close discards the partial object.
		cancel()
		w.Close()
		return 0, "", fmt.Errorf("publish: upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return 0, "", fmt.Errorf("publish: commit %s: %w", key, err)
	}
	return n, hex.EncodeToString(hash.Sum(nil)), nil
}

// ReadManifest loads the manifest written for key.
func (p *Publisher) ReadManifest(ctx context.Context, key string) (*Manifest, error) {
	data, err := p.bucket.ReadAll(ctx, key+ManifestSuffix)
	if err != nil {
		return nil, fmt.Errorf("publish: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("publish: unmarshal manifest: %w", err)
	}
	return &m, nil
}
