package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	unadjhttp "github.com/ligustah/unadj/internal/http"
)

// ErrNotFound is returned when a requested raster does not exist remotely.
var ErrNotFound = errors.New("fetch: remote raster not found")

// ErrSourceChanged is returned when a remote raster changes while it is
// being fetched.
var ErrSourceChanged = errors.New("fetch: remote raster changed during fetch")

// Fetcher downloads country rasters into a local directory.
type Fetcher interface {
	// Fetch downloads the raster for each identifier (e.g.
	// "ccilc_dst011_2018") of countryCode into destDir and returns the
	// local paths in identifier order.
	Fetch(ctx context.Context, countryCode, destDir string, identifiers []string) ([]string, error)
}

// FileName returns the file name of a country raster,
// "{iso}_grid_100m_{identifier}.tif".
func FileName(countryCode, identifier string) string {
	return fmt.Sprintf("%s_grid_100m_%s.tif", strings.ToLower(countryCode), identifier)
}

// Expand fills the {ISO}, {iso}, {id} and {file} placeholders of a URL or
// key template.
func Expand(template, countryCode, identifier string) string {
	return strings.NewReplacer(
		"{ISO}", strings.ToUpper(countryCode),
		"{iso}", strings.ToLower(countryCode),
		"{id}", identifier,
		"{file}", FileName(countryCode, identifier),
	).Replace(template)
}

// HTTPFetcher downloads rasters from an HTTP(S) file server.
type HTTPFetcher struct {
	client   *unadjhttp.Client
	template string
}

// NewHTTPFetcher creates a fetcher that resolves remote URLs from template.
func NewHTTPFetcher(template string, opts unadjhttp.Options) *HTTPFetcher {
	return &HTTPFetcher{
		client:   unadjhttp.NewClient(opts),
		template: template,
	}
}

// Fetch implements Fetcher.
//
// Each raster is probed with HEAD before the transfer so its size is known
// up front. A server that rejects HEAD is still fetched with GET. If the
// entity tag seen by HEAD differs from the one on the GET response the
// file is discarded and ErrSourceChanged is returned.
func (f *HTTPFetcher) Fetch(ctx context.Context, countryCode, destDir string, identifiers []string) ([]string, error) {
	paths := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		url := Expand(f.template, countryCode, id)
		dest := filepath.Join(destDir, FileName(countryCode, id))

		info, err := f.client.Head(ctx, url)
		if errors.Is(err, unadjhttp.ErrNotFound) {
			return paths, fmt.Errorf("%w: %s: %w", ErrNotFound, url, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return paths, fmt.Errorf("fetch %s: %w", url, err)
			}
			log.WithError(err).WithField("source", url).Warn("HEAD failed, fetching without metadata")
			info = nil
		} else {
			logRemote(url, info)
		}

		resp, err := f.client.Get(ctx, url)
		if errors.Is(err, unadjhttp.ErrNotFound) {
			return paths, fmt.Errorf("%w: %s: %w", ErrNotFound, url, err)
		}
		if err != nil {
			return paths, fmt.Errorf("fetch %s: %w", url, err)
		}
		if info != nil && info.ETag != "" && resp.ETag != "" && info.ETag != resp.ETag {
			resp.Body.Close()
			return paths, fmt.Errorf("%w: %s: etag %q, then %q", ErrSourceChanged, url, info.ETag, resp.ETag)
		}

		expected := resp.ContentLength
		if expected < 0 && info != nil {
			expected = info.Size
		}

		start := time.Now()
		n, err := writeFile(dest, resp.Body)
		resp.Body.Close()
		if err != nil {
			return paths, fmt.Errorf("fetch %s: %w", url, err)
		}
		if expected >= 0 && n != expected {
			os.Remove(dest)
			return paths, fmt.Errorf("fetch %s: size mismatch: expected %d, got %d", url, expected, n)
		}

		logFetched(url, dest, n, start)
		paths = append(paths, dest)
	}
	return paths, nil
}

func logRemote(url string, info *unadjhttp.FileInfo) {
	fields := log.Fields{
		"source": url,
		"etag":   info.ETag,
	}
	if info.Size >= 0 {
		fields["size"] = humanize.IBytes(uint64(info.Size))
	}
	if info.ContentType != "" {
		fields["content_type"] = info.ContentType
	}
	if !info.LastModified.IsZero() {
		fields["last_modified"] = info.LastModified.Format(time.RFC3339)
	}
	log.WithFields(fields).Info("fetching raster")
}

// BucketFetcher downloads rasters from a gocloud blob bucket.
type BucketFetcher struct {
	bucket   *blob.Bucket
	template string
	owned    bool
}

// NewBucketFetcher creates a fetcher reading keys built from template out
// of bucket. The caller keeps ownership of bucket.
func NewBucketFetcher(bucket *blob.Bucket, template string) *BucketFetcher {
	return &BucketFetcher{bucket: bucket, template: template}
}

// OpenBucket opens the bucket at url (s3://, gs://, file://, mem://) and
// returns a fetcher that owns it.
func OpenBucket(ctx context.Context, url, template string) (*BucketFetcher, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch: open bucket: %w", err)
	}
	return &BucketFetcher{bucket: bucket, template: template, owned: true}, nil
}

// Close releases the bucket if the fetcher opened it.
func (f *BucketFetcher) Close() error {
	if f.owned {
		return f.bucket.Close()
	}
	return nil
}

// Fetch implements Fetcher.
func (f *BucketFetcher) Fetch(ctx context.Context, countryCode, destDir string, identifiers []string) ([]string, error) {
	paths := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		key := Expand(f.template, countryCode, id)
		dest := filepath.Join(destDir, FileName(countryCode, id))

		r, err := f.bucket.NewReader(ctx, key, nil)
		if gcerrors.Code(err) == gcerrors.NotFound {
			return paths, fmt.Errorf("%w: %s: %w", ErrNotFound, key, err)
		}
		if err != nil {
			return paths, fmt.Errorf("fetch %s: %w", key, err)
		}

		start := time.Now()
		n, err := writeFile(dest, r)
		r.Close()
		if err != nil {
			return paths, fmt.Errorf("fetch %s: %w", key, err)
		}

		logFetched(key, dest, n, start)
		paths = append(paths, dest)
	}
	return paths, nil
}

// writeFile streams r into a temporary file next to dest and renames it
// into place once the copy is complete.
func writeFile(dest string, r io.Reader) (int64, error) {
	dir, name := filepath.Split(dest)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+name+".part-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("write %s: %w", dest, err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("rename %s: %w", dest, err)
	}
	return n, nil
}

func logFetched(src, dest string, n int64, start time.Time) {
	log.WithFields(log.Fields{
		"source":   src,
		"path":     dest,
		"size":     humanize.IBytes(uint64(n)),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("fetched raster")
}
