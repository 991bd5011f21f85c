// Package testutils provides shared test infrastructure.
package testutils

import (
	"encoding/binary"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
)

// RasterServer serves fixed files over HTTP and counts the requests it sees.
type RasterServer struct {
	*httptest.Server
	requests atomic.Int64
}

// Requests returns the number of requests served so far, including 404s.
func (s *RasterServer) Requests() int64 {
	return s.requests.Load()
}

// StartRasterServer starts an HTTP server serving files keyed by URL path,
// e.g. "/ZAF/zaf_grid_100m_ccilc_dst011_2018.tif". The server is closed
// when the test ends.
func StartRasterServer(t *testing.T, files map[string][]byte) *RasterServer {
	t.Helper()

	rs := &RasterServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.requests.Add(1)

		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "image/tiff")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("ETag", `"`+r.URL.Path+`"`)
		if r.Method == http.MethodHead {
			return
		}
		w.Write(data)
	}))
	t.Cleanup(rs.Close)

	return rs
}

// GenerateRaster returns a deterministic little-endian float32 pixel
// payload behind a classic TIFF byte-order header. It is not a valid
// GeoTIFF; it only gives fetchers and fake calculators real bytes to move.
func GenerateRaster(t *testing.T, pixels []float32) []byte {
	t.Helper()

	data := []byte{'I', 'I', 42, 0, 0, 0, 0, 0}
	for _, p := range pixels {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(p))
	}
	return data
}

// WriteExecutable writes a /bin/sh script named name into dir and returns
// its path. It stands in for external tools such as gdal_calc.py.
func WriteExecutable(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("write executable %s: %v", name, err)
	}
	return path
}

// CopyingCalculator writes a fake gdal_calc.py into dir that copies its
// -A input to its --outfile output and returns the script path.
func CopyingCalculator(t *testing.T, dir string) string {
	t.Helper()

	return WriteExecutable(t, dir, "gdal_calc.py", `in="$2"
out="${3#--outfile=}"
cp "$in" "$out"`)
}
