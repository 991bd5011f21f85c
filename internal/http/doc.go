// Package http provides the HTTP client used to fetch source rasters.
//
// This package handles:
//   - HEAD requests to get file metadata
//   - Streaming GET requests for whole-file downloads
//   - Mapping of status codes to sentinel errors
//
// Requests are issued once. Failures are returned to the caller as-is.
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	resp, err := client.Get(ctx, url)
//	if errors.Is(err, http.ErrNotFound) {
//	    // no such raster on the server
//	}
//	defer resp.Body.Close()
package http
