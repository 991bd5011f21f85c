// Package fetch downloads country rasters into a local directory.
//
// Two [Fetcher] implementations share one naming scheme. A raster
// identifier such as "ccilc_dst011_2018" for country ZAF is stored locally
// as zaf_grid_100m_ccilc_dst011_2018.tif.
//
//   - [HTTPFetcher] resolves a URL template against an HTTP(S) file server.
//   - [BucketFetcher] resolves a key template inside any gocloud.dev/blob
//     bucket (s3://, gs://, file://, mem://).
//
// Templates understand these placeholders:
//
//	{ISO}   upper-case country code   ZAF
//	{iso}   lower-case country code   zaf
//	{id}    raster identifier         ccilc_dst011_2018
//	{file}  local file name           zaf_grid_100m_ccilc_dst011_2018.tif
//
// Downloads are written to a temporary file in the destination directory
// and renamed into place, so an interrupted transfer never leaves a
// truncated raster under its final name. Nothing is retried.
package fetch
