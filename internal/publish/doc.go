// Package publish copies finished rasters into object storage.
//
// Any gocloud.dev bucket URL works (s3://, gs://, file://, mem://). For a
// raster zaf_UNAdj_ppp_2018.tif published with prefix "adjusted/" the
// bucket ends up holding:
//
//	adjusted/zaf_UNAdj_ppp_2018.tif
//	adjusted/zaf_UNAdj_ppp_2018.tif.json
//
// The JSON manifest records size, SHA-256 and caller metadata.
package publish
