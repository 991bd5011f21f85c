// Package adjust rescales population-per-pixel rasters to UN totals.
//
// A [Job] identifies one country and year. It is built once with
// [NewJob], which resolves the total population from an injected
// population table, and then runs two steps in order:
//
//	path, err := job.FetchSourceRaster(ctx, fetcher)
//	out, err := job.ApplyAdjustment(ctx, calculator, path)
//
// or both at once with [Job.Run]. Each output pixel is
//
//	(A * factor) / totalPopulation
//
// where A is the source pixel. No-data pixels stay no-data.
//
// # Preconditions
//
// A country or year absent from the table does not fail construction.
// FetchSourceRaster then returns [ErrCountryUnavailable] without touching
// the network, and ApplyAdjustment returns [ErrPrerequisiteUnmet].
//
// # Files
//
// For country ZAF and year 2018 in directory dir:
//
//	dir/zaf_grid_100m_ccilc_dst011_2018.tif   source (removed unless kept)
//	dir/zaf_UNAdj_ppp_2018.tif                output
package adjust
