// Package rastercalc delegates per-pixel raster arithmetic to an external tool.
//
// The [GDAL] calculator runs gdal_calc.py without a shell:
//
//	gdal_calc.py -A in.tif --outfile=out.tif --calc=(A * 1.05)/57000000 \
//	    --NoDataValue=9999 --co COMPRESS=LZW --co PREDICTOR=2 --co BIGTIFF=YES --overwrite
//
// The exit status of the tool is always checked. A failed run is reported
// as a [*CalculationError] carrying the exit code and standard error.
package rastercalc
