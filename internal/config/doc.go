// Package config defines configuration structures for the unadj CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (UNADJ_ prefix)
//   - YAML configuration file
//
// Flags override the environment, which overrides the file, which
// overrides [Default].
//
// # Example
//
//	population_table: sqlite:///data/totals.db
//	source:
//	  url_template: https://data.worldpop.org/GIS/Covariates/Global_2000_2020/{ISO}/{file}
//	  timeout: 2h
//	calc:
//	  program: /usr/bin/gdal_calc.py
//	  nodata: 9999
//	publish:
//	  bucket: s3://ppp-adjusted?region=eu-west-2
//	  prefix: unadj/
//	log:
//	  level: debug
//	  format: json
package config
