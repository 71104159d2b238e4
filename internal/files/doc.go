// Package files discovers series input files and inspects report
// directories.
//
// Discovery resolves relative directories against its base path:
//
//	d := files.NewDiscovery(paths.BaseDir)
//	inputs, err := d.FindSeriesFiles("data")
//	n, size, err := d.Usage(paths.ReportsDir)
//
// Series files are .csv, .xlsx and .xlsm; Excel lock files (~$name.xlsx) are
// skipped.
package files
