// Package npm implements the package-intelligence tools. Each per-package
// tool fans out one upstream request per input package and renders the
// ordered results into a single text report; a failure for one package
// becomes that package's "Error:" section and never aborts the batch.
package npm
