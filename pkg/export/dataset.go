// Package export renders tabular datasets into downloadable files.
package export

import "fmt"

// Dataset is tabular export content. Every row holds one cell per header.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]string
	// Weights optionally sizes PDF columns relative to each other.
	Weights []float64
}

// Append adds a row, padding or trimming it to the header count.
func (d *Dataset) Append(cells ...string) {
	row := make([]string, len(d.Headers))
	copy(row, cells)
	d.Rows = append(d.Rows, row)
}

func (d Dataset) validate(kind string) error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", kind)
	}
	if len(d.Weights) > 0 && len(d.Weights) != len(d.Headers) {
		return fmt.Errorf("%s weights must match headers", kind)
	}
	return nil
}
