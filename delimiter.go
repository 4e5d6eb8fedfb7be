package augur

import (
	"io"

	"github.com/csimplestring/go-csv/detector"
)

// DetectDelimiter returns the most likely delimiter rune for the CSV-like
// content in r. Metadata files in the wild are usually tab-delimited but
// comma-delimited exports are common enough that we sniff rather than guess;
// tab is the fallback when detection is inconclusive.
func DetectDelimiter(r io.Reader) rune {
	d := detector.New()
	candidates := d.DetectDelimiter(r, '"')

	if len(candidates) > 0 {
		return rune(candidates[0][0])
	}

	return '\t'
}
