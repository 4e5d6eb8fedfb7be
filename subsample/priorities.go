package subsample

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"golang.org/x/exp/rand"
)

type priorityRow struct {
	Strain   string  `csv:"strain"`
	Priority float64 `csv:"priority"`
}

// ReadPriorities loads per-strain priority scores from a tab-delimited file
// with 'strain' and 'priority' columns. Higher priorities are preferred
// during subsampling.
func ReadPriorities(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()

	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.Comma = '\t'
		r.LazyQuotes = true
		return r
	})

	rows := []*priorityRow{}
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("reading priorities from %s: %w", path, err)
	}

	priorities := make(map[string]float64, len(rows))
	for _, row := range rows {
		priorities[row.Strain] = row.Priority
	}

	return priorities, nil
}

// RandomPriorities assigns a pseudo-random priority to every strain, used
// when the caller supplies no priority file. Strains are visited in sorted
// order so that a fixed non-negative seed produces the same scores no
// matter how the input was ordered.
func RandomPriorities(strains []string, seed int64) map[string]float64 {
	rng := rand.New(newSource(seed))

	sorted := append([]string(nil), strains...)
	sort.Strings(sorted)

	priorities := make(map[string]float64, len(sorted))
	for _, strain := range sorted {
		priorities[strain] = rng.Float64()
	}

	return priorities
}
