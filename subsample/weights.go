package subsample

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
)

// WeightColumn is the required numeric column in a group weights file.
const WeightColumn = "weight"

// InvalidWeightsFile reports a weights file whose contents cannot be used.
type InvalidWeightsFile struct {
	Path   string
	Reason string
}

func (e *InvalidWeightsFile) Error() string {
	return fmt.Sprintf("Bad weights file %q.\n%s", e.Path, e.Reason)
}

type weightRow struct {
	values []string
	weight float64
}

// Weights holds a parsed group weights file: one weight per combination of
// values of the weighted columns.
type Weights struct {
	// Columns are the weighted columns, in file order, without the weight
	// column itself.
	Columns []string

	path string
	rows []weightRow
}

// ReadWeights loads per-group weights from a tab-delimited file. Lines
// starting with '#' are comments. The header must include a 'weight' column;
// its values must be numeric and non-negative, and offending values are
// reported by line number.
func ReadWeights(path string) (*Weights, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &InvalidWeightsFile{Path: path, Reason: "File is empty."}
	} else if err != nil {
		return nil, pfx.Err(err)
	}

	weightIndex := -1
	columns := make([]string, 0, len(header)-1)
	for i, col := range header {
		if col == WeightColumn {
			weightIndex = i
			continue
		}
		columns = append(columns, col)
	}
	if weightIndex < 0 {
		return nil, &InvalidWeightsFile{Path: path, Reason: fmt.Sprintf("Missing %q column.", WeightColumn)}
	}

	w := &Weights{Columns: columns, path: path}

	var nonNumeric, negative []int
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, pfx.Err(err)
		}
		line, _ := cr.FieldPos(0)

		weight, err := strconv.ParseFloat(strings.TrimSpace(row[weightIndex]), 64)
		if err != nil {
			nonNumeric = append(nonNumeric, line)
			continue
		}
		if weight < 0 {
			negative = append(negative, line)
			continue
		}

		values := make([]string, 0, len(columns))
		for i, v := range row {
			if i == weightIndex {
				continue
			}
			values = append(values, v)
		}
		w.rows = append(w.rows, weightRow{values: values, weight: weight})
	}

	if len(nonNumeric) > 0 {
		return nil, &InvalidWeightsFile{Path: path, Reason: fmt.Sprintf(
			"Found non-numeric weights on the following lines: %v\n%q column must be numeric.", nonNumeric, WeightColumn)}
	}
	if len(negative) > 0 {
		return nil, &InvalidWeightsFile{Path: path, Reason: fmt.Sprintf(
			"Found negative weights on the following lines: %v\n%q column must be non-negative.", negative, WeightColumn)}
	}

	return w, nil
}

// TargetsByGroup distributes targetMax across the observed groups in
// proportion to each group's weight. groupKeys maps rendered keys to group
// tuples, in the shape GroupsForSubsampling produces; groupBy names the
// column behind each tuple position. Every weighted column must be one of
// the group-by columns, and every observed group must have a weight row.
// The returned sizes sum to targetMax whenever any observed group carries a
// positive weight.
func (w *Weights) TargetsByGroup(groupKeys map[string]GroupKey, groupBy []string, targetMax int) (map[string]int, error) {
	positions := make([]int, len(w.Columns))
	for i, col := range w.Columns {
		positions[i] = -1
		for j, requested := range groupBy {
			if requested == col {
				positions[i] = j
				break
			}
		}
		if positions[i] < 0 {
			return nil, &InvalidWeightsFile{Path: w.path, Reason: fmt.Sprintf(
				"Weighted column %q is not one of the group-by columns %v.", col, groupBy)}
		}
	}

	lookup := make(map[string]float64, len(w.rows))
	for _, row := range w.rows {
		lookup[strings.Join(row.values, "\t")] = row.weight
	}

	names := make([]string, 0, len(groupKeys))
	for name := range groupKeys {
		names = append(names, name)
	}
	sort.Strings(names)

	rowKeys := make(map[string]string, len(names))
	sharing := make(map[string]int, len(names))
	for _, name := range names {
		key := groupKeys[name]
		values := make([]string, len(positions))
		for i, pos := range positions {
			values[i] = key[pos]
		}
		rowKey := strings.Join(values, "\t")
		rowKeys[name] = rowKey
		sharing[rowKey]++
	}

	// A row's weight is split evenly among the observed groups it covers, so
	// weighting on a subset of the group-by columns does not favor the rows
	// with more subgroups.
	weights := make(map[string]float64, len(names))
	var missing []string
	reported := make(map[string]bool)
	total := 0.0
	for _, name := range names {
		rowKey := rowKeys[name]
		weight, ok := lookup[rowKey]
		if !ok {
			if reported[rowKey] {
				continue
			}
			reported[rowKey] = true
			key := groupKeys[name]
			parts := make([]string, len(positions))
			for i, pos := range positions {
				parts[i] = fmt.Sprintf("%s=%q", w.Columns[i], key[pos])
			}
			missing = append(missing, "- "+strings.Join(parts, ", "))
			continue
		}
		weights[name] = weight / float64(sharing[rowKey])
		total += weights[name]
	}
	if len(missing) > 0 {
		return nil, &InvalidWeightsFile{Path: w.path, Reason: fmt.Sprintf(
			"Missing weights for the following groups:\n%s", strings.Join(missing, "\n"))}
	}

	targets := make(map[string]int, len(names))
	if total == 0 {
		for _, name := range names {
			targets[name] = 0
		}
		return targets, nil
	}

	// Largest-remainder rounding so the integer targets sum to targetMax.
	type remainder struct {
		name     string
		fraction float64
	}
	remainders := make([]remainder, 0, len(names))
	assigned := 0
	for _, name := range names {
		ideal := float64(targetMax) * weights[name] / total
		base := int(math.Floor(ideal))
		targets[name] = base
		assigned += base
		remainders = append(remainders, remainder{name: name, fraction: ideal - float64(base)})
	}

	sort.Slice(remainders, func(i, j int) bool {
		if remainders[i].fraction != remainders[j].fraction {
			return remainders[i].fraction > remainders[j].fraction
		}
		return remainders[i].name < remainders[j].name
	})

	for i := 0; i < len(remainders) && assigned < targetMax; i++ {
		targets[remainders[i].name]++
		assigned++
	}

	return targets, nil
}
