// Package subsample selects a bounded, representative subset of sequence
// records from a metadata table. Records are partitioned into groups by one
// or more metadata columns (possibly generated from partial dates), a
// per-group retention cap is computed for a global budget, and the highest
// priority records per group are retained.
package subsample

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/guregu/null.v3"

	"github.com/watronfire/augur/metadata"
)

// DummyGroup is the sentinel group value used when no group-by columns are
// requested, so that ungrouped subsampling still flows through one queue.
const DummyGroup = "_dummy"

// Skip reasons recorded when a record's date is too ambiguous to support a
// requested generated column. The values appear verbatim in filter reports.
const (
	SkipAmbiguousYear  = "skip_group_by_with_ambiguous_year"
	SkipAmbiguousMonth = "skip_group_by_with_ambiguous_month"
	SkipAmbiguousDay   = "skip_group_by_with_ambiguous_day"
)

// generatedColumns are the group-by columns derived from the 'date' column
// rather than read from the metadata.
var generatedColumns = map[string]bool{
	"year":  true,
	"month": true,
	"week":  true,
}

// GroupKey is the ordered tuple of group-by values that places a record in
// its group. Two records are in the same group iff their keys are equal.
type GroupKey []string

// Key renders the tuple as a single map key.
func (k GroupKey) Key() string {
	return strings.Join(k, "\t")
}

// SkipRecord reports a record excluded from grouping and why. Kwargs is
// always empty here; the field exists for symmetry with other filter-report
// entries.
type SkipRecord struct {
	Strain string `json:"strain"`
	Filter string `json:"filter"`
	Kwargs string `json:"kwargs"`
}

// GroupsForSubsampling assigns each record to a group based on the requested
// group-by columns. Columns named year, month, or week are generated from
// the record's 'date' column; records whose dates are too ambiguous for a
// requested generated column are excluded and reported in the returned skip
// list instead.
func GroupsForSubsampling(records []metadata.Record, groupBy []string, diag Diagnostics) (map[string]GroupKey, []SkipRecord, error) {
	diag = warner(diag)

	groups := make(map[string]GroupKey, len(records))
	var skipped []SkipRecord

	if len(records) == 0 {
		return groups, skipped, nil
	}

	if len(groupBy) == 0 {
		for _, rec := range records {
			groups[rec.Strain] = GroupKey{DummyGroup}
		}
		return groups, skipped, nil
	}

	requested := append([]string(nil), groupBy...)
	requestedSet := make(map[string]bool, len(requested))
	for _, col := range requested {
		requestedSet[col] = true
	}

	generated := make(map[string]bool)
	for col := range requestedSet {
		if generatedColumns[col] {
			generated[col] = true
		}
	}

	columns := observedColumns(records)
	hasDate := columns["date"]

	// If none of the requested categories can be resolved, subsampling
	// cannot proceed at all.
	if !hasDate && subsetOf(requestedSet, generatedColumns) {
		return nil, nil, fmt.Errorf(
			"the specified group-by categories (%v) were not found; note that using any of %v requires a column called 'date'",
			groupBy, sortedKeys(generatedColumns))
	}
	if !anyIn(requestedSet, columns) && len(generated) == 0 {
		return nil, nil, fmt.Errorf("the specified group-by categories (%v) were not found", groupBy)
	}

	if requestedSet["week"] {
		if requestedSet["year"] {
			diag.Warnf("'year' grouping will be ignored since 'week' includes ISO year.")
			requested = removeString(requested, "year")
			delete(requestedSet, "year")
			delete(generated, "year")
		}
		if requestedSet["month"] {
			return nil, nil, fmt.Errorf("'month' and 'week' grouping cannot be used together")
		}
	}

	genValues := make(map[string]map[string]string)
	skippedSet := make(map[string]bool)
	dateConsumed := false

	if len(generated) > 0 {
		for _, col := range sortedKeys(generated) {
			if columns[col] {
				diag.Warnf("`--group-by %s` uses a generated %s value from the 'date' column. The custom '%s' column in the metadata is ignored for grouping purposes.", col, col, col)
				delete(columns, col)
			}
		}

		if !hasDate {
			diag.Warnf("A 'date' column could not be found to group-by %v.", sortedKeys(generated))
			diag.Warnf("Filtering by group may behave differently than expected!")
		} else {
			dateConsumed = true

			parts := make(map[string]dateParts, len(records))
			for _, rec := range records {
				parts[rec.Strain] = splitDate(rec.Attributes["date"])
			}

			skipped = ambiguousDateSkips(records, parts, generated)
			for _, skip := range skipped {
				skippedSet[skip.Strain] = true
			}

			for _, rec := range records {
				if skippedSet[rec.Strain] {
					continue
				}
				genValues[rec.Strain] = generateDateColumns(parts[rec.Strain], generated)
			}
		}
	}

	// Requested columns that exist neither literally nor as generated values
	// degrade to a constant rather than failing the whole run.
	unknownCols := make(map[string]bool)
	for _, col := range requested {
		if generated[col] {
			continue
		}
		if !columns[col] || (dateConsumed && col == "date") {
			unknownCols[col] = true
		}
	}
	if len(unknownCols) > 0 {
		diag.Warnf("Some of the specified group-by categories couldn't be found: %s", strings.Join(sortedKeys(unknownCols), ", "))
		diag.Warnf("Filtering by group may behave differently than expected!")
	}

	for _, rec := range records {
		if skippedSet[rec.Strain] {
			continue
		}

		key := make(GroupKey, 0, len(requested))
		for _, col := range requested {
			switch {
			case generated[col]:
				key = append(key, generatedValue(genValues, rec.Strain, col))
			case unknownCols[col]:
				key = append(key, "unknown")
			default:
				if value, ok := rec.Attributes[col]; ok {
					key = append(key, value)
				} else {
					key = append(key, "unknown")
				}
			}
		}
		groups[rec.Strain] = key
	}

	return groups, skipped, nil
}

// dateParts holds the year, month, and day fields of a partial ISO date.
// A part that is absent or non-numeric is null.
type dateParts struct {
	year  null.Int
	month null.Int
	day   null.Int
}

func splitDate(value string) dateParts {
	var p dateParts
	fields := []*null.Int{&p.year, &p.month, &p.day}

	for i, raw := range strings.SplitN(value, "-", 3) {
		if n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
			*fields[i] = null.IntFrom(n)
		}
	}

	return p
}

// validDate reports whether year, month, and day form a real calendar date.
// time.Date normalizes out-of-range components (Feb 30 becomes Mar 1), so a
// round trip that changes any component means the input was invalid.
func validDate(year, month, day int64) bool {
	t := time.Date(int(year), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)
	return t.Year() == int(year) && t.Month() == time.Month(month) && t.Day() == int(day)
}

// ambiguousDateSkips scans records for dates too ambiguous to support the
// requested generated columns, in reason order year, month, day. Year and
// month deduplicate against earlier reports. The day scan consults the
// earlier reports too but deliberately does not record its own: no reason is
// currently checked after it, and this matches the original behavior of the
// tool. If a reason is ever added after the day scan, records could be
// reported twice.
func ambiguousDateSkips(records []metadata.Record, parts map[string]dateParts, generated map[string]bool) []SkipRecord {
	var skips []SkipRecord
	already := make(map[string]bool)

	for _, rec := range records {
		if !parts[rec.Strain].year.Valid && !already[rec.Strain] {
			skips = append(skips, SkipRecord{Strain: rec.Strain, Filter: SkipAmbiguousYear})
			already[rec.Strain] = true
		}
	}

	if generated["month"] || generated["week"] {
		for _, rec := range records {
			if !parts[rec.Strain].month.Valid && !already[rec.Strain] {
				skips = append(skips, SkipRecord{Strain: rec.Strain, Filter: SkipAmbiguousMonth})
				already[rec.Strain] = true
			}
		}
	}

	if generated["week"] {
		for _, rec := range records {
			p := parts[rec.Strain]
			ambiguous := !p.day.Valid ||
				!validDate(p.year.Int64, p.month.Int64, p.day.Int64)
			if ambiguous && !already[rec.Strain] {
				skips = append(skips, SkipRecord{Strain: rec.Strain, Filter: SkipAmbiguousDay})
			}
		}
	}

	return skips
}

// generateDateColumns renders the requested generated columns for one record
// whose date survived the ambiguity scan. The month and week values encode
// their year so that, say, January 2020 and January 2021 land in different
// groups; week uses the ISO year, which can differ from the calendar year.
func generateDateColumns(p dateParts, generated map[string]bool) map[string]string {
	values := make(map[string]string, len(generated))

	if generated["year"] {
		values["year"] = strconv.FormatInt(p.year.Int64, 10)
	}
	if generated["month"] {
		values["month"] = fmt.Sprintf("%d-%02d", p.year.Int64, p.month.Int64)
	}
	if generated["week"] {
		t := time.Date(int(p.year.Int64), time.Month(p.month.Int64), int(p.day.Int64), 0, 0, 0, 0, time.UTC)
		isoYear, isoWeek := t.ISOWeek()
		values["week"] = fmt.Sprintf("%d-W%02d", isoYear, isoWeek)
	}

	return values
}

func generatedValue(genValues map[string]map[string]string, strain, col string) string {
	if values, ok := genValues[strain]; ok {
		if v, ok := values[col]; ok {
			return v
		}
	}
	return "unknown"
}

func observedColumns(records []metadata.Record) map[string]bool {
	columns := make(map[string]bool)
	for _, rec := range records {
		for col := range rec.Attributes {
			columns[col] = true
		}
	}
	return columns
}

func subsetOf(set, super map[string]bool) bool {
	for key := range set {
		if !super[key] {
			return false
		}
	}
	return true
}

func anyIn(set, other map[string]bool) bool {
	for key := range set {
		if other[key] {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
