package subsample

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/watronfire/augur/metadata"
)

func regionRecords() []metadata.Record {
	return []metadata.Record{
		rec("strain1", map[string]string{"region": "Africa"}),
		rec("strain2", map[string]string{"region": "Africa"}),
		rec("strain3", map[string]string{"region": "Africa"}),
		rec("strain4", map[string]string{"region": "Europe"}),
		rec("strain5", map[string]string{"region": "Europe"}),
		rec("strain6", map[string]string{"region": "Asia"}),
	}
}

func TestRunRespectsBudget(t *testing.T) {
	outcome, err := Run(regionRecords(), Params{
		GroupBy:      []string{"region"},
		MaxSequences: 3,
		Seed:         1,
	}, &captureDiag{})
	if err != nil {
		t.Fatal(err)
	}

	if len(outcome.Kept) > 3 {
		t.Errorf("kept %d records, budget was 3", len(outcome.Kept))
	}
	if outcome.Probabilistic {
		t.Error("3 groups within a budget of 3 should allocate exactly")
	}
	if outcome.SequencesPerGroup != 1 {
		t.Errorf("spg = %v, want 1", outcome.SequencesPerGroup)
	}
}

func TestRunKeepsHighestPriorityPerGroup(t *testing.T) {
	priorities := map[string]float64{
		"strain1": 0.1, "strain2": 0.9, "strain3": 0.5,
		"strain4": 0.2, "strain5": 0.8,
		"strain6": 0.3,
	}

	outcome, err := Run(regionRecords(), Params{
		GroupBy:      []string{"region"},
		MaxSequences: 3,
		Priorities:   priorities,
		Seed:         1,
	}, &captureDiag{})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{"strain2": true, "strain5": true, "strain6": true}
	if !reflect.DeepEqual(outcome.Kept, want) {
		t.Errorf("kept = %v, want %v", outcome.Kept, want)
	}
}

func TestRunGroupSizes(t *testing.T) {
	outcome, err := Run(regionRecords(), Params{
		GroupBy:      []string{"region"},
		MaxSequences: 6,
		Seed:         1,
	}, &captureDiag{})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]int{"Africa": 3, "Europe": 2, "Asia": 1}
	if !reflect.DeepEqual(outcome.GroupSizes, want) {
		t.Errorf("group sizes = %v, want %v", outcome.GroupSizes, want)
	}
}

func TestRunProbabilisticReproducible(t *testing.T) {
	records := regionRecords()
	params := Params{
		GroupBy:            []string{"region"},
		MaxSequences:       2, // fewer than the three groups
		AllowProbabilistic: true,
		Seed:               314159,
	}

	first, err := Run(records, params, &captureDiag{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := Run(records, params, &captureDiag{})
	if err != nil {
		t.Fatal(err)
	}

	if !first.Probabilistic || !second.Probabilistic {
		t.Fatal("expected probabilistic allocation with more groups than budget")
	}
	if !reflect.DeepEqual(first.Kept, second.Kept) {
		t.Errorf("seeded runs retained different records: %v vs %v", first.Kept, second.Kept)
	}
}

func TestRunProbabilisticDisallowed(t *testing.T) {
	_, err := Run(regionRecords(), Params{
		GroupBy:      []string{"region"},
		MaxSequences: 2,
		Seed:         1,
	}, &captureDiag{})
	if err == nil {
		t.Fatal("expected a too-many-groups error with probabilistic sampling disallowed")
	}
}

func TestRunRequiresPositiveBudget(t *testing.T) {
	if _, err := Run(regionRecords(), Params{GroupBy: []string{"region"}}, &captureDiag{}); err == nil {
		t.Fatal("expected an error for a non-positive budget")
	}
}

func TestRunUngrouped(t *testing.T) {
	outcome, err := Run(regionRecords(), Params{MaxSequences: 4, Seed: 1}, &captureDiag{})
	if err != nil {
		t.Fatal(err)
	}

	if len(outcome.Kept) != 4 {
		t.Errorf("kept %d records, want 4 from the single dummy group", len(outcome.Kept))
	}
	if len(outcome.GroupSizes) != 1 {
		t.Errorf("expected a single group, got %v", outcome.GroupSizes)
	}
}

func TestRunReportsSkips(t *testing.T) {
	records := []metadata.Record{
		rec("strain1", map[string]string{"date": ""}),
		rec("strain2", map[string]string{"date": "2020-02-01"}),
	}

	outcome, err := Run(records, Params{
		GroupBy:      []string{"year"},
		MaxSequences: 5,
		Seed:         1,
	}, &captureDiag{})
	if err != nil {
		t.Fatal(err)
	}

	if outcome.Kept["strain1"] {
		t.Error("a skipped strain must not be retained")
	}
	if len(outcome.Skipped) != 1 || outcome.Skipped[0].Filter != SkipAmbiguousYear {
		t.Errorf("skipped = %v, want one ambiguous-year record", outcome.Skipped)
	}
}

func TestWriteSkipReport(t *testing.T) {
	skips := []SkipRecord{
		{Strain: "strain1", Filter: SkipAmbiguousYear},
		{Strain: "strain2", Filter: SkipAmbiguousMonth},
	}

	var buf bytes.Buffer
	if err := WriteSkipReport(&buf, skips); err != nil {
		t.Fatal(err)
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 ndjson lines, got %d", len(lines))
	}

	var first SkipRecord
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatal(err)
	}
	if first.Strain != "strain1" || first.Filter != SkipAmbiguousYear || first.Kwargs != "" {
		t.Errorf("first line = %+v", first)
	}
}
