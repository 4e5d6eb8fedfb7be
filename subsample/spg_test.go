package subsample

import (
	"errors"
	"math"
	"testing"
)

func TestExactSequencesPerGroup(t *testing.T) {
	cases := []struct {
		target int
		counts []int
		want   int
	}{
		{4, []int{4, 2}, 2},
		{2, []int{4, 2}, 1},
		// Once the budget covers every group in full, the cap saturates at
		// the budget itself.
		{10, []int{4, 2}, 10},
		{6, []int{3, 3}, 6},
	}

	for _, c := range cases {
		got, err := exactSequencesPerGroup(c.target, c.counts)
		if err != nil {
			t.Errorf("exactSequencesPerGroup(%d, %v): %v", c.target, c.counts, err)
			continue
		}
		if got != c.want {
			t.Errorf("exactSequencesPerGroup(%d, %v) = %d, want %d", c.target, c.counts, got, c.want)
		}
	}
}

func TestExactSequencesPerGroupTooManyGroups(t *testing.T) {
	_, err := exactSequencesPerGroup(1, []int{4, 2})
	var tooMany TooManyGroupsError
	if !errors.As(err, &tooMany) {
		t.Fatalf("expected TooManyGroupsError, got %v", err)
	}
	if tooMany.Target != 1 || tooMany.Groups != 2 {
		t.Errorf("error = %+v, want target 1 and 2 groups", tooMany)
	}
}

func TestExactSequencesPerGroupNeverExceedsTarget(t *testing.T) {
	counts := []int{17, 3, 9, 1, 45, 26}
	for target := len(counts); target <= 80; target++ {
		spg, err := exactSequencesPerGroup(target, counts)
		if err != nil {
			t.Fatalf("target %d: %v", target, err)
		}
		if total := totalSequences(float64(spg), counts); total > float64(target) {
			t.Errorf("target %d: cap %d retains %.0f sequences", target, spg, total)
		}
	}
}

func TestExactSequencesPerGroupMonotonic(t *testing.T) {
	counts := []int{8, 5, 2, 11}
	previous := 0
	for target := len(counts); target <= 40; target++ {
		spg, err := exactSequencesPerGroup(target, counts)
		if err != nil {
			t.Fatalf("target %d: %v", target, err)
		}
		if spg < previous {
			t.Errorf("cap decreased from %d to %d as target grew to %d", previous, spg, target)
		}
		previous = spg
	}
}

func TestFractionalSequencesPerGroup(t *testing.T) {
	cases := []struct {
		target int
		counts []int
		want   float64
	}{
		{4, []int{4, 2}, 1.9375},
		{2, []int{4, 2}, 0.9688},
		{1, []int{4, 2}, 0.4844},
	}

	for _, c := range cases {
		got := fractionalSequencesPerGroup(c.target, c.counts)
		if math.Abs(got-c.want) > 1e-4 {
			t.Errorf("fractionalSequencesPerGroup(%d, %v) = %.4f, want %.4f", c.target, c.counts, got, c.want)
		}
	}
}

func TestSequencesPerGroupExactPath(t *testing.T) {
	spg, probabilistic, err := SequencesPerGroup(4, []int{4, 2}, true, &captureDiag{})
	if err != nil {
		t.Fatal(err)
	}
	if probabilistic {
		t.Error("exact allocation should not report probabilistic use")
	}
	if spg != 2 {
		t.Errorf("spg = %v, want 2", spg)
	}
}

func TestSequencesPerGroupProbabilisticFallback(t *testing.T) {
	diag := &captureDiag{}
	spg, probabilistic, err := SequencesPerGroup(1, []int{4, 2}, true, diag)
	if err != nil {
		t.Fatal(err)
	}
	if !probabilistic {
		t.Error("expected the probabilistic fallback to be reported")
	}
	if spg <= 0 || spg >= 1 {
		t.Errorf("fractional spg = %v, want a value in (0, 1)", spg)
	}
	if !diag.contains("groups") {
		t.Errorf("expected a warning naming the failed exact allocation, got %v", diag.warnings)
	}
}

func TestSequencesPerGroupProbabilisticDisallowed(t *testing.T) {
	_, _, err := SequencesPerGroup(1, []int{4, 2}, false, &captureDiag{})
	var tooMany TooManyGroupsError
	if !errors.As(err, &tooMany) {
		t.Fatalf("expected TooManyGroupsError, got %v", err)
	}
}
