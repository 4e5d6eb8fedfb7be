package subsample

import (
	"errors"
	"fmt"
	"math"
)

// TooManyGroupsError is returned when a budget cannot cover even one
// sequence per group, which makes exact per-group allocation infeasible.
type TooManyGroupsError struct {
	Target int
	Groups int
}

func (e TooManyGroupsError) Error() string {
	return fmt.Sprintf("asked to provide at most %d sequences, but there are %d groups", e.Target, e.Groups)
}

// SequencesPerGroup computes the retention cap per group for a global budget
// of targetMax sequences, given the number of candidate sequences in each
// group. The result is an exact integer cap whenever the budget can cover
// every group. When it cannot and allowProbabilistic is set, the result is a
// fractional cap suitable as a Poisson mean (see QueuesByGroup) and
// probabilistic is true; otherwise the TooManyGroupsError is returned.
func SequencesPerGroup(targetMax int, counts []int, allowProbabilistic bool, diag Diagnostics) (spg float64, probabilistic bool, err error) {
	diag = warner(diag)

	exact, err := exactSequencesPerGroup(targetMax, counts)
	if err == nil {
		return float64(exact), false, nil
	}

	var tooMany TooManyGroupsError
	if errors.As(err, &tooMany) && allowProbabilistic {
		diag.Warnf("%v", err)
		return fractionalSequencesPerGroup(targetMax, counts), true, nil
	}

	return 0, false, err
}

// totalSequences is the number of sequences retained across all groups at a
// hypothetical sequences-per-group value.
func totalSequences(spg float64, counts []int) float64 {
	var total float64
	for _, n := range counts {
		total += math.Min(spg, float64(n))
	}
	return total
}

// exactSequencesPerGroup finds the largest integer cap whose retained total
// stays within targetMax. totalSequences is non-decreasing in the cap, so a
// bisection over [1, targetMax] suffices.
func exactSequencesPerGroup(targetMax int, counts []int) (int, error) {
	if len(counts) > targetMax {
		return 0, TooManyGroupsError{Target: targetMax, Groups: len(counts)}
	}

	lo, hi := 1, targetMax
	for hi-lo > 2 {
		mid := (hi + lo) / 2
		if totalSequences(float64(mid), counts) <= float64(targetMax) {
			lo = mid
		} else {
			hi = mid
		}
	}

	if totalSequences(float64(hi), counts) <= float64(targetMax) {
		return hi, nil
	}
	return lo, nil
}

// fractionalSequencesPerGroup finds a real-valued cap whose retained total
// stays within targetMax, bisecting until the bracket is within 10%. Unlike
// the exact form it accepts budgets smaller than the group count, returning
// a fraction usable as a Poisson mean.
func fractionalSequencesPerGroup(targetMax int, counts []int) float64 {
	lo, hi := 1e-5, float64(targetMax)
	for hi/lo > 1.1 {
		mid := (lo + hi) / 2
		if totalSequences(mid, counts) <= float64(targetMax) {
			lo = mid
		} else {
			hi = mid
		}
	}

	return (lo + hi) / 2
}
