package subsample

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/carbocation/pfx"

	"github.com/watronfire/augur/metadata"
)

// Params configures one subsampling pass over a record set.
type Params struct {
	// GroupBy lists the metadata columns (literal or generated) used to
	// partition records. Empty means a single ungrouped pool.
	GroupBy []string

	// MaxSequences is the global budget: the maximum number of records
	// retained across all groups. Must be positive.
	MaxSequences int

	// AllowProbabilistic permits Poisson-based allocation when the budget
	// cannot cover one sequence per group.
	AllowProbabilistic bool

	// Seed makes the probabilistic paths reproducible. Negative means
	// time-seeded.
	Seed int64

	// Priorities maps strain to a score; higher scores are retained first.
	// When nil, reproducible pseudo-random priorities are generated from
	// Seed.
	Priorities map[string]float64

	// Weights splits the budget across groups in proportion to a weights
	// file instead of evenly. When set, the even per-group allocation and
	// its probabilistic fallback do not apply.
	Weights *Weights
}

// Outcome is the result of one subsampling pass.
type Outcome struct {
	// Kept is the set of retained strains.
	Kept map[string]bool

	// Skipped lists records excluded from grouping due to date ambiguity.
	Skipped []SkipRecord

	// Groups maps each grouped strain to its group key.
	Groups map[string]GroupKey

	// GroupSizes is the candidate count per group, keyed by GroupKey.Key().
	GroupSizes map[string]int

	// SequencesPerGroup is the computed cap, and Probabilistic reports
	// whether it is a Poisson mean rather than an exact cap.
	SequencesPerGroup float64
	Probabilistic     bool

	// Targets is the weighted per-group cap, keyed like GroupSizes. Nil
	// unless Params.Weights was set.
	Targets map[string]int
}

// Run performs a full subsampling pass: group resolution, budget
// allocation, and bounded per-group selection by priority.
func Run(records []metadata.Record, p Params, diag Diagnostics) (*Outcome, error) {
	diag = warner(diag)

	if p.MaxSequences <= 0 {
		return nil, fmt.Errorf("subsample: maximum number of sequences must be positive, got %d", p.MaxSequences)
	}

	groups, skipped, err := GroupsForSubsampling(records, p.GroupBy, diag)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Kept:       make(map[string]bool),
		Skipped:    skipped,
		Groups:     groups,
		GroupSizes: make(map[string]int),
	}

	for _, key := range groups {
		out.GroupSizes[key.Key()]++
	}
	if len(out.GroupSizes) == 0 {
		return out, nil
	}

	var queues map[string]*PriorityQueue
	if p.Weights != nil {
		keysByName := make(map[string]GroupKey, len(out.GroupSizes))
		for _, key := range groups {
			keysByName[key.Key()] = key
		}

		targets, err := p.Weights.TargetsByGroup(keysByName, p.GroupBy, p.MaxSequences)
		if err != nil {
			return nil, err
		}
		out.Targets = targets
		queues = QueuesBySize(targets)
	} else {
		counts := make([]int, 0, len(out.GroupSizes))
		for _, n := range out.GroupSizes {
			counts = append(counts, n)
		}

		spg, probabilistic, err := SequencesPerGroup(p.MaxSequences, counts, p.AllowProbabilistic, diag)
		if err != nil {
			return nil, err
		}
		out.SequencesPerGroup = spg
		out.Probabilistic = probabilistic

		if probabilistic {
			diag.Warnf("Sampling probabilistically at %0.4f sequences per group, meaning it is possible to have more than the requested maximum of %d sequences after filtering.", spg, p.MaxSequences)
		}

		groupNames := make([]string, 0, len(out.GroupSizes))
		for name := range out.GroupSizes {
			groupNames = append(groupNames, name)
		}
		sort.Strings(groupNames)

		queues = QueuesByGroup(groupNames, spg, p.Seed, DefaultMaxAttempts)
	}

	priorities := p.Priorities
	if priorities == nil {
		strains := make([]string, 0, len(groups))
		for strain := range groups {
			strains = append(strains, strain)
		}
		priorities = RandomPriorities(strains, p.Seed)
	}

	for _, rec := range records {
		key, ok := groups[rec.Strain]
		if !ok {
			continue
		}
		queues[key.Key()].Add(rec.Strain, priorities[rec.Strain])
	}

	for _, queue := range queues {
		for _, item := range queue.Items() {
			out.Kept[item.(string)] = true
		}
	}

	return out, nil
}

// WriteSkipReport emits the skip list as newline-delimited JSON, one record
// per line, in the same shape the filter report uses.
func WriteSkipReport(w io.Writer, skips []SkipRecord) error {
	enc := json.NewEncoder(w)
	for _, skip := range skips {
		if err := enc.Encode(skip); err != nil {
			return pfx.Err(err)
		}
	}
	return nil
}
