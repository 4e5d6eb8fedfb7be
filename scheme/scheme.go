// Package scheme loads and runs multi-sample subsampling schemes: a YAML
// file describing named samples, each with its own grouping and a weight
// that determines its share of the scheme-wide sequence budget. The final
// output is the union of the strains every sample retains.
package scheme

import (
	"fmt"
	"os"
	"sort"

	"github.com/carbocation/pfx"
	"gopkg.in/yaml.v3"

	"github.com/watronfire/augur/metadata"
	"github.com/watronfire/augur/subsample"
)

// OutputCall is the name of the synthetic final call that unions every
// sample's strains.
const OutputCall = "output"

// Sample is one named sampling rule within a scheme.
type Sample struct {
	GroupBy                      []string `yaml:"group_by"`
	Weight                       int      `yaml:"weight"`
	MaxSequences                 int      `yaml:"max_sequences"`
	DisableProbabilisticSampling bool     `yaml:"disable_probabilistic_sampling"`
	RandomSeed                   *int64   `yaml:"random_seed"`
	Priorities                   string   `yaml:"priorities"`
}

// Config is a parsed subsampling scheme.
type Config struct {
	Size    int
	Samples map[string]*Sample
}

type rawConfig struct {
	Size    int                `yaml:"size"`
	Samples map[string]*Sample `yaml:"samples"`
}

// Load reads and validates the scheme at path. Unknown keys are rejected so
// that misspelled options fail loudly instead of being ignored.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var raw rawConfig
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing subsampling scheme %s: %w", path, err)
	}
	if len(raw.Samples) == 0 {
		return nil, fmt.Errorf("subsampling scheme %s must define a %q mapping", path, "samples")
	}
	for name := range raw.Samples {
		if name == OutputCall {
			return nil, fmt.Errorf("subsampling scheme %s: sample name %q is reserved", path, OutputCall)
		}
	}

	return &Config{Size: raw.Size, Samples: raw.Samples}, nil
}

// SampleNames returns the sample names in sorted order.
func (c *Config) SampleNames() []string {
	names := make([]string, 0, len(c.Samples))
	for name := range c.Samples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ComputeMaxSequences splits the scheme-wide size across the samples that do
// not set max_sequences explicitly, in proportion to their weights.
func (c *Config) ComputeMaxSequences() error {
	totalWeight := 0
	for _, name := range c.SampleNames() {
		sample := c.Samples[name]
		if sample.MaxSequences > 0 {
			continue
		}
		if sample.Weight <= 0 {
			return fmt.Errorf("sample %q needs a positive weight or an explicit max_sequences", name)
		}
		totalWeight += sample.Weight
	}

	for _, sample := range c.Samples {
		if sample.MaxSequences > 0 || totalWeight == 0 {
			continue
		}
		sample.MaxSequences = c.Size * sample.Weight / totalWeight
	}

	return nil
}

// Call is one step of a scheme's execution plan. The final OutputCall has a
// nil Sample and depends on every sample call.
type Call struct {
	Name      string
	Sample    *Sample
	DependsOn []string
}

// Plan produces the calls in a runnable order: a call runs once all of its
// dependencies have completed. Sample calls have no dependencies here, but
// the loop tolerates arbitrary acyclic dependencies.
func (c *Config) Plan() []*Call {
	names := c.SampleNames()

	calls := make([]*Call, 0, len(names)+1)
	for _, name := range names {
		calls = append(calls, &Call{Name: name, Sample: c.Samples[name]})
	}
	calls = append(calls, &Call{Name: OutputCall, DependsOn: names})

	var ordered []*Call
	complete := make(map[string]bool)
	for len(ordered) < len(calls) {
		call := nextRunnable(calls, complete)
		if call == nil {
			break
		}
		ordered = append(ordered, call)
		complete[call.Name] = true
	}

	return ordered
}

func nextRunnable(calls []*Call, complete map[string]bool) *Call {
	for _, call := range calls {
		if complete[call.Name] {
			continue
		}
		runnable := true
		for _, dep := range call.DependsOn {
			if !complete[dep] {
				runnable = false
				break
			}
		}
		if runnable {
			return call
		}
	}
	return nil
}

// Result is the combined outcome of a scheme run.
type Result struct {
	// Kept is the union of retained strains across samples.
	Kept map[string]bool

	// BySample is the retained strain set per sample name.
	BySample map[string]map[string]bool

	// Skipped accumulates every sample's date-ambiguity skips.
	Skipped []subsample.SkipRecord
}

// Run executes the scheme's plan in-process over the given table. seed is
// the scheme-wide random seed (negative for unseeded); a sample's
// random_seed option overrides it. priorities applies to samples that do
// not load their own priorities file.
func (c *Config) Run(table *metadata.Table, priorities map[string]float64, seed int64, diag subsample.Diagnostics) (*Result, error) {
	if err := c.ComputeMaxSequences(); err != nil {
		return nil, err
	}

	result := &Result{
		Kept:     make(map[string]bool),
		BySample: make(map[string]map[string]bool),
	}

	for _, call := range c.Plan() {
		if call.Sample == nil {
			for _, dep := range call.DependsOn {
				for strain := range result.BySample[dep] {
					result.Kept[strain] = true
				}
			}
			continue
		}

		outcome, err := c.runSample(call, table, priorities, seed, diag)
		if err != nil {
			return nil, fmt.Errorf("sample %q: %w", call.Name, err)
		}

		result.BySample[call.Name] = outcome.Kept
		result.Skipped = append(result.Skipped, outcome.Skipped...)
	}

	return result, nil
}

func (c *Config) runSample(call *Call, table *metadata.Table, priorities map[string]float64, seed int64, diag subsample.Diagnostics) (*subsample.Outcome, error) {
	sample := call.Sample

	sampleSeed := seed
	if sample.RandomSeed != nil {
		sampleSeed = *sample.RandomSeed
	}

	samplePriorities := priorities
	if sample.Priorities != "" {
		loaded, err := subsample.ReadPriorities(sample.Priorities)
		if err != nil {
			return nil, err
		}
		samplePriorities = loaded
	}

	return subsample.Run(table.Records, subsample.Params{
		GroupBy:            sample.GroupBy,
		MaxSequences:       sample.MaxSequences,
		AllowProbabilistic: !sample.DisableProbabilisticSampling,
		Seed:               sampleSeed,
		Priorities:         samplePriorities,
	}, diag)
}
