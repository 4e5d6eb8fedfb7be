// subsample selects a representative subset of sequence records from a
// metadata table (and optionally a FASTA file), either with a single
// group-by rule given on the command line or with a multi-sample YAML
// scheme.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/montanaflynn/stats"

	"github.com/watronfire/augur/fasta"
	"github.com/watronfire/augur/metadata"
	"github.com/watronfire/augur/scheme"
	"github.com/watronfire/augur/subsample"
)

func main() {
	var (
		metadataPath    string
		sequencesPath   string
		configPath      string
		groupBy         string
		weightsPath     string
		maxSequences    int
		idColumns       string
		prioritiesPath  string
		seed            int64
		noProbabilistic bool
		outputMetadata  string
		outputSequences string
		outputLog       string
		dryRun          bool
	)

	flag.StringVar(&metadataPath, "metadata", "", "Path to the metadata file (TSV or CSV, optionally compressed).")
	flag.StringVar(&sequencesPath, "sequences", "", "Path to the sequences in FASTA format (optional).")
	flag.StringVar(&configPath, "config", "", "Path to a YAML subsampling scheme. Mutually exclusive with -group-by/-subsample-max-sequences.")
	flag.StringVar(&groupBy, "group-by", "", "Comma-delimited metadata columns to group by. 'year', 'month', and 'week' are generated from the 'date' column.")
	flag.StringVar(&weightsPath, "group-by-weights", "", "Tab-delimited file with the group-by columns and a numeric 'weight' column ('#' comments allowed). The sequence budget is split across groups in proportion to weight.")
	flag.IntVar(&maxSequences, "subsample-max-sequences", 0, "Maximum number of sequences to retain overall.")
	flag.StringVar(&idColumns, "metadata-id-columns", "", "Comma-delimited candidate id columns, in priority order. Defaults to 'strain,name'.")
	flag.StringVar(&prioritiesPath, "priorities-file", "", "Tab-delimited file with 'strain' and 'priority' columns. Higher priorities are preferred. Random priorities are generated if unset.")
	flag.Int64Var(&seed, "subsample-seed", -1, "Random seed for reproducible subsampling. Negative means unseeded.")
	flag.BoolVar(&noProbabilistic, "no-probabilistic-sampling", false, "Fail instead of falling back to probabilistic sampling when there are more groups than the budget allows.")
	flag.StringVar(&outputMetadata, "output-metadata", "", "Path for the subsampled metadata.")
	flag.StringVar(&outputSequences, "output-sequences", "", "Path for the subsampled sequences (requires -sequences).")
	flag.StringVar(&outputLog, "output-log", "", "Path for the ndjson record of strains skipped during grouping.")
	flag.BoolVar(&dryRun, "dry-run", false, "Describe what would run without subsampling or writing output.")
	flag.Parse()

	if metadataPath == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}
	if configPath == "" && maxSequences <= 0 {
		log.Println("Either -config or -subsample-max-sequences is required")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if err := checkFlagConflicts(configPath, groupBy, weightsPath, maxSequences); err != nil {
		log.Fatalln(err)
	}

	table, err := metadata.Read(metadataPath, splitList(idColumns))
	if err != nil {
		log.Fatalln(err)
	}
	log.Printf("Read %d records from %s (id column %q)", len(table.Records), metadataPath, table.IDColumn)

	var priorities map[string]float64
	if prioritiesPath != "" {
		priorities, err = subsample.ReadPriorities(prioritiesPath)
		if err != nil {
			log.Fatalln(err)
		}
		log.Printf("Read %d priorities from %s", len(priorities), prioritiesPath)
	}

	var kept map[string]bool
	var skipped []subsample.SkipRecord

	if configPath != "" {
		cfg, err := scheme.Load(configPath)
		if err != nil {
			log.Fatalln(err)
		}
		if err := cfg.ComputeMaxSequences(); err != nil {
			log.Fatalln(err)
		}

		for _, call := range cfg.Plan() {
			if call.Sample == nil {
				log.Printf("Call %q (depends on %s)", call.Name, strings.Join(call.DependsOn, ", "))
				continue
			}
			log.Printf("Call %q: group-by %v, max sequences %d", call.Name, call.Sample.GroupBy, call.Sample.MaxSequences)
		}
		if dryRun {
			return
		}

		result, err := cfg.Run(table, priorities, seed, nil)
		if err != nil {
			log.Fatalln(err)
		}
		for _, name := range cfg.SampleNames() {
			log.Printf("Sample %q retained %d strains", name, len(result.BySample[name]))
		}

		kept = result.Kept
		skipped = result.Skipped
	} else {
		var weights *subsample.Weights
		if weightsPath != "" {
			weights, err = subsample.ReadWeights(weightsPath)
			if err != nil {
				log.Fatalln(err)
			}
			log.Printf("Read weights over %v from %s", weights.Columns, weightsPath)
		}

		outcome, err := subsample.Run(table.Records, subsample.Params{
			GroupBy:            splitList(groupBy),
			MaxSequences:       maxSequences,
			AllowProbabilistic: !noProbabilistic,
			Seed:               seed,
			Priorities:         priorities,
			Weights:            weights,
		}, nil)
		if err != nil {
			log.Fatalln(err)
		}

		logGroupSummary(outcome)
		if dryRun {
			return
		}

		kept = outcome.Kept
		skipped = outcome.Skipped
	}

	log.Printf("Retained %d of %d records (%d skipped during grouping)", len(kept), len(table.Records), len(skipped))

	if outputMetadata != "" {
		if err := writeMetadata(outputMetadata, table, kept); err != nil {
			log.Fatalln(err)
		}
	}

	if outputSequences != "" {
		if sequencesPath == "" {
			log.Fatalln("-output-sequences requires -sequences")
		}
		if err := writeSequences(sequencesPath, outputSequences, kept); err != nil {
			log.Fatalln(err)
		}
	}

	if outputLog != "" {
		if err := writeSkipLog(outputLog, skipped); err != nil {
			log.Fatalln(err)
		}
	}
}

// checkFlagConflicts rejects -config combined with the direct-mode flags;
// a scheme carries its own group-by rules and budgets.
func checkFlagConflicts(configPath, groupBy, weightsPath string, maxSequences int) error {
	if configPath == "" {
		return nil
	}
	if groupBy != "" || maxSequences > 0 {
		return fmt.Errorf("-config is mutually exclusive with -group-by and -subsample-max-sequences")
	}
	if weightsPath != "" {
		return fmt.Errorf("-config is mutually exclusive with -group-by-weights")
	}
	return nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}

	var out []string
	for _, field := range strings.Split(value, ",") {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}

func logGroupSummary(outcome *subsample.Outcome) {
	if len(outcome.GroupSizes) == 0 {
		log.Println("No groups were formed")
		return
	}

	sizes := make(stats.Float64Data, 0, len(outcome.GroupSizes))
	for _, n := range outcome.GroupSizes {
		sizes = append(sizes, float64(n))
	}

	min, _ := stats.Min(sizes)
	mean, _ := stats.Mean(sizes)
	median, _ := stats.Median(sizes)
	max, _ := stats.Max(sizes)

	log.Printf("%d groups (size min %.0f / mean %.1f / median %.1f / max %.0f)", len(outcome.GroupSizes), min, mean, median, max)

	switch {
	case outcome.Targets != nil:
		log.Printf("Sampling with weighted per-group targets")
	case outcome.Probabilistic:
		log.Printf("Sampling probabilistically at %.4f sequences per group", outcome.SequencesPerGroup)
	default:
		log.Printf("Sampling at %.0f sequences per group", outcome.SequencesPerGroup)
	}
}

func writeMetadata(path string, table *metadata.Table, kept map[string]bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := table.WriteSubset(f, kept); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	log.Printf("Wrote subsampled metadata to %s", path)
	return nil
}

func writeSequences(inPath, outPath string, kept map[string]bool) error {
	seqs, err := fasta.ReadFile(inPath)
	if err != nil {
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := fasta.WriteSubset(f, seqs, kept); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	log.Printf("Wrote subsampled sequences to %s", outPath)
	return nil
}

func writeSkipLog(path string, skipped []subsample.SkipRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := subsample.WriteSkipReport(f, skipped); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	log.Printf("Wrote %d skipped strains to %s", len(skipped), path)
	return nil
}
