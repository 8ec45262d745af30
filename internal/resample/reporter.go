package resample

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Reporter writes run results to an output directory in the formats an
// external reporting or plotting collaborator can pick up: a
// human-readable summary, a per-score CSV, and a JSON dump.
type Reporter struct {
	outputPath string
}

// NewReporter creates a reporter rooted at outputPath.
func NewReporter(outputPath string) *Reporter {
	return &Reporter{outputPath: outputPath}
}

// Write emits all report formats for one run.
func (r *Reporter) Write(result *Result, summary Summary) error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if err := r.writeSummary(summary); err != nil {
		return err
	}
	if err := r.writeScoreCSV(result); err != nil {
		return err
	}
	if err := r.writeJSON(result, summary); err != nil {
		return err
	}

	log.Info().Str("path", r.outputPath).Msg("Reports written")
	return nil
}

// WriteComparison emits a side-by-side report for two runs on the same
// data, typically spatial versus random fold assignment.
func (r *Reporter) WriteComparison(cmp Comparison) error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(r.outputPath, "comparison.txt")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create comparison file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "RESAMPLING COMPARISON (%s)\n", cmp.A.Metric)
	fmt.Fprintf(f, "==========================\n\n")
	for _, s := range []Summary{cmp.A, cmp.B} {
		fmt.Fprintf(f, "%-12s mean=%.4f sd=%.4f median=%.4f n=%d excluded=%d skipped=%d\n",
			s.Partitioner, s.Mean, s.StdDev, s.Median, s.Count, s.Excluded, s.Skipped)
	}
	fmt.Fprintf(f, "\nMean difference (%s - %s): %+.4f\n", cmp.A.Partitioner, cmp.B.Partitioner, cmp.MeanDiff)

	jsonPath := filepath.Join(r.outputPath, "comparison.json")
	data, err := json.MarshalIndent(cmp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal comparison: %w", err)
	}
	return os.WriteFile(jsonPath, data, 0o644)
}

func (r *Reporter) writeSummary(s Summary) error {
	path := filepath.Join(r.outputPath, "summary.txt")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "RESAMPLING RESULTS SUMMARY\n")
	fmt.Fprintf(f, "==========================\n\n")
	fmt.Fprintf(f, "Partitioner: %s\n", s.Partitioner)
	fmt.Fprintf(f, "Metric: %s\n\n", s.Metric)
	fmt.Fprintf(f, "Scored units: %d of %d expected\n", s.Count, s.Expected)
	fmt.Fprintf(f, "Excluded (failed): %d\n", s.Excluded)
	fmt.Fprintf(f, "Skipped (cancelled): %d\n\n", s.Skipped)
	fmt.Fprintf(f, "Mean: %.4f\n", s.Mean)
	fmt.Fprintf(f, "Std Dev: %.4f\n", s.StdDev)
	fmt.Fprintf(f, "Min / Median / Max: %.4f / %.4f / %.4f\n", s.Min, s.Median, s.Max)

	return nil
}

func (r *Reporter) writeScoreCSV(result *Result) error {
	path := filepath.Join(r.outputPath, "scores.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create score file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"repetition", "fold", "value"}); err != nil {
		return err
	}
	for _, s := range result.Scores {
		record := []string{
			strconv.Itoa(s.Repetition),
			strconv.Itoa(s.Fold),
			strconv.FormatFloat(s.Value, 'f', 6, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reporter) writeJSON(result *Result, summary Summary) error {
	path := filepath.Join(r.outputPath, "run.json")

	report := struct {
		Summary Summary `json:"summary"`
		Result  *Result `json:"result"`
	}{Summary: summary, Result: result}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
