package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/gofrs/flock"
	"github.com/jonathan/applier/internal/matching"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var matchLimit int

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Embed and score pending jobs against your resume",
	Long: `Embed every job still in status new, score it against the configured resume and
mark it processed. Jobs scored against a previous version of the resume are rescored.
Only one match run may execute at a time.`,
	Args: cobra.NoArgs,
	RunE: runMatch,
}

func init() {
	matchCmd.Flags().IntVar(&matchLimit, "limit", -1, "Maximum jobs to process (default matching.batch_size, 0 = all)")
	rootCmd.AddCommand(matchCmd)
}

// errMatchRunning is returned when another match run holds the lock
var errMatchRunning = errors.New("another match run is in progress")

// acquireRunLock takes the exclusive match lock without waiting
func acquireRunLock(path string) (*flock.Flock, error) {
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if !locked {
		return nil, errMatchRunning
	}
	return lock, nil
}

func runMatch(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	lock, err := acquireRunLock(a.cfg.LockFile)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	database, err := a.openDB(cmd.Context())
	if err != nil {
		return err
	}
	engine, err := a.newEngine(cmd.Context(), database)
	if err != nil {
		return err
	}
	resume, err := matching.NewResumeCache(engine, a.readProfile).Get(cmd.Context())
	if err != nil {
		return err
	}

	limit := matchLimit
	if limit < 0 {
		limit = a.cfg.Matching.BatchSize
	}
	results, err := engine.ProcessPending(cmd.Context(), resume, limit)
	if err != nil {
		return err
	}

	a.logger.Debug("match run finished", zap.String("resume_fingerprint", resume.Fingerprint))
	printMatchSummary(cmd.OutOrStdout(), results)
	return nil
}

// printMatchSummary prints outcome counts followed by every failure
func printMatchSummary(w io.Writer, results []matching.JobResult) {
	counts := map[matching.Outcome]int{}
	for _, r := range results {
		counts[r.Outcome]++
	}
	fmt.Fprintf(w, "processed: %d  rescored: %d  skipped: %d  failed: %d\n",
		counts[matching.OutcomeProcessed], counts[matching.OutcomeRescored],
		counts[matching.OutcomeSkipped], counts[matching.OutcomeFailed])

	if counts[matching.OutcomeFailed] == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tERROR")
	for _, r := range results {
		if r.Outcome == matching.OutcomeFailed {
			fmt.Fprintf(tw, "%s\t%s\n", r.JobID, r.Error)
		}
	}
	_ = tw.Flush()
}
