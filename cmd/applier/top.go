package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jonathan/applier/internal/matching"
	"github.com/spf13/cobra"
)

var (
	topK        int
	topMinScore float64
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the best matching jobs",
	Long:  "List processed jobs ranked by match score against the configured resume. Applied and rejected jobs are left out.",
	Args:  cobra.NoArgs,
	RunE:  runTop,
}

func init() {
	topCmd.Flags().IntVarP(&topK, "count", "n", 10, "Number of jobs to show")
	topCmd.Flags().Float64Var(&topMinScore, "min-score", 0, "Hide jobs scoring below this (0-100)")
	rootCmd.AddCommand(topCmd)
}

func runTop(cmd *cobra.Command, _ []string) error {
	if topMinScore < 0 || topMinScore > 100 {
		return fmt.Errorf("--min-score must be between 0 and 100")
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

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

	matches, err := engine.TopK(cmd.Context(), resume, topK, matching.TopKOptions{MinScore: topMinScore})
	if err != nil {
		return err
	}
	printMatches(cmd.OutOrStdout(), matches)
	return nil
}

// printMatches renders ranked matches as a table
func printMatches(w io.Writer, matches []matching.Match) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "no matching jobs")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSCORE\tTITLE\tCOMPANY\tID\tURL")
	for i, m := range matches {
		fmt.Fprintf(tw, "%d\t%.2f\t%s\t%s\t%s\t%s\n", i+1, m.Score, m.Job.JobTitle, m.Job.CompanyName, m.Job.ID, m.Job.JobURL)
	}
	_ = tw.Flush()
}
