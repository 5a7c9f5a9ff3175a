package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/types"
	"github.com/spf13/cobra"
)

var (
	jobsStatus string
	jobsSource string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List, reject and delete jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsRejectCmd = &cobra.Command{
	Use:   "reject <job-id>",
	Short: "Mark a processed job as not worth applying to",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsReject,
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job and all of its applications",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsDelete,
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "Comma-separated statuses (new, processed, applied, rejected)")
	jobsListCmd.Flags().StringVar(&jobsSource, "source", "", "Only jobs from this source")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 50, "Maximum jobs to list (0 = all)")

	jobsCmd.AddCommand(jobsListCmd, jobsRejectCmd, jobsDeleteCmd)
	rootCmd.AddCommand(jobsCmd)
}

// parseStatuses parses a comma-separated status list
func parseStatuses(raw string) ([]types.JobStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var statuses []types.JobStatus
	for _, part := range strings.Split(raw, ",") {
		status := types.JobStatus(strings.TrimSpace(part))
		if !status.Valid() {
			return nil, fmt.Errorf("unknown job status %q", status)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	statuses, err := parseStatuses(jobsStatus)
	if err != nil {
		return err
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
	jobs, err := database.ListJobs(cmd.Context(), types.JobFilter{
		Statuses: statuses,
		Source:   jobsSource,
		Limit:    jobsLimit,
	})
	if err != nil {
		return err
	}
	printJobs(cmd.OutOrStdout(), jobs)
	return nil
}

// printJobs renders jobs as a table
func printJobs(w io.Writer, jobs []types.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "no jobs")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tSCORE\tTITLE\tCOMPANY\tSOURCE\tID")
	for _, j := range jobs {
		score := "-"
		if j.MatchScore != nil {
			score = fmt.Sprintf("%.2f", *j.MatchScore)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", j.Status, score, j.JobTitle, j.CompanyName, j.Source, j.ID)
	}
	_ = tw.Flush()
}

func parseJobID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid job ID %q", raw)
	}
	return id, nil
}

func runJobsReject(cmd *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return err
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
	if err := a.offlineEngine(database).Reject(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rejected %s\n", id)
	return nil
}

func runJobsDelete(cmd *cobra.Command, args []string) error {
	id, err := parseJobID(args[0])
	if err != nil {
		return err
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
	if err := a.offlineEngine(database).DeleteJob(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
	return nil
}
