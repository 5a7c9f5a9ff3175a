package main

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/types"
	"github.com/spf13/cobra"
)

var (
	applySubmit    bool
	applyNoBrowser bool
)

var applyCmd = &cobra.Command{
	Use:   "apply <job-id>",
	Short: "Prepare an application for a processed job",
	Long: `Open a draft application for the job (or continue the open draft), generate a
tailored resume and cover letter from your base resume, capture the job page and
leave the draft for review. With --submit the draft is submitted right away.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applySubmit, "submit", false, "Submit immediately instead of leaving the draft for review")
	applyCmd.Flags().BoolVar(&applyNoBrowser, "no-browser", false, "Skip the job page screenshot")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	jobID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid job ID %q", args[0])
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
	service := a.newService(database)
	autoSubmit := applySubmit || a.cfg.Applications.AutoSubmit
	browser := a.cfg.Browser.Enabled && !applyNoBrowser
	preparer, err := a.newPreparer(cmd.Context(), database, service, autoSubmit, browser)
	if err != nil {
		return err
	}

	app, err := preparer.Prepare(cmd.Context(), jobID)
	if app != nil {
		printApplication(cmd.OutOrStdout(), app)
	}
	return err
}

// printApplication renders an application with its artifacts
func printApplication(w io.Writer, app *types.Application) {
	fmt.Fprintf(w, "Application %s (%s)\n", app.ID, app.Status)
	fmt.Fprintf(w, "  Job:          %s at %s\n", app.JobTitle, app.CompanyName)
	fmt.Fprintf(w, "  URL:          %s\n", app.JobURL)
	fmt.Fprintf(w, "  Resume:       %s\n", artifactLabel(app.ResumePath, app.ResumeText))
	fmt.Fprintf(w, "  Cover letter: %s\n", artifactLabel(app.CoverLetterPath, app.CoverLetterText))
	fmt.Fprintf(w, "  Screenshot:   %s\n", artifactLabel(app.ScreenshotPath, nil))
	if app.SubmittedAt != nil {
		fmt.Fprintf(w, "  Submitted:    %s\n", app.SubmittedAt.Local().Format("2006-01-02 15:04"))
	}
	if app.Notes != nil && *app.Notes != "" {
		fmt.Fprintf(w, "  Notes:        %s\n", *app.Notes)
	}
	if app.ErrorMessage != nil {
		fmt.Fprintf(w, "  Error:        %s\n", *app.ErrorMessage)
	}
}

func artifactLabel(path, text *string) string {
	switch {
	case path != nil:
		return *path
	case text != nil:
		return fmt.Sprintf("(inline, %d chars)", len([]rune(*text)))
	default:
		return "-"
	}
}
