package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/applier/internal/application"
	"github.com/jonathan/applier/internal/types"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
)

const (
	reviewSubmit = "Submit"
	reviewFail   = "Mark as failed"
	reviewSkip   = "Skip"
	reviewQuit   = "Quit"
)

var reviewList bool

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review draft applications and submit or fail them",
	Long:  "Walk through every draft application, oldest first, and choose whether to submit it, mark it failed or leave it for later.",
	Args:  cobra.NoArgs,
	RunE:  runReview,
}

func init() {
	reviewCmd.Flags().BoolVar(&reviewList, "list", false, "Only list drafts, do not prompt")
	rootCmd.AddCommand(reviewCmd)
}

// reviewItems lists the choices for a draft; Submit is offered only when both documents are attached
func reviewItems(app *types.Application) []string {
	items := make([]string, 0, 4)
	if app.Submittable() {
		items = append(items, reviewSubmit)
	}
	return append(items, reviewFail, reviewSkip, reviewQuit)
}

func requireReason(input string) error {
	if strings.TrimSpace(input) == "" {
		return errors.New("a reason is required")
	}
	return nil
}

func runReview(cmd *cobra.Command, _ []string) error {
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

	drafts, err := service.List(cmd.Context(), types.ApplicationFilter{
		Statuses: []types.ApplicationStatus{types.ApplicationStatusDraft},
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(drafts) == 0 {
		fmt.Fprintln(out, "no drafts awaiting review")
		return nil
	}
	if reviewList {
		for i := range drafts {
			printApplication(out, &drafts[i])
		}
		return nil
	}

	for i := range drafts {
		quit, err := reviewDraft(cmd, service, &drafts[i], out)
		if err != nil || quit {
			return err
		}
	}
	return nil
}

// reviewDraft prompts for one draft. It reports quit when the user asked to stop.
func reviewDraft(cmd *cobra.Command, service *application.Service, app *types.Application, out io.Writer) (bool, error) {
	fmt.Fprintln(out)
	printApplication(out, app)

	sel := promptui.Select{
		Label: fmt.Sprintf("%s at %s", app.JobTitle, app.CompanyName),
		Items: reviewItems(app),
	}
	_, choice, err := sel.Run()
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return true, nil
	}
	if err != nil {
		return true, err
	}

	switch choice {
	case reviewSubmit:
		submitted, err := service.Submit(cmd.Context(), app.ID)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "submit failed: %v\n", err)
			return false, nil
		}
		fmt.Fprintf(out, "submitted %s\n", submitted.ID)
	case reviewFail:
		reason := promptui.Prompt{Label: "Reason", Validate: requireReason}
		message, err := reason.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		if err != nil {
			return true, err
		}
		if _, err := service.Fail(cmd.Context(), app.ID, message); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "could not mark failed: %v\n", err)
		}
	case reviewQuit:
		return true, nil
	}
	return false, nil
}
