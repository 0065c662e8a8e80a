package main

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/and161185/lendclient/internal/access"
	"github.com/and161185/lendclient/internal/api"
	"github.com/and161185/lendclient/internal/model"
	"github.com/and161185/lendclient/internal/wizard"
)

// loadWizard fills a wizard from a YAML input document. Document paths are
// resolved relative to the document.
func loadWizard(a *app, path string) (*wizard.Wizard, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, usageError{err}
	}
	defer f.Close()
	in, err := wizard.DecodeInput(f)
	if err != nil {
		return nil, usageError{err}
	}

	w := wizard.New(a.client, wizard.WithLogger(a.log.Named("wizard")), wizard.WithMetrics(a.metrics))
	w.Fill(in.Form)
	base := filepath.Dir(path)
	for _, d := range in.Documents {
		dt, ok := model.ParseDocumentType(d.Type)
		if !ok {
			return nil, usagef("document %s: unknown type %q", d.Path, d.Type)
		}
		p := d.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read document: %w", err)
		}
		if _, err := w.AddFile(filepath.Base(p), content, dt); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func newApplyCmd(a *app) *cobra.Command {
	var (
		file   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Walk an application through every step and submit it",
		Long: `Read an application from a YAML file, validate each of the five steps in
order and submit it together with its documents.

With --dry-run every step is checked locally and nothing is sent.

Example:
  lend apply -f application.yaml`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return usagef("apply: -f is required")
			}
			if dryRun {
				return checkApplication(a, file)
			}
			if err := a.requireSession(); err != nil {
				return err
			}
			if err := access.GateCreateApplication.Check(a.state.Snapshot().Auth.Grants()); err != nil {
				return err
			}
			w, err := loadWizard(a, file)
			if err != nil {
				return err
			}
			for w.Step() != wizard.StepReview {
				from := w.Step()
				if err := w.Next(); err != nil {
					return stepError(from, err)
				}
				fmt.Fprintf(a.out, "%-10s ok\n", from)
			}

			docs := len(w.Files())
			app, err := w.Submit(cmd.Context())
			if err != nil {
				return submitFailure(a, w.Files(), err)
			}
			fmt.Fprintf(a.out, "submitted application %s (%s, %d documents)\n", app.ID, app.Status, docs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "application YAML")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate every step without submitting")
	return cmd
}

func checkApplication(a *app, file string) error {
	w, err := loadWizard(a, file)
	if err != nil {
		return err
	}
	var ve *wizard.ValidationError
	if err := w.ValidateAll(); errors.As(err, &ve) {
		for _, f := range ve.Fields {
			fmt.Fprintln(a.errOut, " ", f)
		}
		return fmt.Errorf("application has %d invalid field(s)", len(ve.Fields))
	} else if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "application valid, %d document(s)\n", len(w.Files()))
	return nil
}

// submitFailure prints what is known about a failed submit on stderr and
// returns the error the command exits with.
func submitFailure(a *app, files []model.UploadedFile, err error) error {
	reportFiles(a, files)
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.HasFieldErrors() {
		lines := rejectedFields(apiErr)
		for _, l := range lines {
			fmt.Fprintln(a.errOut, " ", l)
		}
		return fmt.Errorf("backend rejected %d field(s)", len(lines))
	}
	var se *wizard.SubmitError
	if errors.As(err, &se) {
		return errors.New(se.Message)
	}
	return err
}

func rejectedFields(e *api.APIError) []string {
	var lines []string
	add := func(prefix string, m map[string][]string) {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			lines = append(lines, prefix+k+": "+strings.Join(m[k], " "))
		}
	}
	add("applicant_info.", e.ApplicantErrors)
	add("", e.FieldErrors)
	return lines
}

func newDraftCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Save an application as a draft without validating it",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return usagef("draft: -f is required")
			}
			if err := a.requireSession(); err != nil {
				return err
			}
			w, err := loadWizard(a, file)
			if err != nil {
				return err
			}
			id, err := w.SaveDraft(cmd.Context())
			if err != nil {
				return fmt.Errorf("save draft: %w", err)
			}
			fmt.Fprintf(a.out, "draft saved as %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "application YAML")
	return cmd
}

func stepError(s wizard.Step, err error) error {
	var ve *wizard.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("%s: %s", s, ve.Summary())
	}
	return fmt.Errorf("%s: %w", s, err)
}

func reportFiles(a *app, files []model.UploadedFile) {
	for _, f := range files {
		if f.Status != "" {
			fmt.Fprintf(a.errOut, "  %-30s %s\n", f.Name, f.Status)
		}
	}
}
