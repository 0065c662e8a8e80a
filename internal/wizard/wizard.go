// Package wizard drives the five-step loan application: per-step validation,
// staged documents, draft save and final submission.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/and161185/lendclient/internal/api"
	"github.com/and161185/lendclient/internal/errs"
	"github.com/and161185/lendclient/internal/logger"
	"github.com/and161185/lendclient/internal/metrics"
	"github.com/and161185/lendclient/internal/model"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GenericSubmitError is shown when the backend gave nothing more specific.
const GenericSubmitError = "Failed to submit application. Please try again."

// Backend is the subset of the API client the wizard needs.
type Backend interface {
	CreateApplication(ctx context.Context, payload any) (*model.Application, error)
	UpdateApplication(ctx context.Context, id string, payload any) (*model.Application, error)
	UploadDocument(ctx context.Context, appID, name string, content []byte, dt model.DocumentType) (*model.Document, error)
}

// SubmitError is a failed submission. Message is safe to show to the user.
type SubmitError struct {
	Message string
	File    string // set when an upload failed
	Err     error
}

func (e *SubmitError) Error() string { return e.Message }
func (e *SubmitError) Unwrap() error { return e.Err }

func newSubmitError(err error, file string) *SubmitError {
	msg := GenericSubmitError
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.Summary()
	}
	if file != "" && msg != GenericSubmitError {
		msg = file + ": " + msg
	}
	return &SubmitError{Message: msg, File: file, Err: err}
}

// Wizard holds one application in progress. It is safe for concurrent use;
// network calls run without holding the lock.
type Wizard struct {
	backend Backend
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu         sync.Mutex
	step       Step
	furthest   Step
	form       Form
	files      []model.UploadedFile
	appID      string
	submitting bool
	saving     bool
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(w *Wizard) { w.log = logger.OrNop(l) } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(w *Wizard) { w.metrics = m } }

// WithClock overrides time.Now (age checks, staging timestamps).
func WithClock(now func() time.Time) Option { return func(w *Wizard) { w.now = now } }

// New creates an empty wizard at the personal step.
func New(b Backend, opts ...Option) *Wizard {
	w := &Wizard{backend: b, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Form returns a copy of the entered data.
func (w *Wizard) Form() Form {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.form
}

// ApplicationID is the server id once a draft was saved.
func (w *Wizard) ApplicationID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appID
}

// Edit mutates the form under the lock.
func (w *Wizard) Edit(fn func(*Form)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.form)
}

// Fill replaces the form wholesale.
func (w *Wizard) Fill(f Form) { w.Edit(func(dst *Form) { *dst = f }) }

// Files returns the staged files.
func (w *Wizard) Files() []model.UploadedFile {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.UploadedFile(nil), w.files...)
}

// AddFile stages a document after checking its size and extension.
func (w *Wizard) AddFile(name string, content []byte, dt model.DocumentType) (uuid.UUID, error) {
	if err := checkFile(name, len(content)); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, fmt.Errorf("file id: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files = append(w.files, model.UploadedFile{
		ID:         id,
		Name:       name,
		Content:    content,
		Category:   dt,
		UploadedAt: w.now(),
		Status:     model.UploadUploading,
	})
	return id, nil
}

// RemoveFile unstages id.
func (w *Wizard) RemoveFile(id uuid.UUID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, f := range w.files {
		if f.ID == id {
			w.files = append(w.files[:i], w.files[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("file %s: %w", id, errs.ErrNotFound)
}

// SetCategory changes the document type of a staged file.
func (w *Wizard) SetCategory(id uuid.UUID, dt model.DocumentType) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.files {
		if w.files[i].ID == id {
			w.files[i].Category = dt
			return nil
		}
	}
	return fmt.Errorf("file %s: %w", id, errs.ErrNotFound)
}

// validateStep must be called with the lock held.
func (w *Wizard) validateStep(s Step) error {
	switch s {
	case StepPersonal:
		return validatePersonal(w.form.Personal, w.now())
	case StepEmployment:
		return validateEmployment(w.form.Employment)
	case StepFinancial:
		return validateFinancial(w.form.Financial)
	case StepDocuments:
		return validateDocuments(w.files)
	}
	return nil
}

// Validate checks step s without moving.
func (w *Wizard) Validate(s Step) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.validateStep(s)
}

// ValidateAll checks every step and merges the failures.
func (w *Wizard) ValidateAll() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.validateAll()
}

func (w *Wizard) validateAll() error {
	all := &ValidationError{Step: StepReview}
	for s := StepPersonal; s < StepReview; s++ {
		var ve *ValidationError
		if err := w.validateStep(s); errors.As(err, &ve) {
			all.Fields = append(all.Fields, ve.Fields...)
		}
	}
	if len(all.Fields) == 0 {
		return nil
	}
	return all
}

// Next validates the current step and advances. On failure the step is unchanged.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step == StepReview {
		return fmt.Errorf("already at %s", StepReview)
	}
	if err := w.validateStep(w.step); err != nil {
		return err
	}
	w.step++
	w.furthest = max(w.furthest, w.step)
	return nil
}

// Back moves one step back.
func (w *Wizard) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step == StepPersonal {
		return fmt.Errorf("already at %s", StepPersonal)
	}
	w.step--
	return nil
}

// GoTo jumps to any step already reached.
func (w *Wizard) GoTo(s Step) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s < StepPersonal || s > StepReview {
		return fmt.Errorf("unknown %s", s)
	}
	if s > w.furthest {
		return fmt.Errorf("cannot skip ahead to %s before completing %s", s, w.furthest)
	}
	w.step = s
	return nil
}

// SaveDraft stores the current data as a DRAFT application. The first call
// creates the record, later calls update the same id.
func (w *Wizard) SaveDraft(ctx context.Context) (string, error) {
	w.mu.Lock()
	if w.saving || w.submitting {
		w.mu.Unlock()
		return "", fmt.Errorf("save draft: %w", errs.ErrBusy)
	}
	w.saving = true
	payload := DraftPayload(w.form)
	id := w.appID
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.saving = false
		w.mu.Unlock()
	}()

	var (
		app *model.Application
		err error
	)
	if id == "" {
		app, err = w.backend.CreateApplication(ctx, payload)
	} else {
		app, err = w.backend.UpdateApplication(ctx, id, payload)
	}
	if err != nil {
		return "", newSubmitError(err, "")
	}

	w.mu.Lock()
	if app.ID != "" {
		w.appID = app.ID
	}
	id = w.appID
	w.mu.Unlock()

	w.metrics.DraftSaved()
	w.log.Info("draft saved", zap.String("application_id", id))
	return id, nil
}

// Submit sends the whole application and its documents. It is only allowed
// from the review step. On success the wizard resets; on failure data and
// files are kept and the file statuses say which uploads made it.
func (w *Wizard) Submit(ctx context.Context) (*model.Application, error) {
	w.mu.Lock()
	if w.step != StepReview {
		w.mu.Unlock()
		return nil, fmt.Errorf("submit from %s: %w", w.step, errs.ErrNotOnReview)
	}
	if w.submitting || w.saving {
		w.mu.Unlock()
		return nil, fmt.Errorf("submit: %w", errs.ErrBusy)
	}
	if err := w.validateAll(); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	w.submitting = true
	payload := SubmitPayload(w.form)
	id := w.appID
	files := append([]model.UploadedFile(nil), w.files...)
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.submitting = false
		w.mu.Unlock()
	}()

	app, err := w.submit(ctx, id, payload, files)
	w.metrics.Submission(err == nil)
	if err != nil {
		return nil, err
	}
	w.log.Info("application submitted", zap.String("application_id", app.ID), zap.Int("documents", len(files)))
	w.reset()
	return app, nil
}

func (w *Wizard) submit(ctx context.Context, id string, payload ApplicationPayload, files []model.UploadedFile) (*model.Application, error) {
	var (
		app *model.Application
		err error
	)
	if id == "" {
		app, err = w.backend.CreateApplication(ctx, payload)
	} else {
		app, err = w.backend.UpdateApplication(ctx, id, payload)
	}
	if err != nil {
		w.log.Warn("submit failed", zap.Error(err))
		return nil, newSubmitError(err, "")
	}
	if app.ID == "" {
		app.ID = id
	}
	w.mu.Lock()
	w.appID = app.ID // a retry updates this record instead of creating another
	w.mu.Unlock()

	status := make([]model.UploadStatus, len(files))
	uploadErrs := make([]error, len(files))
	var g errgroup.Group
	for i, f := range files {
		if f.Status == model.UploadCompleted {
			status[i] = model.UploadCompleted
			continue
		}
		g.Go(func() error {
			_, err := w.backend.UploadDocument(ctx, app.ID, f.Name, f.Content, f.Category)
			w.metrics.Upload(err == nil)
			if err != nil {
				status[i], uploadErrs[i] = model.UploadFailed, err
				w.log.Warn("upload failed", zap.String("file", f.Name), zap.Error(err))
				return err
			}
			status[i] = model.UploadCompleted
			return nil
		})
	}
	groupErr := g.Wait()
	w.markFiles(files, status)
	if groupErr == nil {
		return app, nil
	}
	for i, e := range uploadErrs {
		if e != nil {
			return nil, newSubmitError(e, files[i].Name)
		}
	}
	return nil, newSubmitError(groupErr, "")
}

func (w *Wizard) markFiles(sent []model.UploadedFile, status []model.UploadStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, f := range sent {
		for j := range w.files {
			if w.files[j].ID == f.ID {
				w.files[j].Status = status[i]
			}
		}
	}
}

func (w *Wizard) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.step, w.furthest = StepPersonal, StepPersonal
	w.form = Form{}
	w.files = nil
	w.appID = ""
}
