package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/and161185/lendclient/internal/api"
	"github.com/and161185/lendclient/internal/errs"
	"github.com/and161185/lendclient/internal/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type call struct {
	op      string
	id      string
	payload ApplicationPayload
	file    string
	docType model.DocumentType
}

type fakeBackend struct {
	mu       sync.Mutex
	calls    []call
	failFile string
	createFn func() error
	release  chan struct{}
}

func (f *fakeBackend) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op {
			n++
		}
	}
	return n
}

func (f *fakeBackend) CreateApplication(_ context.Context, payload any) (*model.Application, error) {
	if f.release != nil {
		<-f.release
	}
	f.record(call{op: "create", payload: payload.(ApplicationPayload)})
	if f.createFn != nil {
		if err := f.createFn(); err != nil {
			return nil, err
		}
	}
	return &model.Application{ID: "app-1", Status: payload.(ApplicationPayload).Status}, nil
}

func (f *fakeBackend) UpdateApplication(_ context.Context, id string, payload any) (*model.Application, error) {
	f.record(call{op: "update", id: id, payload: payload.(ApplicationPayload)})
	return &model.Application{ID: id, Status: payload.(ApplicationPayload).Status}, nil
}

func (f *fakeBackend) UploadDocument(_ context.Context, appID, name string, _ []byte, dt model.DocumentType) (*model.Document, error) {
	f.record(call{op: "upload", id: appID, file: name, docType: dt})
	if name == f.failFile {
		return nil, fmt.Errorf("upload %s: %w", name, &api.APIError{Status: 400, Detail: "File is corrupt."})
	}
	return &model.Document{ID: "d-" + name, FileName: name, DocumentType: dt}, nil
}

func validForm() Form {
	return Form{
		Personal: Personal{
			FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
			Phone: "(555) 123-4567", DateOfBirth: "1990-05-01", SSN: "123-45-6789",
			Street: "1 Main St", City: "Springfield", State: "il", ZIP: "62701",
		},
		Employment: Employment{Status: EmploymentEmployed, Employer: "Analytical Engines", YearsEmployed: 4},
		Financial:  Financial{AnnualIncome: 85_000, MonthlyDebts: 400, LoanAmount: 25_000, LoanPurpose: "home_improvement", LoanTerm: 60},
	}
}

func newWizard(t *testing.T, b Backend) *Wizard {
	return New(b, WithLogger(zaptest.NewLogger(t)), WithClock(func() time.Time { return fixedNow }))
}

func walkToReview(t *testing.T, w *Wizard) {
	t.Helper()
	for w.Step() != StepReview {
		if err := w.Next(); err != nil {
			t.Fatalf("next from %s: %v", w.Step(), err)
		}
	}
}

func TestNext_MissingFieldKeepsStep(t *testing.T) {
	t.Parallel()

	cases := []struct {
		step  Step
		blank func(*Form)
	}{
		{StepPersonal, func(f *Form) { f.Personal.LastName = "" }},
		{StepEmployment, func(f *Form) { f.Employment.Employer = "" }},
		{StepFinancial, func(f *Form) { f.Financial.LoanPurpose = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.step.String(), func(t *testing.T) {
			t.Parallel()
			w := newWizard(t, &fakeBackend{})
			w.Fill(validForm())
			for w.Step() < tc.step {
				require.NoError(t, w.Next())
			}
			w.Edit(tc.blank)
			err := w.Next()
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			require.NotEmpty(t, ve.Fields)
			require.ErrorIs(t, err, errs.ErrValidation)
			require.Equal(t, tc.step, w.Step())
		})
	}

	w := newWizard(t, &fakeBackend{})
	w.Fill(validForm())
	for w.Step() < StepDocuments {
		require.NoError(t, w.Next())
	}
	require.Error(t, w.Next(), "documents step needs a file")
	require.Equal(t, StepDocuments, w.Step())
}

func TestValidation_Rules(t *testing.T) {
	t.Parallel()

	bad := validForm()
	bad.Personal.Email = "not-an-email"
	bad.Personal.Phone = "12345"
	bad.Personal.DateOfBirth = "2010-01-01"
	bad.Personal.ZIP = "1234"
	bad.Personal.State = "Illinois"
	bad.Personal.SSN = "12-34"
	err := validatePersonal(bad.Personal, fixedNow)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	fields := map[string]bool{}
	for _, f := range ve.Fields {
		fields[f.Field] = true
	}
	for _, want := range []string{"email", "phone", "date_of_birth", "zip", "state", "ssn"} {
		require.True(t, fields[want], "missing %s in %v", want, ve.Fields)
	}
	require.True(t, strings.HasSuffix(ve.Summary(), "and 3 more"), ve.Summary())

	require.NoError(t, validateEmployment(Employment{Status: EmploymentRetired}))
	require.Error(t, validateEmployment(Employment{Status: "astronaut", Employer: "NASA"}))
	require.Error(t, validateEmployment(Employment{Status: EmploymentEmployed, Employer: "x", YearsEmployed: -1}))

	fin := validForm().Financial
	fin.LoanTerm = 13
	require.Error(t, validateFinancial(fin))
	fin = validForm().Financial
	fin.LoanAmount = MaxLoanAmount + 1
	require.Error(t, validateFinancial(fin))

	require.NoError(t, validatePersonal(validForm().Personal, fixedNow))
	p := validForm().Personal
	p.ZIP = "62701-1234"
	require.NoError(t, validatePersonal(p, fixedNow))
}

func TestAge_Birthday(t *testing.T) {
	t.Parallel()

	dob := time.Date(2008, 10, 15, 0, 0, 0, 0, time.UTC)
	if age(dob, fixedNow) != 17 {
		t.Fatalf("day before 18th birthday must be 17")
	}
	if age(dob, fixedNow.AddDate(0, 0, 1)) != 18 {
		t.Fatalf("on birthday must be 18")
	}
}

func TestFiles_StageRemoveCategory(t *testing.T) {
	t.Parallel()

	w := newWizard(t, &fakeBackend{})
	_, err := w.AddFile("virus.exe", []byte("MZ"), model.DocOther)
	require.Error(t, err)
	_, err = w.AddFile("huge.pdf", make([]byte, MaxFileSize+1), model.DocOther)
	require.Error(t, err)

	id, err := w.AddFile("Passport.PDF", []byte("%PDF"), model.DocOther)
	require.NoError(t, err)
	require.Equal(t, 4, int(id.Version()))
	require.NoError(t, w.SetCategory(id, model.DocID))
	require.Equal(t, model.DocID, w.Files()[0].Category)
	require.Equal(t, fixedNow, w.Files()[0].UploadedAt)

	require.NoError(t, w.RemoveFile(id))
	require.Empty(t, w.Files())
	require.ErrorIs(t, w.RemoveFile(id), errs.ErrNotFound)
	require.ErrorIs(t, w.SetCategory(id, model.DocID), errs.ErrNotFound)
}

func TestSubmit_TwoFilesOneCreateTwoUploadsThenReset(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{}
	w := newWizard(t, b)
	w.Fill(validForm())
	_, err := w.AddFile("id.jpg", []byte("jpg"), model.DocID)
	require.NoError(t, err)
	_, err = w.AddFile("paystub.pdf", []byte("pdf"), model.DocProofOfIncome)
	require.NoError(t, err)
	walkToReview(t, w)

	app, err := w.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, "app-1", app.ID)
	require.Equal(t, 1, b.count("create"))
	require.Equal(t, 2, b.count("upload"))
	require.Equal(t, StepPersonal, w.Step())
	require.Empty(t, w.Files())
	require.Equal(t, Form{}, w.Form())

	sent := b.calls[0].payload
	require.Equal(t, model.StatusSubmitted, sent.Status)
	require.Equal(t, "5551234567", sent.ApplicantInfo.Phone)
	require.Equal(t, "IL", sent.Address.State)
	require.Equal(t, "123456789", sent.ApplicantInfo.SSN)
	require.Equal(t, 60, sent.LoanDetails.Term)
}

func TestSubmit_OnlyFromReview(t *testing.T) {
	t.Parallel()

	w := newWizard(t, &fakeBackend{})
	_, err := w.Submit(context.Background())
	require.ErrorIs(t, err, errs.ErrNotOnReview)
}

func TestSubmit_UploadFailureKeepsData(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{failFile: "bank.pdf"}
	w := newWizard(t, b)
	w.Fill(validForm())
	_, _ = w.AddFile("id.png", []byte("png"), model.DocID)
	_, _ = w.AddFile("bank.pdf", []byte("pdf"), model.DocBankStatement)
	walkToReview(t, w)

	_, err := w.Submit(context.Background())
	var se *SubmitError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "bank.pdf", se.File)
	require.Equal(t, "bank.pdf: File is corrupt.", se.Message)
	require.Equal(t, StepReview, w.Step())
	require.Equal(t, validForm(), w.Form())

	statuses := map[string]model.UploadStatus{}
	for _, f := range w.Files() {
		statuses[f.Name] = f.Status
	}
	require.Equal(t, model.UploadCompleted, statuses["id.png"])
	require.Equal(t, model.UploadFailed, statuses["bank.pdf"])

	// retry: same record, only the failed file goes again
	b.failFile = ""
	_, err = w.Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, b.count("create"))
	require.Equal(t, 1, b.count("update"))
	require.Equal(t, 3, b.count("upload"))
}

func TestSubmit_GenericMessage(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{createFn: func() error { return errors.New("connection reset") }}
	w := newWizard(t, b)
	w.Fill(validForm())
	_, _ = w.AddFile("id.png", []byte("png"), model.DocID)
	walkToReview(t, w)

	_, err := w.Submit(context.Background())
	var se *SubmitError
	require.ErrorAs(t, err, &se)
	require.Equal(t, GenericSubmitError, se.Message)
}

func TestSubmit_BusyGuard(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{release: make(chan struct{})}
	w := newWizard(t, b)
	w.Fill(validForm())
	_, _ = w.AddFile("id.png", []byte("png"), model.DocID)
	walkToReview(t, w)

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.submitting
	}, time.Second, time.Millisecond)

	_, err := w.Submit(context.Background())
	require.ErrorIs(t, err, errs.ErrBusy)
	_, err = w.SaveDraft(context.Background())
	require.ErrorIs(t, err, errs.ErrBusy)

	close(b.release)
	require.NoError(t, <-done)
}

func TestSaveDraft_ReusesID(t *testing.T) {
	t.Parallel()

	b := &fakeBackend{}
	w := newWizard(t, b)
	w.Edit(func(f *Form) { f.Personal = validForm().Personal })
	require.NoError(t, w.Next())

	id, err := w.SaveDraft(context.Background())
	require.NoError(t, err)
	require.Equal(t, "app-1", id)

	id2, err := w.SaveDraft(context.Background())
	require.NoError(t, err)
	require.Equal(t, id, id2)
	require.Equal(t, 1, b.count("create"))
	require.Equal(t, 1, b.count("update"))

	draft := b.calls[0].payload
	require.Equal(t, model.StatusDraft, draft.Status)
	require.Equal(t, "Ada", draft.ApplicantInfo.FirstName)
	require.Equal(t, float64(MinLoanAmount), draft.LoanDetails.Amount)
	require.Equal(t, EmploymentUnemployed, draft.EmploymentHistory.Status)
	require.Equal(t, "app-1", b.calls[1].id)
}

func TestGoTo_AndBack(t *testing.T) {
	t.Parallel()

	w := newWizard(t, &fakeBackend{})
	require.Error(t, w.GoTo(StepFinancial))
	require.Error(t, w.Back())

	w.Fill(validForm())
	_, _ = w.AddFile("id.png", []byte("png"), model.DocID)
	walkToReview(t, w)
	require.NoError(t, w.GoTo(StepEmployment))
	require.NoError(t, w.GoTo(StepReview))
	require.NoError(t, w.Back())
	require.Equal(t, StepDocuments, w.Step())
	require.Error(t, w.GoTo(Step(9)))
}

func TestDecodeInput(t *testing.T) {
	t.Parallel()

	doc := `
personal:
  first_name: Ada
  last_name: Lovelace
employment:
  status: retired
financial:
  loan_amount: 5000
  loan_term: 36
documents:
  - path: ./id.pdf
    type: id
`
	in, err := DecodeInput(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, "Ada", in.Personal.FirstName)
	require.Equal(t, 36, in.Financial.LoanTerm)
	require.Len(t, in.Documents, 1)

	_, err = DecodeInput(strings.NewReader("personal:\n  nickname: x\n"))
	require.Error(t, err)
}
