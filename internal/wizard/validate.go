package wizard

import (
	"fmt"
	"net/mail"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/and161185/lendclient/internal/errs"
	"github.com/and161185/lendclient/internal/model"
)

// MaxShownErrors is how many field errors Summary spells out.
const MaxShownErrors = 3

// Limits.
const (
	MaxFileSize   = 10 << 20
	MinLoanAmount = 1_000
	MaxLoanAmount = 10_000_000
	MinAge        = 18
)

// LoanTerms are the accepted terms in months.
var LoanTerms = []int{12, 24, 36, 48, 60, 120, 180, 240, 360}

var allowedExt = map[string]bool{".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".doc": true, ".docx": true}

var (
	reZIP   = regexp.MustCompile(`^\d{5}(\d{4})?$`)
	reSSN   = regexp.MustCompile(`^\d{9}$`)
	reState = regexp.MustCompile(`^[A-Za-z]{2}$`)

	stripSep = strings.NewReplacer("-", "", " ", "")
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string
	Message string
}

func (f FieldError) String() string { return f.Field + ": " + f.Message }

// ValidationError lists every failed rule for a step (or the whole form).
type ValidationError struct {
	Step   Step
	Fields []FieldError
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Summary() }

// Unwrap lets callers match errs.ErrValidation.
func (e *ValidationError) Unwrap() error { return errs.ErrValidation }

// Summary shows the first MaxShownErrors errors and counts the rest.
func (e *ValidationError) Summary() string {
	n := len(e.Fields)
	shown := min(n, MaxShownErrors)
	parts := make([]string, 0, shown)
	for _, f := range e.Fields[:shown] {
		parts = append(parts, f.String())
	}
	s := strings.Join(parts, "; ")
	if n > shown {
		s += fmt.Sprintf(" and %d more", n-shown)
	}
	return s
}

type checker struct {
	step   Step
	fields []FieldError
}

func (c *checker) fail(field, msg string) { c.fields = append(c.fields, FieldError{field, msg}) }

func (c *checker) required(field, v string) bool {
	if strings.TrimSpace(v) == "" {
		c.fail(field, "is required")
		return false
	}
	return true
}

func (c *checker) err() error {
	if len(c.fields) == 0 {
		return nil
	}
	return &ValidationError{Step: c.step, Fields: c.fields}
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// age returns full years between dob and now.
func age(dob, now time.Time) int {
	y := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		y--
	}
	return y
}

func validatePersonal(p Personal, now time.Time) error {
	c := &checker{step: StepPersonal}
	c.required("first_name", p.FirstName)
	c.required("last_name", p.LastName)
	if c.required("email", p.Email) {
		if a, err := mail.ParseAddress(p.Email); err != nil || a.Address != p.Email {
			c.fail("email", "must be a valid email address")
		}
	}
	if c.required("phone", p.Phone) {
		if n := len(digits(p.Phone)); n < 10 || n > 15 {
			c.fail("phone", "must contain 10 to 15 digits")
		}
	}
	if c.required("date_of_birth", p.DateOfBirth) {
		dob, err := time.Parse(time.DateOnly, p.DateOfBirth)
		switch {
		case err != nil:
			c.fail("date_of_birth", "must be a date in YYYY-MM-DD format")
		case age(dob, now) < MinAge:
			c.fail("date_of_birth", fmt.Sprintf("applicant must be at least %d", MinAge))
		}
	}
	if c.required("ssn", p.SSN) && !reSSN.MatchString(stripSep.Replace(p.SSN)) {
		c.fail("ssn", "must contain 9 digits")
	}
	c.required("street", p.Street)
	c.required("city", p.City)
	if c.required("state", p.State) && !reState.MatchString(p.State) {
		c.fail("state", "must be a 2-letter state code")
	}
	if c.required("zip", p.ZIP) && !reZIP.MatchString(stripSep.Replace(p.ZIP)) {
		c.fail("zip", "must be 5 or 9 digits")
	}
	return c.err()
}

func validateEmployment(e Employment) error {
	c := &checker{step: StepEmployment}
	if c.required("employment_status", e.Status) && !employmentStatuses[e.Status] {
		c.fail("employment_status", "is not a known status")
	}
	if e.Status != EmploymentUnemployed && e.Status != EmploymentRetired {
		c.required("employer", e.Employer)
	}
	if e.YearsEmployed < 0 {
		c.fail("years_employed", "must not be negative")
	}
	return c.err()
}

func validateFinancial(f Financial) error {
	c := &checker{step: StepFinancial}
	if f.AnnualIncome <= 0 {
		c.fail("annual_income", "must be positive")
	}
	if f.MonthlyDebts < 0 {
		c.fail("monthly_debts", "must not be negative")
	}
	if f.LoanAmount < MinLoanAmount || f.LoanAmount > MaxLoanAmount {
		c.fail("loan_amount", fmt.Sprintf("must be between %d and %d", MinLoanAmount, MaxLoanAmount))
	}
	if !validTerm(f.LoanTerm) {
		c.fail("loan_term", fmt.Sprintf("must be one of %v months", LoanTerms))
	}
	c.required("loan_purpose", f.LoanPurpose)
	return c.err()
}

func validTerm(t int) bool {
	for _, v := range LoanTerms {
		if v == t {
			return true
		}
	}
	return false
}

func validateDocuments(files []model.UploadedFile) error {
	c := &checker{step: StepDocuments}
	if len(files) == 0 {
		c.fail("documents", "at least one document is required")
		return c.err()
	}
	hasID := false
	for _, f := range files {
		hasID = hasID || f.Category == model.DocID
	}
	if !hasID {
		c.fail("documents", "an identity document (ID) is required")
	}
	return c.err()
}

// checkFile enforces the staging limits.
func checkFile(name string, size int) error {
	c := &checker{step: StepDocuments}
	if !allowedExt[strings.ToLower(filepath.Ext(name))] {
		c.fail("file", name+": only pdf, jpg, jpeg, png, doc and docx files are accepted")
	}
	if size > MaxFileSize {
		c.fail("file", fmt.Sprintf("%s: larger than %d MB", name, MaxFileSize>>20))
	}
	if size == 0 {
		c.fail("file", name+": is empty")
	}
	return c.err()
}
