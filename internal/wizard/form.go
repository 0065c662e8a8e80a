package wizard

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Step is a wizard page.
type Step int

// Steps in order.
const (
	StepPersonal Step = iota
	StepEmployment
	StepFinancial
	StepDocuments
	StepReview
)

var stepNames = [...]string{"personal", "employment", "financial", "documents", "review"}

func (s Step) String() string {
	if s < StepPersonal || s > StepReview {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// Personal is the applicant identity and address.
type Personal struct {
	FirstName   string `yaml:"first_name"`
	LastName    string `yaml:"last_name"`
	Email       string `yaml:"email"`
	Phone       string `yaml:"phone"`
	DateOfBirth string `yaml:"date_of_birth"` // YYYY-MM-DD
	SSN         string `yaml:"ssn"`
	Street      string `yaml:"street"`
	City        string `yaml:"city"`
	State       string `yaml:"state"`
	ZIP         string `yaml:"zip"`
}

// Employment status codes.
const (
	EmploymentEmployed     = "employed"
	EmploymentSelfEmployed = "self_employed"
	EmploymentUnemployed   = "unemployed"
	EmploymentRetired      = "retired"
	EmploymentStudent      = "student"
)

var employmentStatuses = map[string]bool{
	EmploymentEmployed: true, EmploymentSelfEmployed: true, EmploymentUnemployed: true,
	EmploymentRetired: true, EmploymentStudent: true,
}

// Employment is the current job.
type Employment struct {
	Status        string  `yaml:"status"`
	Employer      string  `yaml:"employer"`
	JobTitle      string  `yaml:"job_title"`
	YearsEmployed float64 `yaml:"years_employed"`
}

// Financial holds income and the requested loan.
type Financial struct {
	AnnualIncome float64 `yaml:"annual_income"`
	MonthlyDebts float64 `yaml:"monthly_debts"`
	LoanAmount   float64 `yaml:"loan_amount"`
	LoanPurpose  string  `yaml:"loan_purpose"`
	LoanTerm     int     `yaml:"loan_term"` // months
}

// Form is everything the user typed.
type Form struct {
	Personal   Personal   `yaml:"personal"`
	Employment Employment `yaml:"employment"`
	Financial  Financial  `yaml:"financial"`
}

// Input is the YAML document accepted by `lend apply -f`.
type Input struct {
	Form      `yaml:",inline"`
	Documents []InputDocument `yaml:"documents"`
}

// InputDocument points at a file on disk to stage.
type InputDocument struct {
	Path string `yaml:"path"`
	Type string `yaml:"type"`
}

// DecodeInput parses a wizard input document. Unknown keys are rejected.
func DecodeInput(r io.Reader) (Input, error) {
	var in Input
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil {
		return Input{}, fmt.Errorf("decode application input: %w", err)
	}
	return in, nil
}
