package wizard

import (
	"strings"

	"github.com/and161185/lendclient/internal/model"
)

// The nested shape the applications endpoint expects.
type (
	applicantInfo struct {
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
		Email       string `json:"email"`
		Phone       string `json:"phone"`
		DateOfBirth string `json:"date_of_birth"`
		SSN         string `json:"ssn"`
	}
	address struct {
		Street  string `json:"street"`
		City    string `json:"city"`
		State   string `json:"state"`
		ZIPCode string `json:"zip_code"`
	}
	employmentHistory struct {
		Status        string  `json:"employment_status"`
		Employer      string  `json:"employer_name,omitempty"`
		JobTitle      string  `json:"job_title,omitempty"`
		YearsEmployed float64 `json:"years_employed"`
	}
	financialInfo struct {
		AnnualIncome float64 `json:"annual_income"`
		MonthlyDebts float64 `json:"monthly_debts"`
	}
	loanDetails struct {
		Amount  float64 `json:"loan_amount"`
		Purpose string  `json:"loan_purpose"`
		Term    int     `json:"loan_term"`
	}
)

// ApplicationPayload is the request body for create and update.
type ApplicationPayload struct {
	Status            model.ApplicationStatus `json:"status"`
	ApplicantInfo     applicantInfo           `json:"applicant_info"`
	Address           address                 `json:"address"`
	EmploymentHistory employmentHistory       `json:"employment_history"`
	FinancialInfo     financialInfo           `json:"financial_info"`
	LoanDetails       loanDetails             `json:"loan_details"`
}

// Placeholders fill required backend fields a draft has not reached yet.
var Placeholders = Form{
	Personal: Personal{
		FirstName:   "Draft",
		LastName:    "Applicant",
		Email:       "draft@placeholder.invalid",
		Phone:       "0000000000",
		DateOfBirth: "1900-01-01",
		SSN:         "000000000",
		Street:      "TBD",
		City:        "TBD",
		State:       "NA",
		ZIP:         "00000",
	},
	Employment: Employment{Status: EmploymentUnemployed},
	Financial: Financial{
		LoanAmount:  MinLoanAmount,
		LoanPurpose: "other",
		LoanTerm:    LoanTerms[0],
	},
}

func pick(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func pickNum(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

// withPlaceholders returns f with every empty field replaced.
func withPlaceholders(f Form) Form {
	ph := Placeholders
	p := &f.Personal
	p.FirstName = pick(p.FirstName, ph.Personal.FirstName)
	p.LastName = pick(p.LastName, ph.Personal.LastName)
	p.Email = pick(p.Email, ph.Personal.Email)
	p.Phone = pick(p.Phone, ph.Personal.Phone)
	p.DateOfBirth = pick(p.DateOfBirth, ph.Personal.DateOfBirth)
	p.SSN = pick(p.SSN, ph.Personal.SSN)
	p.Street = pick(p.Street, ph.Personal.Street)
	p.City = pick(p.City, ph.Personal.City)
	p.State = pick(p.State, ph.Personal.State)
	p.ZIP = pick(p.ZIP, ph.Personal.ZIP)
	f.Employment.Status = pick(f.Employment.Status, ph.Employment.Status)
	fin := &f.Financial
	fin.LoanAmount = pickNum(fin.LoanAmount, ph.Financial.LoanAmount)
	fin.LoanPurpose = pick(fin.LoanPurpose, ph.Financial.LoanPurpose)
	if fin.LoanTerm == 0 {
		fin.LoanTerm = ph.Financial.LoanTerm
	}
	return f
}

// buildPayload transforms the flat client form into the nested backend shape.
func buildPayload(f Form, status model.ApplicationStatus) ApplicationPayload {
	p, e, fin := f.Personal, f.Employment, f.Financial
	return ApplicationPayload{
		Status: status,
		ApplicantInfo: applicantInfo{
			FirstName:   strings.TrimSpace(p.FirstName),
			LastName:    strings.TrimSpace(p.LastName),
			Email:       strings.TrimSpace(p.Email),
			Phone:       digits(p.Phone),
			DateOfBirth: p.DateOfBirth,
			SSN:         stripSep.Replace(p.SSN),
		},
		Address: address{
			Street:  p.Street,
			City:    p.City,
			State:   strings.ToUpper(p.State),
			ZIPCode: stripSep.Replace(p.ZIP),
		},
		EmploymentHistory: employmentHistory{
			Status:        e.Status,
			Employer:      e.Employer,
			JobTitle:      e.JobTitle,
			YearsEmployed: e.YearsEmployed,
		},
		FinancialInfo: financialInfo{AnnualIncome: fin.AnnualIncome, MonthlyDebts: fin.MonthlyDebts},
		LoanDetails:   loanDetails{Amount: fin.LoanAmount, Purpose: fin.LoanPurpose, Term: fin.LoanTerm},
	}
}

// DraftPayload is the body SaveDraft sends for f.
func DraftPayload(f Form) ApplicationPayload {
	return buildPayload(withPlaceholders(f), model.StatusDraft)
}

// SubmitPayload is the body Submit sends for f.
func SubmitPayload(f Form) ApplicationPayload { return buildPayload(f, model.StatusSubmitted) }
