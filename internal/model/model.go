// Package model defines domain entities shared by the client layers.
package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/and161185/lendclient/internal/access"
	"github.com/gofrs/uuid/v5"
)

// User is the authenticated account as returned by the auth endpoints.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Session is the client's view of authentication state.
type Session struct {
	AccessToken       string             `json:"token,omitempty"`
	RefreshToken      string             `json:"refreshToken,omitempty"`
	IsAuthenticated   bool               `json:"isAuthenticated"`
	TempToken         string             `json:"tempToken,omitempty"` // MFA
	MFAMethods        []string           `json:"mfaMethods,omitempty"`
	RequiresMFA       bool               `json:"requiresMFA"`
	TokenExpired      bool               `json:"-"` // transient, never persisted
	User              *User              `json:"user,omitempty"`
	Roles             access.Roles       `json:"roles"`
	Permissions       access.Permissions `json:"permissions"`
	PermissionSummary json.RawMessage    `json:"permissionSummary,omitempty"`
}

// Grants projects the session onto the fields permission gates look at.
func (s Session) Grants() access.Grants {
	return access.Grants{
		Authenticated: s.IsAuthenticated && s.AccessToken != "",
		Roles:         s.Roles,
		Permissions:   s.Permissions,
	}
}

// UserProfile is the user-facing profile derived from the auth user.
type UserProfile struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	Phone       string            `json:"phone,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// ProfileFromUser derives a profile from the auth user; nil in, nil out.
func ProfileFromUser(u *User) *UserProfile {
	if u == nil {
		return nil
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Email
	}
	return &UserProfile{ID: u.ID, Name: name, Email: u.Email, Phone: u.Phone}
}

// DocumentType is the backend code for an uploaded document.
type DocumentType string

// Document types accepted by the upload endpoint.
const (
	DocID                   DocumentType = "ID"
	DocProofOfIncome        DocumentType = "PROOF_OF_INCOME"
	DocBankStatement        DocumentType = "BANK_STATEMENT"
	DocCreditReport         DocumentType = "CREDIT_REPORT"
	DocPropertyDeed         DocumentType = "PROPERTY_DEED"
	DocBusinessRegistration DocumentType = "BUSINESS_REGISTRATION"
	DocOther                DocumentType = "OTHER"
)

// DocumentTypes lists every accepted code.
var DocumentTypes = []DocumentType{
	DocID, DocProofOfIncome, DocBankStatement, DocCreditReport,
	DocPropertyDeed, DocBusinessRegistration, DocOther,
}

// ParseDocumentType maps s to a code. Unknown input yields DocOther and false.
func ParseDocumentType(s string) (DocumentType, bool) {
	up := DocumentType(strings.ToUpper(strings.TrimSpace(s)))
	for _, d := range DocumentTypes {
		if d == up {
			return d, true
		}
	}
	return DocOther, false
}

// UploadStatus is the lifecycle state of a staged file.
type UploadStatus string

// Possible values for UploadStatus.
const (
	UploadUploading UploadStatus = "uploading"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
)

// UploadedFile is a staged attachment not yet (or just) sent to the backend.
type UploadedFile struct {
	ID         uuid.UUID    // client-generated
	Name       string       // original file name
	Content    []byte       // raw bytes
	Category   DocumentType // backend document type
	UploadedAt time.Time    // staging time
	Status     UploadStatus
}

// ApplicationStatus is the backend workflow state of an application.
type ApplicationStatus string

// Application statuses.
const (
	StatusDraft       ApplicationStatus = "DRAFT"
	StatusSubmitted   ApplicationStatus = "SUBMITTED"
	StatusUnderReview ApplicationStatus = "UNDER_REVIEW"
	StatusApproved    ApplicationStatus = "APPROVED"
	StatusRejected    ApplicationStatus = "REJECTED"
)

// Application is the server record returned by create/update/get.
type Application struct {
	ID        string            `json:"id"`
	Status    ApplicationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Documents []Document        `json:"documents,omitempty"`
}

// Document is an uploaded application document as stored by the backend.
type Document struct {
	ID           string       `json:"id"`
	FileName     string       `json:"file_name"`
	DocumentType DocumentType `json:"document_type"`
	UploadedAt   time.Time    `json:"uploaded_at"`
}

// Report is a backend-generated report.
type Report struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Kind      string         `json:"kind"`
	CreatedAt time.Time      `json:"created_at"`
	Summary   map[string]any `json:"summary,omitempty"`
}

// ReportPage is one page of the report listing.
type ReportPage struct {
	Count    int      `json:"count"`
	Next     string   `json:"next,omitempty"`
	Previous string   `json:"previous,omitempty"`
	Results  []Report `json:"results"`
}

// Notification is the {type, data} envelope carried on the notification socket.
type Notification struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}
