package model

import (
	"encoding/json"
	"testing"

	"github.com/and161185/lendclient/internal/access"
)

func TestProfileFromUser(t *testing.T) {
	t.Parallel()

	if ProfileFromUser(nil) != nil {
		t.Fatalf("nil user must give nil profile")
	}
	p := ProfileFromUser(&User{ID: "7", Email: "a@b.c", FirstName: "Ann", LastName: "Lee", Phone: "555"})
	if p.ID != "7" || p.Name != "Ann Lee" || p.Phone != "555" {
		t.Fatalf("profile mismatch: %+v", p)
	}
	p = ProfileFromUser(&User{ID: "8", Email: "x@y.z"})
	if p.Name != "x@y.z" {
		t.Fatalf("name should fall back to email, got %q", p.Name)
	}
}

func TestParseDocumentType(t *testing.T) {
	t.Parallel()

	for _, d := range DocumentTypes {
		got, ok := ParseDocumentType(string(d))
		if !ok || got != d {
			t.Fatalf("parse %s: %s %v", d, got, ok)
		}
	}
	if got, ok := ParseDocumentType(" bank_statement "); !ok || got != DocBankStatement {
		t.Fatalf("case-insensitive parse failed: %s", got)
	}
	if got, ok := ParseDocumentType("selfie"); ok || got != DocOther {
		t.Fatalf("unknown must map to OTHER,false: %s %v", got, ok)
	}
}

func TestSession_JSONOmitsTokenExpired(t *testing.T) {
	t.Parallel()

	s := Session{AccessToken: "t", IsAuthenticated: true, TokenExpired: true,
		Roles: access.NewRoles(access.RoleApplicant)}
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Session
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.TokenExpired || back.AccessToken != "t" || !back.Roles.Has(access.RoleApplicant) {
		t.Fatalf("roundtrip mismatch: %s", b)
	}
}

func TestSession_Grants(t *testing.T) {
	t.Parallel()

	s := Session{IsAuthenticated: true, Permissions: access.NewPermissions(access.PermViewReports)}
	if s.Grants().Can(access.PermViewReports) {
		t.Fatalf("no token must not grant anything")
	}
	s.AccessToken = "t"
	if !s.Grants().Can(access.PermViewReports) {
		t.Fatalf("token + permission should grant")
	}
}
