package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"sort"
	"strings"

	"github.com/and161185/lendclient/internal/errs"
)

// GenericDetail replaces bodies that are not JSON.
const GenericDetail = "Internal server error"

var normalizedBody = json.RawMessage(`{"detail":"` + GenericDetail + `"}`)

// normalize wraps a raw body. HTML pages and non-JSON payloads become a
// generic {"detail"} so callers never branch on payload shape.
func normalize(status int, contentType string, raw []byte) *Response {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return &Response{Status: status}
	}
	if trimmed[0] == '<' || !isJSONType(contentType) || !json.Valid(trimmed) {
		return &Response{Status: status, Data: normalizedBody, Normalized: true}
	}
	return &Response{Status: status, Data: trimmed}
}

func isJSONType(ct string) bool {
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// APIError is a non-2xx backend reply in one of the supported error shapes.
type APIError struct {
	Status          int
	Detail          string
	Message         string
	FieldErrors     map[string][]string
	ApplicantErrors map[string][]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Summary())
}

// Unwrap maps the status onto the shared sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case http.StatusForbidden:
		return errs.ErrForbidden
	case http.StatusNotFound:
		return errs.ErrNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errs.ErrValidation
	}
	return nil
}

// Summary renders the most specific message available: applicant field
// errors, then other field errors, then detail, then message.
func (e *APIError) Summary() string {
	if s := joinFields(e.ApplicantErrors); s != "" {
		return s
	}
	if s := joinFields(e.FieldErrors); s != "" {
		return s
	}
	if e.Detail != "" {
		return e.Detail
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// HasFieldErrors reports whether the error names individual fields.
func (e *APIError) HasFieldErrors() bool {
	return len(e.FieldErrors) > 0 || len(e.ApplicantErrors) > 0
}

func joinFields(m map[string][]string) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(m[k], " "))
	}
	return strings.Join(parts, "; ")
}

func parseAPIError(resp *Response) *APIError {
	e := &APIError{Status: resp.Status}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(resp.Data, &body); err != nil {
		// arrays or scalars carry nothing we can attribute
		return e
	}
	for k, v := range body {
		switch k {
		case "detail":
			e.Detail = asString(v)
		case "message":
			e.Message = asString(v)
		case "errors":
			e.FieldErrors = merge(e.FieldErrors, asFieldMap(v))
		case "applicant_info":
			e.ApplicantErrors = asFieldMap(v)
		default:
			if msgs := asMessages(v); len(msgs) > 0 {
				e.FieldErrors = merge(e.FieldErrors, map[string][]string{k: msgs})
			}
		}
	}
	return e
}

func asString(v json.RawMessage) string {
	var s string
	if json.Unmarshal(v, &s) == nil {
		return s
	}
	return strings.TrimSpace(string(v))
}

// asMessages accepts ["a","b"] or "a".
func asMessages(v json.RawMessage) []string {
	var list []string
	if json.Unmarshal(v, &list) == nil {
		return list
	}
	var s string
	if json.Unmarshal(v, &s) == nil && s != "" {
		return []string{s}
	}
	return nil
}

func asFieldMap(v json.RawMessage) map[string][]string {
	var raw map[string]json.RawMessage
	if json.Unmarshal(v, &raw) != nil {
		return nil
	}
	out := make(map[string][]string, len(raw))
	for k, m := range raw {
		if msgs := asMessages(m); len(msgs) > 0 {
			out[k] = msgs
		}
	}
	return out
}

func merge(dst, src map[string][]string) map[string][]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string][]string, len(src))
	}
	for k, v := range src {
		dst[k] = append(dst[k], v...)
	}
	return dst
}
