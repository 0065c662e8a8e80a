package stub

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/and161185/lendclient/internal/errs"
	"github.com/and161185/lendclient/internal/model"
	"github.com/gofrs/uuid/v5"
)

// FieldErrors is a validation failure keyed by backend section and field.
type FieldErrors map[string]map[string][]string

func (f FieldErrors) Error() string { return fmt.Sprintf("validation: %d sections", len(f)) }

func (f FieldErrors) add(section, field, msg string) {
	if f[section] == nil {
		f[section] = map[string][]string{}
	}
	f[section][field] = append(f[section][field], msg)
}

type storedApp struct {
	model.Application
	owner string
	body  map[string]json.RawMessage
}

// Applications keeps applications and their documents in memory.
type Applications struct {
	mu      sync.Mutex
	byID    map[string]*storedApp
	now     func() time.Time
	creates int
	uploads int
}

// NewApplications returns an empty store.
func NewApplications() *Applications {
	return &Applications{byID: map[string]*storedApp{}, now: time.Now}
}

var requiredApplicant = []string{"first_name", "last_name", "email", "date_of_birth", "ssn"}

// validate mirrors the backend's minimal checks: submitted applications need
// the applicant fields.
func validate(status model.ApplicationStatus, body map[string]json.RawMessage) error {
	fe := FieldErrors{}
	switch status {
	case model.StatusDraft, model.StatusSubmitted:
	default:
		fe.add("errors", "status", fmt.Sprintf("%q is not a valid choice.", status))
	}
	if status == model.StatusSubmitted {
		var ai map[string]any
		_ = json.Unmarshal(body["applicant_info"], &ai)
		for _, f := range requiredApplicant {
			if s, _ := ai[f].(string); s == "" {
				fe.add("applicant_info", f, "This field is required.")
			}
		}
	}
	if len(fe) > 0 {
		return fe
	}
	return nil
}

func decodeBody(raw []byte) (model.ApplicationStatus, map[string]json.RawMessage, error) {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", nil, errors.New("validation: body must be a JSON object")
	}
	var status model.ApplicationStatus
	if v, ok := body["status"]; ok {
		_ = json.Unmarshal(v, &status)
	}
	if status == "" {
		status = model.StatusDraft
	}
	return status, body, nil
}

// Create stores a new application for owner.
func (s *Applications) Create(owner string, raw []byte) (*model.Application, error) {
	status, body, err := decodeBody(raw)
	if err != nil {
		return nil, err
	}
	if err := validate(status, body); err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	app := &storedApp{
		Application: model.Application{ID: id.String(), Status: status, CreatedAt: now, UpdatedAt: now},
		owner:       owner,
		body:        body,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[app.ID] = app
	s.creates++
	out := app.Application
	return &out, nil
}

// Update merges raw into application id. Applications under review are frozen.
func (s *Applications) Update(owner, id string, raw []byte) (*model.Application, error) {
	_, patch, err := decodeBody(raw)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.byID[id]
	if !ok || app.owner != owner {
		return nil, errs.ErrNotFound
	}
	if app.Status != model.StatusDraft && app.Status != model.StatusSubmitted {
		return nil, fmt.Errorf("validation: application is %s", app.Status)
	}
	merged := make(map[string]json.RawMessage, len(app.body))
	for k, v := range app.body {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	status, _, _ := decodeBody(mustJSON(merged))
	if err := validate(status, merged); err != nil {
		return nil, err
	}
	app.body, app.Status, app.UpdatedAt = merged, status, s.now().UTC()
	out := app.Application
	return &out, nil
}

// Get returns application id when owner may see it. reviewer bypasses ownership.
func (s *Applications) Get(owner, id string, reviewer bool) (*model.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.byID[id]
	if !ok || (!reviewer && app.owner != owner) {
		return nil, errs.ErrNotFound
	}
	out := app.Application
	out.Documents = append([]model.Document(nil), app.Documents...)
	return &out, nil
}

// AddDocument attaches an uploaded file.
func (s *Applications) AddDocument(owner, id, name string, dt model.DocumentType) (*model.Document, error) {
	if name == "" {
		return nil, errors.New("validation: empty file name")
	}
	if _, ok := model.ParseDocumentType(string(dt)); !ok {
		return nil, fmt.Errorf("validation: %q is not a valid document type", dt)
	}
	did, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.byID[id]
	if !ok || app.owner != owner {
		return nil, errs.ErrNotFound
	}
	doc := model.Document{ID: did.String(), FileName: name, DocumentType: dt, UploadedAt: s.now().UTC()}
	app.Documents = append(app.Documents, doc)
	sort.Slice(app.Documents, func(i, j int) bool { return app.Documents[i].FileName < app.Documents[j].FileName })
	s.uploads++
	return &doc, nil
}

// Counts reports how many creates and uploads the store has seen.
func (s *Applications) Counts() (creates, uploads int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.uploads
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
