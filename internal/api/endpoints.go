package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/and161185/lendclient/internal/model"
)

// Resource paths.
const (
	PathApplications = "/api/applications/"
	PathReports      = "/api/reports/"
)

func applicationPath(id string) string { return PathApplications + url.PathEscape(id) + "/" }

// DocumentsPath is the upload endpoint for application id.
func DocumentsPath(id string) string { return applicationPath(id) + "documents/" }

// CreateApplication posts a new application. payload is the nested backend shape.
func (c *Client) CreateApplication(ctx context.Context, payload any) (*model.Application, error) {
	var app model.Application
	if err := c.Do(ctx, http.MethodPost, PathApplications, payload, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// UpdateApplication patches application id.
func (c *Client) UpdateApplication(ctx context.Context, id string, payload any) (*model.Application, error) {
	var app model.Application
	if err := c.Do(ctx, http.MethodPatch, applicationPath(id), payload, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// GetApplication fetches application id.
func (c *Client) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	var app model.Application
	if err := c.Do(ctx, http.MethodGet, applicationPath(id), nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// UploadDocument sends one file as multipart form data with fields "file"
// and "document_type".
func (c *Client) UploadDocument(ctx context.Context, appID, name string, content []byte, dt model.DocumentType) (*model.Document, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("document_type", string(dt)); err != nil {
		return nil, err
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	req := &request{
		method:      http.MethodPost,
		path:        DocumentsPath(appID),
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
	}
	var doc model.Document
	if err := c.do(ctx, req, &doc); err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}
	return &doc, nil
}

// ListReports returns one page of reports, optionally filtered by kind.
func (c *Client) ListReports(ctx context.Context, page int, kind string) (*model.ReportPage, error) {
	q := url.Values{}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	if kind != "" {
		q.Set("kind", kind)
	}
	var out model.ReportPage
	if err := c.do(ctx, &request{method: http.MethodGet, path: PathReports, query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReport fetches one report.
func (c *Client) GetReport(ctx context.Context, id string) (*model.Report, error) {
	var r model.Report
	if err := c.Do(ctx, http.MethodGet, PathReports+url.PathEscape(id)+"/", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
