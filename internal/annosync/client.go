// Package annosync talks to the annotation persistence API: a JSON HTTP
// client for slide and annotation CRUD, plus a debounced syncer that pushes
// locally mutated annotations (mask tiles included) at most once per quiet
// period.
package annosync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"slideview/internal/model"
)

// Client calls the annotation persistence service.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the service at base (scheme://host[:port]).
func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// ListSlides returns all slides known to the service.
func (c *Client) ListSlides(ctx context.Context) ([]model.SlideSummary, error) {
	var out struct {
		Items []model.SlideSummary `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/slides", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetSlide fetches one slide's descriptor.
func (c *Client) GetSlide(ctx context.Context, id uuid.UUID) (model.SlideSummary, error) {
	var out model.SlideSummary
	err := c.do(ctx, http.MethodGet, "/slides/"+id.String(), nil, &out)
	return out, err
}

// ListAnnotations returns every annotation in a set.
func (c *Client) ListAnnotations(ctx context.Context, setID string) ([]model.Annotation, error) {
	var out model.ListAnnotationsResponse
	path := "/annotation-sets/" + url.PathEscape(setID) + "/annotations"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// CreateAnnotation adds an annotation to a set and returns the server's
// assigned ID.
func (c *Client) CreateAnnotation(ctx context.Context, setID string, req model.CreateAnnotationRequest) (model.AnnotationResponse, error) {
	var out model.AnnotationResponse
	path := "/annotation-sets/" + url.PathEscape(setID) + "/annotations"
	err := c.do(ctx, http.MethodPost, path, req, &out)
	return out, err
}

// UpdateAnnotation replaces an annotation's geometry or label.
func (c *Client) UpdateAnnotation(ctx context.Context, id string, req model.UpdateAnnotationRequest) error {
	return c.do(ctx, http.MethodPatch, "/annotations/"+url.PathEscape(id), req, nil)
}

// DeleteAnnotation removes an annotation.
func (c *Client) DeleteAnnotation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/annotations/"+url.PathEscape(id), nil, nil)
}
