// Package easyocr provides an OCR provider that talks to an EasyOCR HTTP
// service.
//
// The service accepts POST /ocr with a JSON body {"image": "<data URI>"} and
// answers {"success": bool, "text": string, "error": string}. GET /health
// answers 2xx when the recognition model is loaded.
package easyocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/studylens/pkg/frame"
	"github.com/MrWong99/studylens/pkg/provider/ocr"
)

// DefaultBaseURL is where the OCR service listens by default.
const DefaultBaseURL = "http://localhost:5001"

// ErrRecognition is returned when the service answers with success=false.
var ErrRecognition = errors.New("easyocr: recognition failed")

var _ ocr.Provider = (*Provider)(nil)

// Provider implements ocr.Provider against an EasyOCR HTTP service.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithTimeout sets the per-request timeout. Zero disables it, which is the
// default: recognition on CPU can take tens of seconds for a full screen.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		c := *p.httpClient
		c.Timeout = d
		p.httpClient = &c
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = hc
	}
}

// New creates a Provider for the service at baseURL, or DefaultBaseURL when
// baseURL is empty.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("easyocr: base URL %q must start with http:// or https://", baseURL)
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type ocrRequest struct {
	Image string `json:"image"`
}

type ocrResponse struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
	Error   string `json:"error"`
}

// Recognize implements ocr.Provider.
func (p *Provider) Recognize(ctx context.Context, img ocr.Image) (ocr.Result, error) {
	if len(img.Data) == 0 {
		return ocr.Result{}, errors.New("easyocr: recognize: empty image")
	}
	mime := img.MIME
	if mime == "" {
		mime = frame.MIMEType
	}

	body, err := json.Marshal(ocrRequest{Image: frame.DataURI(mime, img.Data)})
	if err != nil {
		return ocr.Result{}, fmt.Errorf("easyocr: recognize: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/ocr", bytes.NewReader(body))
	if err != nil {
		return ocr.Result{}, fmt.Errorf("easyocr: recognize: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return ocr.Result{}, fmt.Errorf("easyocr: recognize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ocr.Result{}, fmt.Errorf("easyocr: recognize: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ocr.Result{}, fmt.Errorf("easyocr: recognize: decode response: %w", err)
	}
	if !out.Success {
		if out.Error == "" {
			return ocr.Result{}, ErrRecognition
		}
		return ocr.Result{}, fmt.Errorf("%w: %s", ErrRecognition, out.Error)
	}
	return ocr.Result{Text: out.Text}, nil
}

// Health implements ocr.Provider via GET /health.
func (p *Provider) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("easyocr: health: build request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("easyocr: health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("easyocr: health: unexpected status %d", resp.StatusCode)
	}
	return nil
}
