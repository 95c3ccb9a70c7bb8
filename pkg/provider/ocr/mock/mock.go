// Package mock provides a test double for the ocr.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/studylens/pkg/provider/ocr"
)

// Provider is a mock implementation of ocr.Provider.
type Provider struct {
	mu sync.Mutex

	// RecognizeFunc, when set, takes precedence over Text/Err.
	RecognizeFunc func(ctx context.Context, img ocr.Image) (ocr.Result, error)

	// Text is returned as the recognised text.
	Text string

	// Err, if non-nil, is returned by Recognize.
	Err error

	// HealthErr is returned by Health.
	HealthErr error

	// Images records every image passed to Recognize.
	Images []ocr.Image
}

var _ ocr.Provider = (*Provider)(nil)

// Recognize records the call and returns the configured result.
func (p *Provider) Recognize(ctx context.Context, img ocr.Image) (ocr.Result, error) {
	p.mu.Lock()
	p.Images = append(p.Images, img)
	fn, text, err := p.RecognizeFunc, p.Text, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, img)
	}
	if err != nil {
		return ocr.Result{}, err
	}
	return ocr.Result{Text: text}, nil
}

// Health returns HealthErr.
func (p *Provider) Health(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.HealthErr
}

// Calls returns the number of Recognize calls so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Images)
}
