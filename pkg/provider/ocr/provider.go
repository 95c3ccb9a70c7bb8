// Package ocr defines the Provider interface for optical character
// recognition backends.
//
// An OCR provider turns one screen capture into plain text. The default
// backend is a small EasyOCR HTTP service running next to studylens; any
// service that accepts an image and returns text can be adapted.
//
// Implementations must be safe for concurrent use: the capture loop issues a
// new request on every tick without waiting for earlier ones to finish.
package ocr

import "context"

// Image is an encoded screen capture.
type Image struct {
	// Data holds the encoded image bytes.
	Data []byte

	// MIME is the content type of Data, e.g. "image/jpeg".
	MIME string
}

// Result is the text recognised in an image.
type Result struct {
	// Text is the recognised text, lines joined by spaces. May be empty when
	// the service found nothing readable.
	Text string
}

// Provider is the abstraction over any OCR backend.
type Provider interface {
	// Recognize extracts text from img. A service-reported failure is an
	// error; an image without text is a successful empty Result.
	Recognize(ctx context.Context, img Image) (Result, error)

	// Health reports whether the backend is reachable and ready.
	Health(ctx context.Context) error
}
