// Package frame normalises screen frames pushed by the capture page into the
// JPEG form stored on a session and sent to the OCR service.
package frame

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // registered for image.Decode
	"image/jpeg"
	_ "image/png" // registered for image.Decode
	"strings"
)

// DefaultQuality is the JPEG quality used when re-encoding frames.
const DefaultQuality = 80

// MIMEType is the content type of every normalised frame.
const MIMEType = "image/jpeg"

// ErrEmpty is returned when a frame carries no image bytes.
var ErrEmpty = errors.New("frame: empty image")

// ErrBadDataURI is returned when a data URI is not of the form
// "data:<mime>;base64,<payload>".
var ErrBadDataURI = errors.New("frame: malformed data URI")

// Image is a normalised frame.
type Image struct {
	// Data holds the JPEG-encoded bytes.
	Data []byte

	// Width and Height are the pixel dimensions.
	Width  int
	Height int
}

// Normalize decodes a JPEG, PNG or GIF image and re-encodes it as JPEG at the
// given quality. A quality outside 1..100 falls back to DefaultQuality.
func Normalize(raw []byte, quality int) (Image, error) {
	if len(raw) == 0 {
		return Image{}, ErrEmpty
	}
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Image{}, fmt.Errorf("frame: decode: %w", err)
	}
	b := img.Bounds()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return Image{}, fmt.Errorf("frame: encode %s as jpeg: %w", format, err)
	}
	return Image{Data: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}, nil
}

// DataURI renders image bytes as "data:<mime>;base64,<payload>", the form the
// OCR service expects.
func DataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURI splits a base64 data URI into its MIME type and decoded bytes.
func ParseDataURI(uri string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrBadDataURI
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrBadDataURI
	}
	mime, ok = strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, ErrBadDataURI
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("frame: decode data URI payload: %w", err)
	}
	return mime, data, nil
}
