package gateway

import (
	"fmt"
	"io"
	"net/http"
)

// Payload is a closed variant type for put input. Each variant knows how to
// normalize itself into the canonical byte sequence that gets digested and
// persisted. Callers construct one of BytesPayload, TextPayload,
// StreamPayload, or EmptyPayload; any other shape is rejected at the type
// boundary.
type Payload interface {
	normalize(maxBytes int64) ([]byte, error)
}

// BytesPayload is a raw byte sequence.
type BytesPayload []byte

// TextPayload is textual content, stored as its UTF-8 bytes.
type TextPayload string

// StreamPayload is a streaming byte source, drained fully at put time.
type StreamPayload struct {
	Reader io.Reader
}

// EmptyPayload stores a zero-length value.
type EmptyPayload struct{}

func (p BytesPayload) normalize(maxBytes int64) ([]byte, error) {
	if int64(len(p)) > maxBytes {
		return nil, tooLarge(int64(len(p)), maxBytes)
	}
	return []byte(p), nil
}

func (p TextPayload) normalize(maxBytes int64) ([]byte, error) {
	if int64(len(p)) > maxBytes {
		return nil, tooLarge(int64(len(p)), maxBytes)
	}
	return []byte(p), nil
}

func (p StreamPayload) normalize(maxBytes int64) ([]byte, error) {
	if p.Reader == nil {
		return nil, errf(CodePayloadTypeUnsupported, http.StatusBadRequest,
			"put: stream payload has no reader")
	}
	// Read one byte past the limit so an oversized stream is detected
	// without buffering it whole.
	b, err := io.ReadAll(io.LimitReader(p.Reader, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("drain payload stream: %w", err)
	}
	if int64(len(b)) > maxBytes {
		return nil, tooLarge(int64(len(b)), maxBytes)
	}
	return b, nil
}

func (EmptyPayload) normalize(int64) ([]byte, error) { return []byte{}, nil }

// normalizePayload converts any supported payload variant into canonical
// bytes, enforcing the value size limit.
func normalizePayload(p Payload, maxBytes int64) ([]byte, error) {
	if p == nil {
		return nil, errf(CodePayloadTypeUnsupported, http.StatusBadRequest,
			"put: unsupported payload type")
	}
	return p.normalize(maxBytes)
}

func tooLarge(size, limit int64) *Error {
	return errf(CodeValueTooLarge, http.StatusRequestEntityTooLarge,
		"put: value of %d bytes exceeds the %d byte limit", size, limit)
}
