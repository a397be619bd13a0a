package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Record is the per-key state tracked next to a value: the logical key, the
// persisted byte length, an optional expiration, and an opaque metadata blob
// owned by the layer above.
type Record struct {
	// Key is the logical key, recovered from the sidecar when path
	// sanitization changed it.
	Key string
	// Size is the byte length of the persisted value.
	Size int64
	// ModTime is the value file's last modification time.
	ModTime time.Time
	// Expiration is a unix-millisecond deadline after which the key reads as
	// absent. Zero means no expiration.
	Expiration int64
	// Metadata is opaque to the engine. Nil when no sidecar metadata exists
	// for the value (e.g. after a crash between the value and sidecar
	// writes); callers must reconcile before serving such a record.
	Metadata json.RawMessage
}

// Range selects a window of a value. Suffix > 0 selects the last Suffix
// bytes and is exclusive with Offset/Length. Otherwise the window starts at
// Offset; Length < 0 means "to the end".
type Range struct {
	Offset int64
	Length int64
	Suffix int64
}

// FullRange reads the entire value.
func FullRange() Range { return Range{Length: -1, Suffix: -1} }

// ListOptions controls one page of enumeration.
type ListOptions struct {
	Prefix string
	// Cursor resumes strictly after the key it encodes. Empty starts from
	// the beginning.
	Cursor string
	// Limit bounds the page size. <= 0 means no bound.
	Limit int
}

// ListPage is one page of enumeration in ascending key order.
type ListPage struct {
	Records []Record
	// Cursor is set when more keys remain after this page.
	Cursor string
}

// Store is the substrate contract consumed by the gateway. FileStore is the
// filesystem implementation; any backend honoring the same semantics fits.
//
// Implementations must be safe for concurrent use and must never let a
// reader observe a value without its committed sidecar state from the same
// write (value is committed first, the sidecar second).
type Store interface {
	Head(ctx context.Context, key string) (*Record, error)
	Get(ctx context.Context, key string) (*Record, []byte, error)
	GetRange(ctx context.Context, key string, rng Range) (*Record, []byte, error)
	Put(ctx context.Context, key string, value []byte, rec Record) error
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, opts ListOptions) (ListPage, error)

	GetAlarm(ctx context.Context) (int64, error)
	SetAlarm(ctx context.Context, scheduledTimeMs int64) error
	DeleteAlarm(ctx context.Context) error
}

// Errors
var (
	ErrNotFound            = errors.New("storage: key not found")
	ErrTraversal           = errors.New("storage: key resolves outside the storage root")
	ErrNamespaceKeyChild   = errors.New("storage: a parent segment of the key is itself a stored key")
	ErrRangeNotSatisfiable = errors.New("storage: range not satisfiable")
)

// Observer receives one callback per storage operation. Implemented by the
// metrics package; defined here so storage does not import it.
type Observer interface {
	Observe(op string, bytes int64, err error, dur time.Duration)
}

// EncodeCursor wraps a key into an opaque continuation token.
func EncodeCursor(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// DecodeCursor recovers the key a continuation token encodes.
func DecodeCursor(cursor string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("decode cursor: %w", err)
	}
	return string(b), nil
}
