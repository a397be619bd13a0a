package gateway

import (
	"time"
)

// Metadata is the full per-object record returned by head/get/put/list and
// persisted in the engine sidecar.
type Metadata struct {
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	ETag     string    `json:"etag"`     // hex MD5 of the value bytes
	HTTPETag string    `json:"httpEtag"` // ETag wrapped as a quoted validator
	Version  string    `json:"version"`  // unique per successful write
	Uploaded time.Time `json:"uploaded"`

	HTTPMetadata   HTTPMetadata      `json:"httpMetadata"`
	CustomMetadata map[string]string `json:"customMetadata,omitempty"`
}

// HTTPMetadata carries the standard transfer-metadata fields a caller may
// attach to an object. All optional.
type HTTPMetadata struct {
	ContentType        string     `json:"contentType,omitempty"`
	ContentEncoding    string     `json:"contentEncoding,omitempty"`
	ContentDisposition string     `json:"contentDisposition,omitempty"`
	ContentLanguage    string     `json:"contentLanguage,omitempty"`
	CacheControl       string     `json:"cacheControl,omitempty"`
	CacheExpiry        *time.Time `json:"cacheExpiry,omitempty"`
}

// Conditional is the predicate bag gating get and put. All present clauses
// must hold for the operation to proceed.
type Conditional struct {
	// ETagMatches passes when the object's etag equals any listed value.
	// Fails when the object does not exist.
	ETagMatches []string
	// ETagDoesNotMatch passes when the object's etag equals none of the
	// listed values. Trivially passes when the object does not exist.
	ETagDoesNotMatch []string
	// UploadedBefore passes when the upload time is strictly earlier.
	UploadedBefore *time.Time
	// UploadedAfter passes when the upload time is strictly later.
	UploadedAfter *time.Time
}

// RangeSpec selects part of a value: either Offset(+Length) or Suffix,
// never both. A nil field is "not given"; an explicit zero Length is
// invalid (selects nothing).
type RangeSpec struct {
	Offset *int64
	Length *int64
	Suffix *int64
}

// Digest is a caller-supplied expected content digest, as hex text or raw
// bytes (one of the two).
type Digest struct {
	Hex string
	Raw []byte
}

// GetOptions controls a get.
type GetOptions struct {
	OnlyIf *Conditional
	Range  *RangeSpec
}

// PutOptions controls a put.
type PutOptions struct {
	OnlyIf         *Conditional
	HTTPMetadata   *HTTPMetadata
	CustomMetadata map[string]string
	// Digest, when given, must equal the MD5 of the normalized payload or
	// the put fails with IntegrityMismatch.
	Digest Digest
}

// Include selects which optional metadata groups a listing attaches to each
// object. Omitted groups come back empty to bound response size.
type Include struct {
	HTTPMetadata   bool
	CustomMetadata bool
}

// ListOptions controls a listing page.
type ListOptions struct {
	Prefix string
	// Limit caps objects + delimited prefixes per page. 0 means the
	// default (1000; 100 when Include requests extended metadata).
	Limit     int
	Cursor    string
	Delimiter string
	Include   Include
}

// ListResult is one page of a listing.
type ListResult struct {
	Objects   []Metadata
	Truncated bool
	// Cursor resumes the listing; present only when Truncated.
	Cursor            string
	DelimitedPrefixes []string
}

// Object is a get result: metadata plus, when the conditional passed and
// the object is non-empty, the resolved body window.
type Object struct {
	Metadata
	// Body is nil for metadata-only results (failed precondition or
	// zero-length object).
	Body []byte
}

// HasBody reports whether the get produced value bytes.
func (o *Object) HasBody() bool { return o.Body != nil }
