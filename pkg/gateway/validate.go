package gateway

import (
	"encoding/hex"
	"net/http"

	"objectsim/pkg/storage"
)

// Limits mirroring the emulated service.
const (
	// MaxKeyBytes bounds the UTF-8 encoded key length.
	MaxKeyBytes = 512
	// MaxValueBytes bounds a stored value's byte length.
	MaxValueBytes int64 = 5_000_000_000 - 1

	// DefaultListLimit applies when a listing gives no limit; it is also
	// the hard maximum.
	DefaultListLimit = 1000
	// maxIncludeListLimit is the cap when extended metadata inclusion is
	// requested, since richer per-item payloads bound total response size.
	maxIncludeListLimit = 100
)

// validateKey rejects structurally invalid keys before any I/O happens.
func validateKey(method, key string) error {
	if key == "" || key == "." || key == ".." {
		return keyInvalid("%s: key %q is not a valid object name", method, key)
	}
	if key == storage.AlarmKey {
		// Reachable only through the alarm accessors; letting object ops at
		// it would corrupt the stored schedule.
		return keyInvalid("%s: key %q is reserved", method, key)
	}
	if len(key) > MaxKeyBytes {
		return keyInvalid("%s: key exceeds the %d byte limit", method, MaxKeyBytes)
	}
	return nil
}

// validateRange checks the structural validity of a range spec. Offset and
// suffix forms are mutually exclusive; an explicit zero length selects
// nothing and is unsatisfiable.
func validateRange(method string, r *RangeSpec) error {
	if r == nil {
		return nil
	}
	if r.Suffix != nil && (r.Offset != nil || r.Length != nil) {
		return optionInvalid("%s: range suffix is exclusive with offset/length", method)
	}
	if r.Suffix != nil && *r.Suffix <= 0 {
		return rangeNotSatisfiable("%s: range suffix must select at least one byte", method)
	}
	if r.Offset != nil && *r.Offset < 0 {
		return optionInvalid("%s: range offset must not be negative", method)
	}
	if r.Length != nil {
		if *r.Length < 0 {
			return optionInvalid("%s: range length must not be negative", method)
		}
		if *r.Length == 0 {
			return rangeNotSatisfiable("%s: a zero-length range selects nothing", method)
		}
	}
	return nil
}

// validateGetOptions runs all get-side option checks as one step.
func validateGetOptions(o *GetOptions) error {
	if o == nil {
		return nil
	}
	return validateRange("get", o.Range)
}

// validatePutOptions runs all put-side option checks as one step and
// returns the expected digest normalized to hex ("" when none given).
func validatePutOptions(o *PutOptions) (string, error) {
	if o == nil {
		return "", nil
	}
	d := o.Digest
	switch {
	case d.Hex != "" && d.Raw != nil:
		return "", optionInvalid("put: digest must be given as hex or raw bytes, not both")
	case d.Raw != nil:
		if len(d.Raw) != md5ByteLen {
			return "", optionInvalid("put: digest must be exactly %d bytes", md5ByteLen)
		}
		return hex.EncodeToString(d.Raw), nil
	case d.Hex != "":
		raw, err := hex.DecodeString(d.Hex)
		if err != nil || len(raw) != md5ByteLen {
			return "", optionInvalid("put: digest must be a %d-byte hex string", md5ByteLen)
		}
		return hex.EncodeToString(raw), nil
	}
	return "", nil
}

// validateListOptions resolves the effective limit for a listing.
func validateListOptions(o *ListOptions) (int, error) {
	if o == nil {
		return DefaultListLimit, nil
	}
	max := DefaultListLimit
	if o.Include.HTTPMetadata || o.Include.CustomMetadata {
		max = maxIncludeListLimit
	}
	limit := o.Limit
	if limit == 0 {
		limit = max
	}
	if limit < 1 || limit > max {
		return 0, errf(CodeListLimitInvalid, http.StatusBadRequest, "list: limit must be between 1 and %d", max)
	}
	return limit, nil
}
