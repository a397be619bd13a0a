package gateway

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"objectsim/pkg/storage"
)

const md5ByteLen = md5.Size

// Gateway is the public operation surface over a backing store: it
// validates requests, evaluates conditional predicates, normalizes payloads
// into canonical bytes, computes digests, and shapes responses. All durable
// I/O is delegated to the store.
type Gateway struct {
	store storage.Store
	clock func() time.Time
	log   *slog.Logger

	maxValueBytes int64
}

// Limits tunes gateway bounds. Zero fields keep the service defaults.
type Limits struct {
	MaxValueBytes int64
}

// New returns a Gateway over store with default limits.
func New(store storage.Store) *Gateway {
	return NewWithLimits(store, Limits{})
}

// NewWithLimits returns a Gateway over store with explicit limits.
func NewWithLimits(store storage.Store, l Limits) *Gateway {
	g := &Gateway{
		store:         store,
		clock:         time.Now,
		log:           slog.Default(),
		maxValueBytes: l.MaxValueBytes,
	}
	if g.maxValueBytes <= 0 {
		g.maxValueBytes = MaxValueBytes
	}
	return g
}

// SetClock overrides the upload-timestamp clock. Intended for tests.
func (g *Gateway) SetClock(fn func() time.Time) { g.clock = fn }

// Head returns the metadata for key, or nil when the key does not exist.
// Never touches value bytes on the happy path.
func (g *Gateway) Head(ctx context.Context, key string) (*Metadata, error) {
	if err := validateKey("head", key); err != nil {
		return nil, err
	}
	rec, err := g.headRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	return g.metadataOf(ctx, key, rec)
}

// headRecord looks up the current record for key, mapping "not found" to a
// nil record so absence stays a plain return value.
func (g *Gateway) headRecord(ctx context.Context, key string) (*storage.Record, error) {
	rec, err := g.store.Head(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, g.mapStoreErr(err)
	}
	return rec, nil
}

// Get returns the object for key. A failed precondition or a zero-length
// object yields metadata with no body; a missing key yields nil.
func (g *Gateway) Get(ctx context.Context, key string, opts *GetOptions) (*Object, error) {
	if err := validateKey("get", key); err != nil {
		return nil, err
	}
	if err := validateGetOptions(opts); err != nil {
		return nil, err
	}
	rec, err := g.headRecord(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	meta, err := g.metadataOf(ctx, key, rec)
	if err != nil {
		return nil, err
	}
	var onlyIf *Conditional
	if opts != nil {
		onlyIf = opts.OnlyIf
	}
	if conditionFails(onlyIf, meta) || meta.Size == 0 {
		return &Object{Metadata: *meta}, nil
	}

	rng := storage.FullRange()
	if opts != nil && opts.Range != nil {
		rng = toStoreRange(opts.Range)
	}
	_, body, err := g.store.GetRange(ctx, key, rng)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted between the head and the read; absent.
		return nil, nil
	}
	if err != nil {
		return nil, g.mapStoreErr(err)
	}
	return &Object{Metadata: *meta, Body: body}, nil
}

// Put stores payload under key. A failed precondition yields nil metadata
// and performs no write; any prior object for the key stays intact.
func (g *Gateway) Put(ctx context.Context, key string, payload Payload, opts *PutOptions) (*Metadata, error) {
	if err := validateKey("put", key); err != nil {
		return nil, err
	}
	wantDigest, err := validatePutOptions(opts)
	if err != nil {
		return nil, err
	}
	value, err := normalizePayload(payload, g.maxValueBytes)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum(value)
	etag := hex.EncodeToString(sum[:])
	if wantDigest != "" && wantDigest != etag {
		return nil, errf(CodeIntegrityMismatch, http.StatusBadRequest,
			"put: the digest you specified (%s) did not match what we received (%s)", wantDigest, etag)
	}

	var onlyIf *Conditional
	if opts != nil {
		onlyIf = opts.OnlyIf
	}
	if onlyIf != nil {
		rec, err := g.headRecord(ctx, key)
		if err != nil {
			return nil, err
		}
		var current *Metadata
		if rec != nil {
			if current, err = g.metadataOf(ctx, key, rec); err != nil {
				return nil, err
			}
		}
		if conditionFails(onlyIf, current) {
			return nil, nil
		}
	}

	meta := &Metadata{
		Key:      key,
		Size:     int64(len(value)),
		ETag:     etag,
		HTTPETag: `"` + etag + `"`,
		Version:  uuid.NewString(),
		Uploaded: g.clock().UTC(),
	}
	if opts != nil {
		if opts.HTTPMetadata != nil {
			meta.HTTPMetadata = *opts.HTTPMetadata
		}
		if len(opts.CustomMetadata) > 0 {
			meta.CustomMetadata = opts.CustomMetadata
		}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if err := g.store.Put(ctx, key, value, storage.Record{Key: key, Metadata: raw}); err != nil {
		return nil, g.mapStoreErr(err)
	}
	return meta, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (g *Gateway) Delete(ctx context.Context, key string) error {
	if err := validateKey("delete", key); err != nil {
		return err
	}
	if _, err := g.store.Delete(ctx, key); err != nil {
		return g.mapStoreErr(err)
	}
	return nil
}

// GetAlarm returns the scheduled alarm time, or nil when none is set.
func (g *Gateway) GetAlarm(ctx context.Context) (*time.Time, error) {
	ms, err := g.store.GetAlarm(ctx)
	if err != nil {
		return nil, err
	}
	if ms == 0 {
		return nil, nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}

// SetAlarm schedules the alarm, replacing any previous schedule.
func (g *Gateway) SetAlarm(ctx context.Context, scheduledTime time.Time) error {
	return g.store.SetAlarm(ctx, scheduledTime.UnixMilli())
}

// DeleteAlarm clears any scheduled alarm.
func (g *Gateway) DeleteAlarm(ctx context.Context) error {
	return g.store.DeleteAlarm(ctx)
}

// metadataOf recovers the Metadata carried in a record's sidecar blob. A
// record whose blob is missing, corrupt, or from a different generation
// than the value bytes is reconciled on the spot: the digest is recomputed
// from the bytes, fresh metadata is rebuilt, and the sidecar is repaired so
// the mismatched pair is never served.
func (g *Gateway) metadataOf(ctx context.Context, key string, rec *storage.Record) (*Metadata, error) {
	if rec == nil {
		return nil, nil
	}
	if len(rec.Metadata) > 0 {
		var meta Metadata
		if err := json.Unmarshal(rec.Metadata, &meta); err == nil && meta.Size == rec.Size {
			return &meta, nil
		}
	}
	return g.reconcile(ctx, key, rec)
}

// reconcile rebuilds metadata for a value observed without a matching
// sidecar (e.g. after a crash between the value and sidecar writes).
func (g *Gateway) reconcile(ctx context.Context, key string, rec *storage.Record) (*Metadata, error) {
	rec2, value, err := g.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted between the head and the read; absent.
		return nil, nil
	}
	if err != nil {
		return nil, g.mapStoreErr(err)
	}
	sum := md5.Sum(value)
	etag := hex.EncodeToString(sum[:])
	meta := &Metadata{
		Key:      key,
		Size:     int64(len(value)),
		ETag:     etag,
		HTTPETag: `"` + etag + `"`,
		Version:  uuid.NewString(),
		Uploaded: rec2.ModTime,
	}
	g.log.Warn("rebuilt metadata for value without matching sidecar",
		slog.String("key", key),
		slog.Int64("size", meta.Size),
	)
	raw, merr := json.Marshal(meta)
	if merr == nil {
		repaired := storage.Record{Key: key, Expiration: rec2.Expiration, Metadata: raw}
		if perr := g.store.Put(ctx, key, value, repaired); perr != nil {
			g.log.Warn("sidecar repair failed", slog.String("key", key), slog.String("error", perr.Error()))
		}
	}
	return meta, nil
}

func toStoreRange(r *RangeSpec) storage.Range {
	out := storage.Range{Length: -1, Suffix: -1}
	if r.Suffix != nil {
		out.Suffix = *r.Suffix
		return out
	}
	if r.Offset != nil {
		out.Offset = *r.Offset
	}
	if r.Length != nil {
		out.Length = *r.Length
	}
	return out
}

// mapStoreErr translates substrate errors into the gateway taxonomy.
// ErrNotFound never escapes as an error; callers turn it into an absent
// result first, so reaching it here is an internal inconsistency.
func (g *Gateway) mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrTraversal):
		return errf(CodeTraversal, http.StatusBadRequest, "key resolves outside the storage root")
	case errors.Is(err, storage.ErrNamespaceKeyChild):
		return errf(CodeNamespaceCollision, http.StatusConflict, "a parent segment of the key is itself a stored key")
	case errors.Is(err, storage.ErrRangeNotSatisfiable):
		return rangeNotSatisfiable("get: the requested range cannot be satisfied")
	default:
		return err
	}
}
