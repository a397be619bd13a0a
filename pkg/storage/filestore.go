package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"
)

// FileStore implements Store on a single local directory. Values live at
// sanitized key paths; everything else about a key lives in a sidecar file
// next to the value. The value is always written before the sidecar so a
// reader never sees fresh metadata for stale bytes.
type FileStore struct {
	root  string // absolute storage root
	clock func() time.Time
	obs   Observer
	log   *slog.Logger
}

// sidecar is the on-disk shape of a Record, minus what the value file itself
// provides (size, mod time). A sidecar is only written when it would be
// non-empty.
type sidecar struct {
	Key        string          `json:"key,omitempty"` // original key, when sanitization changed it
	Expiration int64           `json:"expiration,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("no data directory configured")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, err
	}
	return &FileStore{
		root:  abs,
		clock: time.Now,
		log:   slog.Default(),
	}, nil
}

// SetObserver wires per-operation instrumentation.
func (s *FileStore) SetObserver(o Observer) { s.obs = o }

// SetClock overrides the expiration clock. Intended for tests.
func (s *FileStore) SetClock(fn func() time.Time) { s.clock = fn }

// Root returns the absolute storage root.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) observe(op string, bytes int64, err error, start time.Time) {
	if s.obs != nil {
		s.obs.Observe(op, bytes, err, time.Since(start))
	}
}

// Head returns the record for key without touching value bytes.
func (s *FileStore) Head(ctx context.Context, key string) (rec *Record, err error) {
	defer s.observe("head", 0, err, time.Now())
	rec, _, err = s.stat(key)
	return rec, err
}

// Get returns the record and the full value.
func (s *FileStore) Get(ctx context.Context, key string) (rec *Record, value []byte, err error) {
	start := time.Now()
	defer func() { s.observe("get", int64(len(value)), err, start) }()
	rec, path, err := s.stat(key)
	if err != nil {
		return nil, nil, err
	}
	value, err = os.ReadFile(path)
	if err != nil {
		return nil, nil, asNotFound(err)
	}
	return rec, value, nil
}

// GetRange returns the record and the requested window of the value. The
// window is clamped to the value's end; a window that selects nothing is
// ErrRangeNotSatisfiable.
func (s *FileStore) GetRange(ctx context.Context, key string, rng Range) (rec *Record, value []byte, err error) {
	start := time.Now()
	defer func() { s.observe("get_range", int64(len(value)), err, start) }()
	rec, path, err := s.stat(key)
	if err != nil {
		return nil, nil, err
	}
	off, n, err := resolveWindow(rng, rec.Size)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, asNotFound(err)
	}
	defer f.Close()
	value = make([]byte, n)
	if _, err = io.ReadFull(io.NewSectionReader(f, off, n), value); err != nil {
		return nil, nil, fmt.Errorf("read %q [%d,%d): %w", key, off, off+n, err)
	}
	return rec, value, nil
}

// resolveWindow turns a Range into a concrete [off, off+n) window for a
// value of the given size.
func resolveWindow(rng Range, size int64) (off, n int64, err error) {
	if rng.Suffix > 0 {
		n = rng.Suffix
		if n > size {
			n = size
		}
		return size - n, n, nil
	}
	if rng.Suffix == 0 {
		return 0, 0, ErrRangeNotSatisfiable
	}
	if rng.Offset < 0 || rng.Offset >= size {
		return 0, 0, ErrRangeNotSatisfiable
	}
	if rng.Length == 0 {
		return 0, 0, ErrRangeNotSatisfiable
	}
	n = size - rng.Offset
	if rng.Length > 0 && rng.Length < n {
		n = rng.Length
	}
	return rng.Offset, n, nil
}

// Put persists value and its sidecar as one logical unit: the value first,
// then the sidecar. When the sidecar would carry nothing, any stale sidecar
// from a previous generation is removed instead.
func (s *FileStore) Put(ctx context.Context, key string, value []byte, rec Record) (err error) {
	start := time.Now()
	defer func() { s.observe("put", int64(len(value)), err, start) }()
	path, sanitized, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return asCollision(err)
	}
	if err := os.WriteFile(path, value, 0o600); err != nil {
		return asCollision(err)
	}
	if sanitized || rec.Expiration != 0 || len(rec.Metadata) > 0 {
		sc := sidecar{Expiration: rec.Expiration, Metadata: rec.Metadata}
		if sanitized {
			sc.Key = key
		}
		b, err := json.Marshal(sc)
		if err != nil {
			return fmt.Errorf("marshal sidecar for %q: %w", key, err)
		}
		if err := os.WriteFile(path+metaSuffix, b, 0o600); err != nil {
			return fmt.Errorf("write sidecar for %q: %w", key, err)
		}
	} else if err := os.Remove(path + metaSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale sidecar for %q: %w", key, err)
	}
	_ = SyncDir(filepath.Dir(path))
	return nil
}

// Delete removes value and sidecar. It reports whether the key existed;
// deleting an absent key is not an error. A key that resolves to a directory
// is only a parent segment of other keys and reads as absent, same as the
// read side.
func (s *FileStore) Delete(ctx context.Context, key string) (existed bool, err error) {
	start := time.Now()
	defer func() { s.observe("delete", 0, err, start) }()
	path, _, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	st, serr := os.Stat(path)
	if serr != nil {
		if errors.Is(serr, fs.ErrNotExist) || errors.Is(serr, syscall.ENOTDIR) {
			_ = os.Remove(path + metaSuffix)
			return false, nil
		}
		return false, serr
	}
	if st.IsDir() {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			_ = os.Remove(path + metaSuffix)
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(path + metaSuffix)
	_ = removeEmptyParents(filepath.Dir(path), s.root)
	return true, nil
}

// List enumerates keys in ascending lexicographic order, filtered by prefix,
// resuming strictly after the key the cursor encodes. Sidecar files and the
// reserved alarm key never appear.
func (s *FileStore) List(ctx context.Context, opts ListOptions) (page ListPage, err error) {
	start := time.Now()
	defer func() { s.observe("list", 0, err, start) }()
	after := ""
	if opts.Cursor != "" {
		after, err = DecodeCursor(opts.Cursor)
		if err != nil {
			return ListPage{}, err
		}
	}
	recs, err := s.walk(ctx)
	if err != nil {
		return ListPage{}, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Key < recs[j].Key })

	out := recs[:0]
	for _, r := range recs {
		if !strings.HasPrefix(r.Key, opts.Prefix) {
			continue
		}
		if after != "" && r.Key <= after {
			continue
		}
		out = append(out, r)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		page.Cursor = EncodeCursor(out[opts.Limit-1].Key)
		out = out[:opts.Limit]
	}
	page.Records = out
	return page, nil
}

// walk yields every live key under the root with its sidecar state.
func (s *FileStore) walk(ctx context.Context) ([]Record, error) {
	var recs []Record
	nowMs := s.clock().UnixMilli()
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if strings.HasSuffix(d.Name(), metaSuffix) {
			return nil
		}
		rel, rerr := filepath.Rel(s.root, path)
		if rerr != nil {
			return rerr
		}
		key := filepath.ToSlash(rel)
		if key == AlarmKey {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			if errors.Is(ierr, fs.ErrNotExist) {
				return nil // deleted while walking
			}
			return ierr
		}
		sc, serr := readSidecar(path)
		if serr != nil {
			return serr
		}
		if sc.Expiration != 0 && sc.Expiration <= nowMs {
			return nil
		}
		if sc.Key != "" {
			key = sc.Key
		}
		recs = append(recs, Record{
			Key:        key,
			Size:       info.Size(),
			ModTime:    info.ModTime().UTC(),
			Expiration: sc.Expiration,
			Metadata:   sc.Metadata,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// stat resolves key, checks existence and expiration, and assembles the
// record from the value file and its sidecar.
func (s *FileStore) stat(key string) (*Record, string, error) {
	path, _, err := s.resolve(key)
	if err != nil {
		return nil, "", err
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, "", asNotFound(err)
	}
	if st.IsDir() {
		// The key is a parent segment of other keys, not a value itself.
		return nil, "", ErrNotFound
	}
	sc, err := readSidecar(path)
	if err != nil {
		return nil, "", err
	}
	if sc.Expiration != 0 && sc.Expiration <= s.clock().UnixMilli() {
		// Lazy removal of an expired entry.
		_ = os.Remove(path)
		_ = os.Remove(path + metaSuffix)
		_ = removeEmptyParents(filepath.Dir(path), s.root)
		return nil, "", ErrNotFound
	}
	rec := &Record{
		Key:        key,
		Size:       st.Size(),
		ModTime:    st.ModTime().UTC(),
		Expiration: sc.Expiration,
		Metadata:   sc.Metadata,
	}
	if sc.Key != "" {
		rec.Key = sc.Key
	}
	return rec, path, nil
}

// readSidecar returns the sidecar for a value path, or the zero sidecar when
// none exists.
func readSidecar(valuePath string) (sidecar, error) {
	b, err := os.ReadFile(valuePath + metaSuffix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return sidecar{}, nil
		}
		return sidecar{}, fmt.Errorf("read sidecar %q: %w", valuePath+metaSuffix, err)
	}
	var sc sidecar
	if err := json.Unmarshal(b, &sc); err != nil {
		// A corrupt sidecar is treated like a missing one: the caller
		// reconciles from the value bytes.
		return sidecar{}, nil
	}
	return sc, nil
}

// asNotFound maps "file missing" and "parent segment is a file" to
// ErrNotFound, per the read-side namespace rules.
func asNotFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		return ErrNotFound
	}
	return err
}

// asCollision maps structural write failures caused by a parent segment
// being an existing key (or the key being a parent of existing keys) to
// ErrNamespaceKeyChild.
func asCollision(err error) error {
	if errors.Is(err, syscall.ENOTDIR) || errors.Is(err, syscall.EISDIR) {
		return ErrNamespaceKeyChild
	}
	var pe *fs.PathError
	if errors.As(err, &pe) && pe.Err == syscall.EEXIST {
		return ErrNamespaceKeyChild
	}
	return err
}

func removeEmptyParents(dir, stop string) error {
	for {
		if dir == stop || dir == "/" || dir == "." || dir == "" {
			return nil
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil
		}
		if len(entries) > 0 {
			return nil
		}
		if err := os.Remove(dir); err != nil {
			return nil
		}
		dir = filepath.Dir(dir)
	}
}
