package storage

import (
	"os"
	"path/filepath"
	"strings"
)

// metaSuffix is the fixed suffix convention for sidecar files.
const metaSuffix = ".meta.json"

// sanitizeKey maps a logical key to a filesystem-safe relative path, slash
// separated. Characters that are unsafe on common filesystems are replaced
// with '_'; '/' is kept so keys may span directories. Returns the sanitized
// path and whether it differs from the key (in which case the original key
// must be preserved in the sidecar).
func sanitizeKey(key string) (string, bool) {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c < 0x20 || c == 0x7f:
			b.WriteByte('_')
		case c == '<' || c == '>' || c == ':' || c == '"' || c == '\\' || c == '|' || c == '?' || c == '*':
			b.WriteByte('_')
		default:
			b.WriteByte(c)
		}
	}
	s := b.String()
	return s, s != key
}

// resolve maps a key onto an absolute value path under root. It rejects any
// key whose cleaned path would fall outside root. sanitized reports whether
// the stored relative path no longer spells the key, so the key must be kept
// in the sidecar to be recoverable by enumeration.
func (s *FileStore) resolve(key string) (path string, sanitized bool, err error) {
	rel, _ := sanitizeKey(key)
	joined := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(rel)))
	if !strings.HasPrefix(joined+string(os.PathSeparator), s.root+string(os.PathSeparator)) {
		return "", false, ErrTraversal
	}
	if joined == s.root {
		return "", false, ErrTraversal
	}
	back, rerr := filepath.Rel(s.root, joined)
	if rerr != nil {
		return "", false, ErrTraversal
	}
	return joined, filepath.ToSlash(back) != key, nil
}
