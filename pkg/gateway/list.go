package gateway

import (
	"context"
	"strings"

	"objectsim/pkg/storage"
)

// List returns one page of keys at or after the cursor position in
// ascending lexicographic order, filtered by prefix. With a delimiter set,
// keys whose remainder (after the prefix) contains the delimiter collapse
// into delimited prefixes instead of objects. Because that collapse can
// swallow many raw keys, the gateway keeps pulling pages from the store
// until the combined count of objects and distinct prefixes reaches the
// limit or the store runs out.
func (g *Gateway) List(ctx context.Context, opts *ListOptions) (*ListResult, error) {
	limit, err := validateListOptions(opts)
	if err != nil {
		return nil, err
	}
	var (
		prefix    string
		delimiter string
		cursor    string
		include   Include
	)
	if opts != nil {
		prefix = opts.Prefix
		delimiter = opts.Delimiter
		cursor = opts.Cursor
		include = opts.Include
	}
	if cursor != "" {
		if _, derr := storage.DecodeCursor(cursor); derr != nil {
			return nil, optionInvalid("list: malformed cursor")
		}
	}

	res := &ListResult{
		Objects:           []Metadata{},
		DelimitedPrefixes: []string{},
	}
	seen := make(map[string]struct{})
	var lastKey string

	for {
		page, err := g.store.List(ctx, storage.ListOptions{
			Prefix: prefix,
			Cursor: cursor,
			Limit:  limit,
		})
		if err != nil {
			return nil, g.mapStoreErr(err)
		}
		for i := range page.Records {
			rec := &page.Records[i]
			meta, err := g.metadataOf(ctx, rec.Key, rec)
			if err != nil {
				return nil, err
			}
			if meta == nil {
				continue // vanished mid-walk
			}
			lastKey = meta.Key
			rest := meta.Key[len(prefix):]
			if delimiter != "" {
				if idx := strings.Index(rest, delimiter); idx >= 0 {
					dp := meta.Key[:len(prefix)+idx+len(delimiter)]
					if _, dup := seen[dp]; !dup {
						seen[dp] = struct{}{}
						res.DelimitedPrefixes = append(res.DelimitedPrefixes, dp)
					}
					if g.listFull(res, limit) {
						res.Truncated = i+1 < len(page.Records) || page.Cursor != ""
						break
					}
					continue
				}
			}
			obj := *meta
			if !include.HTTPMetadata {
				obj.HTTPMetadata = HTTPMetadata{}
			}
			if !include.CustomMetadata {
				obj.CustomMetadata = nil
			}
			res.Objects = append(res.Objects, obj)
			if g.listFull(res, limit) {
				res.Truncated = i+1 < len(page.Records) || page.Cursor != ""
				break
			}
		}
		if g.listFull(res, limit) || page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	if res.Truncated {
		res.Cursor = storage.EncodeCursor(lastKey)
	}
	return res, nil
}

func (g *Gateway) listFull(res *ListResult, limit int) bool {
	return len(res.Objects)+len(res.DelimitedPrefixes) >= limit
}
