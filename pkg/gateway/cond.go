package gateway

import "strings"

// conditionFails reports whether the conditional test fails against the
// current metadata (nil means the object does not exist). All supplied
// clauses must hold; failing any one fails the test. A nil conditional
// never fails.
func conditionFails(c *Conditional, meta *Metadata) bool {
	if c == nil {
		return false
	}
	if len(c.ETagMatches) > 0 {
		if meta == nil || !etagIn(meta.ETag, c.ETagMatches) {
			return true
		}
	}
	if len(c.ETagDoesNotMatch) > 0 {
		if meta != nil && etagIn(meta.ETag, c.ETagDoesNotMatch) {
			return true
		}
	}
	if c.UploadedBefore != nil {
		if meta == nil {
			// No upload time to violate the bound.
		} else if !meta.Uploaded.Before(*c.UploadedBefore) {
			return true
		}
	}
	if c.UploadedAfter != nil {
		if meta == nil {
			// As above.
		} else if !meta.Uploaded.After(*c.UploadedAfter) {
			return true
		}
	}
	return false
}

func etagIn(etag string, candidates []string) bool {
	for _, c := range candidates {
		if etagsEqual(etag, c) {
			return true
		}
	}
	return false
}

// etagsEqual compares two entity tags the way HTTP If-Match does under weak
// comparison: the W/ prefix and surrounding quotes do not participate.
func etagsEqual(a, b string) bool {
	return trimETag(a) == trimETag(b)
}

func trimETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	if len(etag) >= 2 && strings.HasPrefix(etag, `"`) && strings.HasSuffix(etag, `"`) {
		etag = etag[1 : len(etag)-1]
	}
	return etag
}
