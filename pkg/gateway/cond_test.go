package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConditionFails(t *testing.T) {
	t.Parallel()
	uploaded := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	earlier := uploaded.Add(-time.Hour)
	later := uploaded.Add(time.Hour)
	meta := &Metadata{ETag: "abc", Uploaded: uploaded}

	tests := []struct {
		name  string
		cond  *Conditional
		meta  *Metadata
		fails bool
	}{
		{"nil conditional never fails", nil, meta, false},
		{"empty conditional never fails", &Conditional{}, meta, false},

		{"etag matches", &Conditional{ETagMatches: []string{"abc"}}, meta, false},
		{"etag matches any of list", &Conditional{ETagMatches: []string{"x", "abc"}}, meta, false},
		{"etag matches none", &Conditional{ETagMatches: []string{"x", "y"}}, meta, true},
		{"etag match against missing object", &Conditional{ETagMatches: []string{"abc"}}, nil, true},
		{"quoted etag compares equal", &Conditional{ETagMatches: []string{`"abc"`}}, meta, false},
		{"weak etag compares equal", &Conditional{ETagMatches: []string{`W/"abc"`}}, meta, false},

		{"no-match passes on different etag", &Conditional{ETagDoesNotMatch: []string{"x"}}, meta, false},
		{"no-match fails on equal etag", &Conditional{ETagDoesNotMatch: []string{"abc"}}, meta, true},
		{"no-match trivially passes on missing object", &Conditional{ETagDoesNotMatch: []string{"abc"}}, nil, false},

		{"uploaded before later bound", &Conditional{UploadedBefore: &later}, meta, false},
		{"uploaded before earlier bound fails", &Conditional{UploadedBefore: &earlier}, meta, true},
		{"uploaded before equal bound fails", &Conditional{UploadedBefore: &uploaded}, meta, true},
		{"uploaded after earlier bound", &Conditional{UploadedAfter: &earlier}, meta, false},
		{"uploaded after later bound fails", &Conditional{UploadedAfter: &later}, meta, true},
		{"uploaded after equal bound fails", &Conditional{UploadedAfter: &uploaded}, meta, true},
		{"time bounds pass on missing object", &Conditional{UploadedBefore: &earlier, UploadedAfter: &later}, nil, false},

		{
			"all clauses must hold",
			&Conditional{ETagMatches: []string{"abc"}, UploadedBefore: &earlier},
			meta,
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fails, conditionFails(tt.cond, tt.meta))
		})
	}
}
