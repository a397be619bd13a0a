// Package rest maps the gateway operations onto a small HTTP surface. The
// gateway itself defines no wire format; this layer exists for the simulator
// processes that talk to the store over localhost.
package rest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"objectsim/pkg/gateway"
)

// Server routes object-store requests onto a Gateway.
// Dependencies are injected for testability.
type Server struct {
	gw *gateway.Gateway
}

// New returns a new REST API server over gw.
func New(gw *gateway.Gateway) *Server { return &Server{gw: gw} }

// Handler returns an http.Handler for the object routes.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.route)
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/objects" || r.URL.Path == "/objects/":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "listing only supports GET")
			return
		}
		s.handleList(w, r)
	case strings.HasPrefix(r.URL.Path, "/objects/"):
		key := strings.TrimPrefix(r.URL.Path, "/objects/")
		s.handleObject(w, r, key)
	case r.URL.Path == "/alarm":
		s.handleAlarm(w, r)
	default:
		writeError(w, http.StatusNotFound, "NoSuchRoute", "unknown route")
	}
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request, key string) {
	switch r.Method {
	case http.MethodPut:
		s.handlePut(w, r, key)
	case http.MethodGet:
		s.handleGet(w, r, key)
	case http.MethodHead:
		s.handleHead(w, r, key)
	case http.MethodDelete:
		if err := s.gw.Delete(r.Context(), key); err != nil {
			writeGatewayError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "unsupported object method")
	}
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, key string) {
	opts := &gateway.PutOptions{
		OnlyIf:         conditionalFromHeaders(r.Header),
		HTTPMetadata:   httpMetadataFromHeaders(r.Header),
		CustomMetadata: customMetadataFromHeaders(r.Header),
	}
	if md5hex := r.Header.Get("Content-MD5"); md5hex != "" {
		opts.Digest = gateway.Digest{Hex: md5hex}
	}
	meta, err := s.gw.Put(r.Context(), key, gateway.StreamPayload{Reader: r.Body}, opts)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	if meta == nil {
		writeError(w, http.StatusPreconditionFailed, "PreconditionFailed", "the specified precondition was not met")
		return
	}
	writeMetadataHeaders(w, meta)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, key string) {
	opts := &gateway.GetOptions{OnlyIf: conditionalFromHeaders(r.Header)}
	rng, ok := parseRange(r.Header.Get("Range"))
	if !ok {
		writeError(w, http.StatusRequestedRangeNotSatisfiable, "RangeNotSatisfiable", "the requested range cannot be parsed")
		return
	}
	opts.Range = rng

	obj, err := s.gw.Get(r.Context(), key, opts)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	if obj == nil {
		writeError(w, http.StatusNotFound, "NoSuchKey", "the specified key does not exist")
		return
	}
	writeMetadataHeaders(w, &obj.Metadata)
	if !obj.HasBody() {
		if opts.OnlyIf != nil && obj.Size > 0 {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Body)))
	if rng != nil {
		off := int64(0)
		if rng.Suffix != nil {
			off = obj.Size - int64(len(obj.Body))
		} else if rng.Offset != nil {
			off = *rng.Offset
		}
		w.Header().Set("Content-Range",
			"bytes "+strconv.FormatInt(off, 10)+"-"+strconv.FormatInt(off+int64(len(obj.Body))-1, 10)+
				"/"+strconv.FormatInt(obj.Size, 10))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_, _ = w.Write(obj.Body)
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request, key string) {
	meta, err := s.gw.Head(r.Context(), key)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	if meta == nil {
		writeError(w, http.StatusNotFound, "NoSuchKey", "the specified key does not exist")
		return
	}
	writeMetadataHeaders(w, meta)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := &gateway.ListOptions{
		Prefix:    q.Get("prefix"),
		Cursor:    q.Get("cursor"),
		Delimiter: q.Get("delimiter"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, gateway.CodeListLimitInvalid, "limit must be an integer")
			return
		}
		opts.Limit = n
	}
	for _, inc := range strings.Split(q.Get("include"), ",") {
		switch strings.TrimSpace(inc) {
		case "httpMetadata":
			opts.Include.HTTPMetadata = true
		case "customMetadata":
			opts.Include.CustomMetadata = true
		}
	}
	res, err := s.gw.List(r.Context(), opts)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(listResponse{
		Objects:           res.Objects,
		Truncated:         res.Truncated,
		Cursor:            res.Cursor,
		DelimitedPrefixes: res.DelimitedPrefixes,
	})
}

func (s *Server) handleAlarm(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		t, err := s.gw.GetAlarm(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Internal", err.Error())
			return
		}
		if t == nil {
			writeError(w, http.StatusNotFound, "NoAlarm", "no alarm is scheduled")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(alarmResponse{ScheduledTime: t.Format(time.RFC3339Nano)})
	case http.MethodPut:
		var req alarmResponse
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "OptionInvalid", "malformed alarm body")
			return
		}
		t, err := time.Parse(time.RFC3339Nano, req.ScheduledTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "OptionInvalid", "scheduledTime must be RFC 3339")
			return
		}
		if err := s.gw.SetAlarm(r.Context(), t); err != nil {
			writeError(w, http.StatusInternalServerError, "Internal", err.Error())
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		if err := s.gw.DeleteAlarm(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "Internal", err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "unsupported alarm method")
	}
}

type listResponse struct {
	Objects           []gateway.Metadata `json:"objects"`
	Truncated         bool               `json:"truncated"`
	Cursor            string             `json:"cursor,omitempty"`
	DelimitedPrefixes []string           `json:"delimitedPrefixes"`
}

type alarmResponse struct {
	ScheduledTime string `json:"scheduledTime"`
}

// conditionalFromHeaders lifts HTTP conditional headers into the gateway's
// predicate bag. If-Unmodified-Since bounds the upload time from above
// (uploadedBefore); If-Modified-Since bounds it from below.
func conditionalFromHeaders(h http.Header) *gateway.Conditional {
	var c gateway.Conditional
	any := false
	if v := h.Get("If-Match"); v != "" {
		c.ETagMatches = splitETags(v)
		any = true
	}
	if v := h.Get("If-None-Match"); v != "" {
		c.ETagDoesNotMatch = splitETags(v)
		any = true
	}
	if v := h.Get("If-Unmodified-Since"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			c.UploadedBefore = &t
			any = true
		}
	}
	if v := h.Get("If-Modified-Since"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			c.UploadedAfter = &t
			any = true
		}
	}
	if !any {
		return nil
	}
	return &c
}

func splitETags(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func httpMetadataFromHeaders(h http.Header) *gateway.HTTPMetadata {
	m := gateway.HTTPMetadata{
		ContentType:        h.Get("Content-Type"),
		ContentEncoding:    h.Get("Content-Encoding"),
		ContentDisposition: h.Get("Content-Disposition"),
		ContentLanguage:    h.Get("Content-Language"),
		CacheControl:       h.Get("Cache-Control"),
	}
	if v := h.Get("Expires"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			m.CacheExpiry = &t
		}
	}
	if m == (gateway.HTTPMetadata{}) {
		return nil
	}
	return &m
}

// customMetadataFromHeaders collects x-meta-* headers as user metadata.
func customMetadataFromHeaders(h http.Header) map[string]string {
	var out map[string]string
	for name, vals := range h {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, "x-meta-") || len(vals) == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[strings.TrimPrefix(lower, "x-meta-")] = vals[0]
	}
	return out
}

func writeMetadataHeaders(w http.ResponseWriter, meta *gateway.Metadata) {
	h := w.Header()
	h.Set("ETag", meta.HTTPETag)
	h.Set("Last-Modified", meta.Uploaded.UTC().Format(http.TimeFormat))
	h.Set("X-Object-Version", meta.Version)
	h.Set("X-Object-Size", strconv.FormatInt(meta.Size, 10))
	hm := meta.HTTPMetadata
	if hm.ContentType != "" {
		h.Set("Content-Type", hm.ContentType)
	}
	if hm.ContentEncoding != "" {
		h.Set("Content-Encoding", hm.ContentEncoding)
	}
	if hm.ContentDisposition != "" {
		h.Set("Content-Disposition", hm.ContentDisposition)
	}
	if hm.ContentLanguage != "" {
		h.Set("Content-Language", hm.ContentLanguage)
	}
	if hm.CacheControl != "" {
		h.Set("Cache-Control", hm.CacheControl)
	}
	if hm.CacheExpiry != nil {
		h.Set("Expires", hm.CacheExpiry.UTC().Format(http.TimeFormat))
	}
	for k, v := range meta.CustomMetadata {
		h.Set("x-meta-"+k, v)
	}
}

// parseRange parses a Range header of form "bytes=start-end" (single-range
// only) into a gateway RangeSpec. An absent header yields (nil, true).
func parseRange(hdr string) (*gateway.RangeSpec, bool) {
	if hdr == "" {
		return nil, true
	}
	const prefix = "bytes="
	if !strings.HasPrefix(hdr, prefix) {
		return nil, false
	}
	seg := strings.TrimSpace(strings.SplitN(strings.TrimPrefix(hdr, prefix), ",", 2)[0])
	se := strings.SplitN(seg, "-", 2)
	if len(se) != 2 {
		return nil, false
	}
	// three cases: start-, -suffixLen, start-end
	if se[0] == "" {
		suf, err := strconv.ParseInt(se[1], 10, 64)
		if err != nil {
			return nil, false
		}
		return &gateway.RangeSpec{Suffix: &suf}, true
	}
	start, err := strconv.ParseInt(se[0], 10, 64)
	if err != nil {
		return nil, false
	}
	if se[1] == "" {
		return &gateway.RangeSpec{Offset: &start}, true
	}
	end, err := strconv.ParseInt(se[1], 10, 64)
	if err != nil || end < start {
		return nil, false
	}
	length := end - start + 1
	return &gateway.RangeSpec{Offset: &start, Length: &length}, true
}

// errorResponse is the JSON error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message})
}

func writeGatewayError(w http.ResponseWriter, err error) {
	writeError(w, gateway.StatusOf(err), gateway.CodeOf(err), err.Error())
}
