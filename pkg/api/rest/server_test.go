package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objectsim/pkg/gateway"
	"objectsim/pkg/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	fs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	srv := httptest.NewServer(New(gateway.New(fs)).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doReq(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func decodeError(t *testing.T, resp *http.Response) (code, message string) {
	t.Helper()
	defer resp.Body.Close()
	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e.Code, e.Message
}

func TestServer_PutGetDelete(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := doReq(t, http.MethodPut, srv.URL+"/objects/docs/readme.txt", "hello world", map[string]string{
		"Content-Type": "text/plain",
		"x-meta-owner": "tester",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	assert.True(t, strings.HasPrefix(etag, `"`) && strings.HasSuffix(etag, `"`))
	assert.NotEmpty(t, resp.Header.Get("X-Object-Version"))
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, srv.URL+"/objects/docs/readme.txt", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, etag, resp.Header.Get("ETag"))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "tester", resp.Header.Get("X-Meta-Owner"))
	assert.Equal(t, "hello world", readBody(t, resp))

	resp = doReq(t, http.MethodHead, srv.URL+"/objects/docs/readme.txt", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "11", resp.Header.Get("X-Object-Size"))
	resp.Body.Close()

	resp = doReq(t, http.MethodDelete, srv.URL+"/objects/docs/readme.txt", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, srv.URL+"/objects/docs/readme.txt", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	code, _ := decodeError(t, resp)
	assert.Equal(t, "NoSuchKey", code)
}

func TestServer_RangeRequests(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := doReq(t, http.MethodPut, srv.URL+"/objects/r", "0123456789", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, srv.URL+"/objects/r", "", map[string]string{"Range": "bytes=2-4"})
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 2-4/10", resp.Header.Get("Content-Range"))
	assert.Equal(t, "234", readBody(t, resp))

	resp = doReq(t, http.MethodGet, srv.URL+"/objects/r", "", map[string]string{"Range": "bytes=-3"})
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes 7-9/10", resp.Header.Get("Content-Range"))
	assert.Equal(t, "789", readBody(t, resp))

	resp = doReq(t, http.MethodGet, srv.URL+"/objects/r", "", map[string]string{"Range": "bytes=6-"})
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "6789", readBody(t, resp))

	resp = doReq(t, http.MethodGet, srv.URL+"/objects/r", "", map[string]string{"Range": "bytes=50-60"})
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, srv.URL+"/objects/r", "", map[string]string{"Range": "pages=1-2"})
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_ConditionalRequests(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := doReq(t, http.MethodPut, srv.URL+"/objects/c", "v1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	resp.Body.Close()

	// If-Match with the live etag reads the body.
	resp = doReq(t, http.MethodGet, srv.URL+"/objects/c", "", map[string]string{"If-Match": etag})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v1", readBody(t, resp))

	// If-Match mismatch is a precondition failure, not absence.
	resp = doReq(t, http.MethodGet, srv.URL+"/objects/c", "", map[string]string{"If-Match": `"deadbeef"`})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	resp.Body.Close()

	// Conditional put against a stale etag leaves the object alone.
	resp = doReq(t, http.MethodPut, srv.URL+"/objects/c", "v2", map[string]string{"If-Match": `"deadbeef"`})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, srv.URL+"/objects/c", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v1", readBody(t, resp))

	// If-None-Match against a different etag lets the write through.
	resp = doReq(t, http.MethodPut, srv.URL+"/objects/c", "v2", map[string]string{"If-None-Match": `"deadbeef"`})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_ContentMD5(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	// MD5("payload") = 321c3cf486ed509164edec1e1981fec8
	resp := doReq(t, http.MethodPut, srv.URL+"/objects/k", "payload", map[string]string{
		"Content-MD5": "321c3cf486ed509164edec1e1981fec8",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doReq(t, http.MethodPut, srv.URL+"/objects/k", "different", map[string]string{
		"Content-MD5": "321c3cf486ed509164edec1e1981fec8",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	code, _ := decodeError(t, resp)
	assert.Equal(t, gateway.CodeIntegrityMismatch, code)
}

func TestServer_List(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	for _, k := range []string{"a/b", "a/c", "d"} {
		resp := doReq(t, http.MethodPut, srv.URL+"/objects/"+k, "x", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp := doReq(t, http.MethodGet, srv.URL+"/objects?delimiter=/", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Objects []struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"objects"`
		Truncated         bool     `json:"truncated"`
		Cursor            string   `json:"cursor"`
		DelimitedPrefixes []string `json:"delimitedPrefixes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Objects, 1)
	assert.Equal(t, "d", list.Objects[0].Key)
	assert.Equal(t, []string{"a/"}, list.DelimitedPrefixes)
	assert.False(t, list.Truncated)

	// Pagination over the raw keys.
	resp = doReq(t, http.MethodGet, srv.URL+"/objects?limit=2", "", nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	assert.Len(t, list.Objects, 2)
	assert.True(t, list.Truncated)
	require.NotEmpty(t, list.Cursor)

	resp = doReq(t, http.MethodGet, srv.URL+"/objects?limit=2&cursor="+list.Cursor, "", nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Objects, 1)
	assert.Equal(t, "d", list.Objects[0].Key)
	assert.False(t, list.Truncated)

	resp = doReq(t, http.MethodGet, srv.URL+"/objects?limit=notanumber", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	code, _ := decodeError(t, resp)
	assert.Equal(t, gateway.CodeListLimitInvalid, code)
}

func TestServer_Alarm(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	resp := doReq(t, http.MethodGet, srv.URL+"/alarm", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = doReq(t, http.MethodPut, srv.URL+"/alarm", `{"scheduledTime":"2030-01-02T03:04:05Z"}`, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, srv.URL+"/alarm", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var alarm struct {
		ScheduledTime string `json:"scheduledTime"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&alarm))
	resp.Body.Close()
	assert.Equal(t, "2030-01-02T03:04:05Z", alarm.ScheduledTime)

	resp = doReq(t, http.MethodPut, srv.URL+"/alarm", `{"scheduledTime":"yesterday"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doReq(t, http.MethodDelete, srv.URL+"/alarm", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doReq(t, http.MethodGet, srv.URL+"/alarm", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_ErrorMapping(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	// A key that escapes the root is rejected before any file is touched.
	resp := doReq(t, http.MethodPut, srv.URL+"/objects/"+strings.Repeat("z", 600), "x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	code, _ := decodeError(t, resp)
	assert.Equal(t, gateway.CodeKeyInvalid, code)

	// Writing under an existing key surfaces the namespace conflict.
	resp = doReq(t, http.MethodPut, srv.URL+"/objects/a", "x", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	resp = doReq(t, http.MethodPut, srv.URL+"/objects/a/b", "y", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	code, _ = decodeError(t, resp)
	assert.Equal(t, gateway.CodeNamespaceCollision, code)

	resp = doReq(t, http.MethodGet, srv.URL+"/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = doReq(t, http.MethodPost, srv.URL+"/objects/a", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp.Body.Close()
}
