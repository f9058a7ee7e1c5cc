package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/patchbay-rpc/patchbay/libs/log"
)

func newStaticFixture(t *testing.T) http.Handler {
	t.Helper()
	root := fstest.MapFS{
		"index.html":      {Data: []byte("<html>home</html>")},
		"docs/guide.html": {Data: []byte("<html>guide</html>")},
		"data/frame.cbor": {Data: []byte{0xa0}},
		"notes.txt":       {Data: []byte("plain notes")},
		"LICENSE":         {Data: []byte("license text")},
		"bare/file.bin":   {Data: []byte{0x01}},
	}
	return NewStaticHandler(root, 3600, log.NewTestingLogger(t))
}

func TestStaticHandler(t *testing.T) {
	h := newStaticFixture(t)

	testCases := []struct {
		name        string
		path        string
		wantStatus  int
		wantType    string
		wantBody    string
		wantMissing bool
	}{
		{
			name:       "plain file",
			path:       "/notes.txt",
			wantStatus: http.StatusOK,
			wantType:   "text/plain; charset=utf-8",
			wantBody:   "plain notes",
		},
		{
			name:       "unknown extension falls back to text",
			path:       "/LICENSE",
			wantStatus: http.StatusOK,
			wantType:   "text/plain",
			wantBody:   "license text",
		},
		{
			name:       "html file",
			path:       "/docs/guide.html",
			wantStatus: http.StatusOK,
			wantType:   "text/html; charset=utf-8",
			wantBody:   "<html>guide</html>",
		},
		{
			name:       "cbor file",
			path:       "/data/frame.cbor",
			wantStatus: http.StatusOK,
			wantType:   "application/cbor",
			wantBody:   "\xa0",
		},
		{
			name:       "root resolves to index.html",
			path:       "/",
			wantStatus: http.StatusOK,
			wantType:   "text/html; charset=utf-8",
			wantBody:   "<html>home</html>",
		},
		{
			name:        "directory without index",
			path:        "/bare",
			wantStatus:  http.StatusNotFound,
			wantMissing: true,
		},
		{
			name:        "missing file",
			path:        "/nope.txt",
			wantStatus:  http.StatusNotFound,
			wantMissing: true,
		},
		{
			name:        "traversal is confined to the root",
			path:        "/../../etc/passwd",
			wantStatus:  http.StatusNotFound,
			wantMissing: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			h.ServeHTTP(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantMissing {
				require.Equal(t, notFoundBody, rec.Body.String())
				return
			}
			require.Equal(t, tc.wantType, rec.Header().Get("Content-Type"))
			require.Equal(t, "max-age=3600", rec.Header().Get("Cache-Control"))
			require.Equal(t, tc.wantBody, rec.Body.String())
		})
	}
}

func TestStaticHandlerHead(t *testing.T) {
	h := newStaticFixture(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodHead, "/notes.txt", nil)
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "11", rec.Header().Get("Content-Length"))
	require.Empty(t, rec.Body.String())
}

func TestStaticHandlerMethodNotAllowed(t *testing.T) {
	h := newStaticFixture(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/notes.txt", strings.NewReader("x"))
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "GET, HEAD", rec.Header().Get("Allow"))
}

func TestStaticHandlerServesThroughServer(t *testing.T) {
	srv := httptest.NewServer(newStaticFixture(t))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/docs/guide.html")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html>guide</html>", string(body))
	require.Equal(t, "max-age=3600", resp.Header.Get("Cache-Control"))
}
