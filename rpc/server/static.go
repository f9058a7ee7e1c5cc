package server

import (
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/patchbay-rpc/patchbay/libs/log"
)

func init() {
	// Extensions the stock mime table does not cover everywhere.
	for ext, typ := range map[string]string{
		".cbor":  "application/cbor",
		".eot":   "application/vnd.ms-fontobject",
		".ico":   "image/vnd.microsoft.icon",
		".ttf":   "font/ttf",
		".txt":   "text/plain",
		".woff":  "font/woff",
		".woff2": "font/woff2",
	} {
		if err := mime.AddExtensionType(ext, typ); err != nil {
			panic(err)
		}
	}
}

const notFoundBody = "No such file or directory.\n"

// staticHandler serves files below a root. It is deliberately plain: no
// directory listings, no redirects, a fixed 404 body, and a cache header on
// every hit. Directory requests resolve to their index.html when one
// exists.
type staticHandler struct {
	root   fs.FS
	maxAge int
	logger log.Logger
}

// NewStaticHandler returns a GET/HEAD file handler rooted at root. Cached
// responses carry a max-age of maxAge seconds.
func NewStaticHandler(root fs.FS, maxAge int, logger log.Logger) http.Handler {
	return &staticHandler{root: root, maxAge: maxAge, logger: logger}
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	// Dot segments are resolved here, so the cleaned name cannot climb out
	// of the root; fs.FS rejects whatever else is left.
	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name == "" {
		name = "."
	}

	f, stat, ok := h.open(name)
	if !ok {
		h.notFound(w, r)
		return
	}
	if stat.IsDir() {
		f.Close()
		name = path.Join(name, "index.html")
		if f, stat, ok = h.open(name); !ok || stat.IsDir() {
			if ok {
				f.Close()
			}
			h.notFound(w, r)
			return
		}
	}
	defer f.Close()

	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = "text/plain"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", fmt.Sprintf("max-age=%d", h.maxAge))
	w.Header().Set("Content-Length", strconv.FormatInt(stat.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		if _, err := io.Copy(w, f); err != nil {
			h.logger.Debug("serving static file", "path", name, "err", err)
		}
	}
}

func (h *staticHandler) open(name string) (fs.File, fs.FileInfo, bool) {
	f, err := h.root.Open(name)
	if err != nil {
		return nil, nil, false
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, false
	}
	return f, stat, true
}

func (h *staticHandler) notFound(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("static resource not found", "path", r.URL.Path)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	if r.Method == http.MethodGet {
		_, _ = io.WriteString(w, notFoundBody)
	}
}
