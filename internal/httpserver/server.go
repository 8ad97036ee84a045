package httpserver

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/net/webdav"

	"lanshare/internal/config"
	"lanshare/internal/fsutil"
)

// Server serves one directory tree read-only over HTTP. The share root in
// Options must already be canonical (see fsutil.CanonicalRoot); it is the
// trust boundary every request path is resolved against.
type Server struct {
	cfg  config.Config
	root string
	tmpl *template.Template
	dav  http.Handler
}

type Options struct {
	Config config.Config
	// Root is the canonicalized share root.
	Root string
}

//go:embed web/listing.html
var embeddedWeb embed.FS

func New(opts Options) (*Server, error) {
	tmpl, err := template.ParseFS(embeddedWeb, "web/listing.html")
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:  opts.Config,
		root: opts.Root,
		tmpl: tmpl,
	}
	if opts.Config.EnableDAV {
		s.dav = &webdav.Handler{
			Prefix:     "/dav",
			FileSystem: davFS{root: opts.Root},
			LockSystem: webdav.NewMemLS(),
		}
	}
	return s, nil
}

// Handler returns the full request router. Fixed endpoints are dispatched by
// hand rather than through a ServeMux: the mux canonicalizes ".." out of
// request paths with a redirect, and those paths must reach the resolver so
// they can be rejected with 400.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/healthz":
			s.handleHealthz(w, r)
		case r.URL.Path == "/api/list":
			s.handleList(w, r)
		case r.URL.Path == "/api/search":
			s.handleSearch(w, r)
		case r.URL.Path == "/thumb" && s.cfg.EnableThumbs:
			s.handleThumb(w, r)
		case s.dav != nil && (r.URL.Path == "/dav" || strings.HasPrefix(r.URL.Path, "/dav/")):
			s.handleDAV(w, r)
		default:
			s.handleTree(w, r)
		}
	})
}

// handleTree is the state machine for one tree request:
// received -> resolved{dir|file|missing|invalid} -> responded.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	t := fsutil.Resolve(s.root, r.URL.Path)
	switch t.Kind {
	case fsutil.Dir:
		s.serveListing(w, r, t)
	case fsutil.File:
		s.serveFile(w, r, t)
	case fsutil.Missing:
		http.Error(w, "not found", http.StatusNotFound)
	default:
		// No detail in the body: confirming why a path was rejected would
		// leak layout outside the share root.
		http.Error(w, "bad path", http.StatusBadRequest)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

// handleDAV exposes the share to WebDAV clients, read methods only. Write
// methods are refused before the webdav handler sees them.
func (s *Server) handleDAV(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET", "HEAD", "OPTIONS", "PROPFIND":
		s.dav.ServeHTTP(w, r)
	default:
		w.Header().Set("Allow", "GET, HEAD, OPTIONS, PROPFIND")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// resolveQueryPath resolves the ?path= form used by the API endpoints
// through the same resolver as tree requests.
func (s *Server) resolveQueryPath(r *http.Request) fsutil.Target {
	rel := fsutil.CleanRelPath(r.URL.Query().Get("path"))
	return fsutil.Resolve(s.root, "/"+rel)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	t := s.resolveQueryPath(r)
	switch t.Kind {
	case fsutil.Dir:
	case fsutil.Missing:
		http.Error(w, "not found", http.StatusNotFound)
		return
	default:
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}

	entries := s.readEntries(t.Abs)
	items := make([]listItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, s.newListItem(t.Rel, e))
	}
	writeJSON(w, r, map[string]any{
		"path":  t.Rel,
		"items": items,
	})
}

type listItem struct {
	Name  string `json:"name"`
	Path  string `json:"path"` // rel
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
	Mtime int64  `json:"mtime"`
	Mime  string `json:"mime,omitempty"`
	Thumb string `json:"thumb,omitempty"`
}

func (s *Server) newListItem(parentRel string, e entry) listItem {
	it := listItem{
		Name:  e.Name,
		Path:  joinRel(parentRel, e.Name),
		IsDir: e.IsDir,
		Size:  e.Size,
		Mtime: e.Mtime.Unix(),
	}
	if !it.IsDir {
		it.Mime = contentTypeForName(e.Name)
		if s.cfg.EnableThumbs && isImageExt(strings.ToLower(filepath.Ext(e.Name))) {
			it.Thumb = "/thumb?path=" + url.QueryEscape(it.Path)
		}
	}
	return it
}

// --- helpers ---

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// hrefFor builds a root-absolute link for a child of the tree, escaping each
// segment. Directory links get a trailing slash.
func hrefFor(rel string, isDir bool) string {
	if rel == "" {
		return "/"
	}
	segs := strings.Split(rel, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	h := "/" + strings.Join(segs, "/")
	if isDir {
		h += "/"
	}
	return h
}

// writeJSON renders to a buffer first so GET and HEAD emit identical
// headers, Content-Length included, like the tree routes do.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(buf.Bytes())
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	default:
		return false
	}
}

// contentTypeForName maps a filename extension to a Content-Type. Unknown
// extensions fall back to a generic binary type rather than sniffing.
func contentTypeForName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
	}
	// Fallbacks for systems with sparse mime tables.
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".pdf":
		return "application/pdf"
	case ".txt", ".log", ".md", ".json", ".yaml", ".yml", ".toml", ".ini", ".cfg", ".conf", ".go", ".py", ".rs", ".c", ".h", ".sh", ".css", ".js", ".html":
		return "text/plain; charset=utf-8"
	case ".zip":
		return "application/zip"
	case ".tar":
		return "application/x-tar"
	case ".gz":
		return "application/gzip"
	default:
		return "application/octet-stream"
	}
}

// parentRel returns the relative path one level up, "" for a child of the
// root.
func parentRel(rel string) string {
	p := path.Dir(rel)
	if p == "." || p == "/" {
		return ""
	}
	return p
}

// statChild is split out so listing enumeration can skip children that
// vanish or become unreadable mid-walk without failing the whole listing.
func statChild(e fs.DirEntry) (os.FileInfo, bool) {
	info, err := e.Info()
	if err != nil {
		return nil, false
	}
	return info, true
}
