package httpserver

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanshare/internal/config"
	"lanshare/internal/fsutil"
)

func newTestServer(t *testing.T, cfg config.Config) (http.Handler, string) {
	t.Helper()
	root, err := fsutil.CanonicalRoot(t.TempDir())
	require.NoError(t, err)
	srv, err := New(Options{Config: cfg, Root: root})
	require.NoError(t, err)
	return srv.Handler(), root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestFileResponse(t *testing.T) {
	h, root := newTestServer(t, config.Config{})
	body := strings.Repeat("x", 42)
	writeFile(t, root, "docs/readme.txt", body)

	rec := do(h, http.MethodGet, "/docs/readme.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", rec.Header().Get("Content-Length"))
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, body, rec.Body.String())
}

func TestUnknownExtensionFallsBackToBinary(t *testing.T) {
	h, root := newTestServer(t, config.Config{})
	writeFile(t, root, "blob.weird", "\x00\x01\x02")

	rec := do(h, http.MethodGet, "/blob.weird")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
}

func TestMissingFile(t *testing.T) {
	h, _ := newTestServer(t, config.Config{})
	rec := do(h, http.MethodGet, "/missing-file.txt")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDotDotIsRejectedNotRedirected(t *testing.T) {
	h, _ := newTestServer(t, config.Config{})
	for _, target := range []string{"/../etc/passwd", "/a/../b", "/.."} {
		rec := do(h, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "target %q", target)
	}
}

func TestNullByteRejected(t *testing.T) {
	h, _ := newTestServer(t, config.Config{})
	rec := do(h, http.MethodGet, "/a%00b")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSymlinkEscapeRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	h, root := newTestServer(t, config.Config{})
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "passwd"), []byte("root:x"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))

	rec := do(h, http.MethodGet, "/escape/passwd")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h, root := newTestServer(t, config.Config{})
	writeFile(t, root, "docs/readme.txt", "hi")

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, "PROPPATCH"} {
		rec := do(h, method, "/docs/readme.txt")
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code, "method %s", method)
		assert.Equal(t, "GET, HEAD", rec.Header().Get("Allow"))
	}
}

func TestHeadMatchesGet(t *testing.T) {
	h, root := newTestServer(t, config.Config{})
	writeFile(t, root, "data.bin", "0123456789")
	writeFile(t, root, "docs/a.txt", "a")

	for _, target := range []string{"/data.bin", "/docs", "/", "/api/list?path=docs", "/api/search?q=a"} {
		get := do(h, http.MethodGet, target)
		head := do(h, http.MethodHead, target)
		require.Equal(t, get.Code, head.Code, "target %q", target)
		assert.Equal(t, get.Header().Get("Content-Type"), head.Header().Get("Content-Type"))
		assert.Equal(t, get.Header().Get("Content-Length"), head.Header().Get("Content-Length"))
		assert.Zero(t, head.Body.Len(), "HEAD body must be empty for %q", target)
	}
}

func TestListingOrderAndLinks(t *testing.T) {
	h, root := newTestServer(t, config.Config{})
	writeFile(t, root, "docs/Zed/keep", "")
	writeFile(t, root, "docs/beta/keep", "")
	writeFile(t, root, "docs/Banana.txt", "bb")
	writeFile(t, root, "docs/apple.txt", "aa")

	rec := do(h, http.MethodGet, "/docs")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	// directories first, then files, case-insensitive within each group
	iBeta := strings.Index(body, "beta")
	iZed := strings.Index(body, "Zed")
	iApple := strings.Index(body, "apple.txt")
	iBanana := strings.Index(body, "Banana.txt")
	require.True(t, iBeta >= 0 && iZed >= 0 && iApple >= 0 && iBanana >= 0)
	assert.Less(t, iBeta, iZed)
	assert.Less(t, iZed, iApple)
	assert.Less(t, iApple, iBanana)

	// parent link in a subdirectory, directory links keep a trailing slash
	assert.Contains(t, body, `href="/"`)
	assert.Contains(t, body, `href="/docs/beta/"`)
	assert.Contains(t, body, `href="/docs/apple.txt"`)

	// never at the share root
	rootBody := do(h, http.MethodGet, "/").Body.String()
	assert.NotContains(t, rootBody, "📁 ..")
}

func TestListingEscapesNames(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("name not representable on windows")
	}
	h, root := newTestServer(t, config.Config{})
	writeFile(t, root, `a<b&c.txt`, "x")

	body := do(h, http.MethodGet, "/").Body.String()
	assert.Contains(t, body, "a&lt;b&amp;c.txt")
	assert.NotContains(t, body, "<b&c.txt")
}

func TestHiddenEntriesSwitch(t *testing.T) {
	hShow, root := newTestServer(t, config.Config{})
	writeFile(t, root, ".hidden.txt", "h")
	writeFile(t, root, "plain.txt", "p")
	body := do(hShow, http.MethodGet, "/").Body.String()
	assert.Contains(t, body, ".hidden.txt")

	hHide, root2 := newTestServer(t, config.Config{HideDotfiles: true})
	writeFile(t, root2, ".hidden.txt", "h")
	writeFile(t, root2, "plain.txt", "p")
	body = do(hHide, http.MethodGet, "/").Body.String()
	assert.NotContains(t, body, ".hidden.txt")
	assert.Contains(t, body, "plain.txt")

	// hiding affects listings, not direct resolution
	rec := do(hHide, http.MethodGet, "/.hidden.txt")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz(t *testing.T) {
	h, _ := newTestServer(t, config.Config{})
	rec := do(h, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestAPIList(t *testing.T) {
	h, root := newTestServer(t, config.Config{})
	writeFile(t, root, "docs/sub/keep", "")
	writeFile(t, root, "docs/b.txt", "bb")

	rec := do(h, http.MethodGet, "/api/list?path=docs")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var got struct {
		Path  string     `json:"path"`
		Items []listItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "docs", got.Path)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "sub", got.Items[0].Name)
	assert.True(t, got.Items[0].IsDir)
	assert.Equal(t, "b.txt", got.Items[1].Name)
	assert.EqualValues(t, 2, got.Items[1].Size)
	assert.Equal(t, "docs/b.txt", got.Items[1].Path)

	// traversal via the query parameter cleans down to an in-root miss
	rec = do(h, http.MethodGet, "/api/list?path=../../etc")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// listing a file is a bad request
	rec = do(h, http.MethodGet, "/api/list?path=docs/b.txt")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPISearch(t *testing.T) {
	h, root := newTestServer(t, config.Config{})
	writeFile(t, root, "music/albums/Dark Side.flac", "pink")
	writeFile(t, root, "music/other.txt", "x")

	rec := do(h, http.MethodGet, "/api/search?q=dark")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Items     []listItem `json:"items"`
		Seen      int        `json:"seen"`
		Truncated bool       `json:"truncated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "music/albums/Dark Side.flac", got.Items[0].Path)
	assert.False(t, got.Truncated)
	assert.Positive(t, got.Seen)

	// empty query returns an empty result, not an error
	rec = do(h, http.MethodGet, "/api/search")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got.Items)
}

func TestThrottledDownloadStillCompletes(t *testing.T) {
	h, root := newTestServer(t, config.Config{ThrottleBytesPerSec: 10 << 20})
	payload := strings.Repeat("y", 200<<10)
	writeFile(t, root, "big.bin", payload)

	rec := do(h, http.MethodGet, "/big.bin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, strconv.Itoa(len(payload)), rec.Header().Get("Content-Length"))
	assert.Equal(t, payload, rec.Body.String())
}

func TestThumb(t *testing.T) {
	h, root := newTestServer(t, config.Config{EnableThumbs: true})

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	abs := filepath.Join(root, "pic.png")
	f, err := os.Create(abs)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	writeFile(t, root, "notes.txt", "n")

	rec := do(h, http.MethodGet, "/thumb?path=pic.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Positive(t, rec.Body.Len())

	rec = do(h, http.MethodGet, "/thumb?path=notes.txt")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// disabled by default: falls through to tree resolution
	hOff, _ := newTestServer(t, config.Config{})
	rec = do(hOff, http.MethodGet, "/thumb?path=pic.png")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDAVReadOnly(t *testing.T) {
	h, root := newTestServer(t, config.Config{EnableDAV: true})
	writeFile(t, root, "doc.txt", "dav")

	rec := do(h, http.MethodGet, "/dav/doc.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dav", rec.Body.String())

	for _, method := range []string{"PUT", "DELETE", "MKCOL", "MOVE", "COPY", "LOCK"} {
		rec := do(h, method, "/dav/doc.txt")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "method %s", method)
	}
}

func TestDAVSymlinkEscapeRejected(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	h, root := newTestServer(t, config.Config{EnableDAV: true})
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "passwd"), []byte("root:x"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))

	// The DAV view holds the same containment line as the tree routes: a
	// symlink out of the root never serves bytes.
	for _, target := range []string{"/dav/escape/passwd", "/dav/escape"} {
		rec := do(h, http.MethodGet, target)
		require.NotEqual(t, http.StatusOK, rec.Code, "target %q", target)
		assert.NotContains(t, rec.Body.String(), "root:x")
	}

	// symlinks resolving inside the root still serve
	writeFile(t, root, "real.txt", "inside")
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "alias.txt")))
	rec := do(h, http.MethodGet, "/dav/alias.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inside", rec.Body.String())
}

func TestDAVFSRefusesWrites(t *testing.T) {
	_, root := newTestServer(t, config.Config{EnableDAV: true})
	d := davFS{root: root}
	ctx := context.Background()

	_, err := d.OpenFile(ctx, "/new.txt", os.O_CREATE|os.O_WRONLY, 0o644)
	require.ErrorIs(t, err, os.ErrPermission)
	require.ErrorIs(t, d.Mkdir(ctx, "/sub", 0o755), os.ErrPermission)
	require.ErrorIs(t, d.RemoveAll(ctx, "/"), os.ErrPermission)
	require.ErrorIs(t, d.Rename(ctx, "/a", "/b"), os.ErrPermission)
}
