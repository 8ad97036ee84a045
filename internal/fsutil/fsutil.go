package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Kind classifies the outcome of resolving a request path against the
// share root.
type Kind int

const (
	// Invalid covers malformed paths, traversal attempts, out-of-root
	// symlink targets and entries that are neither regular files nor
	// directories.
	Invalid Kind = iota
	// Missing means nothing exists at the resolved location.
	Missing
	Dir
	File
)

func (k Kind) String() string {
	switch k {
	case Missing:
		return "missing"
	case Dir:
		return "dir"
	case File:
		return "file"
	default:
		return "invalid"
	}
}

// Target is a resolved request path. Abs and Info are only set for Dir and
// File targets; Abs is canonical and guaranteed to sit at or below the root
// it was resolved against.
type Target struct {
	Kind Kind
	Abs  string
	Rel  string // clean slash-separated path under the root, "" for the root itself
	Info os.FileInfo
}

// CleanRelPath takes a user path like "", ".", "/a/b", "a//b", and returns a
// safe, slash-based, no-leading-slash relative path ("" means root).
func CleanRelPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "." || p == "/" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p) // force absolute for stable cleaning
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// Resolve maps a raw, untrusted URL path onto the canonicalized share root.
//
// Any ".." segment is rejected outright before touching the filesystem; the
// surviving segments are joined onto the root and canonicalized with
// EvalSymlinks, so a symlink pointing outside the root can never produce an
// out-of-root target. Out-of-root results come back Invalid rather than
// Missing so their existence is never confirmed to the client.
func Resolve(rootAbs, rawPath string) Target {
	if strings.IndexByte(rawPath, 0) >= 0 {
		return Target{Kind: Invalid}
	}
	rawPath = strings.ReplaceAll(rawPath, "\\", "/")

	var segs []string
	for _, s := range strings.Split(rawPath, "/") {
		switch s {
		case "", ".":
			// repeated or trailing separators, no-op segments
		case "..":
			return Target{Kind: Invalid}
		default:
			segs = append(segs, s)
		}
	}
	rel := strings.Join(segs, "/")

	candidate := rootAbs
	if rel != "" {
		candidate = filepath.Join(rootAbs, filepath.FromSlash(rel))
	}
	canon, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Target{Kind: Missing, Rel: rel}
		}
		return Target{Kind: Invalid, Rel: rel}
	}
	if canon != rootAbs && !strings.HasPrefix(canon, rootAbs+string(filepath.Separator)) {
		return Target{Kind: Invalid, Rel: rel}
	}

	// The filesystem may have changed since canonicalization; stat failures
	// here degrade to Missing/Invalid, never to a panic or a stale answer.
	st, err := os.Stat(canon)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Target{Kind: Missing, Rel: rel}
		}
		return Target{Kind: Invalid, Rel: rel}
	}
	switch {
	case st.IsDir():
		return Target{Kind: Dir, Abs: canon, Rel: rel, Info: st}
	case st.Mode().IsRegular():
		return Target{Kind: File, Abs: canon, Rel: rel, Info: st}
	default:
		// sockets, devices, fifos are not servable
		return Target{Kind: Invalid, Rel: rel}
	}
}

// CanonicalRoot validates and canonicalizes the share root at startup. The
// returned path is the trust boundary every later Resolve call checks
// against.
func CanonicalRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("abs root: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	st, err := os.Stat(canon)
	if err != nil {
		return "", fmt.Errorf("stat root: %w", err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("root %s is not a directory", canon)
	}
	return canon, nil
}
