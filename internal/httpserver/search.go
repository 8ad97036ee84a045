package httpserver

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"lanshare/internal/fsutil"
)

// Search bounds keep a worst-case scan of a huge share from pinning a
// request goroutine forever.
const (
	searchMaxHits  = 500
	searchMaxFiles = 200_000
)

// handleSearch walks the tree breadth-first matching q against full relative
// paths, case-insensitively. Hidden subtrees are scanned after everything
// else so visible hits surface first; symlinked directories are not followed
// (the resolver guards direct access, the walk just avoids loops).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, r, map[string]any{"items": []listItem{}, "seen": 0, "truncated": false})
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

	qlow := strings.ToLower(q)
	hits := make([]listItem, 0, 64)
	var seen int
	var truncated bool

	type node struct {
		abs string
		rel string
	}
	normalQ := []node{{abs: t.Abs, rel: t.Rel}}
	var hiddenQ []node

	for (len(normalQ) > 0 || len(hiddenQ) > 0) && !truncated {
		var n node
		if len(normalQ) > 0 {
			n, normalQ = normalQ[0], normalQ[1:]
		} else {
			n, hiddenQ = hiddenQ[0], hiddenQ[1:]
		}
		if seen++; seen > searchMaxFiles {
			truncated = true
			break
		}
		ents, err := os.ReadDir(n.abs)
		if err != nil {
			continue
		}
		for _, e := range ents {
			if s.cfg.HideDotfiles && isHidden(e.Name()) {
				continue
			}
			if seen++; seen > searchMaxFiles {
				truncated = true
				break
			}
			rel := joinRel(n.rel, e.Name())
			if strings.Contains(strings.ToLower(rel), qlow) {
				info, ok := statChild(e)
				if !ok {
					continue
				}
				hits = append(hits, s.newListItem(n.rel, entry{
					Name:  e.Name(),
					IsDir: e.IsDir(),
					Size:  info.Size(),
					Mtime: info.ModTime(),
				}))
				if len(hits) >= searchMaxHits {
					truncated = true
					break
				}
			}
			if e.IsDir() && e.Type()&os.ModeSymlink == 0 {
				child := node{abs: filepath.Join(n.abs, e.Name()), rel: rel}
				if isHidden(e.Name()) {
					hiddenQ = append(hiddenQ, child)
				} else {
					normalQ = append(normalQ, child)
				}
			}
		}
	}

	writeJSON(w, r, map[string]any{
		"items":     hits,
		"seen":      seen,
		"truncated": truncated,
	})
}
