package httpserver

import (
	"bytes"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"lanshare/internal/fsutil"
)

type entry struct {
	Name  string
	IsDir bool
	Size  int64
	Mtime time.Time
}

// readEntries enumerates the immediate children of dir. Children whose
// metadata cannot be read (vanished or unreadable mid-enumeration) are
// skipped rather than failing the listing.
func (s *Server) readEntries(dir string) []entry {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	out := make([]entry, 0, len(ents))
	for _, e := range ents {
		if s.cfg.HideDotfiles && isHidden(e.Name()) {
			continue
		}
		info, ok := statChild(e)
		if !ok {
			continue
		}
		ent := entry{
			Name:  e.Name(),
			IsDir: info.IsDir(),
			Mtime: info.ModTime(),
		}
		if !ent.IsDir {
			ent.Size = info.Size()
		}
		out = append(out, ent)
	}
	sortEntries(out)
	return out
}

// sortEntries orders directories before files, then case-insensitive name
// ascending. The ordering is part of the listing contract.
func sortEntries(ents []entry) {
	sort.SliceStable(ents, func(i, j int) bool {
		if ents[i].IsDir != ents[j].IsDir {
			return ents[i].IsDir
		}
		return strings.ToLower(ents[i].Name) < strings.ToLower(ents[j].Name)
	})
}

type crumb struct {
	Name string
	Href string
	Last bool
}

type entryView struct {
	Name  string
	Href  string
	IsDir bool
	Size  string
	Mtime string
}

type listingData struct {
	Title      string
	Crumbs     []crumb
	ParentHref string // empty at the share root
	Entries    []entryView
}

func breadcrumbs(rel string) []crumb {
	crumbs := []crumb{{Name: "Home", Href: "/"}}
	if rel == "" {
		crumbs[0].Last = true
		return crumbs
	}
	segs := strings.Split(rel, "/")
	for i := range segs {
		crumbs = append(crumbs, crumb{
			Name: segs[i],
			Href: hrefFor(strings.Join(segs[:i+1], "/"), true),
			Last: i == len(segs)-1,
		})
	}
	return crumbs
}

// serveListing renders the browsable HTML listing for a resolved directory.
// The body is rendered to a buffer first so GET and HEAD emit identical
// headers, Content-Length included.
func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, t fsutil.Target) {
	entries := s.readEntries(t.Abs)
	data := listingData{
		Title:  "/" + t.Rel,
		Crumbs: breadcrumbs(t.Rel),
	}
	if t.Rel != "" {
		data.ParentHref = hrefFor(parentRel(t.Rel), true)
	}
	for _, e := range entries {
		v := entryView{
			Name:  e.Name,
			Href:  hrefFor(joinRel(t.Rel, e.Name), e.IsDir),
			IsDir: e.IsDir,
			Size:  "-",
			Mtime: e.Mtime.Format("2006-01-02 15:04:05"),
		}
		if !e.IsDir {
			v.Size = humanize.IBytes(uint64(e.Size))
		}
		data.Entries = append(data.Entries, v)
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(buf.Bytes())
}
