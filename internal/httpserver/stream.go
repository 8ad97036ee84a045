package httpserver

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"

	"golang.org/x/time/rate"

	"lanshare/internal/fsutil"
)

const copyBufSize = 64 << 10

// serveFile streams a resolved regular file with an exact Content-Length.
// Size is taken from the opened handle, not the resolver's earlier stat, so
// a file swapped between resolve and open cannot produce a length the body
// will not fulfil.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, t fsutil.Target) {
	f, err := os.Open(t.Abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "not found", http.StatusNotFound)
		} else {
			http.Error(w, "read failed", http.StatusInternalServerError)
		}
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil || !st.Mode().IsRegular() {
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeForName(st.Name()))
	w.Header().Set("Content-Length", strconv.FormatInt(st.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	// A mid-stream failure leaves the response short of its declared length;
	// returning without finishing makes net/http drop the connection, which
	// is the only honest signal left at this point.
	_ = s.copyBody(r.Context(), w, f)
}

// copyBody streams src to dst in fixed-size chunks, honoring context
// cancellation (client disconnect) and the optional bandwidth throttle.
// Nothing is ever buffered beyond one chunk.
func (s *Server) copyBody(ctx context.Context, dst io.Writer, src io.Reader) error {
	var lim *rate.Limiter
	if bps := s.cfg.ThrottleBytesPerSec; bps > 0 {
		burst := bps
		if burst < copyBufSize {
			burst = copyBufSize
		}
		lim = rate.NewLimiter(rate.Limit(bps), burst)
	}

	buf := make([]byte, copyBufSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if lim != nil {
				if err := lim.WaitN(ctx, n); err != nil {
					return err
				}
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
