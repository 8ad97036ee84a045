package accesslog

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
)

// Wrap returns h with per-request access logging. Exactly one record is
// written per request, after the status is determined, for successes and
// failures alike. Sink write errors are swallowed: logging is best-effort
// and never fails the response.
func Wrap(sink io.Writer, h http.Handler) http.Handler {
	return handlers.CustomLoggingHandler(sink, h, writeRecord)
}

func writeRecord(w io.Writer, p handlers.LogFormatterParams) {
	uri := p.Request.RequestURI
	if uri == "" {
		uri = p.URL.RequestURI()
	}
	host, _, err := net.SplitHostPort(p.Request.RemoteAddr)
	if err != nil {
		host = p.Request.RemoteAddr
	}
	_, _ = fmt.Fprintf(w, "%s %s %s %q %d %d\n",
		p.TimeStamp.Format(time.RFC3339), host, p.Request.Method, uri, p.StatusCode, p.Size)
}

// OpenSink opens the access-log destination. An empty path means stderr.
// File sinks are opened append-only so concurrent single-write appends from
// in-flight requests stay intact.
func OpenSink(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stderr}, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
