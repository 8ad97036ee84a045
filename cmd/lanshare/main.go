package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lanshare/internal/accesslog"
	"lanshare/internal/config"
	"lanshare/internal/fsutil"
	"lanshare/internal/httpserver"
	"lanshare/internal/netutil"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		addr     = flag.String("addr", "", "listen address (default "+config.DefaultAddr+")")
		root     = flag.String("root", "", "share root (required if -config is not set)")
		logFile  = flag.String("log", "", "access log file (default: stderr)")
		cfgPath  = flag.String("config", "", "path to config json (optional)")
		hideDot  = flag.Bool("hide-dotfiles", false, "exclude dot-prefixed entries from listings")
		throttle = flag.Int("throttle", 0, "per-download bandwidth cap in bytes/sec (0 = off)")
		dav      = flag.Bool("dav", false, "expose the share read-only at /dav/")
		thumbs   = flag.Bool("thumbs", false, "serve image thumbnails at /thumb")
		showQR   = flag.Bool("qr", true, "print a QR code for the share URL at startup")
	)
	flag.Parse()

	var cfg config.Config
	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			log.Fatalf("read config: %v", err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			log.Fatalf("parse config: %v", err)
		}
	}
	// Flags win over the config file.
	if *root != "" {
		cfg.Root = *root
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if *hideDot {
		cfg.HideDotfiles = true
	}
	if *throttle > 0 {
		cfg.ThrottleBytesPerSec = *throttle
	}
	if *dav {
		cfg.EnableDAV = true
	}
	if *thumbs {
		cfg.EnableThumbs = true
	}
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultAddr
	}
	if strings.TrimSpace(cfg.Root) == "" {
		log.Fatalf("missing -root (or provide -config)")
	}

	// The only fatal condition: the share root must exist and be a
	// directory. The canonical form is fixed here for the process lifetime.
	rootAbs, err := fsutil.CanonicalRoot(cfg.Root)
	if err != nil {
		log.Fatalf("share root: %v", err)
	}

	sink, err := accesslog.OpenSink(cfg.LogFile)
	if err != nil {
		log.Fatalf("open access log: %v", err)
	}
	defer sink.Close()

	srv, err := httpserver.New(httpserver.Options{Config: cfg, Root: rootAbs})
	if err != nil {
		log.Fatalf("server init: %v", err)
	}

	handler := withHeaders(accesslog.Wrap(sink, srv.Handler()))
	httpSrv := &http.Server{Addr: cfg.Addr, Handler: handler}

	printBanner(cfg.Addr, rootAbs, *showQR)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, httpSrv, 5*time.Second); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

// run serves until ctx is cancelled, then shuts down gracefully within
// shutdownTimeout.
func run(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// printBanner logs the share URL reachable from other LAN hosts and,
// optionally, a QR code for it.
func printBanner(addr, root string, showQR bool) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, "80"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		if ip, err := netutil.LANAddr(); err == nil {
			host = ip.String()
		} else {
			log.Printf("lan address detection failed: %v", err)
			host = "127.0.0.1"
		}
	}
	url := fmt.Sprintf("http://%s", net.JoinHostPort(host, port))
	log.Printf("serving %s on %s (Ctrl+C to stop)", root, url)
	if showQR {
		netutil.WriteQR(os.Stdout, url)
	}
}

func withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
