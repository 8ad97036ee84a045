package config

// Config is intentionally small and JSON-friendly. Every field can also be
// set from a CLI flag; flags win over the config file.
type Config struct {
	// Root is the directory tree served read-only. Required. It must exist
	// and be a directory at startup; it is canonicalized once and never
	// changes for the process lifetime.
	Root string `json:"root"`

	// Addr is the listen address, e.g. "0.0.0.0:8080".
	Addr string `json:"addr,omitempty"`

	// LogFile receives one access-log line per request. Empty means stderr.
	LogFile string `json:"logFile,omitempty"`

	// HideDotfiles excludes dot-prefixed entries from listings and search
	// results. Default is to show them; resolution of direct requests for
	// hidden paths is unaffected either way.
	HideDotfiles bool `json:"hideDotfiles,omitempty"`

	// ThrottleBytesPerSec caps the sustained download rate per response.
	// 0 disables throttling.
	ThrottleBytesPerSec int `json:"throttleBytesPerSec,omitempty"`

	// EnableDAV exposes the share read-only under /dav/ for WebDAV clients.
	EnableDAV bool `json:"enableDav,omitempty"`

	// EnableThumbs serves JPEG thumbnails of images under /thumb.
	EnableThumbs bool `json:"enableThumbs,omitempty"`
}

// DefaultAddr is used when neither the config file nor the -addr flag set one.
const DefaultAddr = "0.0.0.0:8080"
