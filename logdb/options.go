package logdb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	defaultFileSize      int64 = 1 << 20 // 1 MiB per segment before rotation
	defaultArchivedLimit       = 3
)

// Options controls how a log-engine DB is opened.
type Options struct {
	// FileSize is the maximum size an active segment may reach before
	// it's rotated out to the archived set. Zero uses defaultFileSize.
	FileSize int64

	// ArchivedLimit is how many archived segments accumulate before
	// they're frozen and the compaction worker is signaled. Zero uses
	// defaultArchivedLimit.
	ArchivedLimit int

	Logger     zerolog.Logger
	Registerer prometheus.Registerer
}

func (o *Options) fileSize() int64 {
	if o == nil || o.FileSize <= 0 {
		return defaultFileSize
	}
	return o.FileSize
}

func (o *Options) archivedLimit() int {
	if o == nil || o.ArchivedLimit <= 0 {
		return defaultArchivedLimit
	}
	return o.ArchivedLimit
}

func (o *Options) logger() zerolog.Logger {
	if o == nil {
		return zerolog.Nop()
	}
	return o.Logger
}

func (o *Options) registerer() prometheus.Registerer {
	if o == nil || o.Registerer == nil {
		return prometheus.NewRegistry()
	}
	return o.Registerer
}
