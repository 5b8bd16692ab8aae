package duskdb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Options controls how a paged DB is opened. Fields mirror the host-API
// surface both engines share; ReadOnly/NoGrowSync/InitialMmapSize only
// affect this engine.
type Options struct {
	// FileSize is unused by the paged engine (present for symmetry with
	// logdb.Options) and reserved for future pre-allocation policy.
	FileSize int64

	// ReadOnly opens the file without acquiring the writer lock; Update
	// always fails with ErrTxReadOnly.
	ReadOnly bool

	// NoGrowSync skips the file-growth fsync some platforms require before
	// mmap can see the new size. Left false unless a caller knows their
	// filesystem doesn't need it (matches bbolt's flag of the same name).
	NoGrowSync bool

	// InitialMmapSize pre-sizes the mmap on open to avoid an early remap.
	// Zero means "compute from file size" (see mmapSize).
	InitialMmapSize int

	// Logger receives structured diagnostics. The zero value is a
	// no-op logger (zerolog.Nop()).
	Logger zerolog.Logger

	// Registerer receives this DB's prometheus collectors. Nil gets a
	// private registry so concurrent tests never collide on double
	// registration.
	Registerer prometheus.Registerer
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
