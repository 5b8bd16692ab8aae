package logdb

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"duskdb"
)

// DB is the log-structured engine's host API: one ActiveUnit for writes
// and recent reads, backed by Levels (archived, then merged) for
// anything rotated out. A background goroutine watches for freeze
// signals the way the original source's compaction thread does.
type DB struct {
	dir    string
	active *ActiveUnit
	levels *Levels

	logger  zerolog.Logger
	metrics *metrics

	signal  chan struct{}
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// Open opens or creates a log engine rooted at dir.
func Open(dir string, opts *Options) (*DB, error) {
	m := newMetrics(opts.registerer())
	lg := opts.logger()

	signal := make(chan struct{}, 1)
	active, err := buildActiveUnit(dir, opts.fileSize(), opts.archivedLimit(), signal, m, lg)
	if err != nil {
		return nil, err
	}

	db := &DB{
		dir:     dir,
		active:  active,
		levels:  &Levels{archived: newArchivedUnit(), merged: newMergeUnit()},
		logger:  lg,
		metrics: m,
		signal:  signal,
		closeCh: make(chan struct{}),
	}

	db.wg.Add(1)
	go db.compactionWorker()

	lg.Info().Str("dir", dir).Msg("log db open")
	return db, nil
}

// compactionWorker mirrors the thread DB::open spawns in the original
// source: it's woken by freeze() the same way, but where the original's
// merge body is commented out, this one actually folds the frozen batch
// into Levels (see compact()) -- spec §4.C's merger-promotion semantics,
// not left as an unimplemented stub.
func (db *DB) compactionWorker() {
	defer db.wg.Done()
	for {
		select {
		case <-db.signal:
			if err := db.compact(); err != nil {
				db.logger.Error().Err(err).Msg("compaction failed")
			}
		case <-db.closeCh:
			return
		}
	}
}

// compact takes whatever ActiveUnit has frozen since the last fold,
// appends it to Levels.archived so it's immediately reachable by direct
// lookup, and packs its winning entries into a new merged segment in
// Levels.merged. Without this, any key whose only copy lived in a frozen
// segment would become permanently unreachable once archived_limit
// rotations piled up.
func (db *DB) compact() error {
	batch := db.active.takeFrozen()
	if batch == nil {
		return nil
	}
	db.levels.archived.add(batch.segments, batch.entries)

	merged, mergedEntries, err := mergeSegments(db.dir, batch.segments, batch.entries)
	if err != nil {
		return err
	}
	db.levels.merged.add(merged, mergedEntries)

	db.metrics.compactions.Inc()
	db.logger.Debug().Int("segments", len(batch.segments)).Msg("log segments compacted")
	return nil
}

func (db *DB) Put(key, value []byte) error {
	start := time.Now()
	err := db.active.put(key, value)
	db.metrics.putSeconds.Observe(time.Since(start).Seconds())
	return err
}

func (db *DB) Get(key []byte) ([]byte, error) {
	e, ok, err := db.active.get(key)
	if err != nil {
		return nil, err
	}
	if ok {
		return e.Value, nil
	}
	e, ok, err = db.levels.get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, duskdb.ErrNotFound
	}
	return e.Value, nil
}

func (db *DB) Close() error {
	close(db.closeCh)
	db.wg.Wait()
	db.logger.Info().Str("dir", db.dir).Msg("log db close")
	return db.active.close()
}
