package duskdb

import (
	"os"
	"sync"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/rs/zerolog"
)

var defaultBucketName = []byte("default")

// DB is the paged, memory-mapped B+tree engine: one writer at a time,
// any number of concurrent readers, each pinned to the meta snapshot
// current when its transaction began.
type DB struct {
	path       string
	file       *os.File
	data       mmap.MMap
	pageSize   int
	readOnly   bool
	noGrowSync bool

	mu     sync.Mutex   // serializes writers
	mmapMu sync.RWMutex // guards data/remap against concurrent tx begin

	metaMu sync.Mutex
	meta   meta

	freelist *freelist

	readersMu sync.Mutex
	readers   map[*Tx]struct{}

	logger  zerolog.Logger
	metrics *metrics
}

// Open opens or creates the database file at path.
func Open(path string, opts *Options) (*DB, error) {
	flag := os.O_RDWR | os.O_CREATE
	if opts.readOnlyFlag() {
		flag = os.O_RDONLY
	}
	file, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, newError("open", KindDBOpenFail, err)
	}

	db := &DB{
		path:       path,
		file:       file,
		pageSize:   defaultPageSize,
		readOnly:   opts.readOnlyFlag(),
		noGrowSync: opts != nil && opts.NoGrowSync,
		readers:    make(map[*Tx]struct{}),
		logger:     opts.logger(),
		metrics:    newMetrics(opts.registerer()),
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, newError("open", KindDBOpenFail, err)
	}
	if info.Size() == 0 {
		if db.readOnly {
			file.Close()
			return nil, newError("open", KindDBOpenFail, nil)
		}
		if err := bootstrap(file, db.pageSize); err != nil {
			file.Close()
			return nil, err
		}
		info, _ = file.Stat()
	}

	mapSize := mmapSize(int(info.Size()), db.pageSize)
	if opts != nil && opts.InitialMmapSize > mapSize {
		mapSize = mmapSize(opts.InitialMmapSize, db.pageSize)
	}
	if err := growFile(file, int64(mapSize), db.noGrowSync); err != nil {
		file.Close()
		return nil, err
	}
	data, err := mmapOpen(file, mapSize)
	if err != nil {
		file.Close()
		return nil, err
	}
	db.data = data

	m, err := readMetas(data, db.pageSize)
	if err != nil {
		mmapClose(data)
		file.Close()
		return nil, err
	}
	db.meta = m
	db.pageSize = int(m.pageSize)

	ids, _, err := readFreelistPage(db.page(m.freelist))
	if err != nil {
		mmapClose(data)
		file.Close()
		return nil, err
	}
	db.freelist = newFreelist()
	db.freelist.ids = ids

	db.logger.Info().Str("path", path).Msg("paged db open")
	return db, nil
}

func (db *DB) page(id pgid) []byte {
	off := int(id) * db.pageSize
	return db.data[off : off+db.pageSize]
}

// growIfNeeded grows the file and remaps it if required no longer fits
// within the current mapping.
func (db *DB) growIfNeeded(required int64) error {
	if required <= int64(len(db.data)) {
		return nil
	}
	db.mmapMu.Lock()
	defer db.mmapMu.Unlock()

	newSize := mmapSize(int(required), db.pageSize)
	if err := growFile(db.file, int64(newSize), db.noGrowSync); err != nil {
		return err
	}
	if err := mmapClose(db.data); err != nil {
		return err
	}
	data, err := mmapOpen(db.file, newSize)
	if err != nil {
		return err
	}
	db.data = data
	return nil
}

func (db *DB) oldestReaderTxid() txid {
	db.readersMu.Lock()
	defer db.readersMu.Unlock()
	var oldest txid
	for r := range db.readers {
		if oldest == 0 || r.meta.txid < oldest {
			oldest = r.meta.txid
		}
	}
	return oldest
}

func (db *DB) addReader(tx *Tx) {
	db.readersMu.Lock()
	db.readers[tx] = struct{}{}
	db.readersMu.Unlock()
}

func (db *DB) removeReader(tx *Tx) {
	db.readersMu.Lock()
	delete(db.readers, tx)
	db.readersMu.Unlock()
}

func (db *DB) begin(writable bool) (*Tx, error) {
	if writable && db.readOnly {
		return nil, ErrTxReadOnly
	}
	if writable {
		db.mu.Lock()
	}
	db.mmapMu.RLock()
	defer db.mmapMu.RUnlock()

	db.metaMu.Lock()
	m := db.meta
	db.metaMu.Unlock()
	if writable {
		m.txid++
	}

	tx := &Tx{db: db, writable: writable, meta: m, data: db.data}
	tx.root = tx.openBucket(m.root, nil)
	if !writable {
		db.addReader(tx)
	}
	return tx, nil
}

// Update runs fn inside a read-write transaction, committing on success
// and rolling back if fn or the commit itself returns an error.
func (db *DB) Update(fn func(*Tx) error) error {
	tx, err := db.begin(true)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return tx.commit()
}

// View runs fn inside a read-only transaction.
func (db *DB) View(fn func(*Tx) error) error {
	tx, err := db.begin(false)
	if err != nil {
		return err
	}
	defer tx.rollback()
	return fn(tx)
}

// Put stores key/value in the implicit default bucket, creating it on
// first use.
func (db *DB) Put(key, value []byte) error {
	return db.Update(func(tx *Tx) error {
		b, err := tx.CreateBucketIfNotExists(defaultBucketName)
		if err != nil {
			return err
		}
		return b.Put(key, value)
	})
}

// Get reads key from the implicit default bucket.
func (db *DB) Get(key []byte) ([]byte, error) {
	var out []byte
	err := db.View(func(tx *Tx) error {
		b := tx.Bucket(defaultBucketName)
		if b == nil {
			return ErrNotFound
		}
		v := b.Get(key)
		if v == nil {
			return ErrNotFound
		}
		out = cloneBytes(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (db *DB) Close() error {
	if err := mmapClose(db.data); err != nil {
		return err
	}
	db.logger.Info().Str("path", db.path).Msg("paged db close")
	return db.file.Close()
}

func (o *Options) readOnlyFlag() bool {
	return o != nil && o.ReadOnly
}
