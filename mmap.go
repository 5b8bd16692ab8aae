package duskdb

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

const defaultPageSize = 4096

// mmapOpen maps the first size bytes of f read-only. Writes to the file
// always go through pwrite-style calls on f itself, never through the
// mapping; the mapping exists purely so readers can dereference pages
// without a syscall per access.
func mmapOpen(f *os.File, size int) (mmap.MMap, error) {
	m, err := mmap.MapRegion(f, size, mmap.RDONLY, 0, 0)
	if err != nil {
		return nil, newError("mmap", KindIoError, err)
	}
	return m, nil
}

func mmapClose(m mmap.MMap) error {
	if m == nil {
		return nil
	}
	if err := m.Unmap(); err != nil {
		return newError("munmap", KindIoError, err)
	}
	return nil
}

// growFile extends the backing file to at least size bytes. Some
// filesystems need the new length fsynced before a concurrent mmap of the
// grown region is safe; NoGrowSync skips that for callers who know better.
func growFile(f *os.File, size int64, noGrowSync bool) error {
	info, err := f.Stat()
	if err != nil {
		return newError("stat", KindIoError, err)
	}
	if info.Size() >= size {
		return nil
	}
	if err := f.Truncate(size); err != nil {
		return newError("truncate", KindIoError, err)
	}
	if !noGrowSync {
		if err := fdatasync(f); err != nil {
			return newError("fsync", KindIoError, err)
		}
	}
	return nil
}

// bootstrap writes the initial layout of a brand new, empty data file: two
// meta pages (txid 0 and txid 1, so the first real commit's meta lands at
// the alternate slot), an empty freelist page, and an empty root leaf.
func bootstrap(f *os.File, pageSize int) error {
	buf := make([]byte, pageSize*4)

	m0 := meta{
		magic:    magicNumber,
		version:  formatVersion,
		pageSize: uint32(pageSize),
		root:     IBucket{Root: rootLeafInitID},
		freelist: freelistInitID,
		pgid:     rootLeafInitID + 1,
		txid:     0,
	}
	writeMeta(buf[0:pageSize], metaPage0, m0)

	m1 := m0
	m1.txid = 1
	writeMeta(buf[pageSize:2*pageSize], metaPage1, m1)

	if err := writeFreelistPage(buf[2*pageSize:3*pageSize], nil, 0); err != nil {
		return err
	}

	leaf := page{id: rootLeafInitID, flags: LeafPageFlag, count: 0}
	leaf.writeHeader(buf[3*pageSize : 4*pageSize])

	if _, err := f.WriteAt(buf, 0); err != nil {
		return newError("bootstrap", KindIoError, err)
	}
	return fdatasync(f)
}

// readMetas reads and validates both meta pages, returning the one with
// the higher valid txid. If one is corrupt or absent, the other is used;
// if both are invalid, open fails with KindInvalid.
func readMetas(data []byte, pageSize int) (meta, error) {
	m0, err0 := readMeta(data[0:pageSize])
	m1, err1 := readMeta(data[pageSize : 2*pageSize])

	switch {
	case err0 == nil && err1 == nil:
		if m1.txid > m0.txid {
			return m1, nil
		}
		return m0, nil
	case err0 == nil:
		return m0, nil
	case err1 == nil:
		return m1, nil
	default:
		return meta{}, newError("readMetas", KindInvalid, err0)
	}
}
