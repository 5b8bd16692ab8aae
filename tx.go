package duskdb

import "time"

// Tx is a read or write transaction. A writable Tx sees (and mutates) a
// private copy of the root meta; nothing becomes visible to other
// transactions until commit() succeeds. A read-only Tx is a pinned
// snapshot of whatever meta was current when it began.
type Tx struct {
	db       *DB
	writable bool
	closed   bool
	meta     meta
	data     []byte // pinned mmap snapshot for the life of the tx
	root     *Bucket
	nodes    map[pgid]*Node
	pages    map[pgid][]byte // dirty raw pages staged for this commit
	freed    []pgid          // pgids made obsolete by this tx's writes
}

func (tx *Tx) Bucket(name []byte) *Bucket {
	return tx.root.Bucket(name)
}

func (tx *Tx) CreateBucket(name []byte) (*Bucket, error) {
	return tx.root.CreateBucket(name)
}

func (tx *Tx) CreateBucketIfNotExists(name []byte) (*Bucket, error) {
	return tx.root.CreateBucketIfNotExists(name)
}

func (tx *Tx) DeleteBucket(name []byte) error {
	return tx.root.DeleteBucket(name)
}

// page returns the bytes backing pgid: the staged dirty copy if this tx
// has already written it, otherwise the pinned mmap snapshot.
func (tx *Tx) page(id pgid) []byte {
	if buf, ok := tx.pages[id]; ok {
		return buf
	}
	off := int(id) * tx.db.pageSize
	return tx.data[off : off+tx.db.pageSize]
}

// node returns the materialized Node for pgid, reading it from the page
// on first access and caching it for the remainder of the transaction.
func (tx *Tx) node(id pgid, parent *Node) *Node {
	if n, ok := tx.nodes[id]; ok {
		return n
	}
	n := &Node{pgid: id, parent: parent}
	n.read(tx.page(id))
	if tx.nodes == nil {
		tx.nodes = make(map[pgid]*Node)
	}
	tx.nodes[id] = n
	if parent != nil {
		parent.children = append(parent.children, n)
	}
	return n
}

// allocate reserves n fresh pgids, preferring a reused run from the
// freelist over extending the high-water mark.
func (tx *Tx) allocate(n int) pgid {
	tx.db.metrics.pagesAllocated.Add(float64(n))
	if id := tx.db.freelist.allocate(n); id != 0 {
		return id
	}
	id := tx.meta.pgid
	tx.meta.pgid += pgid(n)
	return id
}

// free marks id as obsolete once this tx commits; it becomes reusable
// only after every reader that might still see the prior meta has gone.
func (tx *Tx) free(id pgid) {
	tx.freed = append(tx.freed, id)
}

func (tx *Tx) write(id pgid, buf []byte) {
	if tx.pages == nil {
		tx.pages = make(map[pgid][]byte)
	}
	tx.pages[id] = buf
}

// commit spills every touched node to fresh pages, persists the freelist,
// writes dirty pages and the alternate meta slot, and fences with fsync
// between each durability-sensitive step.
func (tx *Tx) commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	if !tx.writable {
		return ErrTxReadOnly
	}
	start := time.Now()

	if err := tx.root.spill(); err != nil {
		tx.close()
		return err
	}
	tx.meta.root = tx.root.ibucket

	tx.persistFreelist()
	tx.db.freelist.free(tx.meta.txid, tx.freed...)

	required := int64(tx.meta.pgid) * int64(tx.db.pageSize)
	if err := tx.db.growIfNeeded(required); err != nil {
		tx.close()
		return err
	}

	for id, buf := range tx.pages {
		if _, err := tx.db.file.WriteAt(buf, int64(id)*int64(tx.db.pageSize)); err != nil {
			tx.close()
			return newError("commit", KindIoError, err)
		}
	}
	if err := fdatasync(tx.db.file); err != nil {
		tx.close()
		return err
	}

	slot := metaPage0
	if tx.meta.txid%2 == 1 {
		slot = metaPage1
	}
	metaBuf := make([]byte, tx.db.pageSize)
	writeMeta(metaBuf, slot, tx.meta)
	if _, err := tx.db.file.WriteAt(metaBuf, int64(slot)*int64(tx.db.pageSize)); err != nil {
		tx.close()
		return newError("commit", KindIoError, err)
	}
	if err := fdatasync(tx.db.file); err != nil {
		tx.close()
		return err
	}

	tx.db.metaMu.Lock()
	tx.db.meta = tx.meta
	tx.db.metaMu.Unlock()
	tx.db.freelist.release(tx.db.oldestReaderTxid())

	tx.db.metrics.commits.Inc()
	tx.db.metrics.commitSeconds.Observe(time.Since(start).Seconds())
	tx.db.logger.Debug().Uint64("txid", uint64(tx.meta.txid)).Msg("paged commit")

	tx.close()
	return nil
}

// persistFreelist writes the current reusable set to a freshly allocated
// freelist page on every commit and frees the previous freelist page.
func (tx *Tx) persistFreelist() {
	id := tx.allocate(1)
	buf := make([]byte, tx.db.pageSize)
	writeFreelistPage(buf, tx.db.freelist.ids, 0)
	tx.write(id, buf)
	if tx.meta.freelist != id {
		tx.free(tx.meta.freelist)
	}
	tx.meta.freelist = id
}

func (tx *Tx) rollback() {
	if tx.closed {
		return
	}
	if tx.writable {
		tx.db.metrics.rollbacks.Inc()
	}
	tx.close()
}

func (tx *Tx) close() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.writable {
		tx.db.mu.Unlock()
	} else {
		tx.db.removeReader(tx)
	}
}
