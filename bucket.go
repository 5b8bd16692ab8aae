package duskdb

// Bucket is a namespace of key/value pairs and nested buckets, backed by
// its own B+tree rooted at ibucket.Root. Nested buckets are ordinary leaf
// entries whose value is an encoded IBucket and whose flags carry
// bucketLeafFlag.
type Bucket struct {
	tx      *Tx
	ibucket IBucket
	name    []byte
	root    *Node
	buckets map[string]*Bucket
}

func (tx *Tx) openBucket(ib IBucket, name []byte) *Bucket {
	return &Bucket{tx: tx, ibucket: ib, name: cloneBytes(name)}
}

// node returns the materialized root node of b's tree.
func (b *Bucket) node() *Node {
	if b.root == nil {
		b.root = b.tx.node(b.ibucket.Root, nil)
		b.root.bucket = b
	}
	return b.root
}

// locate descends b's tree to the leaf that contains (or would contain)
// key, materializing nodes as it goes. It never advances past a miss the
// way Cursor.seek does, so it is the primitive mutation paths (Put,
// Delete, CreateBucket) use to find the correct insertion leaf -- Cursor's
// advance-on-miss behavior exists for ordered iteration, not lookup.
func (b *Bucket) locate(key []byte) (leaf *Node, idx int, exact bool) {
	n := b.node()
	for !n.isLeaf {
		ci := childIndex(n.inodes, key)
		n = b.tx.node(n.inodes[ci].pgid, n)
	}
	idx, exact = searchInodes(n.inodes, key)
	return n, idx, exact
}

func (b *Bucket) Get(key []byte) []byte {
	leaf, idx, exact := b.locate(key)
	if !exact {
		return nil
	}
	in := leaf.inodes[idx]
	if in.flags&bucketLeafFlag != 0 {
		return nil
	}
	return in.value
}

func (b *Bucket) Put(key, value []byte) error {
	if b.tx.closed {
		return ErrTxClosed
	}
	if !b.tx.writable {
		return ErrTxReadOnly
	}
	if len(key) == 0 {
		return newError("put", KindInvalid, nil)
	}
	leaf, idx, exact := b.locate(key)
	if exact && leaf.inodes[idx].flags&bucketLeafFlag != 0 {
		return ErrIncompatibleValue
	}
	leaf.put(key, value, 0, 0)
	return nil
}

func (b *Bucket) Delete(key []byte) error {
	if b.tx.closed {
		return ErrTxClosed
	}
	if !b.tx.writable {
		return ErrTxReadOnly
	}
	leaf, idx, exact := b.locate(key)
	if !exact {
		return nil
	}
	if leaf.inodes[idx].flags&bucketLeafFlag != 0 {
		return ErrIncompatibleValue
	}
	leaf.del(key)
	return nil
}

// Bucket returns the nested bucket named name, or nil if it doesn't
// exist. Results are cached on the parent for the life of the tx so
// repeated lookups share the same materialized node tree.
func (b *Bucket) Bucket(name []byte) *Bucket {
	if child, ok := b.buckets[string(name)]; ok {
		return child
	}
	leaf, idx, exact := b.locate(name)
	if !exact || leaf.inodes[idx].flags&bucketLeafFlag == 0 {
		return nil
	}
	child := b.tx.openBucket(decodeIBucket(leaf.inodes[idx].value), name)
	if b.buckets == nil {
		b.buckets = make(map[string]*Bucket)
	}
	b.buckets[string(name)] = child
	return child
}

func (b *Bucket) CreateBucket(name []byte) (*Bucket, error) {
	if b.tx.closed {
		return nil, ErrTxClosed
	}
	if !b.tx.writable {
		return nil, ErrTxReadOnly
	}
	if len(name) == 0 {
		return nil, newError("create_bucket", KindInvalid, nil)
	}
	leaf, idx, exact := b.locate(name)
	if exact {
		if leaf.inodes[idx].flags&bucketLeafFlag != 0 {
			return nil, ErrBucketExists
		}
		return nil, ErrIncompatibleValue
	}

	rootID := b.tx.allocate(1)
	rootPage := page{id: rootID, flags: LeafPageFlag}
	buf := make([]byte, b.tx.db.pageSize)
	rootPage.writeHeader(buf)
	b.tx.write(rootID, buf)

	ib := IBucket{Root: rootID}
	leaf.put(name, encodeIBucket(ib), 0, bucketLeafFlag)

	child := b.tx.openBucket(ib, name)
	if b.buckets == nil {
		b.buckets = make(map[string]*Bucket)
	}
	b.buckets[string(name)] = child
	return child, nil
}

func (b *Bucket) CreateBucketIfNotExists(name []byte) (*Bucket, error) {
	if child := b.Bucket(name); child != nil {
		return child, nil
	}
	return b.CreateBucket(name)
}

func (b *Bucket) DeleteBucket(name []byte) error {
	if b.tx.closed {
		return ErrTxClosed
	}
	if !b.tx.writable {
		return ErrTxReadOnly
	}
	child := b.Bucket(name)
	if child == nil {
		return ErrBucketNotFound
	}
	child.freeAll(child.ibucket.Root)
	delete(b.buckets, string(name))

	leaf, _, _ := b.locate(name)
	leaf.del(name)
	return nil
}

// freeAll walks id's subtree and marks every page it occupies obsolete.
func (b *Bucket) freeAll(id pgid) {
	n := b.tx.node(id, nil)
	if !n.isLeaf {
		for _, in := range n.inodes {
			b.freeAll(in.pgid)
		}
	} else {
		for _, in := range n.inodes {
			if in.flags&bucketLeafFlag != 0 {
				child := decodeIBucket(in.value)
				b.freeAll(child.Root)
			}
		}
	}
	b.tx.free(id)
}

func (b *Bucket) Cursor() *Cursor {
	return &Cursor{bucket: b}
}

// spill rewrites every node this transaction touched to fresh pages,
// splitting any that grew past a single page, then recurses into nested
// buckets so their roots are flushed too. Untouched reads are never
// re-written: only pgids present in tx.nodes were ever materialized.
func (b *Bucket) spill() error {
	for _, child := range b.buckets {
		if err := child.spill(); err != nil {
			return err
		}
		if child.root != nil {
			b.updateChildPointer(child)
		}
	}
	if b.root == nil {
		return nil
	}
	if err := b.root.spill(); err != nil {
		return err
	}
	b.ibucket.Root = b.root.pgid
	return nil
}

// updateChildPointer rewrites the parent's leaf entry for a nested
// bucket once that bucket's own root may have moved during spill.
func (b *Bucket) updateChildPointer(child *Bucket) {
	leaf, idx, exact := b.locate(child.name)
	if !exact || leaf.inodes[idx].flags&bucketLeafFlag == 0 {
		return
	}
	leaf.put(child.name, encodeIBucket(child.ibucket), 0, bucketLeafFlag)
}
