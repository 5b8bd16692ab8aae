package duskdb

// elemRef is one level of a Cursor's descent: the node materialized at
// that level and the inode index currently positioned within it.
type elemRef struct {
	node  *Node
	index int
}

// Cursor walks a Bucket's tree in key order via a stack of elemRefs, one
// per level from root to leaf, the way bbolt's Cursor does.
type Cursor struct {
	bucket *Bucket
	stack  []elemRef
}

func (c *Cursor) First() (key, value []byte) {
	c.stack = c.stack[:0]
	c.stack = append(c.stack, elemRef{node: c.bucket.node()})
	c.descendFirst()
	k, v, _ := c.current()
	return k, v
}

func (c *Cursor) Last() (key, value []byte) {
	c.stack = c.stack[:0]
	n := c.bucket.node()
	c.stack = append(c.stack, elemRef{node: n, index: len(n.inodes) - 1})
	c.descendLast()
	k, v, _ := c.current()
	return k, v
}

func (c *Cursor) Next() (key, value []byte) {
	if len(c.stack) == 0 {
		return c.First()
	}
	if c.advance() {
		k, v, _ := c.current()
		return k, v
	}
	c.stack = c.stack[:0]
	return nil, nil
}

// Seek positions the cursor at the first key >= seek and returns its key
// and value; the entry's flags from seek() are not returned.
func (c *Cursor) Seek(seek []byte) (key, value []byte) {
	k, v, _ := c.seek(seek)
	return k, v
}

// seek is the internal workhorse behind Seek: it returns key, value and
// flags, so a nested-bucket entry (bucketLeafFlag) can be told from an
// ordinary value. Bucket's own lookups use Bucket.locate, not seek.
func (c *Cursor) seek(key []byte) (k, v []byte, flags uint32) {
	c.stack = c.stack[:0]
	c.descendTo(c.bucket.node(), key)
	top := &c.stack[len(c.stack)-1]
	if top.index >= len(top.node.inodes) {
		if !c.advance() {
			return nil, nil, 0
		}
	}
	return c.current()
}

func (c *Cursor) descendTo(n *Node, key []byte) {
	if n.isLeaf {
		idx, _ := searchInodes(n.inodes, key)
		c.stack = append(c.stack, elemRef{node: n, index: idx})
		return
	}
	idx := childIndex(n.inodes, key)
	c.stack = append(c.stack, elemRef{node: n, index: idx})
	child := c.bucket.tx.node(n.inodes[idx].pgid, n)
	c.descendTo(child, key)
}

func (c *Cursor) descendFirst() {
	for {
		ref := &c.stack[len(c.stack)-1]
		if ref.node.isLeaf {
			return
		}
		if len(ref.node.inodes) == 0 {
			return
		}
		child := c.bucket.tx.node(ref.node.inodes[0].pgid, ref.node)
		c.stack = append(c.stack, elemRef{node: child})
	}
}

func (c *Cursor) descendLast() {
	for {
		ref := &c.stack[len(c.stack)-1]
		if ref.node.isLeaf {
			return
		}
		if len(ref.node.inodes) == 0 {
			return
		}
		child := c.bucket.tx.node(ref.node.inodes[ref.index].pgid, ref.node)
		c.stack = append(c.stack, elemRef{node: child, index: len(child.inodes) - 1})
	}
}

// advance moves to the next leaf entry, bubbling up the stack whenever
// the current level is exhausted, then descending back down on the right
// sibling. Returns false once the whole tree has been walked.
func (c *Cursor) advance() bool {
	for i := len(c.stack) - 1; i >= 0; i-- {
		ref := &c.stack[i]
		ref.index++
		if ref.index < len(ref.node.inodes) {
			c.stack = c.stack[:i+1]
			if !ref.node.isLeaf {
				c.descendFirst()
			}
			return len(c.stack) > 0 && c.stack[len(c.stack)-1].index < len(c.stack[len(c.stack)-1].node.inodes)
		}
	}
	return false
}

func (c *Cursor) current() (key, value []byte, flags uint32) {
	if len(c.stack) == 0 {
		return nil, nil, 0
	}
	top := c.stack[len(c.stack)-1]
	if top.index < 0 || top.index >= len(top.node.inodes) {
		return nil, nil, 0
	}
	in := top.node.inodes[top.index]
	return in.key, in.value, in.flags
}
