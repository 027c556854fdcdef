package avstor

import "bytes"

// Every child collection (subkeys and values of a key, the two top-level
// trees) is an AVL tree. Children are file references, so there are no
// in-memory parent pointers: mutations walk down with a backtrace stack
// and re-ascend it to rebalance. Traversal locks the next page before
// releasing the current one (hand-over-hand), so a page can never be
// evicted out from under a walk.

// offsetMask isolates the page offset of a node reference; the low bits
// are the slot-entry offset inside the page.
const offsetMask = ^uint64(PageSize - 1)

// Key names a node within one collection. Buf is the name (at most
// MaxKeyLen bytes); Compare orders names and defaults to bytes.Compare.
// There is no implicit ordering beyond the comparator.
type Key struct {
	Buf     []byte
	Compare func(key, name []byte) int
}

// NewKey returns a Key for a string name with the default ordering.
func NewKey(name string) *Key {
	return &Key{Buf: []byte(name)}
}

// NewBinaryKey returns a Key for a binary name with the default ordering.
func NewBinaryKey(name []byte) *Key {
	return &Key{Buf: name}
}

func (k *Key) compare(name []byte) int {
	if k.Compare != nil {
		return k.Compare(k.Buf, name)
	}
	return bytes.Compare(k.Buf, name)
}

func (k *Key) invalid() bool {
	return len(k.Buf) > MaxKeyLen
}

// offsetKeyBuf encodes a file offset as a tree name (back-link trees are
// keyed by offsets, not strings).
func offsetKeyBuf(off uint64) []byte {
	buf := make([]byte, refSize)
	putRef(buf, off)
	return buf
}

// compareOffsets orders offset-encoded names numerically.
func compareOffsets(a, b []byte) int {
	oa, ob := getRef(a), getRef(b)
	switch {
	case oa > ob:
		return 1
	case oa < ob:
		return -1
	}
	return 0
}

func offsetKey(off uint64) *Key {
	return &Key{Buf: offsetKeyBuf(off), Compare: compareOffsets}
}

// refSlot addresses a node reference inside a locked page: a child link
// of a node, a root slot of a key payload, or a root slot in the header.
// Writing through it marks the owning page dirty.
type refSlot struct {
	p   *page
	ofs int
}

func (r refSlot) get() uint64 {
	return getRef(r.p.data[r.ofs:])
}

func (r refSlot) set(v uint64) {
	putRef(r.p.data[r.ofs:], v)
	r.p.setDirty()
}

// lnode is a node whose containing page is locked by the holder.
type lnode struct {
	p   *page
	ofs int
}

func (n lnode) valid() bool {
	return n.p != nil
}

func (n lnode) ref() uint64 {
	return nodeRefOfs(n.p, n.ofs)
}

func (n lnode) left() refSlot {
	return refSlot{n.p, n.ofs + nodeOffLeft}
}

func (n lnode) right() refSlot {
	return refSlot{n.p, n.ofs + nodeOffRight}
}

// backtrace records the ancestors of a tree walk: for each, the node
// reference and the comparison sign that chose the descent direction.
type stackEntry struct {
	ref  uint64
	comp int
}

type backtrace struct {
	data [MaxTreeHeight]stackEntry
	top  int
	root refSlot
}

func (st *backtrace) push() (*stackEntry, error) {
	if st.top >= MaxTreeHeight-1 {
		return nil, NewErrorMsg(ErrInternal, "backtrace stack overflow")
	}
	st.top++
	return &st.data[st.top], nil
}

func (st *backtrace) pop() *stackEntry {
	if st.top < 0 {
		return nil
	}
	e := &st.data[st.top]
	st.top--
	return e
}

func (st *backtrace) peek(pos int) *stackEntry {
	if pos < 0 {
		return nil
	}
	return &st.data[pos]
}

func (st *backtrace) peekTop() *stackEntry {
	return st.peek(st.top)
}

// lockNode resolves a node reference, locking its page first.
func (s *Store) lockNode(ref uint64) (lnode, error) {
	p, err := s.getPage(ref & offsetMask)
	if err != nil {
		return lnode{}, err
	}
	nodeOfs, err := p.nodeAt(int(ref &^ offsetMask))
	if err != nil {
		unlockPage(p)
		return lnode{}, err
	}
	return lnode{p, nodeOfs}, nil
}

// lockNodeEx resolves the reference stored in a slot of an already locked
// page. If the target shares that page, only the lock count is raised; the
// slot's page stays locked either way.
func (s *Store) lockNodeEx(ref refSlot) (lnode, error) {
	off := ref.get()
	pageOfs := off & offsetMask
	var p *page
	if pageOfs != ref.p.offset() {
		// The slot's page is locked, so the reference cannot be
		// recycled while we fetch the target page.
		var err error
		p, err = s.getPage(pageOfs)
		if err != nil {
			return lnode{}, err
		}
	} else {
		lockPage(ref.p)
		p = ref.p
	}
	nodeOfs, err := p.nodeAt(int(off &^ offsetMask))
	if err != nil {
		unlockPage(p)
		return lnode{}, err
	}
	return lnode{p, nodeOfs}, nil
}

// stepNode moves a walk to the node at off, hand-over-hand: the new page
// is acquired before the previous node's lock is released.
func (s *Store) stepNode(off uint64, prev lnode) (lnode, error) {
	if !prev.valid() {
		return s.lockNode(off)
	}
	pageOfs := off & offsetMask
	p := prev.p
	if pageOfs != p.offset() {
		next, err := s.getPage(pageOfs)
		if err != nil {
			unlockPage(p)
			return lnode{}, err
		}
		unlockPage(p)
		p = next
	}
	nodeOfs, err := p.nodeAt(int(off &^ offsetMask))
	if err != nil {
		unlockPage(p)
		return lnode{}, err
	}
	return lnode{p, nodeOfs}, nil
}

// lockRef raises the lock on the page holding a reference slot. Outside a
// shared row lock only a currently locked page may be re-locked (a page
// mid-eviction must not come back); the header is the exception, it never
// enters the cache.
func (s *Store) lockRef(ref refSlot) {
	lockPage(ref.p)
}

// findNodeWithBacktrace walks from root looking for key, recording the
// ancestor path in st. On a hit the found node is returned locked. On a
// miss with wantRef set, the null reference slot where the key would hang
// is returned with its page still locked (the insertion point).
func (s *Store) findNodeWithBacktrace(key *Key, st *backtrace, root refSlot, wantRef bool) (lnode, refSlot, error) {
	st.top = -1
	st.root = root
	if root.p == nil || root.get() == 0 {
		return lnode{}, refSlot{}, nil
	}

	ref := root
	s.lockRef(ref)
	cur, err := s.lockNodeEx(ref)
	if err != nil {
		unlockPage(ref.p)
		return lnode{}, refSlot{}, err
	}

	for {
		comp := key.compare(nodeName(cur.p, cur.ofs))
		if comp == 0 {
			unlockPage(ref.p)
			return cur, refSlot{}, nil
		}
		top, err := st.push()
		if err != nil {
			unlockPage(cur.p)
			unlockPage(ref.p)
			return lnode{}, refSlot{}, err
		}
		top.comp = comp
		top.ref = ref.get()
		unlockPage(ref.p)
		if comp < 0 {
			ref = cur.left()
		} else {
			ref = cur.right()
		}
		if ref.get() == 0 {
			if wantRef {
				// leave the page of ref locked when returning it
				return lnode{}, ref, nil
			}
			unlockPage(cur.p)
			return lnode{}, refSlot{}, nil
		}
		cur, err = s.lockNodeEx(ref)
		if err != nil {
			unlockPage(ref.p)
			return lnode{}, refSlot{}, err
		}
	}
}

// findKey is the plain search: no backtrace, hand-over-hand only.
func (s *Store) findKey(key *Key, root refSlot) (lnode, error) {
	ref := root
	s.lockRef(ref)
	for ref.get() != 0 {
		cur, err := s.lockNodeEx(ref)
		if err != nil {
			unlockPage(ref.p)
			return lnode{}, err
		}
		unlockPage(ref.p)
		comp := key.compare(nodeName(cur.p, cur.ofs))
		if comp == 0 {
			return cur, nil
		}
		if comp < 0 {
			ref = cur.left()
		} else {
			ref = cur.right()
		}
	}
	unlockPage(ref.p)
	return lnode{}, nil
}

// Rotations. x is the unbalanced node, z the child on its heavy side;
// both are locked by the caller. The double rotations lock the inner
// grandchild and return it locked in place of z.

func rotateRight(x, z lnode) {
	t23 := z.right().get()
	x.left().set(t23)
	z.right().set(x.ref())
	if nodeBF(z.p, z.ofs) == 0 {
		nodeSetBF(x.p, x.ofs, -1)
		nodeSetBF(z.p, z.ofs, 1)
	} else {
		nodeSetBF(x.p, x.ofs, 0)
		nodeSetBF(z.p, z.ofs, 0)
	}
}

func rotateLeft(x, z lnode) {
	t23 := z.left().get()
	x.right().set(t23)
	z.left().set(x.ref())
	if nodeBF(z.p, z.ofs) == 0 {
		nodeSetBF(x.p, x.ofs, 1)
		nodeSetBF(z.p, z.ofs, -1)
	} else {
		nodeSetBF(x.p, x.ofs, 0)
		nodeSetBF(z.p, z.ofs, 0)
	}
}

func (s *Store) rotateRightLeft(x, z lnode) (lnode, error) {
	y, err := s.lockNodeEx(z.left())
	if err != nil {
		return lnode{}, err
	}
	t3 := y.right().get()
	z.left().set(t3)
	y.right().set(z.ref())
	t2 := y.left().get()
	x.right().set(t2)
	y.left().set(x.ref())
	switch bf := nodeBF(y.p, y.ofs); {
	case bf == 0:
		nodeSetBF(x.p, x.ofs, 0)
		nodeSetBF(z.p, z.ofs, 0)
	case bf > 0:
		nodeSetBF(x.p, x.ofs, -1)
		nodeSetBF(z.p, z.ofs, 0)
	default:
		nodeSetBF(x.p, x.ofs, 0)
		nodeSetBF(z.p, z.ofs, 1)
	}
	nodeSetBF(y.p, y.ofs, 0)
	unlockPage(z.p)
	return y, nil
}

func (s *Store) rotateLeftRight(x, z lnode) (lnode, error) {
	y, err := s.lockNodeEx(z.right())
	if err != nil {
		return lnode{}, err
	}
	t3 := y.left().get()
	z.right().set(t3)
	y.left().set(z.ref())
	t2 := y.right().get()
	x.left().set(t2)
	y.right().set(x.ref())
	switch bf := nodeBF(y.p, y.ofs); {
	case bf == 0:
		nodeSetBF(x.p, x.ofs, 0)
		nodeSetBF(z.p, z.ofs, 0)
	case bf < 0:
		nodeSetBF(x.p, x.ofs, 1)
		nodeSetBF(z.p, z.ofs, 0)
	default:
		nodeSetBF(x.p, x.ofs, 0)
		nodeSetBF(z.p, z.ofs, -1)
	}
	nodeSetBF(y.p, y.ofs, 0)
	unlockPage(z.p)
	return y, nil
}

// backtraceSetRef rewrites the parent-side child reference of cur to point
// at src. With no ancestor at pos, the tree root itself is rewritten. This
// is the only way a parent's child slot is ever written; there are no
// in-memory parent pointers.
func (s *Store) backtraceSetRef(st *backtrace, pos int, cur, src lnode) error {
	data := st.peek(pos)
	if data == nil {
		st.root.set(src.ref())
		return nil
	}
	curOfs := cur.ref()
	dest, err := s.lockNode(data.ref)
	if err != nil {
		return err
	}
	var destChild refSlot
	switch curOfs {
	case dest.left().get():
		destChild = dest.left()
	case dest.right().get():
		destChild = dest.right()
	default:
		unlockPage(dest.p)
		return NewErrorMsg(ErrInternal, "ancestor is not a parent of the rebalanced node")
	}
	destChild.set(src.ref())
	unlockPage(dest.p)
	return nil
}

// balanceDown re-ascends the backtrace after an insert, updating balance
// factors and rotating once where a subtree grew out of bounds.
func (s *Store) balanceDown(st *backtrace) error {
	for {
		top := st.pop()
		if top == nil {
			return nil
		}
		cur, err := s.lockNode(top.ref)
		if err != nil {
			return err
		}
		comp := 1
		if top.comp < 0 { // comparators may return any sign magnitude
			comp = -1
		}
		bfCur := nodeBF(cur.p, cur.ofs)
		switch {
		case bfCur == 0:
			// was balanced but either subtree increased in height
			nodeSetBF(cur.p, cur.ofs, comp)
			cur.p.setDirty()
			unlockPage(cur.p)
		case comp+bfCur != 0:
			// was unbalanced and now more so; rotate
			var z lnode
			if bfCur > 0 {
				z, err = s.lockNodeEx(cur.right())
				if err != nil {
					unlockPage(cur.p)
					return err
				}
				if nodeBF(z.p, z.ofs) > 0 {
					rotateLeft(cur, z)
				} else {
					z, err = s.rotateRightLeft(cur, z)
				}
			} else {
				z, err = s.lockNodeEx(cur.left())
				if err != nil {
					unlockPage(cur.p)
					return err
				}
				if nodeBF(z.p, z.ofs) < 0 {
					rotateRight(cur, z)
				} else {
					z, err = s.rotateLeftRight(cur, z)
				}
			}
			if err != nil {
				unlockPage(cur.p)
				return err
			}
			if err = s.backtraceSetRef(st, st.top, cur, z); err != nil {
				unlockPage(z.p)
				unlockPage(cur.p)
				return err
			}
			unlockPage(z.p)
			unlockPage(cur.p)
			return nil
		default:
			// was unbalanced but now balanced
			nodeSetBF(cur.p, cur.ofs, 0)
			cur.p.setDirty()
			unlockPage(cur.p)
			return nil
		}
	}
}

// balanceUp re-ascends the backtrace after a delete. If the shortened side
// made an ancestor unbalanced it rotates; the walk stops as soon as a
// subtree's overall height is known not to have shrunk.
func (s *Store) balanceUp(st *backtrace) error {
	for {
		top := st.pop()
		if top == nil {
			return nil
		}
		cur, err := s.lockNode(top.ref)
		if err != nil {
			return err
		}
		bfCur := nodeBF(cur.p, cur.ofs)
		var b int
		if top.comp < 0 {
			if bfCur > 0 {
				z, err := s.lockNodeEx(cur.right())
				if err != nil {
					unlockPage(cur.p)
					return err
				}
				b = nodeBF(z.p, z.ofs)
				if b < 0 {
					z, err = s.rotateRightLeft(cur, z)
				} else {
					rotateLeft(cur, z)
				}
				if err != nil {
					unlockPage(cur.p)
					return err
				}
				if err = s.backtraceSetRef(st, st.top, cur, z); err != nil {
					unlockPage(z.p)
					unlockPage(cur.p)
					return err
				}
				unlockPage(z.p)
				unlockPage(cur.p)
			} else {
				cur.p.setDirty()
				if bfCur == 0 {
					nodeSetBF(cur.p, cur.ofs, 1)
					unlockPage(cur.p)
					return nil
				}
				nodeSetBF(cur.p, cur.ofs, 0)
				unlockPage(cur.p)
				continue
			}
		} else {
			if bfCur < 0 {
				z, err := s.lockNodeEx(cur.left())
				if err != nil {
					unlockPage(cur.p)
					return err
				}
				b = nodeBF(z.p, z.ofs)
				if b > 0 {
					z, err = s.rotateLeftRight(cur, z)
				} else {
					rotateRight(cur, z)
				}
				if err != nil {
					unlockPage(cur.p)
					return err
				}
				if err = s.backtraceSetRef(st, st.top, cur, z); err != nil {
					unlockPage(z.p)
					unlockPage(cur.p)
					return err
				}
				unlockPage(z.p)
				unlockPage(cur.p)
			} else {
				cur.p.setDirty()
				if bfCur == 0 {
					nodeSetBF(cur.p, cur.ofs, -1)
					unlockPage(cur.p)
					return nil
				}
				nodeSetBF(cur.p, cur.ofs, 0)
				unlockPage(cur.p)
				continue
			}
		}
		if b == 0 {
			return nil
		}
	}
}

// insertNode hangs a freshly created node off the insertion point recorded
// by the backtrace and rebalances upward.
func (s *Store) insertNode(item lnode, st *backtrace) error {
	top := st.peekTop()
	if top == nil {
		st.root.set(item.ref())
		nodeSetBF(item.p, item.ofs, 0)
		return nil
	}
	cur, err := s.lockNode(top.ref)
	if err != nil {
		return err
	}
	ref := cur.right()
	if top.comp < 0 {
		ref = cur.left()
	}
	ref.set(item.ref())
	nodeSetBF(item.p, item.ofs, 0)
	unlockPage(cur.p)
	return s.balanceDown(st)
}

// removeNode unlinks a located node from its tree. The three cases: a
// leaf detaches, a single child splices in, and a two-child node is
// replaced by its in-order successor (which inherits children and balance
// factor). Rebalancing then walks the backtrace upward.
func (s *Store) removeNode(node lnode, st *backtrace) error {
	var ref refSlot
	if top := st.peekTop(); top == nil {
		ref = st.root
	} else {
		temp, err := s.lockNode(top.ref)
		if err != nil {
			return err
		}
		if top.comp < 0 {
			ref = temp.left()
		} else {
			ref = temp.right()
		}
		// no page lookups may occur before ref is written below
		unlockPage(temp.p)
	}

	leftOff, rightOff := node.left().get(), node.right().get()
	switch {
	case leftOff == 0 && rightOff == 0:
		ref.set(0)

	case leftOff == 0 || rightOff == 0:
		child := node.left()
		if leftOff == 0 {
			child = node.right()
		}
		ref.set(child.get())
		child.set(0)

	default:
		// find the in-order successor (leftmost of the right subtree)
		top, err := st.push()
		if err != nil {
			return err
		}
		top.ref = node.ref()
		top.comp = 1
		sref := node.right()
		s.lockRef(sref)
		succ, err := s.lockNodeEx(sref)
		if err != nil {
			unlockPage(sref.p)
			return err
		}
		delPos := st.top
		for succ.left().get() != 0 {
			top, err = st.push()
			if err != nil {
				unlockPage(succ.p)
				unlockPage(sref.p)
				return err
			}
			top.ref = sref.get()
			top.comp = -1
			unlockPage(sref.p)
			sref = succ.left()
			succ, err = s.lockNodeEx(sref)
			if err != nil {
				unlockPage(sref.p)
				return err
			}
		}
		succ.left().set(node.left().get())
		if st.top != delPos {
			sref.set(succ.right().get())
			succ.right().set(node.right().get())
		}
		unlockPage(sref.p)

		// transplant: the successor takes the deleted node's position
		delNode, err := s.lockNode(st.data[delPos].ref)
		if err != nil {
			unlockPage(succ.p)
			return err
		}
		if err = s.backtraceSetRef(st, delPos-1, delNode, succ); err != nil {
			unlockPage(delNode.p)
			unlockPage(succ.p)
			return err
		}
		unlockPage(delNode.p)
		st.data[delPos].ref = succ.ref()
		nodeSetBF(succ.p, succ.ofs, nodeBF(node.p, node.ofs))
		unlockPage(succ.p)
	}

	if err := s.balanceUp(st); err != nil {
		return err
	}
	node.left().set(0)
	node.right().set(0)
	return nil
}

// deleteNode removes the node from its tree and releases its bytes.
func (s *Store) deleteNode(node lnode, st *backtrace) error {
	if err := s.removeNode(node, st); err != nil {
		return err
	}
	node.p.freeNode(node.ofs)
	return nil
}

// levelBucket maps a tree level and collection kind to a page-hint pool
// bucket. Levels are clamped so user buckets stay below backlinkPool.
func levelBucket(level int, isValue bool) int {
	if level > 126 {
		level = 126
	}
	bucket := level << 1
	if isValue {
		bucket++
	}
	return bucket
}

// allocNode places a node of the given aligned size: in the caller's
// preferred page when it has room (clustering siblings), else in the
// page hinted for the bucket, else in a brand-new page which then becomes
// the hint. Returns the node with its page locked and marked dirty.
func (s *Store) allocNode(preferred *page, size, bucket int) (lnode, error) {
	var p *page
	if preferred != nil && preferred.pageType() != pageTypeData {
		// an empty collection's root slot lives in the header page
		preferred = nil
	}
	if preferred != nil && size <= preferred.freeSpace() {
		p = preferred
		lockPage(p)
		p.setDirty()
	} else {
		pageNum := s.cache.header.pagePoolHint(bucket)
		if pageNum != 0 {
			hinted, err := s.getPage(uint64(pageNum) * PageSize)
			if err != nil {
				return lnode{}, err
			}
			if size > hinted.freeSpace() {
				unlockPage(hinted)
			} else {
				hinted.setDirty()
				p = hinted
			}
		}
		if p == nil {
			created, err := s.createPage()
			if err != nil {
				return lnode{}, err
			}
			if size > created.freeSpace() {
				unlockPage(created)
				return lnode{}, NewErrorMsg(ErrInternal, "not enough free space in page")
			}
			s.cache.header.setPagePoolHint(bucket, uint32(created.offset()/PageSize))
			p = created
		}
	}

	nodeOfs, err := p.insertNode(size)
	if err != nil {
		unlockPage(p)
		return lnode{}, err
	}
	return lnode{p, nodeOfs}, nil
}

// createNode allocates and initializes a node shell: header, name, null
// children. The typed payload area is zeroed; callers fill it in.
func (s *Store) createNode(preferred *page, key *Key, szvalue, typ, bucket int) (lnode, error) {
	dataOfs := alignNode(nodeHdrSize + len(key.Buf))
	size := alignNode(dataOfs + nodeClasses[typ].szdata + szvalue)

	node, err := s.allocNode(preferred, size, bucket)
	if err != nil {
		return lnode{}, err
	}
	nodeSetType(node.p, node.ofs, typ)
	node.left().set(0)
	node.right().set(0)
	nodeSetNameLen(node.p, node.ofs, len(key.Buf))
	copy(node.p.data[node.ofs+nodeHdrSize:], key.Buf)
	return node, nil
}
