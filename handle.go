package avstor

// Node is an opaque handle naming a node in a store: the store pointer and
// the node's file offset. The zero offset names the root sentinel, which
// holds the top-level key collection. Handles stay valid across operations
// (they address the node through its page slot). A handle whose node has
// been deleted fails with ErrInvOper on use while that slot stays free;
// once a later allocation in the same page reuses the slot, the handle
// names the new node.
type Node struct {
	ref uint64
	db  *Store
}

// NodeInit binds a handle to the store and points it at the root.
func (s *Store) NodeInit(n *Node) {
	n.db = s
	n.ref = 0
}

// Destroy clears the handle.
func (n *Node) Destroy() {
	n.db = nil
	n.ref = 0
}

// IsRoot reports whether the handle names the root sentinel.
func (n *Node) IsRoot() bool {
	return n.ref == 0
}

func (n *Node) setNode(off uint64, db *Store) {
	n.db = db
	n.ref = off
}

// lockNoderef locks the node a handle names. The root sentinel holds no
// node, so a zero reference is a parameter error.
func (s *Store) lockNoderef(n *Node) (lnode, error) {
	if n.ref == 0 {
		return lnode{}, NewError(ErrParam)
	}
	return s.lockNode(n.ref)
}

// lockKeyref is lockNoderef plus a key-type check.
func (s *Store) lockKeyref(n *Node) (lnode, error) {
	node, err := s.lockNoderef(n)
	if err != nil {
		return lnode{}, err
	}
	if nodeType(node.p, node.ofs) != TypeKey {
		unlockPage(node.p)
		return lnode{}, NewError(ErrMismatch)
	}
	return node, nil
}

// lockValueref is lockNoderef plus an exact-type check.
func (s *Store) lockValueref(n *Node, typ int) (lnode, error) {
	node, err := s.lockNoderef(n)
	if err != nil {
		return lnode{}, err
	}
	if nodeType(node.p, node.ofs) != typ {
		unlockPage(node.p)
		return lnode{}, NewError(ErrMismatch)
	}
	return node, nil
}

// collectionRoot resolves the subkey or value collection root of parent.
// parentNode is the locked parent, or an invalid lnode for the root
// sentinel, in which case the header's user-tree root is used.
func (s *Store) collectionRoot(parentNode lnode, isValue bool) refSlot {
	if !parentNode.valid() {
		return refSlot{s.cache.header, hdrOffRoot}
	}
	if isValue {
		return refSlot{parentNode.p, keyValueRootOfs(parentNode.p, parentNode.ofs)}
	}
	return refSlot{parentNode.p, keySubkeyRootOfs(parentNode.p, parentNode.ofs)}
}

// failMut records a mutating operation's failure. Resource, storage and
// invariant failures roll the cache back to the last committed state;
// caller-misuse and state errors were detected before any change and
// return directly. The caller releases its page locks first.
func (s *Store) failMut(err error) error {
	s.setLastError(err)
	switch Code(err) {
	case ErrNoMem, ErrIO, ErrCorrupt, ErrInternal, ErrAbort:
		s.rollback()
	}
	return err
}

// failRead records a read operation's failure; reads never roll back.
func (s *Store) failRead(err error) error {
	s.setLastError(err)
	return err
}

// unlockIf releases a page lock if the page is held at all.
func unlockIf(p *page) {
	if p != nil {
		unlockPage(p)
	}
}
