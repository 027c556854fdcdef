package avstor

// Inorder is a resumable in-order traversal over one collection. Between
// calls it holds node references only, never page locks, so a traversal
// may be interleaved with other operations (mutations between steps are
// visible; there is no snapshot isolation).
type Inorder struct {
	refs  [MaxTreeHeight]uint64
	db    *Store
	top   int
	flags int
}

func (st *Inorder) empty() bool {
	return st.top < 0
}

func (st *Inorder) push(ref uint64) bool {
	if st.top >= MaxTreeHeight-1 {
		return false
	}
	st.top++
	st.refs[st.top] = ref
	return true
}

func (st *Inorder) pop() uint64 {
	ref := st.refs[st.top]
	st.top--
	return ref
}

func (st *Inorder) descending() bool {
	return st.flags&Descending != 0
}

// seek positions the stack at key within the tree rooted at ofs. Every
// node on the path that sorts at or after the key (in iteration order) is
// pushed, so that a missing key resumes at its successor. Returns the
// matching node's reference, or 0.
func (st *Inorder) seek(key *Key, ofs uint64) (uint64, error) {
	if ofs == 0 {
		return 0, nil
	}
	s := st.db
	cur, err := s.lockNode(ofs)
	if err != nil {
		return 0, err
	}
	comp := key.compare(nodeName(cur.p, cur.ofs))
	for {
		order := comp
		if st.descending() {
			order = -comp
		}
		if order <= 0 && !st.push(ofs) {
			unlockPage(cur.p)
			return 0, NewErrorMsg(ErrCorrupt, "traversal stack overflow")
		}
		if comp == 0 {
			unlockPage(cur.p)
			return ofs, nil
		}
		if comp < 0 {
			ofs = cur.left().get()
		} else {
			ofs = cur.right().get()
		}
		if ofs == 0 {
			unlockPage(cur.p)
			return 0, nil
		}
		cur, err = s.stepNode(ofs, cur)
		if err != nil {
			return 0, err
		}
		comp = key.compare(nodeName(cur.p, cur.ofs))
	}
}

// advance walks down from ofs pushing the iteration-order-first spine,
// then yields the stack top.
func (st *Inorder) advance(ofs uint64, out *Node) error {
	s := st.db
	var node lnode
	for !st.empty() || ofs != 0 {
		if ofs != 0 {
			if !st.push(ofs) {
				unlockIf(node.p)
				return NewErrorMsg(ErrCorrupt, "traversal stack overflow")
			}
			var err error
			node, err = s.stepNode(ofs, node)
			if err != nil {
				return err
			}
			if st.descending() {
				ofs = node.right().get()
			} else {
				ofs = node.left().get()
			}
		} else {
			unlockIf(node.p)
			out.setNode(st.refs[st.top], s)
			return nil
		}
	}
	unlockIf(node.p)
	st.top = -1
	return NewError(ErrNotFound)
}

// InorderFirst starts a traversal over parent's subkeys or values (chosen
// by flags, ascending or descending). With a key, the traversal starts at
// that name, or at its in-order successor when absent; without one, at
// the first name in iteration order. Returns ErrNotFound on an empty
// range.
func (parent *Node) InorderFirst(st *Inorder, key *Key, flags int, out *Node) error {
	db := parent.db
	if db == nil || st == nil || out == nil {
		return NewError(ErrParam)
	}
	db.clearLastError()
	isValue := flags&Values != 0
	if (key != nil && key.invalid()) || (isValue && parent.ref == 0) {
		return db.failRead(NewError(ErrParam))
	}
	st.db = db
	st.top = -1
	st.flags = flags

	db.global.lockShared()
	defer db.global.release()

	var parentNode lnode
	var err error
	if parent.ref != 0 {
		parentNode, err = db.lockKeyref(parent)
		if err != nil {
			return db.failRead(err)
		}
	}
	ofs := db.collectionRoot(parentNode, isValue).get()
	unlockIf(parentNode.p)

	if key == nil {
		if err = st.advance(ofs, out); err != nil {
			return db.failRead(err)
		}
		return nil
	}

	fref, err := st.seek(key, ofs)
	if err != nil {
		return db.failRead(err)
	}
	if fref != 0 {
		out.setNode(fref, db)
		return nil
	}
	if !st.empty() {
		// the next name in iteration order is on top of the stack;
		// it is not popped yet, its far subtree still needs walking
		out.setNode(st.refs[st.top], db)
		return nil
	}
	return db.failRead(NewError(ErrNotFound))
}

// Next yields the next node of the traversal, or ErrNotFound when it is
// exhausted.
func (st *Inorder) Next(out *Node) error {
	if st == nil || out == nil || st.db == nil {
		return NewError(ErrParam)
	}
	db := st.db
	db.clearLastError()
	if st.empty() {
		out.setNode(0, db)
		return NewError(ErrNotFound)
	}
	db.global.lockShared()
	defer db.global.release()

	node, err := db.lockNode(st.pop())
	if err != nil {
		return db.failRead(err)
	}
	var ofs uint64
	if st.descending() {
		ofs = node.left().get()
	} else {
		ofs = node.right().get()
	}
	unlockPage(node.p)
	if err = st.advance(ofs, out); err != nil {
		return db.failRead(err)
	}
	return nil
}
