package avstor

import "math"

// Create operations. Each runs under the store's exclusive lock, searches
// the parent's collection with a backtrace, allocates the node preferring
// the page of the insertion point (keeping siblings clustered), attaches
// it and rebalances.

// CreateKey creates a subkey named by key under parent (the root sentinel
// or another key). If a subkey with that name already exists, ErrExists is
// returned and out (when non-nil) is pointed at the existing node.
func (parent *Node) CreateKey(key *Key, out *Node) error {
	db := parent.db
	if db == nil || key == nil {
		return NewError(ErrParam)
	}
	db.clearLastError()
	if key.invalid() {
		return db.failRead(NewError(ErrParam))
	}
	db.global.lockExclusive()
	defer db.global.release()

	var parentNode lnode
	level := 1 // level 0 is reserved for the back-link tree
	if parent.ref != 0 {
		var err error
		parentNode, err = db.lockKeyref(parent)
		if err != nil {
			return db.failMut(err)
		}
		level = keyLevel(parentNode.p, parentNode.ofs) + 1
	}
	rootRef := db.collectionRoot(parentNode, false)

	var st backtrace
	found, lastRef, err := db.findNodeWithBacktrace(key, &st, rootRef, true)
	if err != nil {
		unlockIf(parentNode.p)
		return db.failMut(err)
	}
	if found.valid() {
		if out != nil {
			out.setNode(found.ref(), db)
		}
		unlockPage(found.p)
		unlockIf(parentNode.p)
		return db.failRead(NewError(ErrExists))
	}

	node, err := db.createNode(lastRef.p, key, 0, TypeKey, levelBucket(level, false))
	if err != nil {
		unlockIf(lastRef.p)
		unlockIf(parentNode.p)
		return db.failMut(err)
	}
	d := nodeDataOfs(node.p, node.ofs)
	putRef(node.p.data[d:], 0)
	putRef(node.p.data[d+refSize:], 0)
	keySetLevel(node.p, node.ofs, level)

	if err = db.insertNode(node, &st); err != nil {
		unlockPage(node.p)
		unlockIf(lastRef.p)
		unlockIf(parentNode.p)
		return db.failMut(err)
	}
	if out != nil {
		out.setNode(node.ref(), db)
	}
	unlockPage(node.p)
	unlockIf(lastRef.p)
	unlockIf(parentNode.p)
	return nil
}

// createValue is the shared path of every value constructor: find the name
// in the parent's value collection, allocate, let fill write the payload,
// insert and rebalance.
func createValue(parent *Node, key *Key, szvalue, typ int, out *Node, fill func(lnode)) error {
	db := parent.db
	if db == nil || key == nil {
		return NewError(ErrParam)
	}
	db.clearLastError()
	if key.invalid() {
		return db.failRead(NewError(ErrParam))
	}
	db.global.lockExclusive()
	defer db.global.release()

	parentNode, err := db.lockKeyref(parent)
	if err != nil {
		return db.failMut(err)
	}
	level := keyLevel(parentNode.p, parentNode.ofs)
	rootRef := db.collectionRoot(parentNode, true)

	var st backtrace
	found, lastRef, err := db.findNodeWithBacktrace(key, &st, rootRef, true)
	if err != nil {
		unlockPage(parentNode.p)
		return db.failMut(err)
	}
	if found.valid() {
		unlockPage(found.p)
		unlockPage(parentNode.p)
		return db.failRead(NewError(ErrExists))
	}

	node, err := db.createNode(lastRef.p, key, szvalue, typ, levelBucket(level, true))
	if err != nil {
		unlockIf(lastRef.p)
		unlockPage(parentNode.p)
		return db.failMut(err)
	}
	fill(node)

	if err = db.insertNode(node, &st); err != nil {
		unlockPage(node.p)
		unlockIf(lastRef.p)
		unlockPage(parentNode.p)
		return db.failMut(err)
	}
	if out != nil {
		out.setNode(node.ref(), db)
	}
	unlockIf(lastRef.p)
	unlockPage(node.p)
	unlockPage(parentNode.p)
	return nil
}

// CreateInt32 creates an int32 value under parent.
func (parent *Node) CreateInt32(key *Key, value int32, out *Node) error {
	return createValue(parent, key, 0, TypeInt32, out, func(node lnode) {
		nodeSetInt32(node.p, node.ofs, value)
	})
}

// CreateInt64 creates an int64 value under parent.
func (parent *Node) CreateInt64(key *Key, value int64, out *Node) error {
	return createValue(parent, key, 0, TypeInt64, out, func(node lnode) {
		nodeSetUint64(node.p, node.ofs, uint64(value))
	})
}

// CreateDouble creates a double value under parent.
func (parent *Node) CreateDouble(key *Key, value float64, out *Node) error {
	return createValue(parent, key, 0, TypeDouble, out, func(node lnode) {
		nodeSetUint64(node.p, node.ofs, math.Float64bits(value))
	})
}

// CreateString creates a short string value under parent. The terminator
// is not stored; value may be at most MaxStringLen bytes.
func (parent *Node) CreateString(key *Key, value string, out *Node) error {
	if len(value) > MaxStringLen {
		return parent.paramError()
	}
	return createValue(parent, key, len(value), TypeString, out, func(node lnode) {
		nodeSetVarLen(node.p, node.ofs, len(value))
		copy(node.p.data[nodeDataOfs(node.p, node.ofs)+1:], value)
	})
}

// CreateBinary creates a short binary value under parent; value may be at
// most MaxBinaryLen bytes.
func (parent *Node) CreateBinary(key *Key, value []byte, out *Node) error {
	if len(value) > MaxBinaryLen {
		return parent.paramError()
	}
	return createValue(parent, key, len(value), TypeBinary, out, func(node lnode) {
		nodeSetVarLen(node.p, node.ofs, len(value))
		copy(node.p.data[nodeDataOfs(node.p, node.ofs)+1:], value)
	})
}

// CreateLink creates a link value under parent pointing at target, and
// records the companion back-link so deletes of the target can refuse.
func (parent *Node) CreateLink(key *Key, target *Node, out *Node) error {
	db := parent.db
	if db == nil || key == nil || target == nil {
		return NewError(ErrParam)
	}
	db.clearLastError()
	if key.invalid() || target.ref == 0 || target.db != db {
		return db.failRead(NewError(ErrParam))
	}
	db.global.lockExclusive()
	defer db.global.release()

	parentNode, err := db.lockKeyref(parent)
	if err != nil {
		return db.failMut(err)
	}
	level := keyLevel(parentNode.p, parentNode.ofs)
	rootRef := db.collectionRoot(parentNode, true)

	var st backtrace
	found, lastRef, err := db.findNodeWithBacktrace(key, &st, rootRef, true)
	if err != nil {
		unlockPage(parentNode.p)
		return db.failMut(err)
	}
	if found.valid() {
		unlockPage(found.p)
		unlockPage(parentNode.p)
		return db.failRead(NewError(ErrExists))
	}

	node, err := db.createNode(lastRef.p, key, 0, TypeLink, levelBucket(level, true))
	if err != nil {
		unlockIf(lastRef.p)
		unlockPage(parentNode.p)
		return db.failMut(err)
	}
	nodeSetLinkTarget(node.p, node.ofs, target.ref)

	if err = db.insertNode(node, &st); err != nil {
		unlockPage(node.p)
		unlockIf(lastRef.p)
		unlockPage(parentNode.p)
		return db.failMut(err)
	}
	linkOfs := node.ref()
	unlockIf(lastRef.p)
	unlockPage(node.p)

	if err = db.createBacklink(&st, linkOfs, target.ref); err != nil {
		unlockPage(parentNode.p)
		return db.failMut(err)
	}
	if out != nil {
		out.setNode(linkOfs, db)
	}
	unlockPage(parentNode.p)
	return nil
}

func (n *Node) paramError() error {
	if n.db != nil {
		n.db.clearLastError()
		return n.db.failRead(NewError(ErrParam))
	}
	return NewError(ErrParam)
}
