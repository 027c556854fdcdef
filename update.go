package avstor

import "math"

// Update operations. Fixed-size updates write in place; string and binary
// updates resize the node inside its page when the length changes, which
// compacts the page and may move the node (its reference stays stable
// through the slot back-pointer).

func (n *Node) updateFixed(typ int, write func(lnode)) error {
	db := n.db
	if db == nil {
		return NewError(ErrParam)
	}
	db.clearLastError()
	db.global.lockExclusive()
	defer db.global.release()

	node, err := db.lockValueref(n, typ)
	if err != nil {
		return db.failMut(err)
	}
	write(node)
	node.p.setDirty()
	unlockPage(node.p)
	return nil
}

// UpdateInt32 replaces an int32 value.
func (n *Node) UpdateInt32(v int32) error {
	return n.updateFixed(TypeInt32, func(node lnode) {
		nodeSetInt32(node.p, node.ofs, v)
	})
}

// UpdateInt64 replaces an int64 value.
func (n *Node) UpdateInt64(v int64) error {
	return n.updateFixed(TypeInt64, func(node lnode) {
		nodeSetUint64(node.p, node.ofs, uint64(v))
	})
}

// UpdateDouble replaces a double value.
func (n *Node) UpdateDouble(v float64) error {
	return n.updateFixed(TypeDouble, func(node lnode) {
		nodeSetUint64(node.p, node.ofs, math.Float64bits(v))
	})
}

func (n *Node) updateVar(typ int, buf []byte) error {
	db := n.db
	if db == nil {
		return NewError(ErrParam)
	}
	db.clearLastError()
	db.global.lockExclusive()
	defer db.global.release()

	node, err := db.lockValueref(n, typ)
	if err != nil {
		return db.failMut(err)
	}
	if len(buf) != nodeVarLen(node.p, node.ofs) {
		szname := nodeNameLen(node.p, node.ofs)
		newSize := alignNode(alignNode(nodeHdrSize+szname) + nodeClasses[typ].szdata + len(buf))
		newOfs, err := node.p.resizeNode(node.ofs, newSize)
		if err != nil {
			unlockPage(node.p)
			return db.failMut(err)
		}
		node.ofs = newOfs
		nodeSetVarLen(node.p, node.ofs, len(buf))
	}
	copy(node.p.data[nodeDataOfs(node.p, node.ofs)+1:], buf)
	node.p.setDirty()
	unlockPage(node.p)
	return nil
}

// UpdateString replaces a short string value; the new value may be at
// most MaxStringLen bytes.
func (n *Node) UpdateString(v string) error {
	if len(v) > MaxStringLen {
		return n.paramError()
	}
	return n.updateVar(TypeString, []byte(v))
}

// UpdateBinary replaces a short binary value; the new value may be at
// most MaxBinaryLen bytes.
func (n *Node) UpdateBinary(v []byte) error {
	if len(v) > MaxBinaryLen {
		return n.paramError()
	}
	return n.updateVar(TypeBinary, v)
}
