package avstor

import "math"

// Read operations. Each runs under the shared store lock and releases
// every page lock before returning; reads never roll back.

// Find looks up key in parent's subkey or value collection (chosen by
// flags) and points out at the match. Returns ErrNotFound when the name
// is absent.
func (parent *Node) Find(key *Key, flags int, out *Node) error {
	db := parent.db
	if db == nil || key == nil || out == nil {
		return NewError(ErrParam)
	}
	db.clearLastError()
	isValue := flags&Values != 0
	if key.invalid() || (isValue && parent.ref == 0) {
		return db.failRead(NewError(ErrParam))
	}
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
	found, err := db.findKey(key, db.collectionRoot(parentNode, isValue))
	if err != nil {
		unlockIf(parentNode.p)
		return db.failRead(err)
	}
	if !found.valid() {
		unlockIf(parentNode.p)
		return db.failRead(NewError(ErrNotFound))
	}
	out.setNode(found.ref(), db)
	unlockPage(found.p)
	unlockIf(parentNode.p)
	return nil
}

// GetType returns the node's type.
func (n *Node) GetType() (int, error) {
	db := n.db
	if db == nil {
		return 0, NewError(ErrParam)
	}
	db.clearLastError()
	db.global.lockShared()
	defer db.global.release()

	node, err := db.lockNoderef(n)
	if err != nil {
		return 0, db.failRead(err)
	}
	typ := nodeType(node.p, node.ofs)
	unlockPage(node.p)
	return typ, nil
}

// GetName returns a copy of the node's name.
func (n *Node) GetName() ([]byte, error) {
	db := n.db
	if db == nil {
		return nil, NewError(ErrParam)
	}
	db.clearLastError()
	db.global.lockShared()
	defer db.global.release()

	node, err := db.lockNoderef(n)
	if err != nil {
		return nil, db.failRead(err)
	}
	name := append([]byte(nil), nodeName(node.p, node.ofs)...)
	unlockPage(node.p)
	return name, nil
}

// GetValue returns the node's type and a copy of its payload bytes: the
// inline bytes for string and binary values, the fixed payload (in file
// byte order) for everything else. Key nodes have no value.
func (n *Node) GetValue() (int, []byte, error) {
	db := n.db
	if db == nil {
		return 0, nil, NewError(ErrParam)
	}
	db.clearLastError()
	db.global.lockShared()
	defer db.global.release()

	node, err := db.lockNoderef(n)
	if err != nil {
		return 0, nil, db.failRead(err)
	}
	typ := nodeType(node.p, node.ofs)
	if typ == TypeKey {
		unlockPage(node.p)
		return 0, nil, db.failRead(NewError(ErrMismatch))
	}
	var data []byte
	if nodeClasses[typ].flags&nodeFlagVar != 0 {
		data = append([]byte(nil), nodeVarBytes(node.p, node.ofs)...)
	} else {
		d := nodeDataOfs(node.p, node.ofs)
		data = append([]byte(nil), node.p.data[d:d+nodeClasses[typ].szdata]...)
	}
	unlockPage(node.p)
	return typ, data, nil
}

// GetInt32 reads an int32 value.
func (n *Node) GetInt32() (int32, error) {
	db := n.db
	if db == nil {
		return 0, NewError(ErrParam)
	}
	db.clearLastError()
	db.global.lockShared()
	defer db.global.release()

	node, err := db.lockValueref(n, TypeInt32)
	if err != nil {
		return 0, db.failRead(err)
	}
	v := nodeInt32(node.p, node.ofs)
	unlockPage(node.p)
	return v, nil
}

func (n *Node) getFixed64(typ int) (uint64, error) {
	db := n.db
	if db == nil {
		return 0, NewError(ErrParam)
	}
	db.clearLastError()
	db.global.lockShared()
	defer db.global.release()

	node, err := db.lockValueref(n, typ)
	if err != nil {
		return 0, db.failRead(err)
	}
	v := nodeUint64(node.p, node.ofs)
	unlockPage(node.p)
	return v, nil
}

// GetInt64 reads an int64 value.
func (n *Node) GetInt64() (int64, error) {
	v, err := n.getFixed64(TypeInt64)
	return int64(v), err
}

// GetDouble reads a double value.
func (n *Node) GetDouble() (float64, error) {
	v, err := n.getFixed64(TypeDouble)
	return math.Float64frombits(v), err
}

func (n *Node) getVar(typ int) ([]byte, error) {
	db := n.db
	if db == nil {
		return nil, NewError(ErrParam)
	}
	db.clearLastError()
	db.global.lockShared()
	defer db.global.release()

	node, err := db.lockValueref(n, typ)
	if err != nil {
		return nil, db.failRead(err)
	}
	data := append([]byte(nil), nodeVarBytes(node.p, node.ofs)...)
	unlockPage(node.p)
	return data, nil
}

// GetString reads a short string value.
func (n *Node) GetString() (string, error) {
	data, err := n.getVar(TypeString)
	return string(data), err
}

// GetBinary reads a short binary value.
func (n *Node) GetBinary() ([]byte, error) {
	return n.getVar(TypeBinary)
}

// GetLink points out at the node a link value targets.
func (n *Node) GetLink(out *Node) error {
	db := n.db
	if db == nil || out == nil {
		return NewError(ErrParam)
	}
	db.clearLastError()
	db.global.lockShared()
	defer db.global.release()

	node, err := db.lockValueref(n, TypeLink)
	if err != nil {
		return db.failRead(err)
	}
	out.setNode(nodeLinkTarget(node.p, node.ofs), db)
	unlockPage(node.p)
	return nil
}
