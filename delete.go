package avstor

// Delete removes the node named by key from parent's subkey or value
// collection (chosen by flags). The search runs under the shared store
// lock; the lock is upgraded before mutating. If another upgrader is
// ahead, the shared lock is released and the whole operation retries.
//
// A key that still has subkeys or values, and any node that is the target
// of a link, refuse deletion with ErrInvOper. Deleting a link removes its
// back-link record as well.
func (parent *Node) Delete(flags int, key *Key) error {
	db := parent.db
	if db == nil || key == nil {
		return NewError(ErrParam)
	}
	db.clearLastError()
	isValue := flags&Values != 0
	if key.invalid() || (isValue && parent.ref == 0) {
		return db.failRead(NewError(ErrParam))
	}

retry:
	db.global.lockShared()

	var parentNode lnode
	var err error
	if parent.ref != 0 {
		parentNode, err = db.lockKeyref(parent)
		if err != nil {
			err = db.failMut(err)
			db.global.release()
			return err
		}
	}
	rootRef := db.collectionRoot(parentNode, isValue)

	var st backtrace
	node, lastRef, err := db.findNodeWithBacktrace(key, &st, rootRef, true)
	if err != nil {
		unlockIf(parentNode.p)
		err = db.failMut(err)
		db.global.release()
		return err
	}
	if !node.valid() {
		unlockIf(lastRef.p)
		unlockIf(parentNode.p)
		err = db.failRead(NewError(ErrNotFound))
		db.global.release()
		return err
	}

	bail := func(e error) error {
		unlockPage(node.p)
		unlockIf(parentNode.p)
		e = db.failMut(e)
		db.global.release()
		return e
	}

	if nodeType(node.p, node.ofs) == TypeKey {
		d := nodeDataOfs(node.p, node.ofs)
		if getRef(node.p.data[d:]) != 0 || getRef(node.p.data[d+refSize:]) != 0 {
			return bail(NewErrorMsg(ErrInvOper, "node has subkeys and/or values, unable to delete"))
		}
	}
	linked, err := db.existsLinkToNode(node)
	if err != nil {
		return bail(err)
	}
	if linked {
		return bail(NewErrorMsg(ErrInvOper, "node is the target of a link reference, unable to delete"))
	}

	if !db.global.upgrade() {
		// another upgrader is ahead; start over from a clean shared state
		unlockPage(node.p)
		unlockIf(parentNode.p)
		db.global.release()
		goto retry
	}

	if nodeType(node.p, node.ofs) == TypeLink {
		// deleting a link also deletes its back-link record
		nodeSlot := nodeSlotOfs(node.p, node.ofs)
		if err = db.deleteBacklink(node); err != nil {
			return bail(err)
		}
		// the back-link removal may have compacted node's page
		nodeOfs, err := node.p.nodeAt(nodeSlot)
		if err != nil {
			return bail(err)
		}
		node.ofs = nodeOfs
	}

	if err = db.deleteNode(node, &st); err != nil {
		return bail(err)
	}
	unlockPage(node.p)
	unlockIf(parentNode.p)
	db.global.release()
	return nil
}
