package avstor

// Back-links. A second top-level tree, keyed by target offset, mirrors
// every link in the user tree: under each target key a sub-tree of link
// records names the sources pointing at it. Creating or deleting a link
// maintains both sides; deleting any node refuses while the back-link
// tree still names it as a target. This cross-reference cycle is
// structural; every mutation operates on both sides.

func (s *Store) rootLinks() refSlot {
	return refSlot{s.cache.header, hdrOffRootLinks}
}

// createBacklink records "link points at target". Called with the link
// already inserted into the user tree; st is reused scratch space.
func (s *Store) createBacklink(st *backtrace, link, target uint64) error {
	targetKey := offsetKey(target)
	node, lastRef, err := s.findNodeWithBacktrace(targetKey, st, s.rootLinks(), true)
	if err != nil {
		return err
	}
	if !node.valid() {
		// first link to this target: create its key in the back-link tree
		node, err = s.createNode(lastRef.p, targetKey, 0, TypeKey, backlinkPool)
		if err != nil {
			unlockIf(lastRef.p)
			return err
		}
		d := nodeDataOfs(node.p, node.ofs)
		putRef(node.p.data[d:], 0)
		putRef(node.p.data[d+refSize:], 0)
		keySetLevel(node.p, node.ofs, 0)
		if err = s.insertNode(node, st); err != nil {
			unlockPage(node.p)
			unlockIf(lastRef.p)
			return err
		}
	}
	unlockIf(lastRef.p)

	sourceKey := offsetKey(link)
	valueRoot := refSlot{node.p, keyValueRootOfs(node.p, node.ofs)}
	linkNode, lastRef, err := s.findNodeWithBacktrace(sourceKey, st, valueRoot, true)
	if err != nil {
		unlockPage(node.p)
		return err
	}
	if linkNode.valid() {
		unlockPage(linkNode.p)
		unlockPage(node.p)
		return NewErrorMsg(ErrInternal, "back-link record already exists")
	}
	linkNode, err = s.createNode(lastRef.p, sourceKey, 0, TypeLink, backlinkPool)
	if err != nil {
		unlockIf(lastRef.p)
		unlockPage(node.p)
		return err
	}
	nodeSetLinkTarget(linkNode.p, linkNode.ofs, link)
	if err = s.insertNode(linkNode, st); err != nil {
		unlockPage(linkNode.p)
		unlockIf(lastRef.p)
		unlockPage(node.p)
		return err
	}
	unlockIf(lastRef.p)
	unlockPage(linkNode.p)
	unlockPage(node.p)
	return nil
}

// existsLinkToNode reports whether any link names node as its target.
func (s *Store) existsLinkToNode(node lnode) (bool, error) {
	found, err := s.findKey(offsetKey(node.ref()), s.rootLinks())
	if err != nil {
		return false, err
	}
	if found.valid() {
		unlockPage(found.p)
		return true, nil
	}
	return false, nil
}

// deleteBacklink removes the companion record of a link node that is
// about to be deleted. When the record was the target's last, the target
// key itself is removed from the back-link tree.
func (s *Store) deleteBacklink(node lnode) error {
	target := nodeLinkTarget(node.p, node.ofs)

	var st backtrace
	lk, _, err := s.findNodeWithBacktrace(offsetKey(target), &st, s.rootLinks(), false)
	if err != nil {
		return err
	}
	if !lk.valid() {
		return nil
	}
	lkSlot := nodeSlotOfs(lk.p, lk.ofs)

	var stLink backtrace
	valueRoot := refSlot{lk.p, keyValueRootOfs(lk.p, lk.ofs)}
	lv, _, err := s.findNodeWithBacktrace(offsetKey(node.ref()), &stLink, valueRoot, false)
	if err != nil {
		unlockPage(lk.p)
		return err
	}
	if lv.valid() {
		err = s.deleteNode(lv, &stLink)
		unlockPage(lv.p)
		if err != nil {
			unlockPage(lk.p)
			return err
		}
		// the free may have compacted lk's page; re-resolve through the slot
		lkOfs, err := lk.p.nodeAt(lkSlot)
		if err != nil {
			unlockPage(lk.p)
			return err
		}
		lk.ofs = lkOfs
	}
	if getRef(lk.p.data[keyValueRootOfs(lk.p, lk.ofs):]) == 0 {
		// that was the last record for this target: drop the target key
		err = s.deleteNode(lk, &st)
		unlockPage(lk.p)
		return err
	}
	unlockPage(lk.p)
	return nil
}
