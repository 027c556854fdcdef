package avstor

// CheckCacheConsistency verifies that no cached page has a leftover lock
// count. Every public call must return with all page locks released, so a
// nonzero count between operations means the engine (or a crashed caller)
// abandoned a page.
func (s *Store) CheckCacheConsistency() error {
	for r := range s.cache.rows {
		row := &s.cache.rows[r]
		for c := range row.items {
			p := row.items[c].page
			if p == nil {
				break
			}
			if p.lockCount.Load() != 0 {
				return NewErrorMsg(ErrCorrupt, "cached page with nonzero lock count")
			}
		}
	}
	return nil
}

// checkPage verifies a data page's slotted-format invariants: the freelist
// chain and the live slots partition the slot array, every live slot
// points into the node area with a matching back-pointer, the node area is
// densely packed, and top equals the lowest live node offset.
func checkPage(p *page) error {
	count := p.slotCount()
	top := p.top()
	if top > PageSize || pageSlotBase+2*count > top {
		return NewErrorMsg(ErrCorrupt, "slot array overlaps node area")
	}

	kind := make([]byte, count) // 0 live, 1 free
	for f := p.freelist(); f != invalidIndex; f = p.slot(int(f)) {
		i := (int(f) - pageSlotBase) / 2
		if int(f) != pageSlotBase+2*i || i < 0 || i >= count {
			return NewErrorMsg(ErrCorrupt, "freelist entry outside slot array")
		}
		if kind[i] != 0 {
			return NewErrorMsg(ErrCorrupt, "freelist cycle")
		}
		kind[i] = 1
	}

	minNode := PageSize
	used := 0
	for i := 0; i < count; i++ {
		if kind[i] != 0 {
			continue
		}
		slotOfs := pageSlotBase + 2*i
		v := int(p.slot(slotOfs))
		if v < top || v >= PageSize {
			return NewErrorMsg(ErrCorrupt, "slot points outside node area")
		}
		if nodeSlotOfs(p, v) != slotOfs {
			return NewErrorMsg(ErrCorrupt, "node slot back-pointer mismatch")
		}
		used += nodeSize(p, v)
		if v < minNode {
			minNode = v
		}
	}

	if used != PageSize-top {
		return NewErrorMsg(ErrCorrupt, "node area not densely packed")
	}
	if used > 0 && minNode != top {
		return NewErrorMsg(ErrCorrupt, "top does not match lowest node")
	}
	return nil
}
