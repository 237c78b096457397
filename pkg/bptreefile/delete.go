package bptreefile

import "github.com/ssargent/freyjadb/pkg/indexfile"

// erase is a top-down, preemptive-rebalance algorithm dual to insert's
// preemptive split. eraseNonunderflow only ever recurses into a child that
// already satisfies the non-underflow guarantee, so no ascending fix-up pass
// is required beyond the routing-key patch-up eraseNonunderflow itself
// performs on the way back up.
func (t *Tree) erase(key uint64) (bool, error) {
	h := t.idx.Header()
	if h.TreeHeight == 0 {
		return false, nil
	}

	found, err := t.eraseNonunderflow(h.RootOffset, key)
	if err != nil {
		return false, err
	}

	root, err := t.readNode(h.RootOffset)
	if err != nil {
		return false, err
	}

	if root.KeyCnt == 0 {
		t.idx.SetTreeHeight(0)
	} else {
		height := h.TreeHeight
		rootOffset := h.RootOffset
		for !root.IsLeaf() && root.KeyCnt == 1 {
			rootOffset = root.Children[0]
			height--
			root, err = t.readNode(rootOffset)
			if err != nil {
				return false, err
			}
		}
		t.idx.SetRootOffset(rootOffset)
		t.idx.SetTreeHeight(height)
	}

	if err := t.idx.FlushHeader(); err != nil {
		return false, wrapIOErr("flush header", err)
	}

	return found, nil
}

// eraseNonunderflow removes key from the subtree rooted at offset. offset
// must either be the tree's root, or a node already known to have
// KeyCnt > Half (so that descending into one of its children and possibly
// merging two of Half size each still leaves this node non-underflowing).
func (t *Tree) eraseNonunderflow(offset uint64, key uint64) (bool, error) {
	node, err := t.readNode(offset)
	if err != nil {
		return false, err
	}

	i, found := routeIndex(node, key)
	if !found {
		return false, nil
	}

	if node.IsLeaf() {
		if node.Keys[i] != key {
			return false, nil
		}
		for j := i; j < int(node.KeyCnt)-1; j++ {
			node.Keys[j] = node.Keys[j+1]
			node.Children[j] = node.Children[j+1]
		}
		node.KeyCnt--
		return true, t.writeNode(offset, node)
	}

	child, err := t.readNode(node.Children[i])
	if err != nil {
		return false, err
	}

	if int(child.KeyCnt) == indexfile.Half {
		newI, err := t.rebalanceChild(offset, i)
		if err != nil {
			return false, err
		}
		i = newI
		// Re-read node/child: rebalanceChild mutated this node's keys and
		// children in place on disk.
		node, err = t.readNode(offset)
		if err != nil {
			return false, err
		}
	}

	erased, err := t.eraseNonunderflow(node.Children[i], key)
	if err != nil {
		return false, err
	}

	node, err = t.readNode(offset)
	if err != nil {
		return false, err
	}
	childAfter, err := t.readNode(node.Children[i])
	if err != nil {
		return false, err
	}
	if node.Keys[i] != childAfter.Keys[childAfter.KeyCnt-1] {
		node.Keys[i] = childAfter.Keys[childAfter.KeyCnt-1]
		if err := t.writeNode(offset, node); err != nil {
			return false, err
		}
	}

	return erased, nil
}

// rebalanceChild ensures parent.Children[i], which currently holds exactly
// Half keys, will not underflow once a key is removed from beneath it: it
// borrows a slot from a sibling with slack, or merges with a sibling
// otherwise. It returns the (possibly shifted, when a merge happened to the
// left) index to descend into next.
func (t *Tree) rebalanceChild(parentOffset uint64, i int) (int, error) {
	parent, err := t.readNode(parentOffset)
	if err != nil {
		return 0, err
	}

	if i > 0 {
		leftOffset := parent.Children[i-1]
		left, err := t.readNode(leftOffset)
		if err != nil {
			return 0, err
		}
		if int(left.KeyCnt) > indexfile.Half {
			childOffset := parent.Children[i]
			child, err := t.readNode(childOffset)
			if err != nil {
				return 0, err
			}

			for j := int(child.KeyCnt); j > 0; j-- {
				child.Keys[j] = child.Keys[j-1]
				child.Children[j] = child.Children[j-1]
			}
			child.Keys[0] = left.Keys[left.KeyCnt-1]
			child.Children[0] = left.Children[left.KeyCnt-1]
			child.KeyCnt++
			left.KeyCnt--

			parent.Keys[i-1] = left.Keys[left.KeyCnt-1]

			if err := t.writeNode(leftOffset, left); err != nil {
				return 0, err
			}
			if err := t.writeNode(childOffset, child); err != nil {
				return 0, err
			}
			if err := t.writeNode(parentOffset, parent); err != nil {
				return 0, err
			}
			return i, nil
		}
	}

	if i < int(parent.KeyCnt)-1 {
		rightOffset := parent.Children[i+1]
		right, err := t.readNode(rightOffset)
		if err != nil {
			return 0, err
		}
		if int(right.KeyCnt) > indexfile.Half {
			childOffset := parent.Children[i]
			child, err := t.readNode(childOffset)
			if err != nil {
				return 0, err
			}

			child.Keys[child.KeyCnt] = right.Keys[0]
			child.Children[child.KeyCnt] = right.Children[0]
			child.KeyCnt++

			for j := 0; j < int(right.KeyCnt)-1; j++ {
				right.Keys[j] = right.Keys[j+1]
				right.Children[j] = right.Children[j+1]
			}
			right.KeyCnt--

			parent.Keys[i] = child.Keys[child.KeyCnt-1]

			if err := t.writeNode(childOffset, child); err != nil {
				return 0, err
			}
			if err := t.writeNode(rightOffset, right); err != nil {
				return 0, err
			}
			if err := t.writeNode(parentOffset, parent); err != nil {
				return 0, err
			}
			return i, nil
		}
	}

	if i < int(parent.KeyCnt)-1 {
		if err := t.mergeChild(parentOffset, i); err != nil {
			return 0, err
		}
		return i, nil
	}

	if err := t.mergeChild(parentOffset, i-1); err != nil {
		return 0, err
	}
	return i - 1, nil
}

// mergeChild combines parent.Children[i] and parent.Children[i+1], both
// assumed to hold exactly Half keys, into a single node of Order keys
// occupying the left sibling's slot. The right sibling's slot is
// "freed" only in the sense that nothing references it anymore. Per the
// append-only allocator, its index-file slot is never reclaimed.
func (t *Tree) mergeChild(parentOffset uint64, i int) error {
	parent, err := t.readNode(parentOffset)
	if err != nil {
		return err
	}

	leftOffset := parent.Children[i]
	left, err := t.readNode(leftOffset)
	if err != nil {
		return err
	}
	rightOffset := parent.Children[i+1]
	right, err := t.readNode(rightOffset)
	if err != nil {
		return err
	}

	for j := 0; j < int(right.KeyCnt); j++ {
		left.Keys[indexfile.Half+j] = right.Keys[j]
		left.Children[indexfile.Half+j] = right.Children[j]
	}
	left.KeyCnt = indexfile.Order

	if left.IsLeaf() {
		left.NextLeaf = right.NextLeaf
	}

	if err := t.writeNode(leftOffset, left); err != nil {
		return err
	}

	for j := i; j < int(parent.KeyCnt)-1; j++ {
		parent.Keys[j] = parent.Keys[j+1]
	}
	for j := i + 1; j < int(parent.KeyCnt)-1; j++ {
		parent.Children[j] = parent.Children[j+1]
	}
	parent.KeyCnt--

	return t.writeNode(parentOffset, parent)
}
