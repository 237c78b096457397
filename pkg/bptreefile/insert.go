package bptreefile

import "github.com/ssargent/freyjadb/pkg/indexfile"

// insert is a top-down, preemptive-split algorithm. Every node insertNonfull
// recurses into is guaranteed to have slack (KeyCnt < Order) by the time it
// is visited, so no ascending fix-up pass is ever required.
func (t *Tree) insert(key uint64, value []byte) (bool, error) {
	h := t.idx.Header()

	if h.TreeHeight == 0 {
		dataOffset, err := t.data.Append(value)
		if err != nil {
			return false, wrapIOErr("append value", err)
		}

		leaf := &indexfile.Node{NodeType: indexfile.TypeLeaf, KeyCnt: 1}
		leaf.Keys[0] = key
		leaf.Children[0] = dataOffset
		leaf.NextLeaf = 0

		offset, err := t.allocNode(leaf)
		if err != nil {
			return false, err
		}

		t.idx.SetRootOffset(offset)
		t.idx.SetTreeHeight(1)
		if err := t.idx.FlushHeader(); err != nil {
			return false, wrapIOErr("flush header", err)
		}
		return true, nil
	}

	root, err := t.readNode(h.RootOffset)
	if err != nil {
		return false, err
	}

	rootOffset := h.RootOffset
	if int(root.KeyCnt) == indexfile.Order {
		newRoot := &indexfile.Node{NodeType: indexfile.TypeInternal, KeyCnt: 1}
		newRoot.Keys[0] = root.Keys[indexfile.Order-1]
		newRoot.Children[0] = rootOffset

		newRootOffset, err := t.allocNode(newRoot)
		if err != nil {
			return false, err
		}

		if err := t.splitIthChild(newRootOffset, 0); err != nil {
			return false, err
		}

		rootOffset = newRootOffset
		t.idx.SetRootOffset(rootOffset)
		t.idx.SetTreeHeight(h.TreeHeight + 1)
	}

	ok, err := t.insertNonfull(rootOffset, key, value)
	if err != nil {
		return false, err
	}

	if err := t.idx.FlushHeader(); err != nil {
		return false, wrapIOErr("flush header", err)
	}

	return ok, nil
}

// splitIthChild splits the full child at parent.Children[i] into itself
// (left, retaining the lower Half keys) and a freshly allocated right
// sibling, promoting the left half's maximum key into the parent.
func (t *Tree) splitIthChild(parentOffset uint64, i int) error {
	parent, err := t.readNode(parentOffset)
	if err != nil {
		return err
	}

	leftOffset := parent.Children[i]
	left, err := t.readNode(leftOffset)
	if err != nil {
		return err
	}

	right := &indexfile.Node{NodeType: left.NodeType, KeyCnt: indexfile.Half}
	for j := 0; j < indexfile.Half; j++ {
		right.Keys[j] = left.Keys[indexfile.Half+j]
		right.Children[j] = left.Children[indexfile.Half+j]
	}

	if left.IsLeaf() {
		right.NextLeaf = left.NextLeaf
	}

	rightOffset, err := t.allocNode(right)
	if err != nil {
		return err
	}

	if left.IsLeaf() {
		left.NextLeaf = rightOffset
	}
	left.KeyCnt = indexfile.Half
	if err := t.writeNode(leftOffset, left); err != nil {
		return err
	}

	for j := int(parent.KeyCnt); j > i; j-- {
		parent.Keys[j] = parent.Keys[j-1]
	}
	for j := int(parent.KeyCnt); j > i+1; j-- {
		parent.Children[j] = parent.Children[j-1]
	}
	parent.Keys[i] = left.Keys[indexfile.Half-1]
	parent.Children[i+1] = rightOffset
	parent.KeyCnt++

	return t.writeNode(parentOffset, parent)
}

// insertNonfull inserts key/value into the subtree rooted at offset, a node
// guaranteed to have KeyCnt < Order.
func (t *Tree) insertNonfull(offset uint64, key uint64, value []byte) (bool, error) {
	node, err := t.readNode(offset)
	if err != nil {
		return false, err
	}

	if node.IsLeaf() {
		for i := 0; i < int(node.KeyCnt); i++ {
			if node.Keys[i] == key {
				return false, nil
			}
		}

		dataOffset, err := t.data.Append(value)
		if err != nil {
			return false, wrapIOErr("append value", err)
		}

		i := int(node.KeyCnt)
		for i > 0 && node.Keys[i-1] > key {
			node.Keys[i] = node.Keys[i-1]
			node.Children[i] = node.Children[i-1]
			i--
		}
		node.Keys[i] = key
		node.Children[i] = dataOffset
		node.KeyCnt++

		return true, t.writeNode(offset, node)
	}

	i, found := routeIndex(node, key)
	if !found {
		// key exceeds every key in this subtree: it becomes the new
		// maximum, so the routing key must be extended to match before
		// descending.
		i = int(node.KeyCnt) - 1
		node.Keys[i] = key
		if err := t.writeNode(offset, node); err != nil {
			return false, err
		}
	}

	child, err := t.readNode(node.Children[i])
	if err != nil {
		return false, err
	}

	if int(child.KeyCnt) == indexfile.Order {
		if err := t.splitIthChild(offset, i); err != nil {
			return false, err
		}
		node, err = t.readNode(offset)
		if err != nil {
			return false, err
		}
		if key > node.Keys[i] {
			i++
		}
	}

	return t.insertNonfull(node.Children[i], key, value)
}
