package bptreefile

import "github.com/ssargent/freyjadb/pkg/indexfile"

// FindRange returns, in ascending key order, the values of every key k with
// left <= k < right. It walks the leaf chain starting from the leaf that
// would hold left, stopping once a leaf's maximum key reaches or exceeds
// right or the chain ends.
func (t *Tree) FindRange(left, right uint64) ([][]byte, error) {
	h := t.idx.Header()
	if h.TreeHeight == 0 {
		return nil, nil
	}

	leafOffset, err := t.locateRangeLeaf(left)
	if err != nil {
		return nil, err
	}
	if leafOffset == indexfile.Sentinel {
		return nil, nil
	}

	var results [][]byte

	for {
		leaf, err := t.readNode(leafOffset)
		if err != nil {
			return nil, err
		}

		for j := 0; j < int(leaf.KeyCnt); j++ {
			k := leaf.Keys[j]
			if k < left {
				continue
			}
			if k >= right {
				break
			}
			value, err := t.data.Read(leaf.Children[j])
			if err != nil {
				return nil, wrapIOErr("read value", err)
			}
			results = append(results, value)
		}

		if leaf.KeyCnt == 0 || leaf.Keys[leaf.KeyCnt-1] >= right || leaf.NextLeaf == 0 {
			break
		}
		leafOffset = leaf.NextLeaf
	}

	if t.mx != nil {
		t.mx.ObserveRange(len(results))
	}

	return results, nil
}
