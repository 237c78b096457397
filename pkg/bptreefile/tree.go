// Package bptreefile is the persistent B+tree engine: an append-only index
// file of fixed-size nodes (pkg/indexfile) layered with top-down preemptive
// split/merge cascades, plus a value-record data file (pkg/valuefile) for
// the variable-length payloads leaves point at.
//
// A Tree is not safe for concurrent use. Every public method assumes
// single-goroutine, non-reentrant access; callers that need multi-goroutine
// access must serialize externally.
package bptreefile

import (
	"time"

	"github.com/ssargent/freyjadb/pkg/indexfile"
	"github.com/ssargent/freyjadb/pkg/metrics"
	"github.com/ssargent/freyjadb/pkg/valuefile"
)

// Tree is the engine's public handle: the composition of an index file, a
// data file, and (optionally) a metrics collector.
type Tree struct {
	idx  *indexfile.IndexFile
	data *valuefile.DataFile
	mx   *metrics.Collector // nil-safe; see pkg/metrics
}

// openSettings accumulates Option values before the data file is opened,
// since the data file's fsync behavior is fixed for its lifetime.
type openSettings struct {
	mx            *metrics.Collector
	fsyncInterval time.Duration
}

// Option configures a Tree at Open time.
type Option func(*openSettings)

// WithMetrics wires a metrics.Collector into every subsequent public
// operation on the tree.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *openSettings) { s.mx = c }
}

// WithFsyncInterval sets how often the data file batches its durability
// fsync instead of syncing on every write. Zero (the default) fsyncs every
// Append/UpdateInPlace call.
func WithFsyncInterval(d time.Duration) Option {
	return func(s *openSettings) { s.fsyncInterval = d }
}

// Open opens (creating if absent) the index and data files derived from
// path: "<path>.idx" and "<path>.dat".
func Open(path string, opts ...Option) (*Tree, error) {
	var settings openSettings
	for _, opt := range opts {
		opt(&settings)
	}

	idx, err := indexfile.Open(path + ".idx")
	if err != nil {
		return nil, wrapIOErr("open index file", err)
	}

	data, err := valuefile.Open(valuefile.Config{
		FilePath:      path + ".dat",
		FsyncInterval: settings.fsyncInterval,
	})
	if err != nil {
		idx.Close()
		return nil, wrapIOErr("open data file", err)
	}

	t := &Tree{idx: idx, data: data, mx: settings.mx}

	if t.mx != nil {
		t.mx.SetTreeHeight(float64(idx.Header().TreeHeight))
		t.mx.SetNodeCount(float64(idx.Header().NodeCnt))
		t.mx.SetDataSizeBytes(float64(data.Size()))
	}

	return t, nil
}

// Close flushes the index header and releases both files. It is safe to
// call Close without having mutated anything.
func (t *Tree) Close() error {
	if err := t.idx.FlushHeader(); err != nil {
		return wrapIOErr("flush header", err)
	}
	if err := t.data.Close(); err != nil {
		return wrapIOErr("close data file", err)
	}
	if err := t.idx.Close(); err != nil {
		return wrapIOErr("close index file", err)
	}
	return nil
}

// readNode is a thin, panic-free wrapper around the index file's node I/O.
func (t *Tree) readNode(offset uint64) (*indexfile.Node, error) {
	n, err := t.idx.ReadNode(offset)
	if err != nil {
		return nil, wrapIOErr("read node", err)
	}
	return n, nil
}

func (t *Tree) writeNode(offset uint64, n *indexfile.Node) error {
	if err := t.idx.WriteNode(offset, n); err != nil {
		return wrapIOErr("write node", err)
	}
	return nil
}

func (t *Tree) allocNode(n *indexfile.Node) (uint64, error) {
	offset, err := t.idx.AllocNode(n)
	if err != nil {
		return 0, wrapIOErr("alloc node", err)
	}
	return offset, nil
}

// routeIndex returns the smallest i in [0, node.KeyCnt) with key <=
// node.Keys[i], and whether such an index exists. This is the routing rule
// for both point and range descent: every internal key is the maximum key
// in its subtree, so this is also "the first child whose subtree could
// contain key".
func routeIndex(node *indexfile.Node, key uint64) (int, bool) {
	for i := 0; i < int(node.KeyCnt); i++ {
		if key <= node.Keys[i] {
			return i, true
		}
	}
	return int(node.KeyCnt), false
}

// locateLeafOffset descends from the root to find the data-file offset of
// key's value record, or indexfile.Sentinel if key is not present.
func (t *Tree) locateLeafOffset(key uint64) (uint64, error) {
	h := t.idx.Header()
	if h.TreeHeight == 0 {
		return indexfile.Sentinel, nil
	}

	offset := h.RootOffset
	for {
		node, err := t.readNode(offset)
		if err != nil {
			return 0, err
		}

		if node.IsLeaf() {
			for i := 0; i < int(node.KeyCnt); i++ {
				if node.Keys[i] == key {
					return node.Children[i], nil
				}
			}
			return indexfile.Sentinel, nil
		}

		i, found := routeIndex(node, key)
		if !found {
			return indexfile.Sentinel, nil
		}
		offset = node.Children[i]
	}
}

// locateRangeLeaf descends from the root to find the node offset of the
// leaf that would contain left, or indexfile.Sentinel if left exceeds the
// largest key of an internal node on the way down. A leaf root is returned
// whatever its keys. Unlike locateLeafOffset it always returns a leaf's own
// offset (for chain traversal), not an entry's data-file offset.
func (t *Tree) locateRangeLeaf(left uint64) (uint64, error) {
	h := t.idx.Header()
	if h.TreeHeight == 0 {
		return indexfile.Sentinel, nil
	}

	offset := h.RootOffset
	for {
		node, err := t.readNode(offset)
		if err != nil {
			return 0, err
		}

		if node.IsLeaf() {
			return offset, nil
		}

		if left > node.Keys[node.KeyCnt-1] {
			return indexfile.Sentinel, nil
		}

		i, _ := routeIndex(node, left)
		offset = node.Children[i]
	}
}

// Find performs a point lookup. The returned bool is false if the tree is
// empty or key is absent.
func (t *Tree) Find(key uint64) ([]byte, bool, error) {
	dataOffset, err := t.locateLeafOffset(key)
	if err != nil {
		return nil, false, err
	}
	if dataOffset == indexfile.Sentinel {
		if t.mx != nil {
			t.mx.ObserveFind(false)
		}
		return nil, false, nil
	}

	value, err := t.data.Read(dataOffset)
	if err != nil {
		return nil, false, wrapIOErr("read value", err)
	}

	if t.mx != nil {
		t.mx.ObserveFind(true)
	}
	return value, true, nil
}

// Update overwrites the value stored for key. It returns false iff the tree
// is empty or key is absent. A successful in-place update and a
// capacity-exceeded fallback (erase then reinsert) both return true without
// re-checking the reinsert's own outcome, mirroring the source engine's
// observable behavior exactly.
func (t *Tree) Update(key uint64, value []byte) (bool, error) {
	dataOffset, err := t.locateLeafOffset(key)
	if err != nil {
		return false, err
	}
	if dataOffset == indexfile.Sentinel {
		return false, nil
	}

	ok, err := t.data.UpdateInPlace(dataOffset, value)
	if err != nil {
		return false, wrapIOErr("update value in place", err)
	}
	if ok {
		if t.mx != nil {
			t.mx.ObserveUpdate(false)
			t.mx.SetDataSizeBytes(float64(t.data.Size()))
		}
		return true, nil
	}

	// Capacity exceeded: fall back to erase-then-reinsert, matching the
	// source's behavior of returning true regardless of the reinsert result.
	if _, err := t.erase(key); err != nil {
		return false, err
	}
	if _, err := t.insert(key, value); err != nil {
		return false, err
	}
	if t.mx != nil {
		t.mx.ObserveUpdate(true)
		t.mx.SetDataSizeBytes(float64(t.data.Size()))
		t.mx.SetTreeHeight(float64(t.idx.Header().TreeHeight))
		t.mx.SetNodeCount(float64(t.idx.Header().NodeCnt))
	}
	return true, nil
}

// Insert adds key/value to the tree. It returns false iff key is already
// present, in which case no mutation occurs.
func (t *Tree) Insert(key uint64, value []byte) (bool, error) {
	ok, err := t.insert(key, value)
	if err != nil {
		return false, err
	}
	if t.mx != nil {
		t.mx.ObserveInsert(ok)
		t.mx.SetDataSizeBytes(float64(t.data.Size()))
		t.mx.SetTreeHeight(float64(t.idx.Header().TreeHeight))
		t.mx.SetNodeCount(float64(t.idx.Header().NodeCnt))
	}
	return ok, nil
}

// Erase removes key from the tree. It returns false iff the tree is empty
// or key is absent.
func (t *Tree) Erase(key uint64) (bool, error) {
	ok, err := t.erase(key)
	if err != nil {
		return false, err
	}
	if t.mx != nil {
		t.mx.ObserveErase(ok)
		t.mx.SetTreeHeight(float64(t.idx.Header().TreeHeight))
		t.mx.SetNodeCount(float64(t.idx.Header().NodeCnt))
	}
	return ok, nil
}
