// Package indexfile implements the engine's index file: a 24-byte header
// followed by an append-only sequence of fixed NodeSize-byte B+tree node
// slots. See pkg/bptreefile for the tree algorithms that sit on top of it.
package indexfile

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// HeaderSize is the fixed width of the index file header.
const HeaderSize = 24

// Header is the index file's persisted metadata: the root node's offset
// (meaningful only when TreeHeight > 0), the tree's height (0 when empty),
// and the number of node slots ever allocated, which is the append frontier.
type Header struct {
	RootOffset uint64
	TreeHeight uint64
	NodeCnt    uint64
}

func (h *Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.RootOffset)
	binary.LittleEndian.PutUint64(buf[8:16], h.TreeHeight)
	binary.LittleEndian.PutUint64(buf[16:24], h.NodeCnt)
	return buf
}

func decodeHeader(buf []byte) Header {
	return Header{
		RootOffset: binary.LittleEndian.Uint64(buf[0:8]),
		TreeHeight: binary.LittleEndian.Uint64(buf[8:16]),
		NodeCnt:    binary.LittleEndian.Uint64(buf[16:24]),
	}
}

// IndexFile is the Index File Manager: it owns the header and the append-
// only allocator for fixed-size node slots.
type IndexFile struct {
	file   *os.File
	header Header
}

// Open opens (creating if absent) the index file at path. A freshly created
// file gets a zeroed header with RootOffset pointing at the first node slot.
func Open(path string) (*IndexFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("indexfile: create directory: %w", err)
	}

	_, statErr := os.Stat(path)
	existed := statErr == nil

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("indexfile: open %s: %w", path, err)
	}

	idx := &IndexFile{file: file}

	if existed {
		if err := idx.readHeader(); err != nil {
			file.Close()
			return nil, err
		}
		log.Printf("indexfile: reopened %s at height %d, %d nodes", path, idx.header.TreeHeight, idx.header.NodeCnt)
	} else {
		idx.header = Header{RootOffset: HeaderSize, TreeHeight: 0, NodeCnt: 0}
		if err := idx.FlushHeader(); err != nil {
			file.Close()
			return nil, err
		}
		log.Printf("indexfile: created %s", path)
	}

	return idx, nil
}

func (idx *IndexFile) readHeader() error {
	buf := make([]byte, HeaderSize)
	if _, err := idx.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("indexfile: read header: %w", err)
	}
	idx.header = decodeHeader(buf)
	return nil
}

// Header returns the current in-memory header.
func (idx *IndexFile) Header() Header { return idx.header }

// SetRootOffset updates the in-memory root offset. Callers must FlushHeader
// to persist the change.
func (idx *IndexFile) SetRootOffset(offset uint64) { idx.header.RootOffset = offset }

// SetTreeHeight updates the in-memory tree height. Callers must FlushHeader
// to persist the change.
func (idx *IndexFile) SetTreeHeight(height uint64) { idx.header.TreeHeight = height }

// FlushHeader writes the current in-memory header back to offset 0 and
// fsyncs it.
func (idx *IndexFile) FlushHeader() error {
	if _, err := idx.file.WriteAt(idx.header.encode(), 0); err != nil {
		return fmt.Errorf("indexfile: write header: %w", err)
	}
	if err := idx.file.Sync(); err != nil {
		return fmt.Errorf("indexfile: fsync header: %w", err)
	}
	return nil
}

func slotOffset(i uint64) int64 {
	return HeaderSize + NodeSize*int64(i)
}

// ReadNode reads and decodes the node at the given byte offset.
func (idx *IndexFile) ReadNode(offset uint64) (*Node, error) {
	buf := make([]byte, NodeSize)
	if _, err := idx.file.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("indexfile: read node at %d: %w", offset, err)
	}
	return Decode(buf), nil
}

// WriteNode serializes and writes node at the given byte offset, flushing
// before returning.
func (idx *IndexFile) WriteNode(offset uint64, node *Node) error {
	if _, err := idx.file.WriteAt(node.Encode(), int64(offset)); err != nil {
		return fmt.Errorf("indexfile: write node at %d: %w", offset, err)
	}
	if err := idx.file.Sync(); err != nil {
		return fmt.Errorf("indexfile: fsync node at %d: %w", offset, err)
	}
	return nil
}

// AllocNode appends node as a brand-new slot, growing the file by one
// NodeSize block, and returns its offset. NodeCnt is incremented but the
// header itself is not flushed. Callers batch the header flush with the
// rest of their mutation.
func (idx *IndexFile) AllocNode(node *Node) (uint64, error) {
	offset := uint64(slotOffset(idx.header.NodeCnt))
	if err := idx.WriteNode(offset, node); err != nil {
		return 0, err
	}
	idx.header.NodeCnt++
	return offset, nil
}

// Close closes the underlying file. It does not flush the header. Callers
// that mutated RootOffset/TreeHeight must FlushHeader first.
func (idx *IndexFile) Close() error {
	return idx.file.Close()
}
