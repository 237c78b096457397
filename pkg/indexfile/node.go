package indexfile

import "encoding/binary"

// Order is the maximum number of keys (and, for internal nodes, routing
// children) held by any node; Half is the minimum occupancy enforced on
// every non-root node.
const (
	Order = 254
	Half  = Order / 2

	// NodeSize is the fixed on-disk footprint of one node, regardless of
	// how many of its Order slots are populated.
	NodeSize = 4096
)

// Node type tags, matching the on-disk node_type byte.
const (
	TypeInternal byte = 0x01
	TypeLeaf     byte = 0x02
)

// Sentinel is the all-ones 64-bit value the navigator returns for "not
// found" / "no such child".
const Sentinel uint64 = 0xFFFF_FFFF_FFFF_FFFF

const (
	offNodeType  = 0
	offKeyCnt    = 1
	offKeysStart = 8
	sizeKeys     = Order * 8
	sizeChildren = Order * 8
)

var (
	offChildrenStart = offKeysStart + sizeKeys
	offNextLeaf      = offChildrenStart + sizeChildren
)

// Node is the fixed in-memory layout of one B+tree node: a header, up to
// Order keys, up to Order children (index-file offsets for internal nodes,
// data-file offsets for leaves), and, for leaves only, the offset of the
// next leaf in ascending key order.
type Node struct {
	NodeType byte
	KeyCnt   uint8
	Keys     [Order]uint64
	Children [Order]uint64
	NextLeaf uint64 // leaves only; 0 denotes end-of-chain
}

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool { return n.NodeType == TypeLeaf }

// Encode serializes the node into exactly NodeSize bytes. Bytes beyond what
// KeyCnt entries require carry whatever the slice already held and are not
// meaningful.
func (n *Node) Encode() []byte {
	buf := make([]byte, NodeSize)
	buf[offNodeType] = n.NodeType
	buf[offKeyCnt] = byte(n.KeyCnt)
	// bytes [2:8) are reserved padding, left zero.

	for i := 0; i < int(n.KeyCnt); i++ {
		binary.LittleEndian.PutUint64(buf[offKeysStart+8*i:], n.Keys[i])
		binary.LittleEndian.PutUint64(buf[offChildrenStart+8*i:], n.Children[i])
	}

	binary.LittleEndian.PutUint64(buf[offNextLeaf:], n.NextLeaf)

	return buf
}

// Decode parses a NodeSize-byte block into a Node. Only the first KeyCnt
// entries of Keys/Children are populated; the remainder are left zero.
func Decode(buf []byte) *Node {
	n := &Node{
		NodeType: buf[offNodeType],
		KeyCnt:   uint8(buf[offKeyCnt]),
	}

	for i := 0; i < int(n.KeyCnt); i++ {
		n.Keys[i] = binary.LittleEndian.Uint64(buf[offKeysStart+8*i:])
		n.Children[i] = binary.LittleEndian.Uint64(buf[offChildrenStart+8*i:])
	}

	n.NextLeaf = binary.LittleEndian.Uint64(buf[offNextLeaf:])

	return n
}
