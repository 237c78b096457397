package bptreefile

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ssargent/freyjadb/pkg/indexfile"
)

func openTemp(t *testing.T) (*Tree, string) {
	t.Helper()
	dir, err := os.MkdirTemp("", "bptreefile_test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "db1")
	tree, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { tree.Close() })
	return tree, path
}

// S1 (Empty)
func TestEmptyTree(t *testing.T) {
	tree, _ := openTemp(t)

	if _, ok, err := tree.Find(42); err != nil || ok {
		t.Fatalf("Find(42) on empty tree = (_, %v, %v), want (_, false, nil)", ok, err)
	}
	values, err := tree.FindRange(0, 100)
	if err != nil || len(values) != 0 {
		t.Fatalf("FindRange(0,100) on empty tree = (%v, %v), want (empty, nil)", values, err)
	}
	if ok, err := tree.Erase(42); err != nil || ok {
		t.Fatalf("Erase(42) on empty tree = (%v, %v), want (false, nil)", ok, err)
	}
	if ok, err := tree.Update(42, []byte("x")); err != nil || ok {
		t.Fatalf("Update(42) on empty tree = (%v, %v), want (false, nil)", ok, err)
	}
}

// S2 (Basic CRUD)
func TestBasicCRUD(t *testing.T) {
	tree, _ := openTemp(t)

	for _, kv := range []struct {
		key   uint64
		value string
	}{{1, "a"}, {2, "bb"}, {3, "ccc"}} {
		ok, err := tree.Insert(kv.key, []byte(kv.value))
		if err != nil || !ok {
			t.Fatalf("Insert(%d) = (%v, %v), want (true, nil)", kv.key, ok, err)
		}
	}

	value, ok, err := tree.Find(2)
	if err != nil || !ok || string(value) != "bb" {
		t.Fatalf("Find(2) = (%q, %v, %v), want (bb, true, nil)", value, ok, err)
	}

	if ok, err := tree.Update(2, []byte("BB")); err != nil || !ok {
		t.Fatalf("Update(2) = (%v, %v), want (true, nil)", ok, err)
	}
	value, ok, err = tree.Find(2)
	if err != nil || !ok || string(value) != "BB" {
		t.Fatalf("Find(2) after update = (%q, %v, %v), want (BB, true, nil)", value, ok, err)
	}

	if ok, err := tree.Erase(2); err != nil || !ok {
		t.Fatalf("Erase(2) = (%v, %v), want (true, nil)", ok, err)
	}
	if _, ok, err := tree.Find(2); err != nil || ok {
		t.Fatalf("Find(2) after erase = (_, %v, %v), want (false, nil)", ok, err)
	}

	values, err := tree.FindRange(1, 4)
	if err != nil {
		t.Fatalf("FindRange(1,4): %v", err)
	}
	if len(values) != 2 || string(values[0]) != "a" || string(values[1]) != "ccc" {
		t.Fatalf("FindRange(1,4) = %q, want [a ccc]", values)
	}
}

// S3 (Duplicate)
func TestDuplicateInsert(t *testing.T) {
	tree, _ := openTemp(t)

	ok, err := tree.Insert(7, []byte("u"))
	if err != nil || !ok {
		t.Fatalf("Insert(7, u) = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = tree.Insert(7, []byte("v"))
	if err != nil || ok {
		t.Fatalf("Insert(7, v) = (%v, %v), want (false, nil)", ok, err)
	}
	value, ok, err := tree.Find(7)
	if err != nil || !ok || string(value) != "u" {
		t.Fatalf("Find(7) = (%q, %v, %v), want (u, true, nil)", value, ok, err)
	}
}

func insertRange(t *testing.T, tree *Tree, lo, hi uint64) {
	t.Helper()
	for k := lo; k < hi; k++ {
		ok, err := tree.Insert(k, []byte(fmt.Sprintf("v%d", k)))
		if err != nil {
			t.Fatalf("Insert(%d): %v", k, err)
		}
		if !ok {
			t.Fatalf("Insert(%d) = false, want true", k)
		}
	}
}

// S4 (Root split)
func TestRootSplit(t *testing.T) {
	tree, _ := openTemp(t)
	insertRange(t, tree, 1, 256)

	h := tree.idx.Header()
	if h.TreeHeight < 2 {
		t.Fatalf("TreeHeight = %d, want >= 2", h.TreeHeight)
	}

	for k := uint64(1); k < 256; k++ {
		value, ok, err := tree.Find(k)
		if err != nil || !ok || string(value) != fmt.Sprintf("v%d", k) {
			t.Fatalf("Find(%d) = (%q, %v, %v), want (v%d, true, nil)", k, value, ok, err, k)
		}
	}

	offset, err := tree.locateRangeLeaf(1)
	if err != nil {
		t.Fatalf("locateRangeLeaf(1): %v", err)
	}
	var collected []uint64
	for offset != indexfile.Sentinel {
		leaf, err := tree.readNode(offset)
		if err != nil {
			t.Fatalf("readNode: %v", err)
		}
		for i := 0; i < int(leaf.KeyCnt); i++ {
			collected = append(collected, leaf.Keys[i])
		}
		if leaf.NextLeaf == 0 {
			break
		}
		offset = leaf.NextLeaf
	}
	if len(collected) != 255 {
		t.Fatalf("leaf chain yielded %d keys, want 255", len(collected))
	}
	for i, k := range collected {
		if k != uint64(i+1) {
			t.Fatalf("leaf chain[%d] = %d, want %d", i, k, i+1)
		}
	}
}

// S5 (Range across leaves)
func TestRangeAcrossLeaves(t *testing.T) {
	tree, _ := openTemp(t)
	insertRange(t, tree, 1, 256)

	values, err := tree.FindRange(100, 200)
	if err != nil {
		t.Fatalf("FindRange(100,200): %v", err)
	}
	if len(values) != 100 {
		t.Fatalf("FindRange(100,200) returned %d values, want 100", len(values))
	}
	for i, v := range values {
		want := fmt.Sprintf("v%d", 100+i)
		if string(v) != want {
			t.Fatalf("FindRange(100,200)[%d] = %q, want %q", i, v, want)
		}
	}
}

// S6 (Update capacity fallback)
func TestUpdateCapacityFallback(t *testing.T) {
	tree, _ := openTemp(t)

	ok, err := tree.Insert(5, []byte("a"))
	if err != nil || !ok {
		t.Fatalf("Insert(5, a) = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = tree.Update(5, []byte("ab"))
	if err != nil || !ok {
		t.Fatalf("Update(5, ab) = (%v, %v), want (true, nil)", ok, err)
	}

	value, ok, err := tree.Find(5)
	if err != nil || !ok || string(value) != "ab" {
		t.Fatalf("Find(5) = (%q, %v, %v), want (ab, true, nil)", value, ok, err)
	}
}

// S7 (Delete to collapse)
func TestDeleteToCollapse(t *testing.T) {
	tree, _ := openTemp(t)
	insertRange(t, tree, 1, 256)

	beforeHeight := tree.idx.Header().TreeHeight

	for k := uint64(128); k < 256; k++ {
		ok, err := tree.Erase(k)
		if err != nil || !ok {
			t.Fatalf("Erase(%d) = (%v, %v), want (true, nil)", k, ok, err)
		}
	}

	afterHeight := tree.idx.Header().TreeHeight
	if afterHeight >= beforeHeight {
		t.Fatalf("TreeHeight after collapse = %d, want < %d", afterHeight, beforeHeight)
	}

	values, err := tree.FindRange(0, 1000)
	if err != nil {
		t.Fatalf("FindRange(0,1000): %v", err)
	}
	if len(values) != 127 {
		t.Fatalf("FindRange(0,1000) returned %d values, want 127", len(values))
	}
	for i, v := range values {
		want := fmt.Sprintf("v%d", i+1)
		if string(v) != want {
			t.Fatalf("FindRange(0,1000)[%d] = %q, want %q", i, v, want)
		}
	}
}

// S8 (Reopen)
func TestReopenPreservesRange(t *testing.T) {
	tree, path := openTemp(t)
	insertRange(t, tree, 1, 256)
	if err := tree.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}
	defer reopened.Close()

	values, err := reopened.FindRange(100, 200)
	if err != nil {
		t.Fatalf("FindRange(100,200) after reopen: %v", err)
	}
	if len(values) != 100 {
		t.Fatalf("FindRange(100,200) after reopen returned %d values, want 100", len(values))
	}
	for i, v := range values {
		want := fmt.Sprintf("v%d", 100+i)
		if string(v) != want {
			t.Fatalf("FindRange(100,200)[%d] after reopen = %q, want %q", i, v, want)
		}
	}
}

func TestInsertThenEraseEmptiesTree(t *testing.T) {
	tree, _ := openTemp(t)
	insertRange(t, tree, 0, 50)

	for k := uint64(0); k < 50; k++ {
		ok, err := tree.Erase(k)
		if err != nil || !ok {
			t.Fatalf("Erase(%d) = (%v, %v), want (true, nil)", k, ok, err)
		}
	}

	h := tree.idx.Header()
	if h.TreeHeight != 0 {
		t.Fatalf("TreeHeight after draining tree = %d, want 0", h.TreeHeight)
	}

	values, err := tree.FindRange(0, 50)
	if err != nil || len(values) != 0 {
		t.Fatalf("FindRange on drained tree = (%v, %v), want (empty, nil)", values, err)
	}
}

func TestDescendingInsertProducesAscendingChain(t *testing.T) {
	tree, _ := openTemp(t)
	for k := uint64(200); k > 0; k-- {
		ok, err := tree.Insert(k, []byte(fmt.Sprintf("v%d", k)))
		if err != nil || !ok {
			t.Fatalf("Insert(%d) = (%v, %v), want (true, nil)", k, ok, err)
		}
	}

	values, err := tree.FindRange(1, 201)
	if err != nil {
		t.Fatalf("FindRange(1,201): %v", err)
	}
	if len(values) != 200 {
		t.Fatalf("FindRange(1,201) returned %d values, want 200", len(values))
	}
	for i, v := range values {
		want := fmt.Sprintf("v%d", i+1)
		if string(v) != want {
			t.Fatalf("FindRange(1,201)[%d] = %q, want %q", i, v, want)
		}
	}
}
