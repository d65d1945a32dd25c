package memtable

import (
	"github.com/twlk9/lsmkv/keys"
)

// node is one entry of the AVL tree. A nil child is the empty subtree and
// has height -1.
type node struct {
	key    uint64
	value  uint64
	left   *node
	right  *node
	height int
}

func height(n *node) int {
	if n == nil {
		return -1
	}
	return n.height
}

func (n *node) fix() {
	n.height = 1 + max(height(n.left), height(n.right))
}

// MemTable is an AVL balanced in-memory table with a write budget. Every Put,
// overwrites included, spends one unit of budget. Not safe for concurrent
// use; the owning DB serializes access.
type MemTable struct {
	root   *node
	budget int
	n      int
}

// New returns an empty memtable that accepts budget writes before it
// reports itself full.
func New(budget int) *MemTable {
	return &MemTable{budget: budget}
}

// Put inserts or overwrites key. It returns false once the write budget is
// exhausted, which tells the caller to flush.
func (mt *MemTable) Put(key, value uint64) bool {
	mt.root = mt.insert(mt.root, key, value)
	mt.budget--
	return mt.budget > 0
}

func (mt *MemTable) insert(root *node, key, value uint64) *node {
	switch {
	case root == nil:
		mt.n++
		return &node{key: key, value: value}
	case key < root.key:
		root.left = mt.insert(root.left, key, value)
		return rebalanceLeftHeavy(root)
	case key > root.key:
		root.right = mt.insert(root.right, key, value)
		return rebalanceRightHeavy(root)
	default:
		root.value = value
		return root
	}
}

// rebalanceRightHeavy restores balance after an insert into the right subtree.
func rebalanceRightHeavy(root *node) *node {
	root.fix()
	if height(root.right) > height(root.left)+1 {
		if height(root.right.left) > height(root.right.right) {
			root.right = rotateRight(root.right)
		}
		root = rotateLeft(root)
	}
	return root
}

// rebalanceLeftHeavy restores balance after an insert into the left subtree.
func rebalanceLeftHeavy(root *node) *node {
	root.fix()
	if height(root.left) > height(root.right)+1 {
		if height(root.left.right) > height(root.left.left) {
			root.left = rotateLeft(root.left)
		}
		root = rotateRight(root)
	}
	return root
}

func rotateLeft(parent *node) *node {
	child := parent.right
	parent.right = child.left
	child.left = parent
	parent.fix()
	child.fix()
	return child
}

func rotateRight(parent *node) *node {
	child := parent.left
	parent.left = child.right
	child.right = parent
	parent.fix()
	child.fix()
	return child
}

// Get returns the value for key, or keys.ErrNotFound when the key is absent
// or deleted.
func (mt *MemTable) Get(key uint64) (uint64, error) {
	v, ok := mt.Lookup(key)
	if !ok || v == keys.Tombstone {
		return 0, keys.ErrNotFound
	}
	return v, nil
}

// Lookup returns the raw stored value, tombstones included.
func (mt *MemTable) Lookup(key uint64) (uint64, bool) {
	n := mt.root
	for n != nil {
		switch {
		case key < n.key:
			n = n.left
		case key > n.key:
			n = n.right
		default:
			return n.value, true
		}
	}
	return 0, false
}

// Scan returns the live pairs with lo <= key <= hi in ascending key order.
func (mt *MemTable) Scan(lo, hi uint64) []keys.KVPair {
	return mt.walk(lo, hi, false)
}

// Entries is Scan with tombstones kept. Flushes use it so deletes reach disk.
func (mt *MemTable) Entries(lo, hi uint64) []keys.KVPair {
	return mt.walk(lo, hi, true)
}

// walk is an iterative in-order traversal. It only descends left while the
// current key can still be >= lo and never stacks nodes above hi, so the
// cost follows the nodes in range rather than the tree size.
func (mt *MemTable) walk(lo, hi uint64, tombstones bool) []keys.KVPair {
	var out []keys.KVPair
	if mt.root == nil || lo > hi {
		return out
	}

	stack := make([]*node, 0, height(mt.root)+2)
	curr := mt.root
	for curr != nil || len(stack) > 0 {
		for curr != nil {
			if curr.key < lo {
				curr = curr.right
				continue
			}
			if curr.key <= hi {
				stack = append(stack, curr)
			}
			curr = curr.left
		}
		if len(stack) == 0 {
			break
		}
		curr = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if tombstones || curr.value != keys.Tombstone {
			out = append(out, keys.KVPair{Key: curr.key, Value: curr.value})
		}
		curr = curr.right
	}
	return out
}

// Len returns the number of distinct keys, tombstones included.
func (mt *MemTable) Len() int {
	return mt.n
}

// Remaining returns the unspent write budget.
func (mt *MemTable) Remaining() int {
	return mt.budget
}

// Height returns the height of the tree, -1 when empty.
func (mt *MemTable) Height() int {
	return height(mt.root)
}
