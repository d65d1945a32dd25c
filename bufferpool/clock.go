package bufferpool

type clockNode struct {
	id         PageID
	referenced bool
	prev, next *clockNode
}

// ClockReplacer is a second-chance replacer. Tracked pages sit on a ring
// swept by a hand; a page survives one sweep per access. The hand is the
// head of the sweep, so new pages join just behind it.
type ClockReplacer struct {
	nodes map[PageID]*clockNode
	hand  *clockNode
}

func NewClockReplacer() *ClockReplacer {
	return &ClockReplacer{nodes: make(map[PageID]*clockNode)}
}

// RecordAccess sets the reference bit of a tracked page. An untracked page
// is inserted just behind the hand with the bit clear, so it is the last
// one the current sweep reaches.
func (c *ClockReplacer) RecordAccess(id PageID) {
	if n, ok := c.nodes[id]; ok {
		n.referenced = true
		return
	}
	n := &clockNode{id: id}
	c.nodes[id] = n
	if c.hand == nil {
		n.prev, n.next = n, n
		c.hand = n
		return
	}
	n.next = c.hand
	n.prev = c.hand.prev
	c.hand.prev.next = n
	c.hand.prev = n
}

func (c *ClockReplacer) Evict() (PageID, bool) {
	if c.hand == nil {
		return PageID{}, false
	}
	for c.hand.referenced {
		c.hand.referenced = false
		c.hand = c.hand.next
	}
	victim := c.hand
	c.unlink(victim)
	return victim.id, true
}

func (c *ClockReplacer) Remove(id PageID) bool {
	n, ok := c.nodes[id]
	if !ok {
		return false
	}
	c.unlink(n)
	return true
}

// unlink drops n from the ring, moving the hand to its successor if needed.
func (c *ClockReplacer) unlink(n *clockNode) {
	delete(c.nodes, n.id)
	if n.next == n {
		c.hand = nil
	} else {
		n.prev.next = n.next
		n.next.prev = n.prev
		if c.hand == n {
			c.hand = n.next
		}
	}
	n.prev, n.next = nil, nil
}

func (c *ClockReplacer) Len() int {
	return len(c.nodes)
}
