package bufferpool

import "container/list"

// LRUReplacer evicts the least recently accessed page.
type LRUReplacer struct {
	order *list.List // front = most recent
	nodes map[PageID]*list.Element
}

func NewLRUReplacer() *LRUReplacer {
	return &LRUReplacer{
		order: list.New(),
		nodes: make(map[PageID]*list.Element),
	}
}

func (r *LRUReplacer) RecordAccess(id PageID) {
	if elem, ok := r.nodes[id]; ok {
		r.order.MoveToFront(elem)
		return
	}
	r.nodes[id] = r.order.PushFront(id)
}

func (r *LRUReplacer) Evict() (PageID, bool) {
	elem := r.order.Back()
	if elem == nil {
		return PageID{}, false
	}
	id := r.order.Remove(elem).(PageID)
	delete(r.nodes, id)
	return id, true
}

func (r *LRUReplacer) Remove(id PageID) bool {
	elem, ok := r.nodes[id]
	if !ok {
		return false
	}
	r.order.Remove(elem)
	delete(r.nodes, id)
	return true
}

func (r *LRUReplacer) Len() int {
	return r.order.Len()
}
