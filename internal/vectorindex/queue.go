package vectorindex

import "container/heap"

type item struct {
	node int32
	dist float32
}

// queue is a binary heap of items ordered by distance, then node id so
// equal distances always resolve the same way. max flips it into a max-heap.
type queue struct {
	items []item
	max   bool
}

func newMinQueue(items ...item) *queue { return newQueue(false, items) }

func newMaxQueue(items ...item) *queue { return newQueue(true, items) }

func newQueue(max bool, items []item) *queue {
	q := &queue{items: items, max: max}
	heap.Init(q)
	return q
}

func (q *queue) Len() int { return len(q.items) }

func (q *queue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if q.max {
		a, b = b, a
	}
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.node < b.node
}

func (q *queue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *queue) Push(x any) { q.items = append(q.items, x.(item)) }

func (q *queue) Pop() any {
	n := len(q.items)
	it := q.items[n-1]
	q.items = q.items[:n-1]
	return it
}

func (q *queue) push(it item) { heap.Push(q, it) }

func (q *queue) pop() item { return heap.Pop(q).(item) }

func (q *queue) peek() item { return q.items[0] }

// drainAscending empties a max-queue into a slice ordered nearest first.
func (q *queue) drainAscending() []item {
	out := make([]item, q.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = q.pop()
	}
	return out
}
