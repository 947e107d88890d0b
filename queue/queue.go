package queue

import (
	"container/heap"
	"slices"
)

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// Item represents an entry in the priority queue.
type Item struct {
	Unit  uint32  // Unit identifies the scored element.
	Score float32 // Score is the priority of the item in the queue.
	Index int     // Index is needed by update and is maintained by the heap.Interface methods.
}

// PriorityQueue implements heap.Interface and holds Items.
//
// With Descending unset the lowest score sits at the root. Equal scores
// order by unit id with the higher id closer to the root, so bounded
// selection evicts the higher unit first and keeps the lowest unit on a
// tie.
type PriorityQueue struct {
	Descending bool    // Descending places the highest score at the root.
	Items      []*Item // Items contains the elements of the priority queue.
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.Items) }

// Less reports whether the element with index i should sort before the element with index j.
func (pq *PriorityQueue) Less(i, j int) bool {
	a, b := pq.Items[i], pq.Items[j]
	if a.Score == b.Score {
		return a.Unit > b.Unit
	}
	if pq.Descending {
		return a.Score > b.Score
	}
	return a.Score < b.Score
}

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
	pq.Items[i].Index, pq.Items[j].Index = i, j // Update indices
}

// Push adds x to the priority queue.
func (pq *PriorityQueue) Push(x any) {
	item, _ := x.(*Item)
	item.Index = len(pq.Items)
	pq.Items = append(pq.Items, item)
}

// Pop removes and returns the top element from the priority queue.
func (pq *PriorityQueue) Pop() any {
	if len(pq.Items) == 0 {
		return nil
	}

	old := pq.Items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.Index = -1 // For safety
	pq.Items = old[:n-1]

	return item
}

// Top returns the top element of the priority queue.
func (pq *PriorityQueue) Top() any {
	return pq.Items[0]
}

// TopK returns the unit ids of the k highest scores, sorted ascending.
// Ties at the selection boundary keep the lower unit id. A k larger than
// len(scores) selects every unit.
func TopK(scores []float32, k int) []uint32 {
	if k <= 0 {
		return nil
	}
	if k > len(scores) {
		k = len(scores)
	}

	pq := &PriorityQueue{Items: make([]*Item, 0, k)}
	for i, s := range scores {
		if pq.Len() < k {
			heap.Push(pq, &Item{Unit: uint32(i), Score: s})
			continue
		}
		root := pq.Items[0]
		if s > root.Score {
			root.Unit = uint32(i)
			root.Score = s
			heap.Fix(pq, 0)
		}
	}

	units := make([]uint32, pq.Len())
	for i, item := range pq.Items {
		units[i] = item.Unit
	}
	slices.Sort(units)

	return units
}
