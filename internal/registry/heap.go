package registry

import "github.com/alarmd-project/alarmd/internal/types"

// entry wraps one stored alarm record with its heap bookkeeping.
type entry struct {
	alarm *types.Alarm

	// heapIdx is the entry's current position in the heap slice.
	// Maintained by minHeap.Swap so a content change can re-sift the entry
	// in O(log N) via heap.Fix without searching for it.
	heapIdx int
}

// minHeap is a slice of *entry that satisfies heap.Interface.
// The soonest-due alarm sits at index 0; ties break toward the smaller
// alarm id so dispatch order is deterministic.
type minHeap []*entry

func (h minHeap) Len() int { return len(h) }

func (h minHeap) Less(i, j int) bool {
	if h[i].alarm.DueAt != h[j].alarm.DueAt {
		return h[i].alarm.DueAt < h[j].alarm.DueAt
	}
	return h[i].alarm.ID < h[j].alarm.ID
}

func (h minHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *minHeap) Push(x any) {
	n := len(*h)
	e := x.(*entry)
	e.heapIdx = n
	*h = append(*h, e)
}

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // allow GC
	e.heapIdx = -1 // mark as not in heap
	*h = old[:n-1]
	return e
}
