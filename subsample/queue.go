package subsample

import (
	"container/heap"
	"math"
	"sort"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultMaxAttempts bounds the re-draw loop in QueuesByGroup when Poisson
// capacity draws come up all zero.
const DefaultMaxAttempts = 100

type queueEntry struct {
	priority float64
	seq      int
	item     interface{}
}

// entryHeap is a min-heap on (priority, insertion sequence), so the root is
// always the entry to evict next: the lowest priority, and among equals the
// oldest.
type entryHeap []queueEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(queueEntry)) }

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PriorityQueue is a fixed-capacity container that retains the
// highest-priority items offered to it, evicting the lowest-priority item
// once full. Priority ties are resolved in favor of the item added most
// recently.
type PriorityQueue struct {
	maxSize int
	heap    entryHeap
	counter int
}

func NewPriorityQueue(maxSize int) *PriorityQueue {
	return &PriorityQueue{maxSize: maxSize}
}

// MaxSize is the queue's capacity.
func (q *PriorityQueue) MaxSize() int { return q.maxSize }

// Len is the number of items currently retained.
func (q *PriorityQueue) Len() int { return len(q.heap) }

// Add offers an item at the given priority and returns the resulting queue
// length. When the queue is full an incoming item below the current minimum
// is discarded; anything else replaces the minimum. The insertion counter
// makes a tied incoming item rank above the tied resident, so the older of
// the two is the one evicted.
func (q *PriorityQueue) Add(item interface{}, priority float64) int {
	entry := queueEntry{priority: priority, seq: q.counter, item: item}
	q.counter++

	if q.maxSize <= 0 {
		return 0
	}

	if len(q.heap) >= q.maxSize {
		root := q.heap[0]
		if entry.priority < root.priority {
			return len(q.heap)
		}
		q.heap[0] = entry
		heap.Fix(&q.heap, 0)
		return len(q.heap)
	}

	heap.Push(&q.heap, entry)
	return len(q.heap)
}

// Items returns the retained items in no particular order. Repeated calls
// without intervening Adds return the items in the same order.
func (q *PriorityQueue) Items() []interface{} {
	items := make([]interface{}, 0, len(q.heap))
	for _, entry := range q.heap {
		items = append(items, entry.item)
	}
	return items
}

// QueuesByGroup creates one PriorityQueue per group. An integral maxSize is
// used directly as every queue's capacity. A fractional maxSize is the mean
// of a Poisson draw made once per group, from a generator seeded with seed
// (negative seed: time-seeded, not reproducible). Groups are visited in
// sorted order so that a fixed seed reproduces the same capacities for the
// same group set.
//
// Small fractional means can draw a zero capacity for every group, which
// would retain nothing, so the whole draw is retried up to maxAttempts
// times (DefaultMaxAttempts when <= 0). An all-zero result after that is
// returned as-is; callers should treat it as an empty selection, not an
// error.
func QueuesByGroup(groups []string, maxSize float64, seed int64, maxAttempts int) map[string]*PriorityQueue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	sorted := append([]string(nil), groups...)
	sort.Strings(sorted)

	queues := make(map[string]*PriorityQueue, len(sorted))

	if maxSize == math.Trunc(maxSize) {
		for _, group := range sorted {
			queues[group] = NewPriorityQueue(int(maxSize))
		}
		return queues
	}

	poisson := distuv.Poisson{Lambda: maxSize, Src: newSource(seed)}

	total := 0
	for attempts := 0; total == 0 && attempts < maxAttempts; attempts++ {
		total = 0
		for _, group := range sorted {
			capacity := int(poisson.Rand())
			queues[group] = NewPriorityQueue(capacity)
			total += capacity
		}
	}

	return queues
}

// QueuesBySize creates one PriorityQueue per group with the given fixed
// capacity, for callers that computed per-group sizes themselves.
func QueuesBySize(sizes map[string]int) map[string]*PriorityQueue {
	queues := make(map[string]*PriorityQueue, len(sizes))
	for group, size := range sizes {
		queues[group] = NewPriorityQueue(size)
	}
	return queues
}

func newSource(seed int64) rand.Source {
	if seed < 0 {
		return rand.NewSource(uint64(time.Now().UnixNano()))
	}
	return rand.NewSource(uint64(seed))
}
