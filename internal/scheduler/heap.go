package scheduler

import (
	"container/heap"
	"time"
)

// entry is one scheduled reminder waiting to fire.
type entry struct {
	taskID string
	due    time.Time
	index  int
}

// dueHeap is a min-heap ordered by due time.
type dueHeap []*entry

func (h dueHeap) Len() int            { return len(h) }
func (h dueHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h dueHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *dueHeap) Push(x interface{}) { e := x.(*entry); e.index = len(*h); *h = append(*h, e) }
func (h *dueHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// queue wraps dueHeap with the operations the scheduler needs. Not safe for
// concurrent use; the scheduler serializes access.
type queue struct {
	h       dueHeap
	present map[string]struct{}
}

func newQueue() *queue {
	return &queue{present: make(map[string]struct{})}
}

func (q *queue) len() int { return q.h.Len() }

// push adds a task unless it is already queued.
func (q *queue) push(taskID string, due time.Time) {
	if _, ok := q.present[taskID]; ok {
		return
	}
	q.present[taskID] = struct{}{}
	heap.Push(&q.h, &entry{taskID: taskID, due: due})
}

// popDue removes and returns every entry due at or before now.
func (q *queue) popDue(now time.Time) []*entry {
	var due []*entry
	for q.h.Len() > 0 && !q.h[0].due.After(now) {
		e := heap.Pop(&q.h).(*entry)
		delete(q.present, e.taskID)
		due = append(due, e)
	}
	return due
}
