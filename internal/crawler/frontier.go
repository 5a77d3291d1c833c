package crawler

import "container/heap"

// Task is one pending frontier entry: a discovered-but-unvisited URL with the
// score it was enqueued at and the page that linked to it.
type Task struct {
	Score     int
	URL       string
	ParentURL string
}

// pendingCapFactor bounds the frontier at a small multiple of the page budget
// so link-dense pages cannot blow up memory.
const pendingCapFactor = 5

type frontierEntry struct {
	Task
	seq uint64
}

// taskHeap orders entries by score descending; equal scores pop in insertion
// order. The sequence number makes the ordering total and deterministic.
type taskHeap []frontierEntry

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score > h[j].Score
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(frontierEntry)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// Frontier maintains the priority queue of discovered-but-unvisited URLs for
// one crawl session, together with the visited set. It is owned by a single
// session goroutine and is not safe for concurrent use.
type Frontier struct {
	maxPages   int
	maxPending int
	heap       taskHeap
	pending    map[string]struct{}
	visited    map[string]struct{}
	seq        uint64
}

// NewFrontier builds a frontier bounded by the session page budget. Pending
// tasks are capped at five times the budget.
func NewFrontier(maxPages int) *Frontier {
	if maxPages < 1 {
		maxPages = 1
	}
	return &Frontier{
		maxPages:   maxPages,
		maxPending: maxPages * pendingCapFactor,
		pending:    make(map[string]struct{}),
		visited:    make(map[string]struct{}),
	}
}

// Push enqueues a task unless its URL is already visited, already pending, or
// the pending cap has been reached. It reports whether the task was accepted.
func (f *Frontier) Push(t Task) bool {
	if t.URL == "" {
		return false
	}
	if _, ok := f.visited[t.URL]; ok {
		return false
	}
	if _, ok := f.pending[t.URL]; ok {
		return false
	}
	if len(f.heap) >= f.maxPending {
		frontierDrops.Inc()
		return false
	}
	f.pending[t.URL] = struct{}{}
	heap.Push(&f.heap, frontierEntry{Task: t, seq: f.seq})
	f.seq++
	return true
}

// Pop removes and returns the highest-priority pending task. Entries whose URL
// was visited after being enqueued are skipped, since duplicates may arrive
// with different scores.
func (f *Frontier) Pop() (Task, bool) {
	for f.heap.Len() > 0 {
		entry := heap.Pop(&f.heap).(frontierEntry)
		delete(f.pending, entry.URL)
		if _, ok := f.visited[entry.URL]; ok {
			continue
		}
		return entry.Task, true
	}
	return Task{}, false
}

// MarkVisited records a URL as fetched. It reports false when the URL was
// already visited or the page budget is exhausted, so the visited set never
// exceeds maxPages and no URL enters it twice.
func (f *Frontier) MarkVisited(url string) bool {
	if _, ok := f.visited[url]; ok {
		return false
	}
	if len(f.visited) >= f.maxPages {
		return false
	}
	f.visited[url] = struct{}{}
	return true
}

// Visited reports whether a URL has been fetched this session.
func (f *Frontier) Visited(url string) bool {
	_, ok := f.visited[url]
	return ok
}

// VisitedCount returns the number of URLs fetched this session.
func (f *Frontier) VisitedCount() int { return len(f.visited) }

// PendingCount returns the number of queued tasks.
func (f *Frontier) PendingCount() int { return f.heap.Len() }

// Exhausted reports whether the page budget has been reached.
func (f *Frontier) Exhausted() bool { return len(f.visited) >= f.maxPages }
