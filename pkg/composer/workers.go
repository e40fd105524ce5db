package composer

import "sync"

// workerPool tracks the parallel-generation budget. The size bounds how many
// generations run at once; active counts the ones currently running.
type workerPool struct {
	mu     sync.Mutex
	size   int
	active int
}

func (w *workerPool) enter() {
	w.mu.Lock()
	w.active++
	w.mu.Unlock()
}

func (w *workerPool) leave() {
	w.mu.Lock()
	if w.active > 0 {
		w.active--
	}
	w.mu.Unlock()
}

// WorkerPoolStatus reports the parallel-generation pool.
type WorkerPoolStatus struct {
	Size   int `json:"size"`
	Active int `json:"active"`
}

// WorkerPoolStatus returns the pool size and the number of in-flight
// generations.
func (c *Composer) WorkerPoolStatus() WorkerPoolStatus {
	c.workers.mu.Lock()
	defer c.workers.mu.Unlock()
	return WorkerPoolStatus{Size: c.workers.size, Active: c.workers.active}
}

// ScaleWorkerPool resizes the pool, clamped to a minimum of one worker, and
// returns the effective size.
func (c *Composer) ScaleWorkerPool(n int) int {
	if n < 1 {
		n = 1
	}
	c.workers.mu.Lock()
	c.workers.size = n
	c.workers.mu.Unlock()
	return n
}
