package memory

import "sync"

// taskQueue serializes background work for a single session. One worker
// goroutine drains the queue, so enrichment and summarization for the same
// session never interleave; queues for different sessions run in parallel.
type taskQueue struct {
	tasks chan func()

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func newTaskQueue(buffer int) *taskQueue {
	if buffer <= 0 {
		buffer = 64
	}
	q := &taskQueue{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *taskQueue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			// Drain whatever was accepted before close so enrichment
			// results are not silently thrown away on eviction.
			for {
				select {
				case task := <-q.tasks:
					task()
				default:
					return
				}
			}
		case task := <-q.tasks:
			task()
		}
	}
}

// Enqueue submits a task without blocking the caller. Returns false when the
// queue is saturated or closed; a dropped enrichment task is a legal state.
func (q *taskQueue) Enqueue(task func()) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.tasks <- task:
		return true
	default:
		return false
	}
}

// Close stops the worker after draining accepted tasks. Safe to call more
// than once.
func (q *taskQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
	q.wg.Wait()
}
