package batcher

import (
	"sync"
)

// Batcher accumulates tasks and hands them to op once batchSize of them are
// collected. It is safe for concurrent use, op runs under the batcher lock so
// batches are never processed concurrently.
type Batcher[T any] struct {
	op        func([]T) error
	tasks     []T
	batchSize int
	lock      sync.Mutex
}

func NewBatcher[T any](op func([]T) error, batchSize int) *Batcher[T] {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Batcher[T]{
		op:        op,
		tasks:     make([]T, 0, batchSize),
		batchSize: batchSize,
	}
}

func (b *Batcher[T]) RunTask(task T) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.tasks = append(b.tasks, task)
	if len(b.tasks) >= b.batchSize {
		return b.flush()
	}
	return nil
}

// Flush processes whatever is pending, it is a no-op for an empty batcher.
func (b *Batcher[T]) Flush() error {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.flush()
}

func (b *Batcher[T]) Pending() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return len(b.tasks)
}

func (b *Batcher[T]) flush() error {
	if len(b.tasks) == 0 {
		return nil
	}
	tasks := b.tasks
	b.tasks = make([]T, 0, b.batchSize)
	return b.op(tasks)
}

// Chunks splits items into consecutive slices of at most size elements.
func Chunks[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	chunks := make([][]T, 0, (len(items)+max(size, 1)-1)/max(size, 1))
	for start := 0; start < len(items); start += size {
		chunks = append(chunks, items[start:min(start+size, len(items))])
	}
	return chunks
}
