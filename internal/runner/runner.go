// Package runner provides a bounded worker pool that maps a function over a
// list of arguments, with optional ordering levels and batching.
package runner

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/panics"
)

var (
	// ErrClosed is returned when work is submitted to a closed runner
	ErrClosed = errors.New("runner is closed")

	// ErrOrderLength is returned when the order slice does not match the args
	ErrOrderLength = errors.New("order length does not match arguments")

	// ErrPanic wraps a panic recovered from a single task
	ErrPanic = errors.New("task panicked")
)

// Runner is a fixed pool of worker goroutines.
// Tasks executed by a runner must not call Map on the same runner.
type Runner struct {
	workers int
	tasks   chan func()
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New starts a runner with the given number of workers.
// A non-positive count uses runtime.NumCPU().
func New(workers int) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	r := &Runner{
		workers: workers,
		tasks:   make(chan func(), workers),
	}

	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.work()
	}
	return r
}

func (r *Runner) work() {
	defer r.wg.Done()
	for task := range r.tasks {
		task()
	}
}

// Workers returns the size of the pool
func (r *Runner) Workers() int {
	return r.workers
}

// Close stops accepting work, waits for queued tasks and stops the workers.
// Close is idempotent.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.tasks)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Runner) submit(task func()) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrClosed
	}
	r.tasks <- task
	return nil
}

// Result is the outcome of one item
type Result[R any] struct {
	Value R
	Err   error
}

// Unwrap returns the value and error of the item
func (r Result[R]) Unwrap() (R, error) {
	return r.Value, r.Err
}

// Option configures a single Map call
type Option func(*options)

type options struct {
	order     []int
	batchSize int
	progress  func(done int)
}

// WithOrder assigns an order value per item. Every item with a lower value
// completes before any item with a higher value starts.
func WithOrder(order []int) Option {
	return func(o *options) {
		o.order = order
	}
}

// WithBatchSize runs groups of n same-order items sequentially inside one
// scheduled unit
func WithBatchSize(n int) Option {
	return func(o *options) {
		o.batchSize = n
	}
}

// WithProgress registers a callback invoked on the calling goroutine each time
// a unit completes, with the number of items the unit contained
func WithProgress(fn func(done int)) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// Map applies fn to every argument on the runner's workers and returns the
// results in input order. Per-item errors and panics are stored in the
// corresponding Result; the returned error is reserved for misuse
// (closed runner, mismatched order).
func Map[A, R any](r *Runner, fn func(A) (R, error), args []A, opts ...Option) ([]Result[R], error) {
	o := options{batchSize: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.batchSize < 1 {
		o.batchSize = 1
	}
	if o.order != nil && len(o.order) != len(args) {
		return nil, fmt.Errorf("%w: %d arguments, %d order values", ErrOrderLength, len(args), len(o.order))
	}

	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	results := make([]Result[R], len(args))
	for _, level := range levels(o.order, len(args)) {
		if err := runLevel(r, fn, args, results, level, &o); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Values returns the plain values, or the first error in input order
func Values[R any](results []Result[R]) ([]R, error) {
	values := make([]R, len(results))
	for i, res := range results {
		if res.Err != nil {
			return nil, res.Err
		}
		values[i] = res.Value
	}
	return values, nil
}

// levels groups item indices by order value, lowest first
func levels(order []int, n int) [][]int {
	if n == 0 {
		return nil
	}
	if order == nil {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return [][]int{all}
	}

	byOrder := make(map[int][]int)
	for i, ord := range order {
		byOrder[ord] = append(byOrder[ord], i)
	}

	keys := make([]int, 0, len(byOrder))
	for k := range byOrder {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([][]int, 0, len(keys))
	for _, k := range keys {
		out = append(out, byOrder[k])
	}
	return out
}

func chunk(indices []int, size int) [][]int {
	chunks := make([][]int, 0, (len(indices)+size-1)/size)
	for start := 0; start < len(indices); start += size {
		end := start + size
		if end > len(indices) {
			end = len(indices)
		}
		chunks = append(chunks, indices[start:end])
	}
	return chunks
}

type submitted struct {
	units int
	err   error
}

// runLevel schedules every unit of one order level and waits for all of them.
// Submission happens on a separate goroutine so progress keeps flowing while
// the task queue is full.
func runLevel[A, R any](r *Runner, fn func(A) (R, error), args []A, results []Result[R], indices []int, o *options) error {
	units := chunk(indices, o.batchSize)
	done := make(chan int, len(units))
	submitDone := make(chan submitted, 1)

	go func() {
		n := 0
		for _, unit := range units {
			err := r.submit(func() {
				runUnit(fn, args, results, unit)
				done <- len(unit)
			})
			if err != nil {
				submitDone <- submitted{units: n, err: err}
				return
			}
			n++
		}
		submitDone <- submitted{units: n}
	}()

	var (
		completed int
		sub       *submitted
	)
	for sub == nil || completed < sub.units {
		select {
		case k := <-done:
			completed++
			if o.progress != nil {
				o.progress(k)
			}
		case s := <-submitDone:
			sub = &s
		}
	}
	return sub.err
}

func runUnit[A, R any](fn func(A) (R, error), args []A, results []Result[R], unit []int) {
	for _, i := range unit {
		var res Result[R]
		if rec := panics.Try(func() { res.Value, res.Err = fn(args[i]) }); rec != nil {
			res = Result[R]{Err: fmt.Errorf("%w: %v", ErrPanic, rec.AsError())}
		}
		results[i] = res
	}
}
