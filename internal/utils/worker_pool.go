package utils

import "sync"

// CompletedTask carries the outcome of one pooled task.
type CompletedTask[Out any] struct {
	Index  int
	Result Out
	Error  error
}

// RunInPool runs worker over inputs with at most maxWorkers goroutines and
// returns one CompletedTask per input, indexed like inputs.
func RunInPool[In any, Out any](inputs []In, maxWorkers int, worker func(int, In) (Out, error)) []CompletedTask[Out] {
	results := make([]CompletedTask[Out], len(inputs))
	if len(inputs) == 0 {
		return results
	}

	workers := min(len(inputs), max(maxWorkers, 1))
	queue := make(chan int, len(inputs))
	for i := range inputs {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range queue {
				res, err := worker(idx, inputs[idx])
				results[idx] = CompletedTask[Out]{Index: idx, Result: res, Error: err}
			}
		}()
	}
	wg.Wait()

	return results
}
