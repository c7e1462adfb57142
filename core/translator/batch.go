package translator

import (
	"runtime"
	"sync"
	"time"

	"github.com/e2m-lab/e2m/core/mir"
	"github.com/panjf2000/ants/v2"
)

// TranslateBatch translates several contracts on a pool of workers. The
// results and errors are indexed like codes. Each contract is translated by
// Translate, so a failing contract does not affect the others.
func (t *Translator) TranslateBatch(codes [][]byte, hints ...*mir.Hint) ([]*Contract, []error) {
	out := make([]*Contract, len(codes))
	errs := make([]error, len(codes))
	if len(codes) == 0 {
		return out, errs
	}
	pool, err := ants.NewPool(t.threads(len(codes)), ants.WithExpiryDuration(10*time.Second))
	if err != nil {
		for i := range errs {
			errs[i] = err
		}
		return out, errs
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range codes {
		i := i
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			out[i], errs[i] = t.Translate(codes[i], hints...)
		})
		if err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()
	return out, errs
}

// threads returns the pool size for the given number of tasks.
func (t *Translator) threads(tasks int) int {
	threads := t.config.Workers
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if threads > tasks {
		threads = tasks
	}
	return threads
}
