package mohb

import (
	"context"
	"math/rand"

	"github.com/sourcegraph/conc/pool"

	"github.com/XiaoConstantine/mohb-go/pkg/errors"
	"github.com/XiaoConstantine/mohb-go/pkg/logging"
)

// Job carries one evaluation to a worker: the trial, the fidelity to run
// it at, the owning bracket and the shared extra data. GPUPreference is
// populated only in GPU-aware mode.
type Job struct {
	Trial         *Trial
	Budget        float64
	BracketID     int
	Extra         map[string]interface{}
	GPUPreference []int
}

// jobResult is what comes back from a worker. deviceID is -1 when no GPU
// was assigned.
type jobResult struct {
	job      Job
	res      EvalResult
	err      error
	deviceID int
}

// Dispatcher owns the bounded worker pool and the set of in-flight
// jobs. Capacity 1 behaves fully synchronously: Submit executes the
// evaluation inline with no pool interaction. All Dispatcher methods are
// called from the single scheduling goroutine; only worker goroutines
// touch the results channel from the other side.
type Dispatcher struct {
	workers  int
	evaluate Evaluator
	logger   *logging.Logger

	workerPool *pool.Pool
	results    chan *jobResult
	inflight   int
	completed  []*jobResult // inline results awaiting Poll

	gpus *gpuAllocator
}

// NewDispatcher builds a dispatcher over workers parallel slots.
func NewDispatcher(workers int, evaluate Evaluator, logger *logging.Logger) (*Dispatcher, error) {
	if workers < 1 {
		return nil, errors.New(errors.InvalidConfig, "need a worker count of at least 1")
	}
	d := &Dispatcher{
		workers:  workers,
		evaluate: evaluate,
		logger:   logger,
		results:  make(chan *jobResult, workers),
	}
	if workers > 1 {
		d.workerPool = pool.New().WithMaxGoroutines(workers)
	}
	return d, nil
}

// DistributeGPUs enables GPU-aware scheduling over the given device ids.
// Called once at run start when single-node GPU mode is requested.
func (d *Dispatcher) DistributeGPUs(devices []int, rng *rand.Rand) {
	if len(devices) == 0 {
		d.logger.Warn(context.Background(), "GPU-aware scheduling enabled but no GPU devices configured")
		return
	}
	d.gpus = newGPUAllocator(devices, rng)
}

// HasCapacity reports whether a worker slot is free. Always true at
// capacity 1: the synchronous case resolves each job inside Submit.
func (d *Dispatcher) HasCapacity() bool {
	if d.workers == 1 {
		return true
	}
	return d.inflight < d.workers
}

// InFlight returns the number of submitted jobs not yet collected.
func (d *Dispatcher) InFlight() int {
	return d.inflight
}

// Submit hands a job to the pool, or runs it inline at capacity 1. In
// GPU-aware mode the least-loaded device is assigned first and attached
// to the job as a preference ordering.
func (d *Dispatcher) Submit(ctx context.Context, job Job) error {
	if d.evaluate == nil {
		return errors.New(errors.ContractViolation, "an objective function needs to be supplied")
	}

	deviceID := -1
	if d.gpus != nil {
		deviceID, job.GPUPreference = d.gpus.assign()
		d.logger.Debug(ctx, "GPU device selected: %d, usage: %v", deviceID, d.gpus.load())
	}

	d.inflight++
	if d.workerPool == nil {
		// synchronous case: no pool overhead
		d.completed = append(d.completed, d.run(ctx, job, deviceID))
		return nil
	}

	d.workerPool.Go(func() {
		d.results <- d.run(ctx, job, deviceID)
	})
	return nil
}

// run executes the objective function for one job.
func (d *Dispatcher) run(ctx context.Context, job Job, deviceID int) *jobResult {
	res, err := d.evaluate.Evaluate(ctx, job.Trial.Config, job.Budget, job.Extra)
	return &jobResult{job: job, res: res, err: err, deviceID: deviceID}
}

// Poll returns all jobs finished since the last poll without blocking.
// GPU usage counters are decremented here, on the scheduling goroutine.
func (d *Dispatcher) Poll() []*jobResult {
	out := d.completed
	d.completed = nil

	for {
		select {
		case r := <-d.results:
			out = append(out, r)
		default:
			for _, r := range out {
				d.inflight--
				if r.deviceID >= 0 && d.gpus != nil {
					d.gpus.release(r.deviceID)
				}
			}
			return out
		}
	}
}

// Drain blocks until every in-flight job has resolved, returning results
// as they arrive. Used only after the main loop stops issuing new work;
// the blocking receive acts as a completion wakeup rather than a fixed
// polling interval.
func (d *Dispatcher) Drain() []*jobResult {
	out := d.Poll()
	for d.inflight > 0 {
		r := <-d.results
		d.inflight--
		if r.deviceID >= 0 && d.gpus != nil {
			d.gpus.release(r.deviceID)
		}
		out = append(out, r)
	}
	return out
}

// gpuLoad exposes the usage table for tests and debug logging; nil when
// GPU accounting is disabled.
func (d *Dispatcher) gpuLoad() map[int]int {
	if d.gpus == nil {
		return nil
	}
	return d.gpus.load()
}
