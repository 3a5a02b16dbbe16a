// Package bulk runs independent jobs with a bound on how many are in flight.
//
// Jobs start in submission order. At most limit jobs run at any instant and a
// new one is admitted as soon as a running one settles. A failing job frees
// its slot like a succeeding one and never aborts the batch; its outcome is
// reported in the job's Result.
package bulk

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yuriy-kovalchuk/pdns-manager/internal/dns"
)

// Job is one unit of work. It should return promptly once ctx is done.
type Job[T any] func(ctx context.Context) (T, error)

// State is the lifecycle position of a job.
type State int

const (
	Pending State = iota
	Running
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Result is the outcome of one job. Index is the job's submission position.
type Result[T any] struct {
	Index    int
	State    State
	Value    T
	Err      error
	Started  time.Time
	Finished time.Time
}

// Duration is how long the job ran; zero if it never started.
func (r Result[T]) Duration() time.Duration {
	if r.Started.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

type options struct {
	jobTimeout time.Duration
	onDone     func(index int, state State, err error)
}

// Option tunes a Run.
type Option func(*options)

// WithJobTimeout bounds every job with its own deadline. Zero, the default,
// leaves jobs unbounded.
func WithJobTimeout(d time.Duration) Option {
	return func(o *options) { o.jobTimeout = d }
}

// WithCompletion registers fn to be called once per job as it reaches a
// terminal state. Calls may come from several goroutines at once.
func WithCompletion(fn func(index int, state State, err error)) Option {
	return func(o *options) { o.onDone = fn }
}

// Run executes jobs with at most limit running concurrently and returns once
// every job is terminal. The returned slice holds one Result per job in
// submission order.
//
// Run only fails for limit <= 0, before any job starts. When ctx ends, jobs
// not yet admitted are marked Failed with the context error without being
// started; jobs already running see the cancelled ctx.
func Run[T any](ctx context.Context, jobs []Job[T], limit int, opts ...Option) ([]Result[T], error) {
	if limit <= 0 {
		return nil, &dns.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be positive, got %d", limit)}
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	results := make([]Result[T], len(jobs))
	for i := range results {
		results[i] = Result[T]{Index: i, State: Pending}
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i, job := range jobs {
		// Go blocks until a slot frees, which keeps admission in FIFO order.
		g.Go(func() error {
			res := &results[i]
			if err := ctx.Err(); err != nil {
				res.State = Failed
				res.Err = err
				o.settle(i, res.State, res.Err)
				return nil
			}
			run(ctx, job, res, o.jobTimeout)
			o.settle(i, res.State, res.Err)
			return nil
		})
	}

	// Jobs never report errors to the group.
	g.Wait()
	return results, nil
}

func (o *options) settle(index int, state State, err error) {
	jobsTotal.WithLabelValues(state.String()).Inc()
	if o.onDone != nil {
		o.onDone(index, state, err)
	}
}

// run executes one job, recording its outcome in res. A panicking job is
// recorded as failed.
func run[T any](ctx context.Context, job Job[T], res *Result[T], timeout time.Duration) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	jobsActive.Inc()
	res.State = Running
	res.Started = time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("job %d panicked: %v", res.Index, p)
		}
		res.Finished = time.Now()
		if res.Err != nil {
			res.State = Failed
		} else {
			res.State = Succeeded
		}
		jobsActive.Dec()
		jobDuration.Observe(res.Finished.Sub(res.Started).Seconds())
	}()

	res.Value, res.Err = job(ctx)
}

// Errors returns the errors of failed results, in submission order.
func Errors[T any](results []Result[T]) []error {
	var errs []error
	for _, r := range results {
		if r.State == Failed {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

// Count returns how many results are in state s.
func Count[T any](results []Result[T], s State) int {
	n := 0
	for _, r := range results {
		if r.State == s {
			n++
		}
	}
	return n
}
