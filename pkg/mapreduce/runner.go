package mapreduce

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

const (
	DefaultWorkers   = 4
	DefaultBatchSize = 64
)

// Options controls how Run splits work. The aggregates Run produces do not
// depend on Workers or BatchSize. A nil Mapper means Map.
type Options struct {
	Workers   int
	BatchSize int
	Mapper    func(Document, Emitter) error
}

// Failure records a document the mapper rejected.
type Failure struct {
	DocumentID string
	Err        error
}

// Result holds the mapped rows and the reduced aggregate of every key.
// A key whose values could not be reduced has an entry in ReduceErrors
// instead of Aggregates.
type Result struct {
	Aggregates   map[string]Aggregate
	ReduceErrors map[string]error
	Failures     []Failure
	Mapped       int

	rows map[string][]Value
}

// Keys returns the emitted keys in lexical order.
func (r *Result) Keys() []string {
	keys := make([]string, 0, len(r.rows))
	for k := range r.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Rows returns the values emitted under key, ordered by object id.
func (r *Result) Rows(key string) []Value {
	rows := make([]Value, len(r.rows[key]))
	copy(rows, r.rows[key])
	sort.SliceStable(rows, func(i, j int) bool {
		return LessObjectID(rows[i].ObjectID, rows[j].ObjectID)
	})
	return rows
}

// LessObjectID orders numeric object ids numerically and everything else lexically.
func LessObjectID(a, b string) bool {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return ai < bi
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	}
	return a < b
}

type mapJob struct {
	index int
	doc   Document
}

type mapOutcome struct {
	index   int
	key     string
	value   Value
	emitted bool
	err     error
}

// mapWorker runs Map over every document it receives.
func mapWorker(ctx context.Context, wg *sync.WaitGroup, mapper func(Document, Emitter) error, jobs <-chan mapJob, results chan<- mapOutcome) {
	defer wg.Done()
	for job := range jobs {
		out := mapOutcome{index: job.index}
		if err := ctx.Err(); err != nil {
			out.err = err
			results <- out
			continue
		}
		out.err = mapper(job.doc, func(key string, value Value) {
			out.key = key
			out.value = value
			out.emitted = true
		})
		results <- out
	}
}

// Run maps docs concurrently, groups the emitted values by key and reduces
// every key in batches of opts.BatchSize before rereducing the partials.
// Documents the mapper rejects are reported in Result.Failures and skipped.
// The returned error is only set when ctx is done.
func Run(ctx context.Context, docs []Document, opts Options) (*Result, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	mapper := opts.Mapper
	if mapper == nil {
		mapper = Map
	}

	var wg sync.WaitGroup
	jobs := make(chan mapJob, len(docs))
	results := make(chan mapOutcome, len(docs))

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go mapWorker(ctx, &wg, mapper, jobs, results)
	}
	for i, doc := range docs {
		jobs <- mapJob{index: i, doc: doc}
	}
	close(jobs)

	wg.Wait()
	close(results)

	outcomes := make([]mapOutcome, len(docs))
	for out := range results {
		outcomes[out.index] = out
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		Aggregates:   make(map[string]Aggregate),
		ReduceErrors: make(map[string]error),
		rows:         make(map[string][]Value),
	}
	for i, out := range outcomes {
		if out.err != nil {
			result.Failures = append(result.Failures, Failure{DocumentID: docs[i].ID, Err: out.err})
			continue
		}
		if out.emitted {
			result.rows[out.key] = append(result.rows[out.key], out.value)
			result.Mapped++
		}
	}

	if err := result.reduceAll(ctx, workers, batchSize); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Result) reduceAll(ctx context.Context, workers, batchSize int) error {
	type reduced struct {
		key string
		agg Aggregate
		err error
	}

	keys := r.Keys()
	out := make(chan reduced, len(keys))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, key := range keys {
		wg.Add(1)
		sem <- struct{}{}
		go func(key string, values []Value) {
			defer wg.Done()
			defer func() { <-sem }()
			agg, err := reduceBatched(ctx, values, batchSize)
			out <- reduced{key: key, agg: agg, err: err}
		}(key, r.rows[key])
	}
	wg.Wait()
	close(out)

	for res := range out {
		if res.err != nil {
			r.ReduceErrors[res.key] = fmt.Errorf("reduce %q: %w", res.key, res.err)
			continue
		}
		r.Aggregates[res.key] = res.agg
	}
	return ctx.Err()
}

// reduceBatched reduces values in fixed-size batches and rereduces the
// partial aggregates, the way a view engine does across index nodes.
func reduceBatched(ctx context.Context, values []Value, batchSize int) (Aggregate, error) {
	partials := make([]Aggregate, 0, len(values)/batchSize+1)
	for start := 0; start < len(values); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batchSize
		if end > len(values) {
			end = len(values)
		}
		partial, err := Reduce(values[start:end])
		if err != nil {
			return nil, err
		}
		partials = append(partials, partial)
	}
	return Rereduce(partials)
}
