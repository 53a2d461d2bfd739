// internal/rules/audience.go
package rules

import (
	"context"
	"errors"
	"io"
	"runtime"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solatis/segmenter/internal/types"
)

/*
 * Audience Calculator.
 *
 * Applies a compiled Program to every customer of a population. Records are
 * independent, so the population is split into chunks evaluated by a bounded
 * errgroup; each chunk yields a Partial and partials merge associatively.
 * Because merged id lists are sorted, sequential, parallel and streamed
 * passes over the same snapshot produce identical Audiences.
 *
 * The reference time is fixed once per pass. A malformed record never aborts
 * the pass: it is excluded from the match set and counted as unevaluable.
 * The only errors are compilation errors and context cancellation.
 */

// Calculator defaults.
const (
	DefaultChunkSize = 512
)

// Audience is the result of one calculator pass. Evaluated counts records
// matched against the tree; records without an id are skipped and only show
// up in UnevaluableCount.
type Audience struct {
	MatchedCount     int                `json:"matched_count"`
	MatchedIDs       []types.CustomerID `json:"matched_ids"`
	UnevaluableCount int                `json:"unevaluable_count"`
	UnevaluableIDs   []types.CustomerID `json:"unevaluable_ids,omitempty"`
	Evaluated        int                `json:"evaluated"`
	ReferenceTime    time.Time          `json:"reference_time"`
}

// Partial is the audience of one chunk.
type Partial struct {
	Matched     []types.CustomerID
	Unevaluable []types.CustomerID
	// Anonymous counts unevaluable records without an id.
	Anonymous int
	Evaluated int
}

// Merge combines two partials. Merge is associative and commutative up to
// the ordering of the id slices, which Audience normalizes.
func (p Partial) Merge(q Partial) Partial {
	return Partial{
		Matched:     append(slices.Clip(p.Matched), q.Matched...),
		Unevaluable: append(slices.Clip(p.Unevaluable), q.Unevaluable...),
		Anonymous:   p.Anonymous + q.Anonymous,
		Evaluated:   p.Evaluated + q.Evaluated,
	}
}

// Audience finalizes a merged partial.
func (p Partial) Audience(now time.Time) Audience {
	matched := slices.Clone(p.Matched)
	slices.Sort(matched)
	unevaluable := slices.Clone(p.Unevaluable)
	slices.Sort(unevaluable)
	if matched == nil {
		matched = []types.CustomerID{}
	}
	return Audience{
		MatchedCount:     len(matched),
		MatchedIDs:       matched,
		UnevaluableCount: len(unevaluable) + p.Anonymous,
		UnevaluableIDs:   unevaluable,
		Evaluated:        p.Evaluated,
		ReferenceTime:    now,
	}
}

// CustomerSource yields a population in chunks. Next returns io.EOF after the
// last chunk.
type CustomerSource interface {
	Next(ctx context.Context) ([]types.Customer, error)
}

// Calculator computes audiences.
type Calculator struct {
	registry      *Registry
	workers       int
	chunkSize     int
	clock         func() time.Time
	caseSensitive bool
}

// CalculatorOption configures a Calculator.
type CalculatorOption func(*Calculator)

// WithWorkers bounds concurrent chunk evaluation; values below 2 evaluate
// sequentially.
func WithWorkers(n int) CalculatorOption {
	return func(c *Calculator) { c.workers = n }
}

// WithChunkSize sets the number of records per chunk.
func WithChunkSize(n int) CalculatorOption {
	return func(c *Calculator) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithClock sets the reference-time source.
func WithClock(fn func() time.Time) CalculatorOption {
	return func(c *Calculator) { c.clock = fn }
}

// WithCaseSensitive disables case folding for string operators.
func WithCaseSensitive(on bool) CalculatorOption {
	return func(c *Calculator) { c.caseSensitive = on }
}

// NewCalculator creates a calculator for reg.
func NewCalculator(reg *Registry, opts ...CalculatorOption) *Calculator {
	c := &Calculator{
		registry:  reg,
		workers:   runtime.GOMAXPROCS(0),
		chunkSize: DefaultChunkSize,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile compiles root with the calculator's reference time and case policy.
func (c *Calculator) Compile(root Node) (*Program, error) {
	return Compile(c.registry, root, EvalOptions{Now: c.clock(), CaseSensitive: c.caseSensitive})
}

// Compute evaluates root against a materialized population.
func (c *Calculator) Compute(ctx context.Context, root Node, customers []types.Customer) (Audience, error) {
	p, err := c.Compile(root)
	if err != nil {
		return Audience{}, err
	}
	chunks := chunk(customers, c.chunkSize)

	if c.workers < 2 || len(chunks) < 2 {
		var total Partial
		for _, ch := range chunks {
			if err := ctx.Err(); err != nil {
				return Audience{}, err
			}
			total = total.Merge(EvaluateChunk(p, ch))
		}
		return total.Audience(p.Now()), nil
	}

	partials := make([]Partial, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, ch := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			partials[i] = EvaluateChunk(p, ch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Audience{}, err
	}
	var total Partial
	for _, part := range partials {
		total = total.Merge(part)
	}
	return total.Audience(p.Now()), nil
}

// ComputeStream evaluates root against a chunked population, evaluating up
// to Workers chunks while the source produces the next one.
func (c *Calculator) ComputeStream(ctx context.Context, root Node, src CustomerSource) (Audience, error) {
	p, err := c.Compile(root)
	if err != nil {
		return Audience{}, err
	}
	workers := max(c.workers, 1)

	results := make(chan Partial, workers)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(results)
		inner, ictx := errgroup.WithContext(gctx)
		inner.SetLimit(workers)
		for {
			batch, err := src.Next(ictx)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				_ = inner.Wait()
				return err
			}
			inner.Go(func() error {
				part := EvaluateChunk(p, batch)
				select {
				case results <- part:
					return nil
				case <-ictx.Done():
					return ictx.Err()
				}
			})
		}
		return inner.Wait()
	})

	var total Partial
	for part := range results {
		total = total.Merge(part)
	}
	if err := g.Wait(); err != nil {
		return Audience{}, err
	}
	if err := ctx.Err(); err != nil {
		return Audience{}, err
	}
	return total.Audience(p.Now()), nil
}

// EvaluateChunk matches one chunk sequentially.
func EvaluateChunk(p *Program, customers []types.Customer) Partial {
	m := p.NewMatcher()
	var part Partial
	for _, cu := range customers {
		if cu.ID == "" {
			part.Anonymous++
			continue
		}
		part.Evaluated++
		out := m.Match(cu.Attributes)
		switch {
		case out.Matched:
			part.Matched = append(part.Matched, cu.ID)
		case out.Unevaluable():
			part.Unevaluable = append(part.Unevaluable, cu.ID)
		}
	}
	return part
}

func chunk(customers []types.Customer, size int) [][]types.Customer {
	if size <= 0 {
		size = DefaultChunkSize
	}
	out := make([][]types.Customer, 0, (len(customers)+size-1)/size)
	for start := 0; start < len(customers); start += size {
		out = append(out, customers[start:min(start+size, len(customers))])
	}
	return out
}
