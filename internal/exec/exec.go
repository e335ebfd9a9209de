// Package exec implements the data-parallel filter, aggregate, and
// hash-join execution over a collection snapshot (spec §4.9), translating
// the teacher's long-lived compaction worker pool into a per-call
// errgroup.Group fan-out suited to one-shot scans.
package exec

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/chaturanga836/docstore/internal/common"
	"github.com/chaturanga836/docstore/internal/value"
)

// parallelThreshold is the child count above which a scan is partitioned
// across goroutines; below it, filtering runs single-threaded.
const parallelThreshold = 100

// Item is one child of a scanned collection: its full document path and
// value, kept paired so scans and joins can report results addressable by
// path while filtering by field.
type Item struct {
	Path string
	Doc  value.Value
}

// FilterOp is a comparison or set operator usable in a Filter (spec §4.9).
type FilterOp string

const (
	OpEq          FilterOp = "eq"
	OpNe          FilterOp = "ne"
	OpGt          FilterOp = "gt"
	OpGte         FilterOp = "gte"
	OpLt          FilterOp = "lt"
	OpLte         FilterOp = "lte"
	OpContains    FilterOp = "contains"
	OpStartsWith  FilterOp = "startsWith"
	OpEndsWith    FilterOp = "endsWith"
	OpIn          FilterOp = "in"
	OpNotIn       FilterOp = "notIn"
	OpRegex       FilterOp = "regex"
	OpContainsAll FilterOp = "containsAll"
	OpContainsAny FilterOp = "containsAny"
)

// Filter is one predicate in a parallel query: item[Field] Op Value.
type Filter struct {
	Field string
	Op    FilterOp
	Value value.Value
}

// Cores reports the degree of parallelism to request for a scan; tests and
// callers that want determinism can override it by reassigning Cores.
var Cores = func() int { return 4 }

func chunkCount() int {
	n := Cores() - 1
	if n < 1 {
		return 1
	}
	return n
}

// Query partitions children into max(1, cores-1) chunks above
// parallelThreshold items (single-threaded below), applies every filter per
// chunk, and concatenates results in the original input order.
func Query(ctx context.Context, children []Item, filters []Filter) ([]Item, error) {
	compiled, err := compileFilters(filters)
	if err != nil {
		return nil, err
	}
	if len(children) <= parallelThreshold {
		return filterSequential(children, compiled), nil
	}

	chunks := chunkCount()
	results := make([][]Item, chunks)
	g, gctx := errgroup.WithContext(ctx)
	size := (len(children) + chunks - 1) / chunks
	for c := 0; c < chunks; c++ {
		c := c
		start := c * size
		if start >= len(children) {
			continue
		}
		end := start + size
		if end > len(children) {
			end = len(children)
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[c] = filterSequential(children[start:end], compiled)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, common.NewErrorWithCause(common.ErrInternal, "exec: parallel query", err)
	}

	var out []Item
	for _, chunk := range results {
		out = append(out, chunk...)
	}
	return out, nil
}

func filterSequential(children []Item, filters []compiledFilter) []Item {
	var out []Item
	for _, it := range children {
		if matchesAll(it, filters) {
			out = append(out, it)
		}
	}
	return out
}

type compiledFilter struct {
	Filter
	pattern *regexp.Regexp
}

func compileFilters(filters []Filter) ([]compiledFilter, error) {
	out := make([]compiledFilter, len(filters))
	for i, f := range filters {
		cf := compiledFilter{Filter: f}
		if f.Op == OpRegex {
			pat, ok := f.Value.StringVal()
			if !ok {
				return nil, common.NewValidationError("exec: regex filter value must be a string")
			}
			re, err := regexp.Compile(pat)
			if err != nil {
				return nil, common.NewValidationError("exec: invalid regex %q: %v", pat, err)
			}
			cf.pattern = re
		}
		out[i] = cf
	}
	return out, nil
}

func matchesAll(it Item, filters []compiledFilter) bool {
	for _, f := range filters {
		if !matches(it, f) {
			return false
		}
	}
	return true
}

func matches(it Item, f compiledFilter) bool {
	fieldVal, ok := it.Doc.Field(f.Field)
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return value.Equal(fieldVal, f.Value)
	case OpNe:
		return !value.Equal(fieldVal, f.Value)
	case OpGt, OpGte, OpLt, OpLte:
		a, aok := fieldVal.NumberVal()
		b, bok := f.Value.NumberVal()
		if !aok || !bok {
			return false
		}
		switch f.Op {
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	case OpContains:
		s, sok := fieldVal.StringVal()
		sub, subok := f.Value.StringVal()
		return sok && subok && strings.Contains(s, sub)
	case OpStartsWith:
		s, sok := fieldVal.StringVal()
		prefix, pok := f.Value.StringVal()
		return sok && pok && strings.HasPrefix(s, prefix)
	case OpEndsWith:
		s, sok := fieldVal.StringVal()
		suffix, sufok := f.Value.StringVal()
		return sok && sufok && strings.HasSuffix(s, suffix)
	case OpIn:
		items, _ := f.Value.Items()
		for _, v := range items {
			if value.Equal(v, fieldVal) {
				return true
			}
		}
		return false
	case OpNotIn:
		items, _ := f.Value.Items()
		for _, v := range items {
			if value.Equal(v, fieldVal) {
				return false
			}
		}
		return true
	case OpRegex:
		s, sok := fieldVal.StringVal()
		return sok && f.pattern != nil && f.pattern.MatchString(s)
	case OpContainsAll:
		fieldItems, fok := fieldVal.Items()
		wantItems, wok := f.Value.Items()
		if !fok || !wok {
			return false
		}
		for _, w := range wantItems {
			if !containsValue(fieldItems, w) {
				return false
			}
		}
		return true
	case OpContainsAny:
		fieldItems, fok := fieldVal.Items()
		wantItems, wok := f.Value.Items()
		if !fok || !wok {
			return false
		}
		for _, w := range wantItems {
			if containsValue(fieldItems, w) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func containsValue(haystack []value.Value, needle value.Value) bool {
	for _, v := range haystack {
		if value.Equal(v, needle) {
			return true
		}
	}
	return false
}

// AggOp is a fold operator for Aggregate (spec §4.9).
type AggOp string

const (
	AggCount AggOp = "count"
	AggSum   AggOp = "sum"
	AggAvg   AggOp = "avg"
	AggMin   AggOp = "min"
	AggMax   AggOp = "max"
)

// Aggregate runs a parallel fold over children's Field, combining per-chunk
// partials with the obvious combiner (avg pairs (sum, count)). Non-numeric
// field values are ignored; min of an empty set is absent; avg of an empty
// set is 0 (a documented quirk carried over unchanged).
func Aggregate(ctx context.Context, children []Item, op AggOp, field string) (value.Value, error) {
	if op == AggCount {
		return value.NewNumber(float64(len(children))), nil
	}

	chunks := chunkCount()
	if len(children) <= parallelThreshold {
		chunks = 1
	}
	partials := make([]partial, chunks)
	g, gctx := errgroup.WithContext(ctx)
	size := (len(children) + chunks - 1) / chunks
	if size == 0 {
		size = len(children)
	}
	for c := 0; c < chunks; c++ {
		c := c
		start := c * size
		if start >= len(children) {
			continue
		}
		end := start + size
		if end > len(children) {
			end = len(children)
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			partials[c] = foldChunk(children[start:end], field)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return value.Value{}, common.NewErrorWithCause(common.ErrInternal, "exec: parallel aggregate", err)
	}

	combined := combine(partials)
	switch op {
	case AggSum:
		return value.NewNumber(combined.sum), nil
	case AggAvg:
		if combined.count == 0 {
			return value.NewNumber(0), nil
		}
		return value.NewNumber(combined.sum / float64(combined.count)), nil
	case AggMin:
		if !combined.hasMin {
			return value.NewNull(), nil
		}
		return value.NewNumber(combined.min), nil
	case AggMax:
		if !combined.hasMax {
			return value.NewNull(), nil
		}
		return value.NewNumber(combined.max), nil
	default:
		return value.Value{}, common.NewValidationError("exec: unknown aggregate op %q", op)
	}
}

type partial struct {
	sum            float64
	count          int
	min, max       float64
	hasMin, hasMax bool
}

func foldChunk(children []Item, field string) partial {
	var p partial
	for _, it := range children {
		fv, ok := it.Doc.Field(field)
		if !ok {
			continue
		}
		n, ok := fv.NumberVal()
		if !ok {
			continue
		}
		p.sum += n
		p.count++
		if !p.hasMin || n < p.min {
			p.min, p.hasMin = n, true
		}
		if !p.hasMax || n > p.max {
			p.max, p.hasMax = n, true
		}
	}
	return p
}

func combine(parts []partial) partial {
	var out partial
	for _, p := range parts {
		out.sum += p.sum
		out.count += p.count
		if p.hasMin && (!out.hasMin || p.min < out.min) {
			out.min, out.hasMin = p.min, true
		}
		if p.hasMax && (!out.hasMax || p.max > out.max) {
			out.max, out.hasMax = p.max, true
		}
	}
	return out
}

// Lookup performs a hash join: the build phase partitions right by
// String(item[rightField]) into buckets; the probe phase iterates left in
// parallel, attaching the matching bucket (possibly empty) under asField on
// a cloned copy of each left item. Left order is preserved.
func Lookup(ctx context.Context, left, right []Item, leftField, rightField, asField string) ([]Item, error) {
	buckets := make(map[string][]value.Value)
	for _, r := range right {
		fv, ok := r.Doc.Field(rightField)
		if !ok {
			continue
		}
		key, ok := fv.StringVal()
		if !ok {
			key = stringifyScalar(fv)
		}
		buckets[key] = append(buckets[key], r.Doc)
	}

	out := make([]Item, len(left))
	chunks := chunkCount()
	if len(left) <= parallelThreshold {
		chunks = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	size := (len(left) + chunks - 1) / chunks
	if size == 0 {
		size = len(left)
	}
	for c := 0; c < chunks; c++ {
		c := c
		start := c * size
		if start >= len(left) {
			continue
		}
		end := start + size
		if end > len(left) {
			end = len(left)
		}
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			for i := start; i < end; i++ {
				it := left[i]
				fv, ok := it.Doc.Field(leftField)
				key := ""
				if ok {
					if s, sok := fv.StringVal(); sok {
						key = s
					} else {
						key = stringifyScalar(fv)
					}
				}
				matched := buckets[key]
				attached := it.Doc.WithField(asField, value.NewArray(matched...))
				out[i] = Item{Path: it.Path, Doc: attached}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, common.NewErrorWithCause(common.ErrInternal, "exec: parallel lookup", err)
	}
	return out, nil
}

func stringifyScalar(v value.Value) string {
	switch v.Kind() {
	case value.Number:
		n, _ := v.NumberVal()
		return strconv.FormatFloat(n, 'g', -1, 64)
	case value.Bool:
		b, _ := v.Bool()
		if b {
			return "true"
		}
		return "false"
	case value.Null:
		return "null"
	default:
		data, _ := v.MarshalJSON()
		return string(data)
	}
}
