package mapreduce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Aggregate maps a classification to the number of objects carrying it.
// Counts are always at least 1.
type Aggregate map[string]int

// Combine returns the key-wise sum of a and b. Neither input is modified.
// The empty aggregate is the identity.
func (a Aggregate) Combine(b Aggregate) Aggregate {
	out := make(Aggregate, len(a)+len(b))
	for k, v := range a {
		out[k] += v
	}
	for k, v := range b {
		out[k] += v
	}
	return out
}

// Total returns the sum of all counts.
func (a Aggregate) Total() int {
	total := 0
	for _, v := range a {
		total += v
	}
	return total
}

// Keys returns the classifications in lexical order.
func (a Aggregate) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reduce counts the classifications of mapper output values.
func Reduce(values []Value) (Aggregate, error) {
	result := make(Aggregate)
	for i, v := range values {
		class, ok := v.Classification.Get()
		if !ok {
			return nil, fmt.Errorf("%w: value %d (object %q) has no classification", ErrInvalidAggregationInput, i, v.ObjectID)
		}
		result[class]++
	}
	return result, nil
}

// Rereduce sums partial aggregates produced by earlier Reduce or Rereduce calls.
func Rereduce(partials []Aggregate) (Aggregate, error) {
	result := make(Aggregate)
	for i, partial := range partials {
		for class, count := range partial {
			if count < 1 {
				return nil, fmt.Errorf("%w: partial %d has count %d for %q", ErrInvalidAggregationInput, i, count, class)
			}
			if count > math.MaxInt-result[class] {
				return nil, fmt.Errorf("%w: count for %q overflows at partial %d", ErrInvalidAggregationInput, class, i)
			}
			result[class] += count
		}
	}
	return result, nil
}

// ReduceView follows the view server calling convention: values holds raw
// mapper output when rereduce is false and raw partial aggregates when it is
// true. Keys are not used.
func ReduceView(_ []json.RawMessage, values []json.RawMessage, rereduce bool) (Aggregate, error) {
	if rereduce {
		partials := make([]Aggregate, 0, len(values))
		for i, raw := range values {
			partial, err := decodePartial(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: partial %d: %v", ErrInvalidAggregationInput, i, err)
			}
			partials = append(partials, partial)
		}
		return Rereduce(partials)
	}

	decoded := make([]Value, 0, len(values))
	for i, raw := range values {
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: value %d: %v", ErrInvalidAggregationInput, i, err)
		}
		decoded = append(decoded, v)
	}
	return Reduce(decoded)
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("expected a JSON object, got %s", trimmed)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeValue(raw json.RawMessage) (Value, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return Value{}, err
	}
	if _, ok := obj["classification"]; !ok {
		return Value{}, fmt.Errorf("missing classification")
	}

	var v Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return Value{}, err
	}
	return v, nil
}

func decodePartial(raw json.RawMessage) (Aggregate, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	partial := make(Aggregate, len(obj))
	for class, rawCount := range obj {
		rawCount = bytes.TrimSpace(rawCount)
		if len(rawCount) == 0 || rawCount[0] == '"' {
			return nil, fmt.Errorf("count for %q is not a number: %s", class, rawCount)
		}
		var n json.Number
		if err := json.Unmarshal(rawCount, &n); err != nil {
			return nil, fmt.Errorf("count for %q is not a number: %s", class, rawCount)
		}
		count, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("count for %q is not an integer: %s", class, n)
		}
		if count > math.MaxInt {
			return nil, fmt.Errorf("count for %q is out of range: %s", class, n)
		}
		partial[class] = int(count)
	}
	return partial, nil
}
