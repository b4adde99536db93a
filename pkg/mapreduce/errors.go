package mapreduce

import "errors"

var (
	// ErrMalformedIdentifier is returned when a document id has no "<prefix>:" part.
	ErrMalformedIdentifier = errors.New("malformed identifier")

	// ErrInvalidAggregationInput is returned when a reduce input or partial
	// aggregate does not have the expected shape.
	ErrInvalidAggregationInput = errors.New("invalid aggregation input")
)
