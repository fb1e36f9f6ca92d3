package models

import "errors"

var (
	// ErrNoMatch means a source legitimately found nothing.
	ErrNoMatch = errors.New("no match")
	// ErrSourceUnavailable covers network, timeout and parse failures of one source.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrAllSourcesExhausted means no usable candidate was found within the attempt budget.
	ErrAllSourcesExhausted = errors.New("all sources exhausted")
	// ErrMalformedOutput is returned when oracle text has no parseable structure.
	ErrMalformedOutput = errors.New("malformed output")
	ErrInvalidQuery    = errors.New("invalid query")
)
