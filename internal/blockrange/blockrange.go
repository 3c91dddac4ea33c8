// Package blockrange splits inclusive block intervals into ordered chunks.
package blockrange

import (
	"errors"
	"fmt"
	"iter"
)

// ErrInvalidRange is returned when a partition is requested with a zero chunk size.
var ErrInvalidRange = errors.New("invalid range: chunk size must be at least 1")

// Range is an inclusive interval of block numbers.
type Range struct {
	Start uint64
	End   uint64
}

// Len returns the number of blocks covered by the range.
func (r Range) Len() uint64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d]", r.Start, r.End)
}

// Partition yields consecutive ranges of at most chunkSize blocks covering [from, to].
// A from greater than to yields nothing. The returned sequence holds no state and can
// be ranged over any number of times.
func Partition(from, to, chunkSize uint64) (iter.Seq[Range], error) {
	if chunkSize == 0 {
		return nil, ErrInvalidRange
	}
	return func(yield func(Range) bool) {
		if from > to {
			return
		}
		start := from
		for {
			end := to
			if to-start >= chunkSize {
				end = start + chunkSize - 1
			}
			if !yield(Range{Start: start, End: end}) {
				return
			}
			if end == to {
				return
			}
			start = end + 1
		}
	}, nil
}

// Collect materializes a partition into a slice.
func Collect(from, to, chunkSize uint64) ([]Range, error) {
	seq, err := Partition(from, to, chunkSize)
	if err != nil {
		return nil, err
	}
	var out []Range
	for r := range seq {
		out = append(out, r)
	}
	return out, nil
}
