//
// Copyright (c) 2020-2024, NVIDIA CORPORATION. All rights reserved.
//
// See LICENSE.txt for license information
//

// Package notation stores a performance report row's participant ranks
// in run-length notation, e.g. "0-6,8-10,42" for the ranks
// {0,1,2,3,4,5,6,8,9,10,42}, so a report covering a large communicator
// doesn't spell out every rank on every row.
package notation

import (
	"fmt"
	"strconv"
	"strings"
)

// ParticipantSet is the set of ranks that took part in one optimized
// collective call, ascending and free of duplicates. Every collective the
// optimizer runs involves every rank of its communicator. This is what
// internal/pkg/report's "participants" column compresses.
type ParticipantSet []int

// Compress renders p in run-length notation with a single forward pass:
// it tracks the current run's [start,prev] bounds and only touches the
// builder when a run breaks, rather than reallocating a growing string
// on every element the way a naive append-and-rebuild would.
func (p ParticipantSet) Compress() string {
	if len(p) == 0 {
		return ""
	}

	var b strings.Builder
	flushRun := func(start, end int) {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if start == end {
			fmt.Fprintf(&b, "%d", start)
		} else {
			fmt.Fprintf(&b, "%d-%d", start, end)
		}
	}

	start, prev := p[0], p[0]
	for _, rank := range p[1:] {
		if rank == prev+1 {
			prev = rank
			continue
		}
		flushRun(start, prev)
		start, prev = rank, rank
	}
	flushRun(start, prev)
	return b.String()
}

// CountParticipants counts how many ranks str represents without fully
// expanding it, for callers that only need the participant count from a
// report row.
func CountParticipants(str string) (int, error) {
	count := 0
	for _, token := range strings.Split(str, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		lo, hi, isRange, err := parseToken(token)
		if err != nil {
			return 0, err
		}
		if isRange {
			count += hi - lo + 1
		} else {
			count++
		}
	}
	return count, nil
}

// ParseParticipants reverses ParticipantSet.Compress, returning the full
// rank set in ascending order.
func ParseParticipants(str string) (ParticipantSet, error) {
	var out ParticipantSet
	for _, token := range strings.Split(str, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		lo, hi, isRange, err := parseToken(token)
		if err != nil {
			return nil, err
		}
		if isRange {
			for r := lo; r <= hi; r++ {
				out = append(out, r)
			}
		} else {
			out = append(out, lo)
		}
	}
	return out, nil
}

func parseToken(token string) (lo, hi int, isRange bool, err error) {
	bounds := strings.SplitN(token, "-", 2)
	lo, err = strconv.Atoi(bounds[0])
	if err != nil {
		return 0, 0, false, fmt.Errorf("notation: invalid rank %q: %w", bounds[0], err)
	}
	if len(bounds) == 1 {
		return lo, lo, false, nil
	}
	hi, err = strconv.Atoi(bounds[1])
	if err != nil {
		return 0, 0, false, fmt.Errorf("notation: invalid range end %q: %w", bounds[1], err)
	}
	return lo, hi, true, nil
}
