// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package crdt implements the vector clock and per-memory CRDT machinery
// (spec component C5): clock comparison, an operation log with O(1)
// dedupe, merge, and three pluggable conflict-resolution strategies.
package crdt

import "sort"

// Ordering is the result of comparing two VectorClocks.
type Ordering int

const (
	Equal Ordering = iota
	Less
	Greater
	Concurrent
)

// VectorClock is an ordered mapping of peer id to monotonic counter.
// Missing keys are treated as zero everywhere a comparison or merge reads
// them.
type VectorClock struct {
	counters map[string]uint64
}

func NewVectorClock() *VectorClock {
	return &VectorClock{counters: make(map[string]uint64)}
}

// Clone returns a deep copy.
func (c *VectorClock) Clone() *VectorClock {
	cp := NewVectorClock()
	for k, v := range c.counters {
		cp.counters[k] = v
	}
	return cp
}

// Increment bumps the counter for peer p by one.
func (c *VectorClock) Increment(peer string) {
	c.counters[peer]++
}

// Update performs a componentwise maximum with other, the CRDT join.
// Calling Update twice with the same clock is idempotent.
func (c *VectorClock) Update(other *VectorClock) {
	if other == nil {
		return
	}
	for k, v := range other.counters {
		if v > c.counters[k] {
			c.counters[k] = v
		}
	}
}

func (c *VectorClock) Get(peer string) uint64 {
	return c.counters[peer]
}

// sortedKeys returns the union of both clocks' peer ids in lockstep order,
// so Compare can walk both maps as a three-way merge.
func sortedKeys(a, b *VectorClock) []string {
	seen := make(map[string]struct{}, len(a.counters)+len(b.counters))
	keys := make([]string, 0, len(a.counters)+len(b.counters))
	for k := range a.counters {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for k := range b.counters {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Compare walks both clocks' keys in lockstep, treating a missing key as
// zero, and combines the two booleans self_less/other_less into a verdict:
// neither -> Equal, only self_less -> Less, only other_less -> Greater,
// both -> Concurrent.
func (c *VectorClock) Compare(other *VectorClock) Ordering {
	if other == nil {
		other = NewVectorClock()
	}
	selfLess, otherLess := false, false
	for _, k := range sortedKeys(c, other) {
		a, b := c.counters[k], other.counters[k]
		switch {
		case a < b:
			selfLess = true
		case a > b:
			otherLess = true
		}
	}
	switch {
	case selfLess && otherLess:
		return Concurrent
	case selfLess:
		return Less
	case otherLess:
		return Greater
	default:
		return Equal
	}
}

// Snapshot returns a copy of the underlying counters. The copy is a plain
// map with no key order; MarshalJSON is the sorted form.
func (c *VectorClock) Snapshot() map[string]uint64 {
	cp := make(map[string]uint64, len(c.counters))
	for k, v := range c.counters {
		cp[k] = v
	}
	return cp
}

// MarshalJSON serializes the clock as a plain object, keys sorted for
// deterministic output.
func (c *VectorClock) MarshalJSON() ([]byte, error) {
	return marshalSortedCounters(c.counters)
}

func (c *VectorClock) UnmarshalJSON(b []byte) error {
	m, err := unmarshalCounters(b)
	if err != nil {
		return err
	}
	c.counters = m
	return nil
}
