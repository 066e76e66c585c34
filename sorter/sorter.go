// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sorter provides an indexed ordered set: records addressable by key
// in O(1) and iterable in a caller-defined total order.
package sorter

import "sort"

// Sorter holds at most one record per key, ordered by less. less must be a
// strict weak ordering that is total over distinct keys (break ties by key),
// so that every record has a unique position.
//
// Not safe for concurrent use; see SharedSorter.
type Sorter[K comparable, R any] struct {
	/////////////////////////
	// Constant data
	/////////////////////////

	keyOf func(R) K
	less  func(a, b R) bool

	/////////////////////////
	// Mutable state
	/////////////////////////

	// INVARIANT: records holds exactly the keys of the entries in ordered.
	// INVARIANT: ordered is sorted by less.
	records map[K]R
	ordered []R
}

// New returns an empty Sorter whose records are addressed by keyOf and
// ordered by less.
func New[K comparable, R any](keyOf func(R) K, less func(a, b R) bool) *Sorter[K, R] {
	return &Sorter[K, R]{
		keyOf:   keyOf,
		less:    less,
		records: make(map[K]R),
	}
}

////////////////////////////////////////////////////////////////////////
// Public interface
////////////////////////////////////////////////////////////////////////

// Size returns the number of records.
func (s *Sorter[K, R]) Size() int {
	return len(s.ordered)
}

// Empty returns true iff the sorter holds no records.
func (s *Sorter[K, R]) Empty() bool {
	return len(s.ordered) == 0
}

// Exist returns true iff a record with the given key is present.
func (s *Sorter[K, R]) Exist(key K) bool {
	_, ok := s.records[key]
	return ok
}

// Get returns the record stored under key, if any.
func (s *Sorter[K, R]) Get(key K) (r R, ok bool) {
	r, ok = s.records[key]
	return
}

// Insert adds a record, replacing any previous record under the same key and
// moving it to its new position.
func (s *Sorter[K, R]) Insert(r R) {
	key := s.keyOf(r)
	if old, ok := s.records[key]; ok {
		s.erase(old)
	}

	s.records[key] = r
	i := sort.Search(len(s.ordered), func(i int) bool {
		return !s.less(s.ordered[i], r)
	})

	s.ordered = append(s.ordered, r)
	copy(s.ordered[i+1:], s.ordered[i:])
	s.ordered[i] = r
}

// Remove deletes the record under key, reporting whether one was present.
func (s *Sorter[K, R]) Remove(key K) bool {
	old, ok := s.records[key]
	if !ok {
		return false
	}

	delete(s.records, key)
	s.erase(old)
	return true
}

// Front returns the least record when forward is true, or the greatest
// otherwise.
func (s *Sorter[K, R]) Front(forward bool) (r R, ok bool) {
	if len(s.ordered) == 0 {
		return
	}

	if forward {
		return s.ordered[0], true
	}
	return s.ordered[len(s.ordered)-1], true
}

// Rank returns the zero-based position of the record under key in forward
// order.
func (s *Sorter[K, R]) Rank(key K) (int, bool) {
	r, ok := s.records[key]
	if !ok {
		return 0, false
	}
	return s.index(r), true
}

// List copies up to count records starting at the zero-based position begin,
// walking forward or backward. A nil result means the range is empty.
func (s *Sorter[K, R]) List(begin, count int, forward bool) []R {
	if begin < 0 || begin >= len(s.ordered) || count <= 0 {
		return nil
	}

	out := make([]R, 0, count)
	if forward {
		for i := begin; i < len(s.ordered) && len(out) < count; i++ {
			out = append(out, s.ordered[i])
		}
	} else {
		for i := len(s.ordered) - 1 - begin; i >= 0 && len(out) < count; i-- {
			out = append(out, s.ordered[i])
		}
	}
	return out
}

// Clear removes all records.
func (s *Sorter[K, R]) Clear() {
	clear(s.records)
	s.ordered = s.ordered[:0]
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// index locates r in ordered. r must be present.
func (s *Sorter[K, R]) index(r R) int {
	i := sort.Search(len(s.ordered), func(i int) bool {
		return !s.less(s.ordered[i], r)
	})
	return i
}

func (s *Sorter[K, R]) erase(r R) {
	i := s.index(r)
	s.ordered = append(s.ordered[:i], s.ordered[i+1:]...)
}
