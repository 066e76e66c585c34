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

package sorter

import "sync"

// SharedSorter wraps a Sorter for concurrent callers. Read-only operations
// take the lock shared.
type SharedSorter[K comparable, R any] struct {
	mu sync.RWMutex

	// GUARDED_BY(mu)
	wrapped *Sorter[K, R]
}

// NewShared is like New, returning a concurrency-safe sorter.
func NewShared[K comparable, R any](keyOf func(R) K, less func(a, b R) bool) *SharedSorter[K, R] {
	return &SharedSorter[K, R]{
		wrapped: New(keyOf, less),
	}
}

func (s *SharedSorter[K, R]) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wrapped.Size()
}

func (s *SharedSorter[K, R]) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wrapped.Empty()
}

func (s *SharedSorter[K, R]) Exist(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wrapped.Exist(key)
}

func (s *SharedSorter[K, R]) Get(key K) (R, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wrapped.Get(key)
}

func (s *SharedSorter[K, R]) Insert(r R) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wrapped.Insert(r)
}

func (s *SharedSorter[K, R]) Remove(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wrapped.Remove(key)
}

func (s *SharedSorter[K, R]) Front(forward bool) (R, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wrapped.Front(forward)
}

func (s *SharedSorter[K, R]) Rank(key K) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wrapped.Rank(key)
}

func (s *SharedSorter[K, R]) List(begin, count int, forward bool) []R {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wrapped.List(begin, count, forward)
}

func (s *SharedSorter[K, R]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wrapped.Clear()
}
