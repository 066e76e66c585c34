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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	key  string
	rank int
}

func newTestSorter() *Sorter[string, record] {
	return New(
		func(r record) string { return r.key },
		func(a, b record) bool {
			if a.rank != b.rank {
				return a.rank < b.rank
			}
			return a.key < b.key
		})
}

func keysOf(records []record) []string {
	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.key)
	}
	return keys
}

func TestEmptySorter(t *testing.T) {
	s := newTestSorter()

	assert.True(t, s.Empty())
	assert.Equal(t, 0, s.Size())
	assert.False(t, s.Exist("a"))
	_, ok := s.Front(true)
	assert.False(t, ok)
	_, ok = s.Rank("a")
	assert.False(t, ok)
	assert.Nil(t, s.List(0, 10, true))
	assert.False(t, s.Remove("a"))
}

func TestInsertOrdersRecords(t *testing.T) {
	s := newTestSorter()

	s.Insert(record{key: "b", rank: 2})
	s.Insert(record{key: "a", rank: 3})
	s.Insert(record{key: "c", rank: 1})

	require.Equal(t, 3, s.Size())
	assert.Equal(t, []string{"c", "b", "a"}, keysOf(s.List(0, 3, true)))
}

func TestInsertReplacesExistingKey(t *testing.T) {
	s := newTestSorter()

	s.Insert(record{key: "a", rank: 1})
	s.Insert(record{key: "b", rank: 2})
	// Move "a" behind "b".
	s.Insert(record{key: "a", rank: 3})

	require.Equal(t, 2, s.Size())
	assert.Equal(t, []string{"b", "a"}, keysOf(s.List(0, 2, true)))

	r, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 3, r.rank)
}

func TestInsertBreaksTiesByKey(t *testing.T) {
	s := newTestSorter()

	s.Insert(record{key: "b", rank: 1})
	s.Insert(record{key: "a", rank: 1})
	s.Insert(record{key: "c", rank: 1})

	assert.Equal(t, []string{"a", "b", "c"}, keysOf(s.List(0, 3, true)))
}

func TestFront(t *testing.T) {
	s := newTestSorter()
	s.Insert(record{key: "a", rank: 2})
	s.Insert(record{key: "b", rank: 1})

	r, ok := s.Front(true)
	require.True(t, ok)
	assert.Equal(t, "b", r.key)

	r, ok = s.Front(false)
	require.True(t, ok)
	assert.Equal(t, "a", r.key)
}

func TestRemove(t *testing.T) {
	s := newTestSorter()
	s.Insert(record{key: "a", rank: 1})
	s.Insert(record{key: "b", rank: 2})

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	assert.Equal(t, 1, s.Size())
	assert.False(t, s.Exist("a"))

	r, ok := s.Front(true)
	require.True(t, ok)
	assert.Equal(t, "b", r.key)
}

func TestRank(t *testing.T) {
	s := newTestSorter()
	s.Insert(record{key: "a", rank: 30})
	s.Insert(record{key: "b", rank: 10})
	s.Insert(record{key: "c", rank: 20})

	tests := []struct {
		key  string
		want int
	}{
		{key: "b", want: 0},
		{key: "c", want: 1},
		{key: "a", want: 2},
	}
	for _, tc := range tests {
		got, ok := s.Rank(tc.key)
		require.True(t, ok, "key %q", tc.key)
		assert.Equal(t, tc.want, got, "key %q", tc.key)
	}
}

func TestList(t *testing.T) {
	s := newTestSorter()
	for i, key := range []string{"a", "b", "c", "d", "e"} {
		s.Insert(record{key: key, rank: i})
	}

	tests := []struct {
		name    string
		begin   int
		count   int
		forward bool
		want    []string
	}{
		{name: "forward prefix", begin: 0, count: 2, forward: true, want: []string{"a", "b"}},
		{name: "forward middle", begin: 1, count: 3, forward: true, want: []string{"b", "c", "d"}},
		{name: "forward overshoot", begin: 3, count: 10, forward: true, want: []string{"d", "e"}},
		{name: "backward prefix", begin: 0, count: 2, forward: false, want: []string{"e", "d"}},
		{name: "backward middle", begin: 2, count: 2, forward: false, want: []string{"c", "b"}},
		{name: "begin out of range", begin: 5, count: 1, forward: true, want: nil},
		{name: "zero count", begin: 0, count: 0, forward: true, want: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := s.List(tc.begin, tc.count, tc.forward)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tc.want, keysOf(got))
		})
	}
}

func TestClear(t *testing.T) {
	s := newTestSorter()
	s.Insert(record{key: "a", rank: 1})
	s.Insert(record{key: "b", rank: 2})

	s.Clear()

	assert.True(t, s.Empty())
	assert.False(t, s.Exist("a"))

	// The sorter must remain usable.
	s.Insert(record{key: "c", rank: 1})
	assert.Equal(t, 1, s.Size())
}
