package history

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedEvictsOldest(t *testing.T) {
	b := NewBounded[int](0)
	for i := 0; i < 150; i++ {
		b.Append(i)
	}
	got := b.Snapshot()
	require.Len(t, got, DefaultCapacity)
	assert.Equal(t, 50, got[0])
	assert.Equal(t, 149, got[len(got)-1])

	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, 149, last)
}

func TestBoundedTail(t *testing.T) {
	b := NewBounded[int](10)
	for i := 0; i < 3; i++ {
		b.Append(i)
	}
	assert.Equal(t, []int{1, 2}, b.Tail(2))
	assert.Equal(t, []int{0, 1, 2}, b.Tail(5))
}

func TestBoundedEmpty(t *testing.T) {
	b := NewBounded[string](5)
	_, ok := b.Last()
	assert.False(t, ok)
	assert.Empty(t, b.Snapshot())
	assert.Zero(t, b.Len())
}

func TestSnapshotIsCopy(t *testing.T) {
	b := NewBounded[int](5)
	b.Append(1)
	s := b.Snapshot()
	s[0] = 99
	last, _ := b.Last()
	assert.Equal(t, 1, last)
}

func TestKeyed(t *testing.T) {
	k := NewKeyed[string, int](100)
	assert.Nil(t, k.Get("a"))
	for i := 0; i < 150; i++ {
		k.Append("a", i)
	}
	k.Append("b", 1)
	assert.Equal(t, 100, k.Get("a").Len())
	assert.ElementsMatch(t, []string{"a", "b"}, k.Keys())

	k.Delete("a")
	assert.Nil(t, k.Snapshot("a"))
}

func TestKeyedConcurrentAppend(t *testing.T) {
	k := NewKeyed[int64, int](100)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				k.Append(1, i)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, k.Get(1).Len())
}
