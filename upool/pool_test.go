package upool_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openheadend/upipe-go/upool"
)

func TestPushPopRoundTrip(t *testing.T) {
	p := upool.New[int](4)
	require.True(t, p.Push(1))
	require.True(t, p.Push(2))
	v, ok := p.Pop()
	require.True(t, ok)
	require.Contains(t, []int{1, 2}, v)
}

func TestPushFailsWhenFull(t *testing.T) {
	p := upool.New[int](2)
	require.True(t, p.Push(1))
	require.True(t, p.Push(2))
	require.False(t, p.Push(3))
}

func TestPopFailsWhenEmpty(t *testing.T) {
	p := upool.New[int](2)
	_, ok := p.Pop()
	require.False(t, ok)
}

func TestVacuumDrainsEverything(t *testing.T) {
	p := upool.New[int](3)
	p.Push(1)
	p.Push(2)
	p.Push(3)
	var seen []int
	p.Vacuum(func(v int) { seen = append(seen, v) })
	require.Len(t, seen, 3)
	_, ok := p.Pop()
	require.False(t, ok)
}

func TestConcurrentPushPop(t *testing.T) {
	const cap = 64
	p := upool.New[int](cap)
	for i := 0; i < cap; i++ {
		require.True(t, p.Push(i))
	}

	var wg sync.WaitGroup
	popped := make(chan int, cap)
	for i := 0; i < cap; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ok := p.Pop()
			if ok {
				popped <- v
			}
		}()
	}
	wg.Wait()
	close(popped)

	count := 0
	for range popped {
		count++
	}
	require.Equal(t, cap, count)
	_, ok := p.Pop()
	require.False(t, ok)
}
