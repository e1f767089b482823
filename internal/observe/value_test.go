package observe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_GetSet(t *testing.T) {
	v := NewValue(1)
	assert.Equal(t, 1, v.Get())

	v.Set(5)
	assert.Equal(t, 5, v.Get())

	got := v.Update(func(cur int) int { return cur * 2 })
	assert.Equal(t, 10, got)
	assert.Equal(t, 10, v.Get())
}

func TestValue_Subscribe(t *testing.T) {
	v := NewValue("a")

	var mu sync.Mutex
	var seen []string
	unsubscribe := v.Subscribe(func(s string) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	v.Set("b")
	v.Set("c")
	unsubscribe()
	unsubscribe()
	v.Set("d")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"b", "c"}, seen)
}

func TestValue_SubscriberMayReadValue(t *testing.T) {
	v := NewValue(0)
	var inner int
	v.Subscribe(func(int) { inner = v.Get() })

	v.Set(7)
	assert.Equal(t, 7, inner)
}

func TestValue_ConcurrentSetsNotifyInOrder(t *testing.T) {
	v := NewValue(0)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var seen []int
	v.Subscribe(func(n int) {
		if n == 1 {
			close(entered)
			<-release
		}
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
	})

	firstDone := make(chan struct{})
	go func() {
		v.Set(1)
		close(firstDone)
	}()
	<-entered

	secondDone := make(chan struct{})
	go func() {
		v.Set(2)
		close(secondDone)
	}()

	select {
	case <-secondDone:
		t.Fatal("second Set finished while the first was still notifying")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-firstDone
	<-secondDone

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, 2, v.Get())
}
