package live

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_ObserveDeliversCurrentAndUpdates(t *testing.T) {
	v := NewValue[int](Inline{}, 1)

	var got []int
	cancel := v.Observe(func(x int) { got = append(got, x) })
	v.Set(2)
	v.Set(3)
	cancel()
	v.Set(4)

	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, 4, v.Get())
}

func TestValue_CancelSkipsQueuedCallbacks(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	block := make(chan struct{})
	l.Post(func() { <-block })

	v := NewValue[string](l, "")
	var got []string
	cancel := v.Observe(func(s string) { got = append(got, s) })
	v.Set("queued")
	cancel()
	close(block)
	l.Flush()

	assert.Empty(t, got)
}

// heldDispatcher queues callbacks until release runs them, newest first.
type heldDispatcher struct {
	mu    sync.Mutex
	queue []func()
}

func (d *heldDispatcher) Post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, fn)
}

func (d *heldDispatcher) release() {
	d.mu.Lock()
	queue := d.queue
	d.queue = nil
	d.mu.Unlock()
	for i := len(queue) - 1; i >= 0; i-- {
		queue[i]()
	}
}

func TestValue_StaleDeliveriesAreDropped(t *testing.T) {
	tests := []struct {
		name    string
		observe func(v *Value[string], fn func(string)) func()
		sets    []string
		want    []string
	}{
		{
			name:    "initial value posted before a set",
			observe: (*Value[string]).Observe,
			sets:    []string{"new"},
			want:    []string{"new"},
		},
		{
			name:    "several sets reordered",
			observe: (*Value[string]).Observe,
			sets:    []string{"a", "b", "c"},
			want:    []string{"c"},
		},
		{
			name:    "changes only",
			observe: (*Value[string]).ObserveChanges,
			sets:    []string{"new"},
			want:    []string{"new"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &heldDispatcher{}
			v := NewValue(d, "old")
			var got []string
			cancel := tt.observe(v, func(s string) { got = append(got, s) })
			defer cancel()
			for _, s := range tt.sets {
				v.Set(s)
			}
			d.release()

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.sets[len(tt.sets)-1], v.Get())
		})
	}
}

func TestValue_ObserveChangesSkipsCurrent(t *testing.T) {
	v := NewValue[int](Inline{}, 1)

	var got []int
	cancel := v.ObserveChanges(func(x int) { got = append(got, x) })
	v.Set(2)
	cancel()
	v.Set(3)

	assert.Equal(t, []int{2}, got)
}

func TestLoop_RunsInPostOrder(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 50; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	l.Flush()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 50)
	for i, x := range order {
		assert.Equal(t, i, x)
	}
}

func TestLoop_PostFromCallback(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	done := make(chan struct{})
	l.Post(func() {
		l.Post(func() { close(done) })
	})
	<-done
}

func TestLoop_CloseDrainsQueue(t *testing.T) {
	l := NewLoop()
	ran := 0
	for i := 0; i < 10; i++ {
		l.Post(func() { ran++ })
	}
	l.Close()
	assert.Equal(t, 10, ran)

	l.Post(func() { ran++ })
	l.Flush()
	assert.Equal(t, 10, ran)
}
