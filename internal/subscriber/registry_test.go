package subscriber

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotify_DeliversToAllSubscribers(t *testing.T) {
	t.Parallel()
	r := New()

	var mu sync.Mutex
	var got []bool
	r.Register(func(allowed bool) error {
		mu.Lock()
		got = append(got, allowed)
		mu.Unlock()
		return nil
	})
	r.Register(func(allowed bool) error {
		mu.Lock()
		got = append(got, allowed)
		mu.Unlock()
		return nil
	})

	r.Notify(true)
	require.Len(t, got, 2)
}

func TestNotify_DeliveryFailure_RemovesSubscriber(t *testing.T) {
	t.Parallel()
	r := New()

	id := r.Register(func(allowed bool) error { return errors.New("boom") })
	require.Equal(t, 1, r.Len())

	r.Notify(true)
	require.Equal(t, 0, r.Len())

	// Unregistering an already-removed handle is a no-op.
	r.Unregister(id)
	require.Equal(t, 0, r.Len())
}

func TestUnregister_StopsFutureNotifications(t *testing.T) {
	t.Parallel()
	r := New()

	calls := 0
	id := r.Register(func(allowed bool) error { calls++; return nil })
	r.Unregister(id)
	r.Notify(true)
	require.Equal(t, 0, calls)
}

func TestRegister_ConcurrentFromForeignThreads(t *testing.T) {
	t.Parallel()
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := r.Register(func(allowed bool) error { return nil })
			r.Unregister(id)
		}()
	}
	wg.Wait()
	require.Equal(t, 0, r.Len())
}
