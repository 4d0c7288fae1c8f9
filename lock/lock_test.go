package lock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockUnlock_SerializesSameSymbol(t *testing.T) {
	r := NewRegistry()
	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Lock("BTCUSDT")
			defer r.Unlock("BTCUSDT")
			time.Sleep(time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	assert.Len(t, order, 5)
}

func TestLock_DistinctSymbolsDoNotBlockEachOther(t *testing.T) {
	r := NewRegistry()
	r.Lock("BTCUSDT")
	defer r.Unlock("BTCUSDT")

	done := make(chan struct{})
	go func() {
		r.Lock("ETHUSDT")
		r.Unlock("ETHUSDT")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locking a distinct symbol must not block on BTCUSDT's held lock")
	}
}

func TestWithLock_RunsUnderLockAndReturnsResult(t *testing.T) {
	r := NewRegistry()
	got, err := WithLock(r, "BTCUSDT", func() (int, error) {
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	r := NewRegistry()
	myErr := assert.AnError
	_, err := WithLock(r, "BTCUSDT", func() (int, error) {
		return 0, myErr
	})
	assert.ErrorIs(t, err, myErr)

	// lock must have been released despite the error
	done := make(chan struct{})
	go func() {
		r.Lock("BTCUSDT")
		r.Unlock("BTCUSDT")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WithLock must release the mutex even when fn returns an error")
	}
}
