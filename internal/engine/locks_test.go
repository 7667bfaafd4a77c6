package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocks_SerializesSameKey(t *testing.T) {
	var k keyedLocks
	unlock := k.lock("r1")

	acquired := make(chan struct{})
	go func() {
		release := k.lock("r1")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder entered while the first held the lock")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-acquired
}

func TestKeyedLocks_IndependentKeys(t *testing.T) {
	var k keyedLocks
	unlock := k.lock("r1")
	defer unlock()

	done := make(chan struct{})
	go func() {
		k.lock("r2")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unrelated key blocked")
	}
}

func TestKeyedLocks_DropsIdleEntries(t *testing.T) {
	var k keyedLocks
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.lock("r1")()
		}()
	}
	wg.Wait()

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}
