package conversation

import (
	"sync"
	"testing"
)

func TestKeyLockSerializesPerKey(t *testing.T) {
	locks := newKeyLock()
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("+1")
			counter++
			locks.Unlock("+1")
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("counter = %d, want 100 (lost updates)", counter)
	}
	if len(locks.locks) != 0 {
		t.Errorf("lock map retains %d entries, want 0", len(locks.locks))
	}
}

func TestKeyLockIndependentKeys(t *testing.T) {
	locks := newKeyLock()
	locks.Lock("+1")

	done := make(chan struct{})
	go func() {
		locks.Lock("+2")
		locks.Unlock("+2")
		close(done)
	}()
	<-done

	locks.Unlock("+1")
}
