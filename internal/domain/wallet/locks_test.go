package wallet

import (
	"sync"
	"testing"
)

func TestKeyMutexExclusion(t *testing.T) {
	km := newKeyMutex()

	const workers = 50
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("wallet-a")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("expected %d increments, got %d", workers, counter)
	}
}

func TestKeyMutexReleasesEntries(t *testing.T) {
	km := newKeyMutex()

	unlock := km.Lock("wallet-a")
	unlock()
	unlock = km.Lock("wallet-b")
	unlock()

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.entries) != 0 {
		t.Fatalf("expected empty lock table, got %d entries", len(km.entries))
	}
}

func TestKeyMutexIndependentKeys(t *testing.T) {
	km := newKeyMutex()

	unlockA := km.Lock("wallet-a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("wallet-b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}
