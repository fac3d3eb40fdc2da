package util

import (
	"sync"
	"testing"
)

func TestKeyedMutex_BasicLockUnlock(t *testing.T) {
	m := NewKeyedMutex(0)

	unlock := m.Lock("key1")
	unlock()

	// Relocking the same key after unlock must not deadlock.
	unlock = m.Lock("key1")
	unlock()
}

func TestKeyedMutex_MutualExclusion(t *testing.T) {
	m := NewKeyedMutex(0)

	var counter int
	var wg sync.WaitGroup
	const n = 200

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			unlock := m.Lock("counter")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != n {
		t.Fatalf("expected %d, got %d - mutual exclusion violated", n, counter)
	}
}

func TestKeyedMutex_DifferentKeysIndependent(t *testing.T) {
	m := NewKeyedMutex(1024)

	keyA := "user-1:AAPL"
	keyB := "user-2:MSFT"
	if m.index(keyA) == m.index(keyB) {
		t.Skip("keys share a stripe with this arena size")
	}

	unlockA := m.Lock(keyA)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := m.Lock(keyB)
		unlockB()
		close(done)
	}()

	<-done
}

func TestKeyedMutex_ZeroStripesUsesDefault(t *testing.T) {
	m := NewKeyedMutex(-5)
	unlock := m.Lock("key")
	unlock()
}
