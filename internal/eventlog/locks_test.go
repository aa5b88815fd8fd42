package eventlog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFingerprintLocks_SerializesSameKey(t *testing.T) {
	locks := newFingerprintLocks()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		counter int
		max     int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("hash-1")
			defer unlock()

			mu.Lock()
			counter++
			if counter > max {
				max = counter
			}
			mu.Unlock()

			mu.Lock()
			counter--
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, max)
	require.Empty(t, locks.locks)
}

func TestFingerprintLocks_IndependentKeysDoNotBlock(t *testing.T) {
	locks := newFingerprintLocks()

	unlockA := locks.lock("hash-a")
	unlockB := locks.lock("hash-b")

	require.Len(t, locks.locks, 2)

	unlockA()
	unlockB()
	require.Empty(t, locks.locks)
}
