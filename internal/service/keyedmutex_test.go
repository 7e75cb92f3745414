package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	const workers = 8
	const iters = 50

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				km.Lock("coll-1")
				counter++
				km.Unlock("coll-1")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*iters, counter)
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()

	km.Lock("coll-a")
	defer km.Unlock("coll-a")

	done := make(chan struct{})
	go func() {
		km.Lock("coll-b")
		km.Unlock("coll-b")
		close(done)
	}()

	<-done // would deadlock if keys shared one lock
}

func TestKeyedMutex_DropsIdleEntries(t *testing.T) {
	km := NewKeyedMutex()

	km.Lock("coll-1")
	km.Unlock("coll-1")

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}
