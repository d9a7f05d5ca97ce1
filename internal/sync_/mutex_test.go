package sync_

import (
	"sync"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

var _ Mutexer[int] = NewMutexed(0)
var _ Mutexer[int] = NewRWMutexed(0)

func TestSwap(t *testing.T) {
	assert := assert_.New(t)
	m := NewMutexed(map[string]int{"a": 1})
	old := m.Swap(nil)
	assert.Equal(1, old["a"])
	assert.Nil(m.Get())
}

func TestRace(t *testing.T) {
	assert := assert_.New(t)
	rw := NewRWMutexed(0)
	var start Event
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start.Wait()
			for j := 0; j < 50; j++ {
				_ = rw.Locked(func(v *int) error {
					*v++
					return nil
				})
			}
		}()
		go func() {
			defer wg.Done()
			<-start.Wait()
			for j := 0; j < 50; j++ {
				_ = rw.RLocked(func(int) error { return nil })
			}
		}()
	}

	start.Set()
	wg.Wait()
	assert.Equal(2500, rw.Get())
}
