package mempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClass(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"small size gets minimum", 1, 1024},
		{"exactly 1024", 1024, 1024},
		{"just over 1024", 1025, 2048},
		{"classifier tensor", 3 * 48 * 192, 27648},
		{"zero size", 0, 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sizeClass(tt.input))
		})
	}
}

func TestGet_LengthAndZeroing(t *testing.T) {
	var p Float32Pool

	buf := p.Get(100, false)
	require.Len(t, buf, 100)
	for i := range buf {
		buf[i] = 42
	}
	p.Put(buf)

	again := p.Get(100, true)
	require.Len(t, again, 100)
	for i, v := range again {
		require.Zero(t, v, "index %d not zeroed", i)
	}
}

func TestGet_NonPositive(t *testing.T) {
	var p Float32Pool
	assert.Nil(t, p.Get(0, true))
	assert.Nil(t, p.Get(-5, true))
}

func TestPut_IgnoresForeignBuffers(t *testing.T) {
	var p Float32Pool
	assert.NotPanics(t, func() {
		p.Put(nil)
		p.Put(make([]float32, 10))
	})
}

func TestPut_OddCapacityNeverShortensGet(t *testing.T) {
	var p Float32Pool
	// capacity 1500 floors to class 1024; a later Get(2000) must not receive it
	p.Put(make([]float32, 1500))
	buf := p.Get(2000, true)
	assert.Len(t, buf, 2000)
}

func TestDefaultPool(t *testing.T) {
	buf := GetFloat32(3 * 48 * 192)
	require.Len(t, buf, 3*48*192)
	assert.Zero(t, buf[len(buf)-1])
	PutFloat32(buf)
}

func TestConcurrentAccess(t *testing.T) {
	var p Float32Pool
	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := range 100 {
				n := 512 + (seed*131+i*17)%4096
				buf := p.Get(n, true)
				if len(buf) != n {
					t.Errorf("got len %d, want %d", len(buf), n)
					return
				}
				buf[0] = float32(seed)
				p.Put(buf)
			}
		}(g)
	}
	wg.Wait()
}
