package mathhelp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEuclidianMod(t *testing.T) {
	tests := []struct {
		d, m, want int
	}{
		{d: 5, m: 3, want: 2},
		{d: -1, m: 256, want: 255},
		{d: -256, m: 256, want: 0},
		{d: 511, m: 256, want: 255},
		{d: 0, m: 7, want: 0},
	}
	for _, tt := range tests {
		assert.Equalf(t, tt.want, EuclidianMod(tt.d, tt.m), "EuclidianMod(%d, %d)", tt.d, tt.m)
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 10, Clamp(3, 10, 20))
	assert.Equal(t, 20, Clamp(30, 10, 20))
	assert.Equal(t, 15, Clamp(15, 10, 20))
	assert.Equal(t, 0.5, Clamp(0.5, 0.0, 1.0))
}

func TestPow2(t *testing.T) {
	assert.Equal(t, uint(1), Pow2(0))
	assert.Equal(t, uint(1024), Pow2(10))
}
