package mathhelp

import "golang.org/x/exp/constraints"

func Pow2(n uint) uint {
	return 1 << n
}

// Clamp limits v to the closed range [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func EuclidianMod(d, m int) int {
	r := d % m
	if (r < 0 && m > 0) || (r > 0 && m < 0) {
		return r + m
	}
	return r
}
