package crush

import "math"

// AdditionIsUnsafe reports whether a+b would overflow a uint32.
func AdditionIsUnsafe(a, b uint32) bool {
	return a > math.MaxUint32-b
}

// MultiplicationIsUnsafe reports whether a*b would overflow a uint32.
func MultiplicationIsUnsafe(a, b uint32) bool {
	if a == 0 || b == 0 {
		return false
	}
	return a > math.MaxUint32/b
}

// sumWeights adds weights together, failing on the first overflow.
func sumWeights(weights []uint32) (uint32, bool) {
	var sum uint32
	for _, w := range weights {
		if AdditionIsUnsafe(sum, w) {
			return 0, false
		}
		sum += w
	}
	return sum, true
}
