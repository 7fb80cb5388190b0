package crush

import (
	"math"
	"sort"
)

// calcStraws derives straw lengths (16.16 fixed point) from item weights.
// Items are visited from lightest to heaviest; each distinct weight step
// lengthens the straw so that an item's chance of drawing the longest straw
// tracks its share of the total weight. Zero-weight items get a zero straw.
//
// Version 0 reproduces the legacy calculation, which mishandles runs of
// equal weights and zero weights. Version 1 and later fix both.
func calcStraws(weights []uint32, version uint8) []uint32 {
	size := len(weights)
	straws := make([]uint32, size)
	if size == 0 {
		return straws
	}

	reverse := make([]int, size)
	for i := range reverse {
		reverse[i] = i
	}
	sort.SliceStable(reverse, func(a, b int) bool {
		return weights[reverse[a]] < weights[reverse[b]]
	})

	numLeft := size
	straw := 1.0
	wbelow := 0.0
	lastw := 0.0

	i := 0
	for i < size {
		if weights[reverse[i]] == 0 {
			straws[reverse[i]] = 0
			i++
			if version >= 1 {
				numLeft--
			}
			continue
		}

		straws[reverse[i]] = strawLength(straw)
		i++
		if i == size {
			break
		}

		prev := float64(weights[reverse[i-1]])
		cur := float64(weights[reverse[i]])

		if version == 0 {
			if weights[reverse[i]] == weights[reverse[i-1]] {
				continue
			}
			wbelow += (prev - lastw) * float64(numLeft)
			for j := i; j < size; j++ {
				if weights[reverse[j]] != weights[reverse[i]] {
					break
				}
				numLeft--
			}
		} else {
			wbelow += (prev - lastw) * float64(numLeft)
			numLeft--
		}

		wnext := float64(numLeft) * (cur - prev)
		pbelow := wbelow / (wbelow + wnext)
		straw *= math.Pow(1.0/pbelow, 1.0/float64(numLeft))
		lastw = prev
	}
	return straws
}

func strawLength(straw float64) uint32 {
	v := straw * 0x10000
	if v >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
