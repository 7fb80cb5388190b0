package crush

import (
	"fmt"
	"strings"
)

// Tunables are the map-wide parameters the evaluator reads.
type Tunables struct {
	ChooseLocalTries         uint32
	ChooseLocalFallbackTries uint32
	ChooseTotalTries         uint32
	ChooseleafDescendOnce    uint32
	ChooseleafVaryR          uint8
	ChooseleafStable         uint8
	StrawCalcVersion         uint8

	// AllowedBucketAlgs is a bitmask of Algorithm.Mask values.
	AllowedBucketAlgs uint32
}

// Allows reports whether buckets of alg may appear in the map.
func (t Tunables) Allows(alg Algorithm) bool {
	return t.AllowedBucketAlgs&alg.Mask() != 0
}

// LegacyTunables are the values of the earliest maps.
func LegacyTunables() Tunables {
	return Tunables{
		ChooseLocalTries:         2,
		ChooseLocalFallbackTries: 5,
		ChooseTotalTries:         19,
		ChooseleafDescendOnce:    0,
		ChooseleafVaryR:          0,
		ChooseleafStable:         0,
		StrawCalcVersion:         0,
		AllowedBucketAlgs:        AlgUniform.Mask() | AlgList.Mask() | AlgStraw.Mask(),
	}
}

// OptimalTunables are the recommended values for new maps.
func OptimalTunables() Tunables {
	return Tunables{
		ChooseLocalTries:         0,
		ChooseLocalFallbackTries: 0,
		ChooseTotalTries:         50,
		ChooseleafDescendOnce:    1,
		ChooseleafVaryR:          1,
		ChooseleafStable:         1,
		StrawCalcVersion:         1,
		AllowedBucketAlgs:        AlgUniform.Mask() | AlgList.Mask() | AlgStraw2.Mask(),
	}
}

// TunablesProfile returns the named profile ("optimal" or "legacy").
func TunablesProfile(name string) (Tunables, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "optimal", "default":
		return OptimalTunables(), nil
	case "legacy":
		return LegacyTunables(), nil
	default:
		return Tunables{}, fmt.Errorf("unknown tunables profile %q", name)
	}
}
