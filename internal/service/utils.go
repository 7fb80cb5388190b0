package service

import (
	"fmt"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"github.com/zzenonn/zcrush/internal/crush"
	"github.com/zzenonn/zcrush/internal/domain"
	zerrors "github.com/zzenonn/zcrush/internal/errors"
)

// Rule types as understood by pools.
const (
	RuleTypeReplicated = 1
	RuleTypeErasure    = 3
)

var ruleTypes = map[string]int{
	"replicated": RuleTypeReplicated,
	"erasure":    RuleTypeErasure,
}

// parseRuleType accepts a rule type name or its number.
func parseRuleType(name string) (int, error) {
	if typ, ok := ruleTypes[name]; ok {
		return typ, nil
	}
	if typ, err := strconv.Atoi(name); err == nil {
		return typ, nil
	}
	return 0, fmt.Errorf("rule type %q: %w", name, zerrors.ErrUnknownName)
}

// applyTunables overlays the fields set in desc onto t.
func applyTunables(t crush.Tunables, desc *domain.TunablesDescription) (crush.Tunables, error) {
	if desc == nil {
		return t, nil
	}
	if desc.ChooseLocalTries != nil {
		t.ChooseLocalTries = *desc.ChooseLocalTries
	}
	if desc.ChooseLocalFallbackTries != nil {
		t.ChooseLocalFallbackTries = *desc.ChooseLocalFallbackTries
	}
	if desc.ChooseTotalTries != nil {
		t.ChooseTotalTries = *desc.ChooseTotalTries
	}
	if desc.ChooseleafDescendOnce != nil {
		t.ChooseleafDescendOnce = *desc.ChooseleafDescendOnce
	}
	if desc.ChooseleafVaryR != nil {
		t.ChooseleafVaryR = *desc.ChooseleafVaryR
	}
	if desc.ChooseleafStable != nil {
		t.ChooseleafStable = *desc.ChooseleafStable
	}
	if desc.StrawCalcVersion != nil {
		t.StrawCalcVersion = *desc.StrawCalcVersion
	}
	if len(desc.AllowedBucketAlgs) > 0 {
		var mask uint32
		for _, name := range desc.AllowedBucketAlgs {
			alg, err := crush.ParseAlgorithm(name)
			if err != nil {
				return crush.Tunables{}, fmt.Errorf("allowed_bucket_algs: %w", err)
			}
			mask |= alg.Mask()
		}
		t.AllowedBucketAlgs = mask
	}
	return t, nil
}

// newProgressBar returns nil when quiet.
func newProgressBar(total int, description string, quiet bool) *progressbar.ProgressBar {
	if quiet || total == 0 {
		return nil
	}
	return progressbar.Default(int64(total), description)
}

func advance(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Add(1)
	}
}

func finish(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Finish()
	}
}
