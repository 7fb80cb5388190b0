package service

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
	log "github.com/sirupsen/logrus"
	"github.com/zzenonn/zcrush/internal/crush"
	"github.com/zzenonn/zcrush/internal/domain"
	zerrors "github.com/zzenonn/zcrush/internal/errors"
)

// Retry budgets written into every erasure rule.
const (
	erasureChooseleafTries = 5
	erasureChooseTries     = 100
)

// ErasureRuleService creates placement rules for erasure-coded pools
type ErasureRuleService struct{}

// NewErasureRuleService creates a new ErasureRuleService
func NewErasureRuleService() *ErasureRuleService {
	return &ErasureRuleService{}
}

// CreateRule adds a rule placing the k+m shards of profile p on distinct
// failure domains of type failureDomain below root, and returns its id.
// The rule is:
//
//	set_chooseleaf_tries 5
//	set_choose_tries 100
//	take root
//	chooseleaf_indep 0 type failureDomain
//	emit
func (s *ErasureRuleService) CreateRule(m *crush.Map, p domain.ErasureProfile, root int32, failureDomain int) (int, error) {
	// Reject profiles the codec cannot encode.
	if _, err := reedsolomon.New(p.DataShards, p.ParityShards); err != nil {
		return 0, fmt.Errorf("erasure profile %s (k=%d m=%d): %w", p.Name, p.DataShards, p.ParityShards, err)
	}
	if _, err := m.Bucket(root); err != nil {
		return 0, fmt.Errorf("erasure profile %s root: %w", p.Name, err)
	}

	size := p.TotalShards()
	if domains := countFailureDomains(m, root, failureDomain); domains < size {
		return 0, fmt.Errorf("erasure profile %s needs %d domains of type %d below bucket %d, found %d: %w",
			p.Name, size, failureDomain, root, domains, zerrors.ErrInsufficientDomains)
	}

	ruleset := m.NextRuleID()
	if p.Ruleset != nil {
		ruleset = *p.Ruleset
	}

	steps := []crush.Step{
		{Op: crush.OpSetChooseleafTries, Arg1: erasureChooseleafTries},
		{Op: crush.OpSetChooseTries, Arg1: erasureChooseTries},
		{Op: crush.OpTake, Arg1: root},
		{Op: crush.OpChooseleafIndep, Arg1: 0, Arg2: int32(failureDomain)},
		{Op: crush.OpEmit},
	}
	r, err := crush.MakeRule(len(steps), ruleset, RuleTypeErasure, size, size)
	if err != nil {
		return 0, err
	}
	for pos, step := range steps {
		if err := r.SetStep(pos, step.Op, step.Arg1, step.Arg2); err != nil {
			return 0, err
		}
	}

	id, err := m.AddRule(crush.AutoRuleID, r)
	if err != nil {
		return 0, fmt.Errorf("erasure profile %s: %w", p.Name, err)
	}

	log.WithFields(log.Fields{
		"profile":        p.Name,
		"rule":           id,
		"k":              p.DataShards,
		"m":              p.ParityShards,
		"failure_domain": failureDomain,
	}).Info("created erasure rule")
	return id, nil
}

// countFailureDomains counts the distinct items of type typ reachable from
// root. Devices have type 0.
func countFailureDomains(m *crush.Map, root int32, typ int) int {
	seen := make(map[int32]bool)
	count := 0

	var walk func(item crush.Item)
	walk = func(item crush.Item) {
		if seen[item.ID()] {
			return
		}
		seen[item.ID()] = true
		if item.IsDevice() {
			if typ == 0 {
				count++
			}
			return
		}
		b, err := m.Bucket(item.ID())
		if err != nil {
			return
		}
		if b.Type() == typ {
			count++
			return
		}
		for _, item := range b.Members() {
			walk(item)
		}
	}

	walk(crush.ItemFromID(root))
	return count
}
