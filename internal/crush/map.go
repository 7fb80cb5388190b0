package crush

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	zerrors "github.com/zzenonn/zcrush/internal/errors"
)

const (
	// MaxRules bounds rule ids to [0, MaxRules).
	MaxRules = 256

	// AutoBucketID asks AddBucket to pick the next free bucket id.
	AutoBucketID int32 = 0

	// AutoRuleID asks AddRule to pick the lowest free rule id.
	AutoRuleID = -1

	// maxBucketSlots caps the bucket registry. Growing it further is
	// refused as an allocation failure.
	maxBucketSlots = 1 << 20
)

// Map is a CRUSH map under construction: tunables, buckets indexed by their
// negative id, and rules indexed by their id.
type Map struct {
	tunables Tunables

	// buckets[-1-id] holds bucket id; nil marks a free id.
	buckets []*Bucket
	rules   []*Rule

	finalized   bool
	maxDevices  int32
	fingerprint Fingerprint
}

// NewMap returns an empty map with the optimal tunables.
func NewMap() *Map {
	return &Map{tunables: OptimalTunables()}
}

// Tunables returns the current tunables.
func (m *Map) Tunables() Tunables {
	return m.tunables
}

// SetTunables replaces the tunables. A change of StrawCalcVersion
// recomputes the straws of every straw bucket in the map.
func (m *Map) SetTunables(t Tunables) {
	recalc := t.StrawCalcVersion != m.tunables.StrawCalcVersion
	m.tunables = t
	if recalc {
		for _, b := range m.buckets {
			if b == nil {
				continue
			}
			if d, ok := b.data.(*strawData); ok {
				d.calcVersion = t.StrawCalcVersion
				d.straws = calcStraws(d.itemWeights, t.StrawCalcVersion)
			}
		}
	}
	m.invalidate()
}

// NextBucketID returns the id AddBucket would assign for AutoBucketID: the
// free id closest to zero.
func (m *Map) NextBucketID() int32 {
	for pos, b := range m.buckets {
		if b == nil {
			return bucketID(pos)
		}
	}
	return bucketID(len(m.buckets))
}

// AddBucket registers b under id, or under NextBucketID when id is
// AutoBucketID, and returns the id used. Explicit ids must be negative and
// free. A bucket can only be registered in one map at a time.
func (m *Map) AddBucket(id int32, b *Bucket) (int32, error) {
	if b == nil {
		return 0, fmt.Errorf("add nil bucket: %w", zerrors.ErrInvariantViolation)
	}
	if b.owner != nil {
		return 0, zerrors.BucketError(b.id, fmt.Errorf("already registered: %w", zerrors.ErrInvariantViolation))
	}
	if b.Alg() == 0 {
		return 0, fmt.Errorf("add bucket: %w", zerrors.ErrInvalidAlgorithm)
	}
	if id == AutoBucketID {
		id = m.NextBucketID()
	}
	if id > 0 {
		return 0, fmt.Errorf("bucket id %d is not negative: %w", id, zerrors.ErrInvalidID)
	}

	pos := bucketPos(id)
	if pos >= maxBucketSlots {
		return 0, zerrors.BucketError(id, fmt.Errorf("registry limited to %d buckets: %w", maxBucketSlots, zerrors.ErrOutOfMemory))
	}
	if pos < len(m.buckets) && m.buckets[pos] != nil {
		return 0, zerrors.BucketError(id, zerrors.ErrAlreadyExists)
	}
	for len(m.buckets) <= pos {
		m.buckets = append(m.buckets, nil)
	}

	b.id = id
	b.owner = m
	m.buckets[pos] = b
	m.invalidate()

	log.WithFields(log.Fields{
		"bucket": id,
		"alg":    b.Alg(),
		"type":   b.typ,
		"size":   len(b.items),
		"weight": b.weight,
	}).Debug("added bucket")
	if !m.tunables.Allows(b.Alg()) {
		log.WithFields(log.Fields{
			"bucket": id,
			"alg":    b.Alg(),
		}).Warn("bucket algorithm not allowed by tunables; Finalize will fail until it is allowed")
	}
	return id, nil
}

// Bucket returns the bucket registered under id.
func (m *Map) Bucket(id int32) (*Bucket, error) {
	if !ItemFromID(id).IsBucket() {
		return nil, fmt.Errorf("bucket id %d is not negative: %w", id, zerrors.ErrInvalidID)
	}
	pos := bucketPos(id)
	if pos >= len(m.buckets) || m.buckets[pos] == nil {
		return nil, zerrors.BucketError(id, zerrors.ErrBucketNotFound)
	}
	return m.buckets[pos], nil
}

// Buckets returns the registered buckets ordered by id: -1, -2, ...
func (m *Map) Buckets() []*Bucket {
	out := make([]*Bucket, 0, len(m.buckets))
	for _, b := range m.buckets {
		if b != nil {
			out = append(out, b)
		}
	}
	return out
}

// BucketCount returns the number of registered buckets.
func (m *Map) BucketCount() int {
	n := 0
	for _, b := range m.buckets {
		if b != nil {
			n++
		}
	}
	return n
}

// RemoveBucket unregisters b. A bucket still held as an item by another
// registered bucket is refused with ErrBucketInUse; the caller removes it
// from its parents first.
func (m *Map) RemoveBucket(b *Bucket) error {
	if b == nil || b.owner != m {
		return fmt.Errorf("remove bucket: %w", zerrors.ErrBucketNotFound)
	}
	if parents := m.parentsOf(b.id); len(parents) > 0 {
		return zerrors.BucketError(b.id, fmt.Errorf("held by bucket %d: %w", parents[0].id, zerrors.ErrBucketInUse))
	}

	m.buckets[bucketPos(b.id)] = nil
	for n := len(m.buckets); n > 0 && m.buckets[n-1] == nil; n-- {
		m.buckets = m.buckets[:n-1]
	}
	b.owner = nil
	m.invalidate()

	log.WithField("bucket", b.id).Debug("removed bucket")
	return nil
}

// parentsOf returns the registered buckets that hold item.
func (m *Map) parentsOf(item int32) []*Bucket {
	var parents []*Bucket
	for _, b := range m.buckets {
		if b != nil && b.Contains(item) {
			parents = append(parents, b)
		}
	}
	return parents
}

// AddRule registers r under ruleno, or under the lowest free id when ruleno
// is AutoRuleID, and returns the id used.
func (m *Map) AddRule(ruleno int, r *Rule) (int, error) {
	if r == nil {
		return 0, fmt.Errorf("add nil rule: %w", zerrors.ErrInvariantViolation)
	}
	if r.owner != nil {
		return 0, fmt.Errorf("rule already registered: %w", zerrors.ErrInvariantViolation)
	}

	if ruleno == AutoRuleID {
		ruleno = m.NextRuleID()
	}
	switch {
	case ruleno >= MaxRules:
		return 0, zerrors.RuleError(ruleno, zerrors.ErrTooManyRules)
	case ruleno < 0:
		return 0, fmt.Errorf("rule id %d: %w", ruleno, zerrors.ErrInvalidID)
	case ruleno < len(m.rules) && m.rules[ruleno] != nil:
		return 0, zerrors.RuleError(ruleno, zerrors.ErrAlreadyExists)
	}

	for len(m.rules) <= ruleno {
		m.rules = append(m.rules, nil)
	}
	r.owner = m
	m.rules[ruleno] = r
	m.invalidate()

	log.WithFields(log.Fields{
		"rule":    ruleno,
		"ruleset": r.mask.Ruleset,
		"steps":   len(r.steps),
	}).Debug("added rule")
	return ruleno, nil
}

// NextRuleID returns the id AddRule would assign for AutoRuleID: the lowest
// free rule id, or MaxRules when none is left.
func (m *Map) NextRuleID() int {
	for i, r := range m.rules {
		if r == nil {
			return i
		}
	}
	return len(m.rules)
}

// Rule returns the rule registered under ruleno.
func (m *Map) Rule(ruleno int) (*Rule, error) {
	if ruleno < 0 || ruleno >= len(m.rules) || m.rules[ruleno] == nil {
		return nil, zerrors.RuleError(ruleno, zerrors.ErrRuleNotFound)
	}
	return m.rules[ruleno], nil
}

// RuleIDs returns the registered rule ids in ascending order.
func (m *Map) RuleIDs() []int {
	var ids []int
	for i, r := range m.rules {
		if r != nil {
			ids = append(ids, i)
		}
	}
	return ids
}

// RemoveRule unregisters the rule under ruleno.
func (m *Map) RemoveRule(ruleno int) error {
	r, err := m.Rule(ruleno)
	if err != nil {
		return err
	}
	m.rules[ruleno] = nil
	for n := len(m.rules); n > 0 && m.rules[n-1] == nil; n-- {
		m.rules = m.rules[:n-1]
	}
	r.owner = nil
	m.invalidate()

	log.WithField("rule", ruleno).Debug("removed rule")
	return nil
}

// FindRule returns the lowest rule id whose mask serves ruleset and typ
// for a result of size items.
func (m *Map) FindRule(ruleset, typ, size int) (int, error) {
	for i, r := range m.rules {
		if r != nil && r.matches(ruleset, typ, size) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("ruleset %d type %d size %d: %w", ruleset, typ, size, zerrors.ErrRuleNotFound)
}

func (m *Map) invalidate() {
	m.finalized = false
}

func bucketPos(id int32) int {
	return int(-1 - int64(id))
}

func bucketID(pos int) int32 {
	return int32(-1 - pos)
}
