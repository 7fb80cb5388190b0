// Package service turns map descriptions into finalized CRUSH maps.
//
// MapService resolves the names used in a description (types, buckets,
// rules) to the numeric ids the map stores, adds buckets children first so
// every nested bucket carries its real weight, authors the rules and
// finalizes the result. ErasureRuleService derives rules for
// erasure-coded pools from a k+m profile.
package service

import (
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/zzenonn/zcrush/internal/crush"
	"github.com/zzenonn/zcrush/internal/domain"
	zerrors "github.com/zzenonn/zcrush/internal/errors"
	"github.com/zzenonn/zcrush/internal/placement"
)

// MapPublisher makes finalized maps available to readers
type MapPublisher interface {
	Publish(name string, m *crush.Map) (placement.Version, error)
}

// BuildResult is a built map together with the names that describe it
type BuildResult struct {
	Map         *crush.Map
	Types       map[string]int
	Buckets     map[string]int32
	Rules       map[string]int
	Fingerprint crush.Fingerprint
}

// MapService builds maps from descriptions
type MapService struct {
	tunables  crush.Tunables
	publisher MapPublisher
	erasure   *ErasureRuleService
}

// NewMapService creates a MapService whose maps start from tunables.
// publisher may be nil when maps are never published.
func NewMapService(tunables crush.Tunables, publisher MapPublisher) *MapService {
	return &MapService{
		tunables:  tunables,
		publisher: publisher,
		erasure:   NewErasureRuleService(),
	}
}

// Build creates and finalizes the map described by desc
func (s *MapService) Build(desc domain.MapDescription, quiet bool) (*BuildResult, error) {
	tunables, err := applyTunables(s.tunables, desc.Tunables)
	if err != nil {
		return nil, err
	}

	m := crush.NewMap()
	m.SetTunables(tunables)
	res := &BuildResult{
		Map:     m,
		Types:   make(map[string]int),
		Buckets: make(map[string]int32),
		Rules:   make(map[string]int),
	}

	if err := res.addTypes(desc.Types); err != nil {
		return nil, err
	}
	order, err := bucketOrder(desc.Buckets)
	if err != nil {
		return nil, err
	}
	ids, err := assignBucketIDs(desc.Buckets)
	if err != nil {
		return nil, err
	}

	bar := newProgressBar(len(order)+len(desc.Rules)+len(desc.ErasureRules), "building map", quiet)
	defer finish(bar)

	for _, bd := range order {
		if err := res.addBucket(bd, ids[bd.Name]); err != nil {
			return nil, err
		}
		advance(bar)
	}
	for _, rd := range desc.Rules {
		if err := res.addRule(rd); err != nil {
			return nil, err
		}
		advance(bar)
	}
	for _, p := range desc.ErasureRules {
		if _, err := s.addErasureRule(res, p); err != nil {
			return nil, err
		}
		advance(bar)
	}

	if err := res.finalize(); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"buckets":     m.BucketCount(),
		"rules":       len(m.RuleIDs()),
		"max_devices": m.MaxDevices(),
		"fingerprint": res.Fingerprint.Short(),
	}).Info("built map")
	return res, nil
}

// AddErasureRule adds a rule for profile p to a built map and finalizes it
// again.
func (s *MapService) AddErasureRule(res *BuildResult, p domain.ErasureProfile) (int, error) {
	id, err := s.addErasureRule(res, p)
	if err != nil {
		return 0, err
	}
	if err := res.finalize(); err != nil {
		return 0, err
	}
	return id, nil
}

// finalize validates the map and records its fingerprint on res.
func (res *BuildResult) finalize() error {
	if err := res.Map.Finalize(); err != nil {
		return fmt.Errorf("finalize map: %w", err)
	}
	fp, err := res.Map.Fingerprint()
	if err != nil {
		return err
	}
	res.Fingerprint = fp
	return nil
}

func (s *MapService) addErasureRule(res *BuildResult, p domain.ErasureProfile) (int, error) {
	if p.Name != "" {
		if _, dup := res.Rules[p.Name]; dup {
			return 0, fmt.Errorf("rule %s: %w", p.Name, zerrors.ErrAlreadyExists)
		}
	}
	root, ok := res.Buckets[p.Root]
	if !ok {
		return 0, fmt.Errorf("erasure profile %s root %q: %w", p.Name, p.Root, zerrors.ErrUnknownName)
	}
	fd, err := res.resolveType(p.FailureDomain)
	if err != nil {
		return 0, fmt.Errorf("erasure profile %s: %w", p.Name, err)
	}

	id, err := s.erasure.CreateRule(res.Map, p, root, fd)
	if err != nil {
		return 0, err
	}
	if p.Name != "" {
		res.Rules[p.Name] = id
	}
	return id, nil
}

// Reweight sets the weight of device everywhere it appears, propagates the
// change to every ancestor and finalizes the map again. It returns the
// number of buckets that held the device.
func (s *MapService) Reweight(res *BuildResult, device int32, weight float64) (int, error) {
	if crush.ItemFromID(device).IsBucket() {
		return 0, fmt.Errorf("device %d: %w", device, zerrors.ErrInvalidID)
	}
	w, err := domain.FixedWeight(weight)
	if err != nil {
		return 0, fmt.Errorf("device %d: %v: %w", device, err, zerrors.ErrWeightOverflow)
	}

	changed, err := res.Map.AdjustItemWeightInTree(device, w)
	if err != nil {
		return 0, err
	}
	if changed == 0 {
		return 0, fmt.Errorf("device %d: %w", device, zerrors.ErrItemNotFound)
	}
	if err := res.finalize(); err != nil {
		return 0, err
	}

	log.Infof("reweighted osd.%d to %.4f in %d buckets", device, weight, changed)
	return changed, nil
}

// Publish hands the built map to the configured publisher under name
func (s *MapService) Publish(name string, res *BuildResult) (placement.Version, error) {
	if s.publisher == nil {
		return placement.Version{}, fmt.Errorf("publish %s: no publisher: %w", name, zerrors.ErrMissingRequiredFields)
	}
	return s.publisher.Publish(name, res.Map)
}

func (r *BuildResult) addTypes(types []domain.TypeDescription) error {
	for _, td := range types {
		if td.Name == "" {
			return fmt.Errorf("type %d name: %w", td.ID, zerrors.ErrMissingRequiredFields)
		}
		if _, dup := r.Types[td.Name]; dup {
			return fmt.Errorf("type %s: %w", td.Name, zerrors.ErrAlreadyExists)
		}
		r.Types[td.Name] = td.ID
	}
	return nil
}

// resolveType accepts a declared type name or a type number.
func (r *BuildResult) resolveType(name string) (int, error) {
	if typ, ok := r.Types[name]; ok {
		return typ, nil
	}
	if typ, err := strconv.Atoi(name); err == nil {
		return typ, nil
	}
	return 0, fmt.Errorf("type %q: %w", name, zerrors.ErrUnknownName)
}

func (r *BuildResult) addBucket(bd domain.BucketDescription, id int32) error {
	alg, err := crush.ParseAlgorithm(bd.Algorithm)
	if err != nil {
		return fmt.Errorf("bucket %s: %w", bd.Name, err)
	}
	typ, err := r.resolveType(bd.Type)
	if err != nil {
		return fmt.Errorf("bucket %s: %w", bd.Name, err)
	}

	items := make([]int32, 0, len(bd.Items))
	weights := make([]uint32, 0, len(bd.Items))
	for _, it := range bd.Items {
		item, weight, err := r.resolveItem(it)
		if err != nil {
			return fmt.Errorf("bucket %s: %w", bd.Name, err)
		}
		items = append(items, item)
		weights = append(weights, weight)
	}
	if alg == crush.AlgUniform {
		for _, w := range weights {
			if w != weights[0] {
				return fmt.Errorf("bucket %s: uniform items must share one weight: %w", bd.Name, zerrors.ErrInvariantViolation)
			}
		}
	}

	b, err := crush.MakeBucket(r.Map, alg, crush.HashRjenkins1, typ, items, weights)
	if err != nil {
		return fmt.Errorf("bucket %s: %w", bd.Name, err)
	}
	if _, err := r.Map.AddBucket(id, b); err != nil {
		return fmt.Errorf("bucket %s: %w", bd.Name, err)
	}
	r.Buckets[bd.Name] = id

	log.Debugf("bucket %s registered as %d (%s, weight %.4f)", bd.Name, id, alg, domain.DecimalWeight(b.Weight()))
	return nil
}

// resolveItem returns the item id and its weight. Nested buckets default to
// their own weight and devices to 1.0.
func (r *BuildResult) resolveItem(it domain.ItemDescription) (int32, uint32, error) {
	var (
		id     int32
		weight uint32
	)
	switch {
	case it.Device != nil && it.Bucket != "":
		return 0, 0, fmt.Errorf("item names both device %d and bucket %s: %w", *it.Device, it.Bucket, zerrors.ErrInvariantViolation)
	case it.Device != nil:
		if *it.Device < 0 {
			return 0, 0, fmt.Errorf("device %d: %w", *it.Device, zerrors.ErrInvalidID)
		}
		id, weight = *it.Device, domain.WeightUnit
	case it.Bucket != "":
		child, ok := r.Buckets[it.Bucket]
		if !ok {
			return 0, 0, fmt.Errorf("item %s: %w", it.Bucket, zerrors.ErrDanglingReference)
		}
		b, err := r.Map.Bucket(child)
		if err != nil {
			return 0, 0, err
		}
		id, weight = child, b.Weight()
	default:
		return 0, 0, fmt.Errorf("item needs a device or a bucket: %w", zerrors.ErrMissingRequiredFields)
	}

	if it.Weight != nil {
		w, err := domain.FixedWeight(*it.Weight)
		if err != nil {
			return 0, 0, fmt.Errorf("item %d: %v: %w", id, err, zerrors.ErrWeightOverflow)
		}
		weight = w
	}
	return id, weight, nil
}

func (r *BuildResult) addRule(rd domain.RuleDescription) error {
	if rd.Name != "" {
		if _, dup := r.Rules[rd.Name]; dup {
			return fmt.Errorf("rule %s: %w", rd.Name, zerrors.ErrAlreadyExists)
		}
	}
	typ := RuleTypeReplicated
	if rd.Type != "" {
		t, err := parseRuleType(rd.Type)
		if err != nil {
			return fmt.Errorf("rule %s: %w", rd.Name, err)
		}
		typ = t
	}

	rule, err := crush.MakeRule(len(rd.Steps), rd.Ruleset, typ, rd.MinSize, rd.MaxSize)
	if err != nil {
		return fmt.Errorf("rule %s: %w", rd.Name, err)
	}
	for pos, sd := range rd.Steps {
		op, arg1, arg2, err := r.resolveStep(sd)
		if err != nil {
			return fmt.Errorf("rule %s step %d: %w", rd.Name, pos, err)
		}
		if err := rule.SetStep(pos, op, arg1, arg2); err != nil {
			return fmt.Errorf("rule %s: %w", rd.Name, err)
		}
	}

	ruleno := crush.AutoRuleID
	if rd.ID != nil {
		ruleno = *rd.ID
	}
	id, err := r.Map.AddRule(ruleno, rule)
	if err != nil {
		return fmt.Errorf("rule %s: %w", rd.Name, err)
	}
	if rd.Name != "" {
		r.Rules[rd.Name] = id
	}
	return nil
}

func (r *BuildResult) resolveStep(sd domain.StepDescription) (crush.Op, int32, int32, error) {
	op, err := crush.ParseOp(sd.Op)
	if err != nil {
		return 0, 0, 0, err
	}

	switch {
	case op == crush.OpTake:
		switch {
		case sd.Bucket != "":
			id, ok := r.Buckets[sd.Bucket]
			if !ok {
				return 0, 0, 0, fmt.Errorf("take %s: %w", sd.Bucket, zerrors.ErrUnknownName)
			}
			return op, id, 0, nil
		case sd.Device != nil:
			return op, *sd.Device, 0, nil
		default:
			return 0, 0, 0, fmt.Errorf("take needs a bucket or a device: %w", zerrors.ErrMissingRequiredFields)
		}
	case op.IsChoose():
		typ, err := r.resolveType(sd.Type)
		if err != nil {
			return 0, 0, 0, err
		}
		return op, sd.Num, int32(typ), nil
	case op == crush.OpEmit, op == crush.OpNoop:
		return op, 0, 0, nil
	default:
		return op, sd.Value, 0, nil
	}
}

// bucketOrder returns the buckets ordered so that every nested bucket comes
// before the buckets holding it.
func bucketOrder(buckets []domain.BucketDescription) ([]domain.BucketDescription, error) {
	byName := make(map[string]int, len(buckets))
	for i, b := range buckets {
		if b.Name == "" {
			return nil, fmt.Errorf("bucket #%d name: %w", i, zerrors.ErrMissingRequiredFields)
		}
		if _, dup := byName[b.Name]; dup {
			return nil, fmt.Errorf("bucket %s: %w", b.Name, zerrors.ErrAlreadyExists)
		}
		byName[b.Name] = i
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(buckets))
	order := make([]domain.BucketDescription, 0, len(buckets))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case visiting:
			return fmt.Errorf("bucket %s: %w", buckets[i].Name, zerrors.ErrCycle)
		case done:
			return nil
		}
		state[i] = visiting
		for _, item := range buckets[i].Items {
			if item.Bucket == "" {
				continue
			}
			j, ok := byName[item.Bucket]
			if !ok {
				return fmt.Errorf("bucket %s item %s: %w", buckets[i].Name, item.Bucket, zerrors.ErrDanglingReference)
			}
			if err := visit(j); err != nil {
				return err
			}
		}
		state[i] = done
		order = append(order, buckets[i])
		return nil
	}

	for i := range buckets {
		if err := visit(i); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// assignBucketIDs keeps explicit ids and gives every other bucket the free
// id closest to zero, in description order.
func assignBucketIDs(buckets []domain.BucketDescription) (map[string]int32, error) {
	ids := make(map[string]int32, len(buckets))
	used := make(map[int32]bool)
	for _, b := range buckets {
		if b.ID == nil {
			continue
		}
		if *b.ID >= 0 {
			return nil, fmt.Errorf("bucket %s id %d: %w", b.Name, *b.ID, zerrors.ErrInvalidID)
		}
		if used[*b.ID] {
			return nil, fmt.Errorf("bucket %s id %d: %w", b.Name, *b.ID, zerrors.ErrAlreadyExists)
		}
		used[*b.ID] = true
		ids[b.Name] = *b.ID
	}

	next := int32(-1)
	for _, b := range buckets {
		if b.ID != nil {
			continue
		}
		for used[next] {
			next--
		}
		used[next] = true
		ids[b.Name] = next
	}
	return ids, nil
}
