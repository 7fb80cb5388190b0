// Package crush builds and maintains CRUSH placement maps: the weighted
// bucket hierarchy, the rule programs that walk it, and the weight
// accounting that keeps every bucket's aggregate weight consistent with its
// items.
//
// Weights are 16.16 fixed-point unsigned integers (0x10000 is a weight of
// 1.0). Items use the signed CRUSH encoding: non-negative ids are devices
// and negative ids are buckets registered in the same Map.
//
// The package does no locking. A Map has a single writer; once Finalize
// succeeds the map may be handed to readers, and any later mutation clears
// the finalized state until Finalize runs again.
package crush

import (
	"fmt"
	"strings"

	zerrors "github.com/zzenonn/zcrush/internal/errors"
)

// Algorithm selects how a bucket chooses among its items.
type Algorithm uint8

const (
	AlgUniform Algorithm = 1
	AlgList    Algorithm = 2
	AlgTree    Algorithm = 3
	AlgStraw   Algorithm = 4
	AlgStraw2  Algorithm = 5
)

// HashRjenkins1 is the only hash function known to the evaluator.
const HashRjenkins1 uint8 = 0

var algorithmNames = map[Algorithm]string{
	AlgUniform: "uniform",
	AlgList:    "list",
	AlgTree:    "tree",
	AlgStraw:   "straw",
	AlgStraw2:  "straw2",
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(a))
}

// Mask returns the bit for a in a Tunables.AllowedBucketAlgs mask.
func (a Algorithm) Mask() uint32 {
	return 1 << a
}

// ParseAlgorithm maps a name such as "straw2" to its Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for alg, n := range algorithmNames {
		if n == name {
			return alg, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", name, zerrors.ErrInvalidAlgorithm)
}

// bucketData is the per-algorithm weight storage of a bucket. The set of
// implementations is closed; every operation dispatches with a type switch.
type bucketData interface {
	isBucketData()
}

// uniformData: every item carries itemWeight.
type uniformData struct {
	itemWeight uint32
}

// listData: sumWeights[i] is the sum of itemWeights[0..i].
type listData struct {
	itemWeights []uint32
	sumWeights  []uint32
}

// treeData: implicit binary tree, see tree.go.
type treeData struct {
	nodeWeights []uint32
}

// strawData: straws are derived from itemWeights by calcStraws.
type strawData struct {
	itemWeights []uint32
	straws      []uint32
	calcVersion uint8
}

type straw2Data struct {
	itemWeights []uint32
}

func (*uniformData) isBucketData() {}
func (*listData) isBucketData() {}
func (*treeData) isBucketData() {}
func (*strawData) isBucketData() {}
func (*straw2Data) isBucketData() {}

// Bucket is an interior node of the hierarchy.
type Bucket struct {
	id     int32
	typ    int
	hash   uint8
	weight uint32
	items  []int32
	data   bucketData

	// owner is the map the bucket is registered in, if any.
	owner *Map
}

// MakeBucket builds a bucket for alg. For AlgUniform only weights[0] is
// used (zero when weights is empty); every other algorithm needs one weight
// per item. m supplies the straw calculation version for AlgStraw and may
// be nil.
func MakeBucket(m *Map, alg Algorithm, hash uint8, typ int, items []int32, weights []uint32) (*Bucket, error) {
	switch alg {
	case AlgUniform:
		var w uint32
		if len(weights) > 0 {
			w = weights[0]
		}
		return MakeUniformBucket(hash, typ, items, w)
	case AlgList:
		return MakeListBucket(hash, typ, items, weights)
	case AlgTree:
		return MakeTreeBucket(hash, typ, items, weights)
	case AlgStraw:
		return MakeStrawBucket(m, hash, typ, items, weights)
	case AlgStraw2:
		return MakeStraw2Bucket(hash, typ, items, weights)
	default:
		return nil, fmt.Errorf("make bucket with algorithm %d: %w", alg, zerrors.ErrInvalidAlgorithm)
	}
}

// MakeUniformBucket builds a bucket whose items all weigh itemWeight.
func MakeUniformBucket(hash uint8, typ int, items []int32, itemWeight uint32) (*Bucket, error) {
	if err := checkDistinct(items); err != nil {
		return nil, err
	}
	if MultiplicationIsUnsafe(itemWeight, uint32(len(items))) {
		return nil, fmt.Errorf("uniform bucket of %d items at %#x: %w", len(items), itemWeight, zerrors.ErrWeightOverflow)
	}
	return &Bucket{
		typ:    typ,
		hash:   hash,
		weight: itemWeight * uint32(len(items)),
		items:  cloneItems(items),
		data:   &uniformData{itemWeight: itemWeight},
	}, nil
}

// MakeListBucket builds a list bucket; weights[i] belongs to items[i].
func MakeListBucket(hash uint8, typ int, items []int32, weights []uint32) (*Bucket, error) {
	total, err := checkItemWeights(items, weights)
	if err != nil {
		return nil, err
	}
	d := &listData{itemWeights: cloneWeights(weights)}
	d.sumWeights = prefixSums(d.itemWeights)
	return &Bucket{
		typ:    typ,
		hash:   hash,
		weight: total,
		items:  cloneItems(items),
		data:   d,
	}, nil
}

// MakeTreeBucket builds a tree bucket. items are given in leaf order.
//
// Neither OptimalTunables nor LegacyTunables allow tree buckets, so a map
// holding one only finalizes once AlgTree is added to AllowedBucketAlgs.
func MakeTreeBucket(hash uint8, typ int, items []int32, weights []uint32) (*Bucket, error) {
	total, err := checkItemWeights(items, weights)
	if err != nil {
		return nil, err
	}
	return &Bucket{
		typ:    typ,
		hash:   hash,
		weight: total,
		items:  cloneItems(items),
		data:   &treeData{nodeWeights: buildTree(weights)},
	}, nil
}

// MakeStrawBucket builds a straw bucket, computing straw lengths with the
// StrawCalcVersion of m (or the optimal version when m is nil).
//
// OptimalTunables, the default for NewMap, do not allow straw buckets. A map
// holding one only finalizes under LegacyTunables or with AlgStraw added to
// AllowedBucketAlgs.
func MakeStrawBucket(m *Map, hash uint8, typ int, items []int32, weights []uint32) (*Bucket, error) {
	total, err := checkItemWeights(items, weights)
	if err != nil {
		return nil, err
	}
	version := OptimalTunables().StrawCalcVersion
	if m != nil {
		version = m.tunables.StrawCalcVersion
	}
	d := &strawData{itemWeights: cloneWeights(weights), calcVersion: version}
	d.straws = calcStraws(d.itemWeights, version)
	return &Bucket{
		typ:    typ,
		hash:   hash,
		weight: total,
		items:  cloneItems(items),
		data:   d,
	}, nil
}

// MakeStraw2Bucket builds a straw2 bucket.
func MakeStraw2Bucket(hash uint8, typ int, items []int32, weights []uint32) (*Bucket, error) {
	total, err := checkItemWeights(items, weights)
	if err != nil {
		return nil, err
	}
	return &Bucket{
		typ:    typ,
		hash:   hash,
		weight: total,
		items:  cloneItems(items),
		data:   &straw2Data{itemWeights: cloneWeights(weights)},
	}, nil
}

// ID returns the registry id, or 0 if the bucket was never registered.
func (b *Bucket) ID() int32 { return b.id }

// Type returns the user-defined hierarchy type (host, rack, ...).
func (b *Bucket) Type() int { return b.typ }

func (b *Bucket) Hash() uint8 { return b.hash }

// Weight returns the aggregate weight of the bucket.
func (b *Bucket) Weight() uint32 { return b.weight }

func (b *Bucket) Size() int { return len(b.items) }

// Items returns a copy of the item ids in bucket order.
func (b *Bucket) Items() []int32 { return cloneItems(b.items) }

// Members returns the bucket's items tagged as devices or nested buckets.
func (b *Bucket) Members() []Item {
	members := make([]Item, len(b.items))
	for i, id := range b.items {
		members[i] = ItemFromID(id)
	}
	return members
}

// Alg returns the bucket algorithm, or 0 for a bucket that was not built by
// one of the Make functions.
func (b *Bucket) Alg() Algorithm {
	switch b.data.(type) {
	case *uniformData:
		return AlgUniform
	case *listData:
		return AlgList
	case *treeData:
		return AlgTree
	case *strawData:
		return AlgStraw
	case *straw2Data:
		return AlgStraw2
	default:
		return 0
	}
}

// Contains reports whether item is a member of the bucket.
func (b *Bucket) Contains(item int32) bool {
	return b.indexOf(item) >= 0
}

// ItemWeight returns the weight of item within the bucket.
func (b *Bucket) ItemWeight(item int32) (uint32, error) {
	i := b.indexOf(item)
	if i < 0 {
		return 0, zerrors.BucketError(b.id, fmt.Errorf("item %d: %w", item, zerrors.ErrItemNotFound))
	}
	return b.itemWeightAt(i)
}

// ItemWeights returns the weight of every item in bucket order.
func (b *Bucket) ItemWeights() ([]uint32, error) {
	switch d := b.data.(type) {
	case *uniformData:
		out := make([]uint32, len(b.items))
		for i := range out {
			out[i] = d.itemWeight
		}
		return out, nil
	case *listData:
		return cloneWeights(d.itemWeights), nil
	case *treeData:
		return leafWeights(d.nodeWeights, len(b.items)), nil
	case *strawData:
		return cloneWeights(d.itemWeights), nil
	case *straw2Data:
		return cloneWeights(d.itemWeights), nil
	default:
		return nil, zerrors.BucketError(b.id, zerrors.ErrInvalidAlgorithm)
	}
}

// UniformItemWeight returns the shared item weight of a uniform bucket.
func (b *Bucket) UniformItemWeight() (uint32, bool) {
	d, ok := b.data.(*uniformData)
	if !ok {
		return 0, false
	}
	return d.itemWeight, true
}

// SumWeights returns the running sums of a list bucket.
func (b *Bucket) SumWeights() ([]uint32, bool) {
	d, ok := b.data.(*listData)
	if !ok {
		return nil, false
	}
	return cloneWeights(d.sumWeights), true
}

// NodeWeights returns the node array of a tree bucket.
func (b *Bucket) NodeWeights() ([]uint32, bool) {
	d, ok := b.data.(*treeData)
	if !ok {
		return nil, false
	}
	return cloneWeights(d.nodeWeights), true
}

// Straws returns the straw lengths of a straw bucket.
func (b *Bucket) Straws() ([]uint32, bool) {
	d, ok := b.data.(*strawData)
	if !ok {
		return nil, false
	}
	return cloneWeights(d.straws), true
}

func (b *Bucket) itemWeightAt(i int) (uint32, error) {
	switch d := b.data.(type) {
	case *uniformData:
		return d.itemWeight, nil
	case *listData:
		return d.itemWeights[i], nil
	case *treeData:
		return d.nodeWeights[treeNode(i)], nil
	case *strawData:
		return d.itemWeights[i], nil
	case *straw2Data:
		return d.itemWeights[i], nil
	default:
		return 0, zerrors.BucketError(b.id, zerrors.ErrInvalidAlgorithm)
	}
}

func (b *Bucket) indexOf(item int32) int {
	for i, it := range b.items {
		if it == item {
			return i
		}
	}
	return -1
}

// touch clears the finalized state of the owning map.
func (b *Bucket) touch() {
	if b.owner != nil {
		b.owner.invalidate()
	}
}

func checkItemWeights(items []int32, weights []uint32) (uint32, error) {
	if len(items) != len(weights) {
		return 0, fmt.Errorf("%d items with %d weights: %w", len(items), len(weights), zerrors.ErrInvariantViolation)
	}
	if err := checkDistinct(items); err != nil {
		return 0, err
	}
	total, ok := sumWeights(weights)
	if !ok {
		return 0, fmt.Errorf("sum of %d item weights: %w", len(weights), zerrors.ErrWeightOverflow)
	}
	return total, nil
}

func checkDistinct(items []int32) error {
	seen := make(map[int32]struct{}, len(items))
	for _, it := range items {
		if _, dup := seen[it]; dup {
			return fmt.Errorf("item %d listed twice: %w", it, zerrors.ErrAlreadyExists)
		}
		seen[it] = struct{}{}
	}
	return nil
}

func prefixSums(weights []uint32) []uint32 {
	sums := make([]uint32, len(weights))
	var sum uint32
	for i, w := range weights {
		sum += w
		sums[i] = sum
	}
	return sums
}

func cloneItems(items []int32) []int32 {
	out := make([]int32, len(items))
	copy(out, items)
	return out
}

func cloneWeights(weights []uint32) []uint32 {
	out := make([]uint32, len(weights))
	copy(out, weights)
	return out
}
