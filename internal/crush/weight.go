package crush

import (
	"fmt"

	zerrors "github.com/zzenonn/zcrush/internal/errors"
)

// AddItem appends item to the bucket with the given weight and adds the
// weight to the bucket total. A uniform bucket only accepts its shared item
// weight. On error the bucket is unchanged.
func (b *Bucket) AddItem(item int32, weight uint32) error {
	if b.Contains(item) {
		return zerrors.BucketError(b.id, fmt.Errorf("item %d: %w", item, zerrors.ErrAlreadyExists))
	}
	if AdditionIsUnsafe(b.weight, weight) {
		return zerrors.BucketError(b.id, fmt.Errorf("add item %d at %#x: %w", item, weight, zerrors.ErrWeightOverflow))
	}

	switch d := b.data.(type) {
	case *uniformData:
		if weight != d.itemWeight {
			return zerrors.BucketError(b.id, fmt.Errorf("item weight %#x differs from uniform weight %#x: %w",
				weight, d.itemWeight, zerrors.ErrInvariantViolation))
		}
	case *listData:
		prev := uint32(0)
		if n := len(d.sumWeights); n > 0 {
			prev = d.sumWeights[n-1]
		}
		d.itemWeights = append(d.itemWeights, weight)
		d.sumWeights = append(d.sumWeights, prev+weight)
	case *treeData:
		size := len(b.items)
		if treeDepth(size+1) != treeDepth(size) {
			d.nodeWeights = buildTree(append(leafWeights(d.nodeWeights, size), weight))
		} else {
			setLeaf(d.nodeWeights, size+1, size, weight)
		}
	case *strawData:
		d.itemWeights = append(d.itemWeights, weight)
		d.straws = calcStraws(d.itemWeights, b.strawCalcVersion(d))
	case *straw2Data:
		d.itemWeights = append(d.itemWeights, weight)
	default:
		return zerrors.BucketError(b.id, zerrors.ErrInvalidAlgorithm)
	}

	b.items = append(b.items, item)
	b.weight += weight
	b.touch()
	return nil
}

// AdjustItemWeight sets the weight of item and returns the change applied
// to the bucket total, so callers can carry the same change up to the
// ancestors of the bucket.
//
// For a uniform bucket item is ignored: weight becomes the shared item
// weight and the total becomes weight times the item count.
func (b *Bucket) AdjustItemWeight(item int32, weight uint32) (int64, error) {
	if d, ok := b.data.(*uniformData); ok {
		size := uint32(len(b.items))
		if MultiplicationIsUnsafe(weight, size) {
			return 0, zerrors.BucketError(b.id, fmt.Errorf("uniform weight %#x for %d items: %w", weight, size, zerrors.ErrWeightOverflow))
		}
		old := b.weight
		d.itemWeight = weight
		b.weight = weight * size
		b.touch()
		return int64(b.weight) - int64(old), nil
	}

	i := b.indexOf(item)
	if i < 0 {
		if b.Alg() == 0 {
			return 0, zerrors.BucketError(b.id, zerrors.ErrInvalidAlgorithm)
		}
		return 0, zerrors.BucketError(b.id, fmt.Errorf("item %d: %w", item, zerrors.ErrItemNotFound))
	}
	old, err := b.itemWeightAt(i)
	if err != nil {
		return 0, err
	}
	if weight > old && AdditionIsUnsafe(b.weight, weight-old) {
		return 0, zerrors.BucketError(b.id, fmt.Errorf("raise item %d to %#x: %w", item, weight, zerrors.ErrWeightOverflow))
	}
	if weight < old && old-weight > b.weight {
		return 0, zerrors.BucketError(b.id, fmt.Errorf("lower item %d to %#x: %w", item, weight, zerrors.ErrWeightOverflow))
	}

	switch d := b.data.(type) {
	case *listData:
		d.itemWeights[i] = weight
		for j := i; j < len(d.itemWeights); j++ {
			d.sumWeights[j] = d.sumWeights[j] - old + weight
		}
	case *treeData:
		setLeaf(d.nodeWeights, len(b.items), i, weight)
	case *strawData:
		d.itemWeights[i] = weight
		d.straws = calcStraws(d.itemWeights, b.strawCalcVersion(d))
	case *straw2Data:
		d.itemWeights[i] = weight
	default:
		return 0, zerrors.BucketError(b.id, zerrors.ErrInvalidAlgorithm)
	}

	b.weight = b.weight - old + weight
	b.touch()
	return int64(weight) - int64(old), nil
}

// RemoveItem drops item from the bucket and subtracts its weight from the
// total. If the item outweighs the total, the total is set to zero instead
// of wrapping.
func (b *Bucket) RemoveItem(item int32) error {
	if b.Alg() == 0 {
		return zerrors.BucketError(b.id, zerrors.ErrInvalidAlgorithm)
	}
	i := b.indexOf(item)
	if i < 0 {
		return zerrors.BucketError(b.id, fmt.Errorf("item %d: %w", item, zerrors.ErrItemNotFound))
	}
	weight, err := b.itemWeightAt(i)
	if err != nil {
		return err
	}

	switch d := b.data.(type) {
	case *uniformData:
	case *listData:
		d.itemWeights = removeWeight(d.itemWeights, i)
		d.sumWeights = prefixSums(d.itemWeights)
	case *treeData:
		// Leaves after i shift down one position, so the layout is rebuilt.
		leaves := removeWeight(leafWeights(d.nodeWeights, len(b.items)), i)
		d.nodeWeights = buildTree(leaves)
	case *strawData:
		d.itemWeights = removeWeight(d.itemWeights, i)
		d.straws = calcStraws(d.itemWeights, b.strawCalcVersion(d))
	case *straw2Data:
		d.itemWeights = removeWeight(d.itemWeights, i)
	default:
		return zerrors.BucketError(b.id, zerrors.ErrInvalidAlgorithm)
	}

	b.items = append(b.items[:i:i], b.items[i+1:]...)
	if weight < b.weight {
		b.weight -= weight
	} else {
		b.weight = 0
	}
	b.touch()
	return nil
}

// ReweightBucket recomputes, depth first, the weight of b and of every
// bucket nested below it from the current weights of their children. Work
// done before an error is kept; the operation can simply be run again.
//
// A uniform bucket whose nested buckets outnumber its devices takes the
// mean weight of those buckets as its shared item weight.
func (m *Map) ReweightBucket(b *Bucket) error {
	return m.reweight(b, make(map[*Bucket]bool))
}

func (m *Map) reweight(b *Bucket, path map[*Bucket]bool) error {
	if path[b] {
		return zerrors.BucketError(b.id, zerrors.ErrCycle)
	}
	path[b] = true
	defer delete(path, b)

	if b.Alg() == 0 {
		return zerrors.BucketError(b.id, zerrors.ErrInvalidAlgorithm)
	}

	weights := make([]uint32, len(b.items))
	var nestedSum uint32
	nested, leaves := 0, 0
	for i, item := range b.Members() {
		if item.IsDevice() {
			w, err := b.itemWeightAt(i)
			if err != nil {
				return err
			}
			weights[i] = w
			leaves++
			continue
		}
		child, err := m.Bucket(item.ID())
		if err != nil {
			return zerrors.BucketError(b.id, err)
		}
		if err := m.reweight(child, path); err != nil {
			return err
		}
		weights[i] = child.weight
		if AdditionIsUnsafe(nestedSum, child.weight) {
			return zerrors.BucketError(b.id, fmt.Errorf("sum of nested buckets: %w", zerrors.ErrWeightOverflow))
		}
		nestedSum += child.weight
		nested++
	}

	if _, ok := b.data.(*uniformData); !ok {
		if _, ok := sumWeights(weights); !ok {
			return zerrors.BucketError(b.id, fmt.Errorf("sum of %d items: %w", len(weights), zerrors.ErrWeightOverflow))
		}
	}

	switch d := b.data.(type) {
	case *uniformData:
		itemWeight := d.itemWeight
		if nested > leaves {
			itemWeight = nestedSum / uint32(nested)
		}
		if MultiplicationIsUnsafe(itemWeight, uint32(len(b.items))) {
			return zerrors.BucketError(b.id, fmt.Errorf("uniform weight %#x for %d items: %w", itemWeight, len(b.items), zerrors.ErrWeightOverflow))
		}
		d.itemWeight = itemWeight
		b.weight = itemWeight * uint32(len(b.items))
	case *listData:
		d.itemWeights = weights
		d.sumWeights = prefixSums(weights)
		b.weight = lastOrZero(d.sumWeights)
	case *treeData:
		d.nodeWeights = buildTree(weights)
		b.weight = d.nodeWeights[treeRoot(d.nodeWeights)]
	case *strawData:
		d.itemWeights = weights
		d.straws = calcStraws(weights, b.strawCalcVersion(d))
		b.weight, _ = sumWeights(weights)
	case *straw2Data:
		d.itemWeights = weights
		b.weight, _ = sumWeights(weights)
	default:
		return zerrors.BucketError(b.id, zerrors.ErrInvalidAlgorithm)
	}
	b.touch()
	return nil
}

// AdjustItemWeightInTree sets the weight of item in every registered bucket
// that holds it and carries each change up through the ancestors of that
// bucket. It returns the number of buckets that hold item.
func (m *Map) AdjustItemWeightInTree(item int32, weight uint32) (int, error) {
	changed := 0
	for _, b := range m.Buckets() {
		if !b.Contains(item) {
			continue
		}
		delta, err := b.AdjustItemWeight(item, weight)
		if err != nil {
			return changed, err
		}
		changed++
		if delta != 0 {
			if err := m.propagateWeight(b, make(map[*Bucket]bool)); err != nil {
				return changed, err
			}
		}
	}
	return changed, nil
}

// propagateWeight writes the weight of child into every bucket that holds
// it, and so on up to the roots.
func (m *Map) propagateWeight(child *Bucket, path map[*Bucket]bool) error {
	if path[child] {
		return zerrors.BucketError(child.id, zerrors.ErrCycle)
	}
	path[child] = true
	defer delete(path, child)

	for _, parent := range m.parentsOf(child.id) {
		delta, err := parent.AdjustItemWeight(child.id, child.weight)
		if err != nil {
			return err
		}
		if delta == 0 {
			continue
		}
		if err := m.propagateWeight(parent, path); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bucket) strawCalcVersion(d *strawData) uint8 {
	if b.owner != nil {
		return b.owner.tunables.StrawCalcVersion
	}
	return d.calcVersion
}

func removeWeight(weights []uint32, i int) []uint32 {
	return append(weights[:i:i], weights[i+1:]...)
}

func lastOrZero(weights []uint32) uint32 {
	if len(weights) == 0 {
		return 0
	}
	return weights[len(weights)-1]
}
