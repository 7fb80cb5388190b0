package crush

// Clone returns a deep copy of the map, including its finalized state.
// Publishing a clone lets the builder keep editing its own copy while
// readers use the published one.
func (m *Map) Clone() *Map {
	c := &Map{
		tunables:    m.tunables,
		buckets:     make([]*Bucket, len(m.buckets)),
		rules:       make([]*Rule, len(m.rules)),
		finalized:   m.finalized,
		maxDevices:  m.maxDevices,
		fingerprint: m.fingerprint,
	}
	for i, b := range m.buckets {
		if b != nil {
			c.buckets[i] = b.clone(c)
		}
	}
	for i, r := range m.rules {
		if r != nil {
			c.rules[i] = &Rule{mask: r.mask, steps: r.Steps(), owner: c}
		}
	}
	return c
}

func (b *Bucket) clone(owner *Map) *Bucket {
	c := &Bucket{
		id:     b.id,
		typ:    b.typ,
		hash:   b.hash,
		weight: b.weight,
		items:  cloneItems(b.items),
		owner:  owner,
	}
	switch d := b.data.(type) {
	case *uniformData:
		c.data = &uniformData{itemWeight: d.itemWeight}
	case *listData:
		c.data = &listData{itemWeights: cloneWeights(d.itemWeights), sumWeights: cloneWeights(d.sumWeights)}
	case *treeData:
		c.data = &treeData{nodeWeights: cloneWeights(d.nodeWeights)}
	case *strawData:
		c.data = &strawData{itemWeights: cloneWeights(d.itemWeights), straws: cloneWeights(d.straws), calcVersion: d.calcVersion}
	case *straw2Data:
		c.data = &straw2Data{itemWeights: cloneWeights(d.itemWeights)}
	}
	return c
}
