package crush

import "fmt"

// ItemKind distinguishes leaf devices from nested buckets.
type ItemKind uint8

const (
	KindDevice ItemKind = iota
	KindBucket
)

// Item is a bucket member. On the wire (and in Bucket.Items) an item is a
// signed id: non-negative ids are devices, negative ids are buckets.
type Item struct {
	kind ItemKind
	id   int32
}

// Leaf returns the item for device id. id must be non-negative.
func Leaf(id int32) Item {
	return Item{kind: KindDevice, id: id}
}

// Nested returns the item for bucket id. id must be negative.
func Nested(bucketID int32) Item {
	return Item{kind: KindBucket, id: bucketID}
}

// ItemFromID decodes the signed item encoding.
func ItemFromID(id int32) Item {
	if id < 0 {
		return Nested(id)
	}
	return Leaf(id)
}

// ID encodes the item as a signed id.
func (i Item) ID() int32 { return i.id }

func (i Item) Kind() ItemKind { return i.kind }

func (i Item) IsBucket() bool { return i.kind == KindBucket }

func (i Item) IsDevice() bool { return i.kind == KindDevice }

func (i Item) String() string {
	if i.IsBucket() {
		return fmt.Sprintf("bucket(%d)", i.id)
	}
	return fmt.Sprintf("osd.%d", i.id)
}
