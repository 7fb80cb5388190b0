package crush

import (
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// Fingerprint is a BLAKE3 digest of the deterministic CBOR encoding of a
// map's tunables, buckets, and rules. Two maps with equal content have
// equal fingerprints, which lets a published map version be identified.
type Fingerprint [32]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns the first 12 hex digits, for log output.
func (f Fingerprint) Short() string {
	return f.String()[:12]
}

// fingerprintEncMode uses Core Deterministic Encoding so identical
// content always produces identical bytes.
var fingerprintEncMode cbor.EncMode

func init() {
	var err error
	fingerprintEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("crush: CBOR encoder initialization failed: " + err.Error())
	}
}

type bucketRecord struct {
	ID          int32    `cbor:"1,keyasint"`
	Type        int      `cbor:"2,keyasint"`
	Alg         uint8    `cbor:"3,keyasint"`
	Hash        uint8    `cbor:"4,keyasint"`
	Weight      uint32   `cbor:"5,keyasint"`
	Items       []int32  `cbor:"6,keyasint"`
	ItemWeights []uint32 `cbor:"7,keyasint"`
}

type ruleRecord struct {
	ID      int        `cbor:"1,keyasint"`
	Ruleset int        `cbor:"2,keyasint"`
	Type    int        `cbor:"3,keyasint"`
	MinSize int        `cbor:"4,keyasint"`
	MaxSize int        `cbor:"5,keyasint"`
	Steps   [][3]int64 `cbor:"6,keyasint"`
}

type mapRecord struct {
	Tunables Tunables       `cbor:"1,keyasint"`
	Buckets  []bucketRecord `cbor:"2,keyasint"`
	Rules    []ruleRecord   `cbor:"3,keyasint"`
}

func (m *Map) computeFingerprint() (Fingerprint, error) {
	rec := mapRecord{Tunables: m.tunables}
	for _, b := range m.Buckets() {
		weights, err := b.ItemWeights()
		if err != nil {
			return Fingerprint{}, err
		}
		rec.Buckets = append(rec.Buckets, bucketRecord{
			ID:          b.id,
			Type:        b.typ,
			Alg:         uint8(b.Alg()),
			Hash:        b.hash,
			Weight:      b.weight,
			Items:       b.items,
			ItemWeights: weights,
		})
	}
	for _, id := range m.RuleIDs() {
		r := m.rules[id]
		steps := make([][3]int64, len(r.steps))
		for i, s := range r.steps {
			steps[i] = [3]int64{int64(s.Op), int64(s.Arg1), int64(s.Arg2)}
		}
		rec.Rules = append(rec.Rules, ruleRecord{
			ID:      id,
			Ruleset: r.mask.Ruleset,
			Type:    r.mask.Type,
			MinSize: r.mask.MinSize,
			MaxSize: r.mask.MaxSize,
			Steps:   steps,
		})
	}

	data, err := fingerprintEncMode.Marshal(rec)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint(blake3.Sum256(data)), nil
}
