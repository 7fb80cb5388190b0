package domain

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// WeightUnit is the fixed-point value of a weight of 1.0.
const WeightUnit = 0x10000

// MapDescription - declarative description of a CRUSH map
type MapDescription struct {
	Types        []TypeDescription    `yaml:"types"`
	Buckets      []BucketDescription  `yaml:"buckets"`
	Rules        []RuleDescription    `yaml:"rules"`
	ErasureRules []ErasureProfile     `yaml:"erasure_rules"`
	Tunables     *TunablesDescription `yaml:"tunables,omitempty"` // Overrides the configured profile
}

// TypeDescription names a bucket type id, e.g. 0 osd, 1 host, 10 root
type TypeDescription struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
}

// BucketDescription - one bucket and its items
type BucketDescription struct {
	Name      string            `yaml:"name"`
	ID        *int32            `yaml:"id,omitempty"` // Assigned automatically when absent
	Type      string            `yaml:"type"`
	Algorithm string            `yaml:"algorithm"`
	Items     []ItemDescription `yaml:"items"`
}

// ItemDescription references either a device or another bucket by name.
// Weight defaults to the child bucket's weight for nested buckets and to
// 1.0 for devices.
type ItemDescription struct {
	Device *int32   `yaml:"device,omitempty"`
	Bucket string   `yaml:"bucket,omitempty"`
	Weight *float64 `yaml:"weight,omitempty"`
}

// RuleDescription - a hand-written rule
type RuleDescription struct {
	Name    string            `yaml:"name"`
	ID      *int              `yaml:"id,omitempty"`
	Ruleset int               `yaml:"ruleset"`
	Type    string            `yaml:"type"` // replicated or erasure
	MinSize int               `yaml:"min_size"`
	MaxSize int               `yaml:"max_size"`
	Steps   []StepDescription `yaml:"steps"`
}

// StepDescription - one rule step. Take uses Bucket or Device, choose steps
// use Num and Type, set_* steps use Value.
type StepDescription struct {
	Op     string `yaml:"op"`
	Bucket string `yaml:"bucket,omitempty"`
	Device *int32 `yaml:"device,omitempty"`
	Num    int32  `yaml:"num,omitempty"`
	Type   string `yaml:"type,omitempty"`
	Value  int32  `yaml:"value,omitempty"`
}

// ErasureProfile - parameters of an erasure-coded pool rule
type ErasureProfile struct {
	Name          string `yaml:"name"`
	DataShards    int    `yaml:"k"`
	ParityShards  int    `yaml:"m"`
	Root          string `yaml:"root"`
	FailureDomain string `yaml:"failure_domain"`
	Ruleset       *int   `yaml:"ruleset,omitempty"` // Defaults to the assigned rule id
}

// TunablesDescription mirrors the map tunables; unset fields keep the
// configured value.
type TunablesDescription struct {
	ChooseLocalTries         *uint32  `yaml:"choose_local_tries,omitempty"`
	ChooseLocalFallbackTries *uint32  `yaml:"choose_local_fallback_tries,omitempty"`
	ChooseTotalTries         *uint32  `yaml:"choose_total_tries,omitempty"`
	ChooseleafDescendOnce    *uint32  `yaml:"chooseleaf_descend_once,omitempty"`
	ChooseleafVaryR          *uint8   `yaml:"chooseleaf_vary_r,omitempty"`
	ChooseleafStable         *uint8   `yaml:"chooseleaf_stable,omitempty"`
	StrawCalcVersion         *uint8   `yaml:"straw_calc_version,omitempty"`
	AllowedBucketAlgs        []string `yaml:"allowed_bucket_algs,omitempty"`
}

// TotalShards returns k+m.
func (p ErasureProfile) TotalShards() int {
	return p.DataShards + p.ParityShards
}

// FixedWeight converts a decimal weight to 16.16 fixed point.
func FixedWeight(w float64) (uint32, error) {
	if math.IsNaN(w) || w < 0 {
		return 0, fmt.Errorf("invalid weight %v", w)
	}
	scaled := math.Round(w * WeightUnit)
	if scaled > math.MaxUint32 {
		return 0, fmt.Errorf("weight %v exceeds %v", w, float64(math.MaxUint32)/WeightUnit)
	}
	return uint32(scaled), nil
}

// DecimalWeight converts a 16.16 fixed-point weight back to a decimal.
func DecimalWeight(w uint32) float64 {
	return float64(w) / WeightUnit
}

// DecodeMapDescription reads a YAML map description.
func DecodeMapDescription(r io.Reader) (MapDescription, error) {
	var desc MapDescription
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&desc); err != nil {
		if errors.Is(err, io.EOF) {
			return MapDescription{}, nil
		}
		return MapDescription{}, fmt.Errorf("decode map description: %w", err)
	}
	return desc, nil
}

// LoadMapDescription reads a YAML map description from path and checks it
// against the description schema before decoding.
func LoadMapDescription(path string) (MapDescription, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return MapDescription{}, err
	}
	if err := ValidateDescription(raw); err != nil {
		return MapDescription{}, fmt.Errorf("%s: %w", path, err)
	}
	return DecodeMapDescription(bytes.NewReader(raw))
}
