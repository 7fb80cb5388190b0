package domain

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleDescription = `
types:
  - {id: 0, name: osd}
  - {id: 1, name: host}
  - {id: 10, name: root}
buckets:
  - name: host-a
    type: host
    algorithm: straw2
    items:
      - {device: 0, weight: 1.5}
      - {device: 1}
  - name: default
    id: -5
    type: root
    algorithm: list
    items:
      - {bucket: host-a}
rules:
  - name: replicated
    type: replicated
    min_size: 1
    max_size: 10
    steps:
      - {op: take, bucket: default}
      - {op: chooseleaf_firstn, num: 0, type: host}
      - {op: emit}
erasure_rules:
  - {name: ec, k: 4, m: 2, root: default, failure_domain: host}
tunables:
  straw_calc_version: 0
`

func TestDecodeMapDescription(t *testing.T) {
	desc, err := DecodeMapDescription(strings.NewReader(sampleDescription))
	if err != nil {
		t.Fatalf("DecodeMapDescription() error = %v", err)
	}

	if len(desc.Types) != 3 || desc.Types[2].ID != 10 {
		t.Errorf("Types = %+v", desc.Types)
	}
	if len(desc.Buckets) != 2 {
		t.Fatalf("len(Buckets) = %d, want 2", len(desc.Buckets))
	}
	host := desc.Buckets[0]
	if host.ID != nil {
		t.Errorf("host id = %d, want unset", *host.ID)
	}
	if host.Items[0].Weight == nil || *host.Items[0].Weight != 1.5 {
		t.Errorf("first item weight = %v, want 1.5", host.Items[0].Weight)
	}
	if host.Items[1].Weight != nil {
		t.Errorf("second item weight = %v, want unset", *host.Items[1].Weight)
	}
	if root := desc.Buckets[1]; root.ID == nil || *root.ID != -5 || root.Items[0].Bucket != "host-a" {
		t.Errorf("root = %+v", root)
	}
	if got := desc.Rules[0].Steps[1]; got.Op != "chooseleaf_firstn" || got.Type != "host" {
		t.Errorf("second step = %+v", got)
	}
	if ec := desc.ErasureRules[0]; ec.TotalShards() != 6 || ec.Ruleset != nil {
		t.Errorf("erasure profile = %+v", ec)
	}
	if desc.Tunables == nil || desc.Tunables.StrawCalcVersion == nil || *desc.Tunables.StrawCalcVersion != 0 {
		t.Errorf("Tunables = %+v", desc.Tunables)
	}
	if desc.Tunables.ChooseTotalTries != nil {
		t.Error("unset tunable decoded as set")
	}
}

func TestDecodeMapDescription_UnknownField(t *testing.T) {
	_, err := DecodeMapDescription(strings.NewReader("bukets: []\n"))
	if err == nil {
		t.Error("DecodeMapDescription() accepted an unknown field")
	}
}

func TestFixedWeight(t *testing.T) {
	tests := []struct {
		name    string
		in      float64
		want    uint32
		wantErr bool
	}{
		{"one", 1, 0x10000, false},
		{"fraction", 0.5, 0x8000, false},
		{"zero", 0, 0, false},
		{"max", 65535, 0xffff0000, false},
		{"negative", -1, 0, true},
		{"too large", 65536, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FixedWeight(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FixedWeight() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FixedWeight() = %#x, want %#x", got, tt.want)
			}
		})
	}
	if DecimalWeight(0x18000) != 1.5 {
		t.Errorf("DecimalWeight(0x18000) = %v, want 1.5", DecimalWeight(0x18000))
	}
}

func TestValidateDescription(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"sample", sampleDescription, false},
		{"empty", "", false},
		{"positive bucket id", "buckets: [{name: a, id: 3, type: host, algorithm: straw2}]", true},
		{"unknown algorithm", "buckets: [{name: a, type: host, algorithm: straw3}]", true},
		{"missing bucket type", "buckets: [{name: a, algorithm: straw2}]", true},
		{"item with device and bucket", "buckets: [{name: a, type: host, algorithm: straw2, items: [{device: 1, bucket: b}]}]", true},
		{"item without target", "buckets: [{name: a, type: host, algorithm: straw2, items: [{weight: 1}]}]", true},
		{"negative weight", "buckets: [{name: a, type: host, algorithm: straw2, items: [{device: 1, weight: -1}]}]", true},
		{"rule id out of range", "rules: [{name: r, id: 300, min_size: 1, max_size: 2}]", true},
		{"erasure profile without k", "erasure_rules: [{name: e, m: 1, root: default, failure_domain: host}]", true},
		{"unknown field", "racks: []", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDescription([]byte(tt.doc))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDescription() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMapDescription(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(good, []byte(sampleDescription), 0o644); err != nil {
		t.Fatal(err)
	}
	desc, err := LoadMapDescription(good)
	if err != nil {
		t.Fatalf("LoadMapDescription() error = %v", err)
	}
	if len(desc.Buckets) != 2 || len(desc.Rules) != 1 {
		t.Errorf("LoadMapDescription() = %+v", desc)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("buckets: [{name: a}]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMapDescription(bad); err == nil {
		t.Error("LoadMapDescription() accepted a bucket without type and algorithm")
	}

	if _, err := LoadMapDescription(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadMapDescription() of a missing file succeeded")
	}
}
