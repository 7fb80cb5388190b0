package domain

// MapSummary - printable view of a built map
type MapSummary struct {
	Name        string          `yaml:"name,omitempty"`
	Epoch       uint64          `yaml:"epoch,omitempty"`
	Fingerprint string          `yaml:"fingerprint,omitempty"` // Empty until finalized
	MaxDevices  int32           `yaml:"max_devices"`
	Buckets     []BucketSummary `yaml:"buckets"`
	Rules       []RuleSummary   `yaml:"rules"`
}

// BucketSummary - one bucket with decimal weights
type BucketSummary struct {
	ID        int32         `yaml:"id"`
	Name      string        `yaml:"name,omitempty"`
	Type      int           `yaml:"type"`
	Algorithm string        `yaml:"algorithm"`
	Weight    float64       `yaml:"weight"`
	Items     []ItemSummary `yaml:"items"`
}

type ItemSummary struct {
	ID     int32   `yaml:"id"`
	Weight float64 `yaml:"weight"`
}

// RuleSummary - one rule with its steps rendered as text
type RuleSummary struct {
	ID      int      `yaml:"id"`
	Name    string   `yaml:"name,omitempty"`
	Ruleset int      `yaml:"ruleset"`
	Type    int      `yaml:"type"`
	MinSize int      `yaml:"min_size"`
	MaxSize int      `yaml:"max_size"`
	Steps   []string `yaml:"steps"`
}
