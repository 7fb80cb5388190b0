package service

import (
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/zzenonn/zcrush/internal/domain"
	"gopkg.in/yaml.v3"
)

// Summarize renders a built map with the names from its description
func Summarize(res *BuildResult) (domain.MapSummary, error) {
	m := res.Map
	summary := domain.MapSummary{
		MaxDevices: m.MaxDevices(),
		Buckets:    make([]domain.BucketSummary, 0, m.BucketCount()),
	}
	if fp, err := m.Fingerprint(); err == nil {
		summary.Fingerprint = fp.String()
	}

	bucketNames := make(map[int32]string, len(res.Buckets))
	for name, id := range res.Buckets {
		bucketNames[id] = name
	}
	ruleNames := make(map[int]string, len(res.Rules))
	for name, id := range res.Rules {
		ruleNames[id] = name
	}

	for _, b := range m.Buckets() {
		weights, err := b.ItemWeights()
		if err != nil {
			return domain.MapSummary{}, err
		}
		bs := domain.BucketSummary{
			ID:        b.ID(),
			Name:      bucketNames[b.ID()],
			Type:      b.Type(),
			Algorithm: b.Alg().String(),
			Weight:    domain.DecimalWeight(b.Weight()),
			Items:     make([]domain.ItemSummary, 0, b.Size()),
		}
		for i, item := range b.Items() {
			bs.Items = append(bs.Items, domain.ItemSummary{ID: item, Weight: domain.DecimalWeight(weights[i])})
		}
		summary.Buckets = append(summary.Buckets, bs)
	}

	for _, id := range m.RuleIDs() {
		r, err := m.Rule(id)
		if err != nil {
			return domain.MapSummary{}, err
		}
		mask := r.Mask()
		rs := domain.RuleSummary{
			ID:      id,
			Name:    ruleNames[id],
			Ruleset: mask.Ruleset,
			Type:    mask.Type,
			MinSize: mask.MinSize,
			MaxSize: mask.MaxSize,
		}
		for _, step := range r.Steps() {
			rs.Steps = append(rs.Steps, step.String())
		}
		summary.Rules = append(summary.Rules, rs)
	}
	return summary, nil
}

// WriteSummary writes summary as YAML to w, zstd-compressed when compress
// is set.
func WriteSummary(w io.Writer, summary domain.MapSummary, compress bool) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return err
	}
	if !compress {
		_, err = w.Write(data)
		return err
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
