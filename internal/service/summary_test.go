package service_test

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/zzenonn/zcrush/internal/domain"
	"github.com/zzenonn/zcrush/internal/service"
	"gopkg.in/yaml.v3"
)

func TestWriteSummary(t *testing.T) {
	_, res := buildCluster(t)
	summary, err := service.Summarize(res)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	summary.Name = "default"

	for _, compress := range []bool{false, true} {
		var buf bytes.Buffer
		if err := service.WriteSummary(&buf, summary, compress); err != nil {
			t.Fatalf("WriteSummary(compress=%v) error = %v", compress, err)
		}

		data := buf.Bytes()
		if compress {
			dec, err := zstd.NewReader(nil)
			if err != nil {
				t.Fatal(err)
			}
			data, err = dec.DecodeAll(data, nil)
			dec.Close()
			if err != nil {
				t.Fatalf("zstd decode error = %v", err)
			}
		}

		var got domain.MapSummary
		if err := yaml.Unmarshal(data, &got); err != nil {
			t.Fatalf("yaml.Unmarshal() error = %v", err)
		}
		if got.Name != "default" || got.Fingerprint != summary.Fingerprint || len(got.Buckets) != len(summary.Buckets) {
			t.Errorf("compress=%v: decoded summary = %+v", compress, got)
		}
	}
}
