package crush

import (
	"errors"
	"math"
	"reflect"
	"testing"

	zerrors "github.com/zzenonn/zcrush/internal/errors"
)

var allAlgorithms = []Algorithm{AlgUniform, AlgList, AlgTree, AlgStraw, AlgStraw2}

func mustMakeBucket(t *testing.T, m *Map, alg Algorithm, items []int32, weights []uint32) *Bucket {
	t.Helper()
	b, err := MakeBucket(m, alg, HashRjenkins1, 1, items, weights)
	if err != nil {
		t.Fatalf("MakeBucket(%s) failed: %v", alg, err)
	}
	return b
}

func TestMakeBucket_Weights(t *testing.T) {
	tests := []struct {
		alg         Algorithm
		items       []int32
		weights     []uint32
		wantWeight  uint32
		wantWeights []uint32
	}{
		{AlgUniform, []int32{10, 11, 12}, []uint32{100}, 300, []uint32{100, 100, 100}},
		{AlgList, []int32{1, 2, 3}, []uint32{10, 20, 30}, 60, []uint32{10, 20, 30}},
		{AlgTree, []int32{1, 2, 3}, []uint32{10, 20, 30}, 60, []uint32{10, 20, 30}},
		{AlgStraw, []int32{1, 2, 3}, []uint32{10, 20, 30}, 60, []uint32{10, 20, 30}},
		{AlgStraw2, []int32{1, 2, 3}, []uint32{10, 20, 30}, 60, []uint32{10, 20, 30}},
		{AlgStraw2, nil, nil, 0, []uint32{}},
		{AlgUniform, nil, nil, 0, []uint32{}},
	}

	for _, tt := range tests {
		t.Run(tt.alg.String(), func(t *testing.T) {
			b := mustMakeBucket(t, nil, tt.alg, tt.items, tt.weights)
			if b.Alg() != tt.alg {
				t.Errorf("Alg() = %s, want %s", b.Alg(), tt.alg)
			}
			if b.Weight() != tt.wantWeight {
				t.Errorf("Weight() = %d, want %d", b.Weight(), tt.wantWeight)
			}
			got, err := b.ItemWeights()
			if err != nil {
				t.Fatalf("ItemWeights() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.wantWeights) {
				t.Errorf("ItemWeights() = %v, want %v", got, tt.wantWeights)
			}
		})
	}
}

func TestMakeBucket_Errors(t *testing.T) {
	tests := []struct {
		name    string
		alg     Algorithm
		items   []int32
		weights []uint32
		wantErr error
	}{
		{"unknown algorithm", Algorithm(9), []int32{1}, []uint32{1}, zerrors.ErrInvalidAlgorithm},
		{"zero algorithm", Algorithm(0), nil, nil, zerrors.ErrInvalidAlgorithm},
		{"missing weights", AlgList, []int32{1, 2}, []uint32{1}, zerrors.ErrInvariantViolation},
		{"duplicate item", AlgStraw2, []int32{1, 1}, []uint32{1, 1}, zerrors.ErrAlreadyExists},
		{"list overflow", AlgList, []int32{1, 2}, []uint32{math.MaxUint32, 1}, zerrors.ErrWeightOverflow},
		{"tree overflow", AlgTree, []int32{1, 2}, []uint32{math.MaxUint32 - 1, 2}, zerrors.ErrWeightOverflow},
		{"uniform overflow", AlgUniform, []int32{1, 2, 3}, []uint32{math.MaxUint32 / 2}, zerrors.ErrWeightOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := MakeBucket(nil, tt.alg, HashRjenkins1, 1, tt.items, tt.weights)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("MakeBucket() error = %v, want %v", err, tt.wantErr)
			}
			if b != nil {
				t.Errorf("MakeBucket() returned a bucket on error")
			}
		})
	}
}

func TestMakeBucket_CopiesInputs(t *testing.T) {
	items := []int32{1, 2}
	weights := []uint32{5, 6}
	b := mustMakeBucket(t, nil, AlgList, items, weights)
	items[0] = 99
	weights[0] = 99
	if got := b.Items(); got[0] != 1 {
		t.Errorf("bucket items alias caller slice: %v", got)
	}
	if w, _ := b.ItemWeight(1); w != 5 {
		t.Errorf("bucket weights alias caller slice: %d", w)
	}
}

func TestTreeBucket_Layout(t *testing.T) {
	b := mustMakeBucket(t, nil, AlgTree, []int32{1, 2, 3}, []uint32{10, 20, 30})
	nodes, ok := b.NodeWeights()
	if !ok {
		t.Fatal("NodeWeights() not available on tree bucket")
	}
	want := []uint32{0, 10, 30, 20, 60, 30, 30, 0}
	if !reflect.DeepEqual(nodes, want) {
		t.Errorf("NodeWeights() = %v, want %v", nodes, want)
	}
	if nodes[treeRoot(nodes)] != b.Weight() {
		t.Errorf("root node %d != bucket weight %d", nodes[treeRoot(nodes)], b.Weight())
	}
}

func TestTreeHelpers(t *testing.T) {
	depths := map[int]int{0: 0, 1: 1, 2: 2, 3: 3, 4: 3, 5: 4, 8: 4, 9: 5}
	for size, want := range depths {
		if got := treeDepth(size); got != want {
			t.Errorf("treeDepth(%d) = %d, want %d", size, got, want)
		}
	}
	parents := map[int]int{1: 2, 3: 2, 5: 6, 7: 6, 2: 4, 6: 4}
	for node, want := range parents {
		if got := parentNode(node); got != want {
			t.Errorf("parentNode(%d) = %d, want %d", node, got, want)
		}
	}
}

func TestParseAlgorithm(t *testing.T) {
	for _, alg := range allAlgorithms {
		got, err := ParseAlgorithm(alg.String())
		if err != nil || got != alg {
			t.Errorf("ParseAlgorithm(%q) = %v, %v", alg.String(), got, err)
		}
	}
	if _, err := ParseAlgorithm("random"); !errors.Is(err, zerrors.ErrInvalidAlgorithm) {
		t.Errorf("ParseAlgorithm(random) error = %v", err)
	}
}
