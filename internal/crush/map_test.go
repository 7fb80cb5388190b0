package crush

import (
	"errors"
	"reflect"
	"testing"

	zerrors "github.com/zzenonn/zcrush/internal/errors"
)

func newEmptyBucket(t *testing.T) *Bucket {
	t.Helper()
	return mustMakeBucket(t, nil, AlgStraw2, nil, nil)
}

func TestAddBucket_AutoIDs(t *testing.T) {
	m := NewMap()
	var ids []int32
	for i := 0; i < 3; i++ {
		id, err := m.AddBucket(AutoBucketID, newEmptyBucket(t))
		if err != nil {
			t.Fatalf("AddBucket() error = %v", err)
		}
		ids = append(ids, id)
	}
	if !reflect.DeepEqual(ids, []int32{-1, -2, -3}) {
		t.Errorf("auto ids = %v, want [-1 -2 -3]", ids)
	}

	b, _ := m.Bucket(-2)
	if err := m.RemoveBucket(b); err != nil {
		t.Fatalf("RemoveBucket() error = %v", err)
	}
	if next := m.NextBucketID(); next != -2 {
		t.Errorf("NextBucketID() = %d, want -2", next)
	}

	if _, err := m.AddBucket(-10, newEmptyBucket(t)); err != nil {
		t.Fatalf("AddBucket(-10) error = %v", err)
	}
	for _, want := range []int32{-2, -4} {
		id, err := m.AddBucket(AutoBucketID, newEmptyBucket(t))
		if err != nil {
			t.Fatalf("AddBucket() error = %v", err)
		}
		if id != want {
			t.Errorf("auto id = %d, want %d", id, want)
		}
	}
}

func TestAddBucket_Errors(t *testing.T) {
	m := NewMap()
	if _, err := m.AddBucket(-1, newEmptyBucket(t)); err != nil {
		t.Fatalf("AddBucket(-1) error = %v", err)
	}

	tests := []struct {
		name    string
		id      int32
		bucket  *Bucket
		wantErr error
	}{
		{"collision", -1, newEmptyBucket(t), zerrors.ErrAlreadyExists},
		{"positive id", 4, newEmptyBucket(t), zerrors.ErrInvalidID},
		{"registry limit", -(maxBucketSlots + 1), newEmptyBucket(t), zerrors.ErrOutOfMemory},
		{"nil bucket", -2, nil, zerrors.ErrInvariantViolation},
		{"unknown algorithm", -2, &Bucket{}, zerrors.ErrInvalidAlgorithm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AddBucket(tt.id, tt.bucket)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddBucket() error = %v, want %v", err, tt.wantErr)
			}
			if m.BucketCount() != 1 {
				t.Errorf("BucketCount() = %d, want 1", m.BucketCount())
			}
			if tt.bucket != nil && tt.bucket.owner != nil {
				t.Errorf("rejected bucket was attached to the map")
			}
		})
	}

	registered, _ := m.Bucket(-1)
	other := NewMap()
	if _, err := other.AddBucket(AutoBucketID, registered); !errors.Is(err, zerrors.ErrInvariantViolation) {
		t.Errorf("AddBucket() of a registered bucket error = %v, want ErrInvariantViolation", err)
	}
}

func TestBuckets_Ordered(t *testing.T) {
	m := NewMap()
	for _, id := range []int32{-5, -1, -3} {
		if _, err := m.AddBucket(id, newEmptyBucket(t)); err != nil {
			t.Fatalf("AddBucket(%d) error = %v", id, err)
		}
	}
	var got []int32
	for _, b := range m.Buckets() {
		got = append(got, b.ID())
	}
	if !reflect.DeepEqual(got, []int32{-1, -3, -5}) {
		t.Errorf("Buckets() ids = %v, want [-1 -3 -5]", got)
	}
	if _, err := m.Bucket(-2); !errors.Is(err, zerrors.ErrBucketNotFound) {
		t.Errorf("Bucket(-2) error = %v, want ErrBucketNotFound", err)
	}
}

func TestRemoveBucket(t *testing.T) {
	m, root, h1, _ := buildHierarchy(t, AlgStraw2)

	if err := m.RemoveBucket(h1); !errors.Is(err, zerrors.ErrBucketInUse) {
		t.Errorf("RemoveBucket() of a nested bucket error = %v, want ErrBucketInUse", err)
	}
	if err := root.RemoveItem(h1.ID()); err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}
	if err := m.RemoveBucket(h1); err != nil {
		t.Fatalf("RemoveBucket() error = %v", err)
	}
	if _, err := m.Bucket(h1.ID()); !errors.Is(err, zerrors.ErrBucketNotFound) {
		t.Errorf("Bucket() after removal error = %v, want ErrBucketNotFound", err)
	}
	if err := m.RemoveBucket(h1); !errors.Is(err, zerrors.ErrBucketNotFound) {
		t.Errorf("second RemoveBucket() error = %v, want ErrBucketNotFound", err)
	}
	if m.BucketCount() != 2 {
		t.Errorf("BucketCount() = %d, want 2", m.BucketCount())
	}
}

func TestRule_Steps(t *testing.T) {
	r, err := MakeRule(3, 0, 1, 1, 10)
	if err != nil {
		t.Fatalf("MakeRule() error = %v", err)
	}
	want := []Step{
		{Op: OpTake, Arg1: -1},
		{Op: OpChooseleafFirstN, Arg1: 0, Arg2: 0},
		{Op: OpEmit},
	}
	for pos, s := range want {
		if err := r.SetStep(pos, s.Op, s.Arg1, s.Arg2); err != nil {
			t.Fatalf("SetStep(%d) error = %v", pos, err)
		}
	}

	m := NewMap()
	id, err := m.AddRule(AutoRuleID, r)
	if err != nil {
		t.Fatalf("AddRule() error = %v", err)
	}
	got, err := m.Rule(id)
	if err != nil {
		t.Fatalf("Rule(%d) error = %v", id, err)
	}
	if !reflect.DeepEqual(got.Steps(), want) {
		t.Errorf("Steps() = %v, want %v", got.Steps(), want)
	}
	for pos := range want {
		s, err := got.Step(pos)
		if err != nil || s != want[pos] {
			t.Errorf("Step(%d) = %v, %v, want %v", pos, s, err, want[pos])
		}
	}
	if got.Mask() != (Mask{Ruleset: 0, Type: 1, MinSize: 1, MaxSize: 10}) {
		t.Errorf("Mask() = %+v", got.Mask())
	}
}

func TestRule_SetStepOutOfRange(t *testing.T) {
	r, _ := MakeRule(1, 0, 0, 1, 1)
	for _, pos := range []int{-1, 1, 5} {
		if err := r.SetStep(pos, OpEmit, 0, 0); !errors.Is(err, zerrors.ErrStepOutOfRange) {
			t.Errorf("SetStep(%d) error = %v, want ErrStepOutOfRange", pos, err)
		}
	}
	if s, _ := r.Step(0); s.Op != OpNoop {
		t.Errorf("unset step = %v, want noop", s)
	}
	if _, err := MakeRule(-1, 0, 0, 0, 0); !errors.Is(err, zerrors.ErrInvariantViolation) {
		t.Errorf("MakeRule(-1) error = %v, want ErrInvariantViolation", err)
	}
}

func TestAddRule_IDs(t *testing.T) {
	m := NewMap()
	newRule := func() *Rule {
		r, _ := MakeRule(1, 0, 0, 1, 1)
		return r
	}

	if _, err := m.AddRule(MaxRules, newRule()); !errors.Is(err, zerrors.ErrTooManyRules) {
		t.Errorf("AddRule(MaxRules) error = %v, want ErrTooManyRules", err)
	}
	if len(m.RuleIDs()) != 0 {
		t.Errorf("RuleIDs() = %v after rejected add", m.RuleIDs())
	}
	if _, err := m.AddRule(-7, newRule()); !errors.Is(err, zerrors.ErrInvalidID) {
		t.Errorf("AddRule(-7) error = %v, want ErrInvalidID", err)
	}

	if _, err := m.AddRule(2, newRule()); err != nil {
		t.Fatalf("AddRule(2) error = %v", err)
	}
	if _, err := m.AddRule(2, newRule()); !errors.Is(err, zerrors.ErrAlreadyExists) {
		t.Errorf("AddRule(2) twice error = %v, want ErrAlreadyExists", err)
	}
	for _, want := range []int{0, 1, 3} {
		id, err := m.AddRule(AutoRuleID, newRule())
		if err != nil {
			t.Fatalf("AddRule(auto) error = %v", err)
		}
		if id != want {
			t.Errorf("auto rule id = %d, want %d", id, want)
		}
	}

	if err := m.RemoveRule(1); err != nil {
		t.Fatalf("RemoveRule(1) error = %v", err)
	}
	if err := m.RemoveRule(1); !errors.Is(err, zerrors.ErrRuleNotFound) {
		t.Errorf("RemoveRule(1) twice error = %v, want ErrRuleNotFound", err)
	}
	if id, _ := m.AddRule(AutoRuleID, newRule()); id != 1 {
		t.Errorf("auto rule id after removal = %d, want 1", id)
	}
}

func TestAddRule_Exhausted(t *testing.T) {
	m := NewMap()
	for i := 0; i < MaxRules; i++ {
		r, _ := MakeRule(0, i, 0, 1, 1)
		if _, err := m.AddRule(AutoRuleID, r); err != nil {
			t.Fatalf("AddRule() #%d error = %v", i, err)
		}
	}
	r, _ := MakeRule(0, 0, 0, 1, 1)
	if _, err := m.AddRule(AutoRuleID, r); !errors.Is(err, zerrors.ErrTooManyRules) {
		t.Errorf("AddRule() on a full map error = %v, want ErrTooManyRules", err)
	}
	if len(m.RuleIDs()) != MaxRules {
		t.Errorf("len(RuleIDs()) = %d, want %d", len(m.RuleIDs()), MaxRules)
	}
}

func TestFindRule(t *testing.T) {
	m := NewMap()
	replicated, _ := MakeRule(0, 0, 1, 1, 10)
	erasure, _ := MakeRule(0, 1, 3, 3, 6)
	if _, err := m.AddRule(AutoRuleID, replicated); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddRule(AutoRuleID, erasure); err != nil {
		t.Fatal(err)
	}

	if id, err := m.FindRule(1, 3, 6); err != nil || id != 1 {
		t.Errorf("FindRule(1, 3, 6) = %d, %v, want 1", id, err)
	}
	if id, err := m.FindRule(0, 1, 3); err != nil || id != 0 {
		t.Errorf("FindRule(0, 1, 3) = %d, %v, want 0", id, err)
	}
	if _, err := m.FindRule(1, 3, 7); !errors.Is(err, zerrors.ErrRuleNotFound) {
		t.Errorf("FindRule(1, 3, 7) error = %v, want ErrRuleNotFound", err)
	}
}

func TestParseOp(t *testing.T) {
	tests := map[string]Op{
		"take":              OpTake,
		"chooseleaf_firstn": OpChooseleafFirstN,
		"chooseleaf-indep":  OpChooseleafIndep,
		"EMIT":              OpEmit,
		"set_choose_tries":  OpSetChooseTries,
	}
	for name, want := range tests {
		got, err := ParseOp(name)
		if err != nil || got != want {
			t.Errorf("ParseOp(%q) = %v, %v, want %v", name, got, err, want)
		}
	}
	if _, err := ParseOp("jump"); err == nil {
		t.Error("ParseOp(jump) succeeded")
	}
}
