package crush

import (
	"fmt"
	"strings"

	zerrors "github.com/zzenonn/zcrush/internal/errors"
)

// Op is a rule step opcode.
type Op uint32

const (
	OpNoop             Op = 0
	OpTake             Op = 1
	OpChooseFirstN     Op = 2
	OpChooseIndep      Op = 3
	OpEmit             Op = 4
	OpChooseleafFirstN Op = 6
	OpChooseleafIndep  Op = 7

	// Per-rule overrides of the map tunables. Arg1 is the new value.
	OpSetChooseTries              Op = 8
	OpSetChooseleafTries          Op = 9
	OpSetChooseLocalTries         Op = 10
	OpSetChooseLocalFallbackTries Op = 11
	OpSetChooseleafVaryR          Op = 12
	OpSetChooseleafStable         Op = 13
)

var opNames = map[Op]string{
	OpNoop:                        "noop",
	OpTake:                        "take",
	OpChooseFirstN:                "choose_firstn",
	OpChooseIndep:                 "choose_indep",
	OpEmit:                        "emit",
	OpChooseleafFirstN:            "chooseleaf_firstn",
	OpChooseleafIndep:             "chooseleaf_indep",
	OpSetChooseTries:              "set_choose_tries",
	OpSetChooseleafTries:          "set_chooseleaf_tries",
	OpSetChooseLocalTries:         "set_choose_local_tries",
	OpSetChooseLocalFallbackTries: "set_choose_local_fallback_tries",
	OpSetChooseleafVaryR:          "set_chooseleaf_vary_r",
	OpSetChooseleafStable:         "set_chooseleaf_stable",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", uint32(o))
}

// IsChoose reports whether o is one of the choose or chooseleaf steps.
func (o Op) IsChoose() bool {
	switch o {
	case OpChooseFirstN, OpChooseIndep, OpChooseleafFirstN, OpChooseleafIndep:
		return true
	}
	return false
}

// ParseOp maps a step name such as "chooseleaf_firstn" to its Op. Dashes
// are accepted in place of underscores.
func ParseOp(name string) (Op, error) {
	name = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for op, n := range opNames {
		if n == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown rule step %q", name)
}

// Step is one instruction of a rule. For choose steps Arg1 is the number
// of items to select, where zero (or a negative value) is relative to the
// result size requested from the evaluator, and Arg2 is the bucket type to
// select. For take, Arg1 is the item to start from.
type Step struct {
	Op   Op
	Arg1 int32
	Arg2 int32
}

func (s Step) String() string {
	switch {
	case s.Op == OpTake:
		return fmt.Sprintf("%s %d", s.Op, s.Arg1)
	case s.Op.IsChoose():
		return fmt.Sprintf("%s %d type %d", s.Op, s.Arg1, s.Arg2)
	case s.Op >= OpSetChooseTries:
		return fmt.Sprintf("%s %d", s.Op, s.Arg1)
	default:
		return s.Op.String()
	}
}

// Mask describes which requests a rule serves. Ruleset and Type are opaque
// to the builder; MinSize and MaxSize bound the result size.
type Mask struct {
	Ruleset int
	Type    int
	MinSize int
	MaxSize int
}

// Rule is a fixed-length program of steps.
type Rule struct {
	mask  Mask
	steps []Step

	owner *Map
}

// MakeRule allocates a rule of length steps, all initially noop.
func MakeRule(length, ruleset, typ, minSize, maxSize int) (*Rule, error) {
	if length < 0 {
		return nil, fmt.Errorf("rule length %d: %w", length, zerrors.ErrInvariantViolation)
	}
	return &Rule{
		mask: Mask{
			Ruleset: ruleset,
			Type:    typ,
			MinSize: minSize,
			MaxSize: maxSize,
		},
		steps: make([]Step, length),
	}, nil
}

// SetStep writes step pos of the rule, replacing what was there. Arguments
// are stored as given.
func (r *Rule) SetStep(pos int, op Op, arg1, arg2 int32) error {
	if pos < 0 || pos >= len(r.steps) {
		return fmt.Errorf("step %d of %d: %w", pos, len(r.steps), zerrors.ErrStepOutOfRange)
	}
	r.steps[pos] = Step{Op: op, Arg1: arg1, Arg2: arg2}
	if r.owner != nil {
		r.owner.invalidate()
	}
	return nil
}

// Step returns step pos of the rule.
func (r *Rule) Step(pos int) (Step, error) {
	if pos < 0 || pos >= len(r.steps) {
		return Step{}, fmt.Errorf("step %d of %d: %w", pos, len(r.steps), zerrors.ErrStepOutOfRange)
	}
	return r.steps[pos], nil
}

// Steps returns a copy of the rule's steps.
func (r *Rule) Steps() []Step {
	out := make([]Step, len(r.steps))
	copy(out, r.steps)
	return out
}

func (r *Rule) Len() int { return len(r.steps) }

func (r *Rule) Mask() Mask { return r.mask }

func (r *Rule) matches(ruleset, typ, size int) bool {
	return r.mask.Ruleset == ruleset && r.mask.Type == typ &&
		r.mask.MinSize <= size && r.mask.MaxSize >= size
}
