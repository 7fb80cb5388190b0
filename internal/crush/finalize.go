package crush

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	zerrors "github.com/zzenonn/zcrush/internal/errors"
)

// Finalize checks that the map is ready for the evaluator and records the
// derived values it needs. Every nested bucket item and every take step
// must resolve, every bucket algorithm must be allowed by the tunables, and
// the bucket hierarchy must be acyclic. Weights are left untouched.
//
// Any later change to the map clears the finalized state.
func (m *Map) Finalize() error {
	m.finalized = false

	var maxDevices int32
	for _, b := range m.buckets {
		if b == nil {
			continue
		}
		if !m.tunables.Allows(b.Alg()) {
			return zerrors.BucketError(b.id, fmt.Errorf("%s: %w", b.Alg(), zerrors.ErrAlgorithmNotAllowed))
		}
		for _, item := range b.Members() {
			if item.IsDevice() {
				if item.ID() >= maxDevices {
					maxDevices = item.ID() + 1
				}
				continue
			}
			if _, err := m.Bucket(item.ID()); err != nil {
				return zerrors.BucketError(b.id, fmt.Errorf("%s: %w", item, zerrors.ErrDanglingReference))
			}
		}
	}

	if err := m.checkAcyclic(); err != nil {
		return err
	}

	for ruleno, r := range m.rules {
		if r == nil {
			continue
		}
		for pos, step := range r.steps {
			if step.Op != OpTake {
				continue
			}
			if !m.resolves(step.Arg1, maxDevices) {
				return zerrors.RuleError(ruleno, fmt.Errorf("step %d takes %d: %w", pos, step.Arg1, zerrors.ErrDanglingReference))
			}
		}
	}

	fp, err := m.computeFingerprint()
	if err != nil {
		return fmt.Errorf("fingerprint map: %w", err)
	}

	m.maxDevices = maxDevices
	m.fingerprint = fp
	m.finalized = true

	log.WithFields(log.Fields{
		"buckets":     m.BucketCount(),
		"rules":       len(m.RuleIDs()),
		"max_devices": maxDevices,
		"fingerprint": fp.Short(),
	}).Debug("finalized map")
	return nil
}

// Finalized reports whether Finalize succeeded and nothing changed since.
func (m *Map) Finalized() bool {
	return m.finalized
}

// MaxDevices returns one more than the highest device id, as of the last
// Finalize.
func (m *Map) MaxDevices() int32 {
	return m.maxDevices
}

// Fingerprint returns the content digest computed by the last Finalize.
func (m *Map) Fingerprint() (Fingerprint, error) {
	if !m.finalized {
		return Fingerprint{}, zerrors.ErrNotFinalized
	}
	return m.fingerprint, nil
}

func (m *Map) resolves(item, maxDevices int32) bool {
	if ItemFromID(item).IsDevice() {
		return item < maxDevices
	}
	_, err := m.Bucket(item)
	return err == nil
}

// checkAcyclic walks the hierarchy from every bucket with a three-color
// depth-first search.
func (m *Map) checkAcyclic() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[int32]int, len(m.buckets))

	var visit func(b *Bucket) error
	visit = func(b *Bucket) error {
		color[b.id] = grey
		for _, item := range b.Members() {
			if !item.IsBucket() {
				continue
			}
			switch color[item.ID()] {
			case grey:
				return zerrors.BucketError(b.id, fmt.Errorf("%s: %w", item, zerrors.ErrCycle))
			case white:
				child, err := m.Bucket(item.ID())
				if err != nil {
					return err
				}
				if err := visit(child); err != nil {
					return err
				}
			}
		}
		color[b.id] = black
		return nil
	}

	for _, b := range m.buckets {
		if b != nil && color[b.id] == white {
			if err := visit(b); err != nil {
				return err
			}
		}
	}
	return nil
}
