// Package placement publishes finalized CRUSH maps to the code that places
// data with them.
//
// A map is built and finalized by a single writer. Publishing hands readers
// a private copy of it, so the writer may keep editing its own map while
// placement continues against the published version. Each publication of a
// changed map under the same name advances that name's epoch.
//
// Example:
//
//	pub := NewVersionedPublisher()
//	v, _ := pub.Publish("default", m) // m must be finalized
//	cur, _ := pub.Current("default")  // cur.Epoch == v.Epoch
package placement

import (
	"github.com/zzenonn/zcrush/internal/crush"
)

// Version is one published map.
type Version struct {
	Name        string
	Epoch       uint64
	Fingerprint crush.Fingerprint

	// Map is shared by every reader of this version and must not be
	// modified.
	Map *crush.Map
}

// Publisher makes finalized maps available to readers.
//
// Implementations must be safe for concurrent use: one writer publishing
// while any number of readers call Current.
type Publisher interface {
	// Publish makes a copy of m the current version under name. Maps that
	// are not finalized are refused.
	Publish(name string, m *crush.Map) (Version, error)

	// Current returns the version most recently published under name.
	Current(name string) (Version, error)

	// List returns the published names in first-publication order.
	List() []string
}
