package placement

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/zzenonn/zcrush/internal/crush"
	zerrors "github.com/zzenonn/zcrush/internal/errors"
)

var _ Publisher = (*VersionedPublisher)(nil)

// VersionedPublisher keeps the current version of each published map
type VersionedPublisher struct {
	mu       sync.RWMutex
	versions map[string]Version
	names    []string
}

// NewVersionedPublisher creates an empty publisher
func NewVersionedPublisher() *VersionedPublisher {
	return &VersionedPublisher{
		versions: make(map[string]Version),
		names:    make([]string, 0),
	}
}

// Publish stores a clone of m under name. Republishing a map with the same
// fingerprint returns the current version without advancing the epoch.
func (p *VersionedPublisher) Publish(name string, m *crush.Map) (Version, error) {
	if name == "" {
		return Version{}, fmt.Errorf("publish: map name: %w", zerrors.ErrMissingRequiredFields)
	}
	if m == nil {
		return Version{}, fmt.Errorf("publish %s: %w", name, zerrors.ErrNotFinalized)
	}
	fp, err := m.Fingerprint()
	if err != nil {
		return Version{}, fmt.Errorf("publish %s: %w", name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cur, exists := p.versions[name]
	if exists && cur.Fingerprint == fp {
		log.Debugf("map %s unchanged at epoch %d", name, cur.Epoch)
		return cur, nil
	}

	v := Version{
		Name:        name,
		Epoch:       cur.Epoch + 1,
		Fingerprint: fp,
		Map:         m.Clone(),
	}
	p.versions[name] = v
	if !exists {
		p.names = append(p.names, name)
	}

	log.WithFields(log.Fields{
		"map":         name,
		"epoch":       v.Epoch,
		"fingerprint": fp.Short(),
	}).Info("published map")
	return v, nil
}

// Current returns the current version published under name
func (p *VersionedPublisher) Current(name string) (Version, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	v, exists := p.versions[name]
	if !exists {
		return Version{}, fmt.Errorf("map %s: %w", name, zerrors.ErrMapNotPublished)
	}
	return v, nil
}

// List returns all published map names
func (p *VersionedPublisher) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, len(p.names))
	copy(names, p.names)
	return names
}
