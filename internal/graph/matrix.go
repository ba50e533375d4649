package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/metrics"
	"github.com/smazurov/audionode/internal/mix"
)

var (
	// ErrLinkExists is returned when the ordered (source, dest) pair is
	// already linked.
	ErrLinkExists = errors.New("graph: link already exists")
	// ErrFormatNotSet is returned when a link requires negotiated formats
	// that are still missing.
	ErrFormatNotSet = errors.New("graph: format not negotiated")
)

// Link is a directed edge between two graph objects, carrying the per-link
// mix bookkeeping.
type Link struct {
	Source      Object
	Dest        Object
	Bookkeeping *mix.Bookkeeping
}

// MixerFactory builds a mixer for a source/destination format pair.
type MixerFactory func(src, dest format.Format) (mix.Mixer, error)

type objectLinks struct {
	sources map[*Link]struct{} // links where the object is the dest
	dests   map[*Link]struct{} // links where the object is the source
}

type pairKey struct {
	source Object
	dest   Object
}

// LinkMatrix is the authoritative edge store for the audio graph. All
// mutation happens on the control domain; mix-domain readers take snapshot
// copies so no lock is held across an actual mix call.
type LinkMatrix struct {
	mu       sync.Mutex
	links    map[pairKey]*Link
	byObject map[Object]*objectLinks
	mixers   MixerFactory
}

// NewLinkMatrix creates an empty matrix. A nil factory uses mix.NewMixer.
func NewLinkMatrix(mixers MixerFactory) *LinkMatrix {
	if mixers == nil {
		mixers = mix.NewMixer
	}
	return &LinkMatrix{
		links:    make(map[pairKey]*Link),
		byObject: make(map[Object]*objectLinks),
		mixers:   mixers,
	}
}

// LinkObjects creates the directed link source -> dest. At most one link may
// exist per ordered pair. When the destination is a device output, both
// formats must already be negotiated so a mixer can be selected; a failed
// mixer selection leaves both endpoints unlinked.
func (m *LinkMatrix) LinkObjects(source, dest Object) (*Link, error) {
	key := pairKey{source: source, dest: dest}

	m.mu.Lock()
	if _, ok := m.links[key]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrLinkExists, source.ID(), dest.ID())
	}
	m.mu.Unlock()

	bk := &mix.Bookkeeping{}
	if dest.ObjectType() == TypeOutput {
		destFmt, ok := dest.Format()
		if !ok {
			return nil, fmt.Errorf("%w: dest %s", ErrFormatNotSet, dest.ID())
		}
		srcFmt, ok := source.Format()
		if !ok {
			return nil, fmt.Errorf("%w: source %s", ErrFormatNotSet, source.ID())
		}
		mixer, err := m.mixers(srcFmt, destFmt)
		if err != nil {
			return nil, err
		}
		bk.Mixer = mixer
	} else if srcFmt, ok := source.Format(); ok {
		if destFmt, ok := dest.Format(); ok {
			if mixer, err := m.mixers(srcFmt, destFmt); err == nil {
				bk.Mixer = mixer
			}
		}
	}

	link := &Link{Source: source, Dest: dest, Bookkeeping: bk}

	m.mu.Lock()
	if _, ok := m.links[key]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s -> %s", ErrLinkExists, source.ID(), dest.ID())
	}
	m.links[key] = link
	m.forObject(source).dests[link] = struct{}{}
	m.forObject(dest).sources[link] = struct{}{}
	total := len(m.links)
	m.mu.Unlock()

	metrics.SetActiveLinks(total)
	dest.OnLinkAdded(link)
	return link, nil
}

// Unlink removes every link where obj is source or dest.
func (m *LinkMatrix) Unlink(obj Object) {
	m.mu.Lock()
	removed := m.removeLocked(func(l *Link) bool {
		return l.Source == obj || l.Dest == obj
	})
	total := len(m.links)
	m.mu.Unlock()

	metrics.SetActiveLinks(total)
	notifyRemoved(removed)
}

// UnlinkPair removes the single link source -> dest if it exists.
func (m *LinkMatrix) UnlinkPair(source, dest Object) {
	m.mu.Lock()
	removed := m.removeLocked(func(l *Link) bool {
		return l.Source == source && l.Dest == dest
	})
	total := len(m.links)
	m.mu.Unlock()

	metrics.SetActiveLinks(total)
	notifyRemoved(removed)
}

// ForEachSourceLink invokes fn for every link whose destination is obj. The
// link set is snapshotted under the lock and fn runs outside it, so fn may
// mutate the matrix; mutations are not visible to the ongoing enumeration.
func (m *LinkMatrix) ForEachSourceLink(obj Object, fn func(*Link)) {
	for _, l := range m.SourceLinks(obj) {
		fn(l)
	}
}

// ForEachDestLink invokes fn for every link whose source is obj, with the
// same snapshot semantics as ForEachSourceLink.
func (m *LinkMatrix) ForEachDestLink(obj Object, fn func(*Link)) {
	for _, l := range m.DestLinks(obj) {
		fn(l)
	}
}

// SourceLinks returns a snapshot of links flowing into obj.
func (m *LinkMatrix) SourceLinks(obj Object) []*Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	ol, ok := m.byObject[obj]
	if !ok {
		return nil
	}
	out := make([]*Link, 0, len(ol.sources))
	for l := range ol.sources {
		out = append(out, l)
	}
	return out
}

// DestLinks returns a snapshot of links flowing out of obj.
func (m *LinkMatrix) DestLinks(obj Object) []*Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	ol, ok := m.byObject[obj]
	if !ok {
		return nil
	}
	out := make([]*Link, 0, len(ol.dests))
	for l := range ol.dests {
		out = append(out, l)
	}
	return out
}

// SourceLinkCount returns the number of links flowing into obj.
func (m *LinkMatrix) SourceLinkCount(obj Object) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ol, ok := m.byObject[obj]; ok {
		return len(ol.sources)
	}
	return 0
}

// DestLinkCount returns the number of links flowing out of obj.
func (m *LinkMatrix) DestLinkCount(obj Object) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ol, ok := m.byObject[obj]; ok {
		return len(ol.dests)
	}
	return 0
}

// Linked reports whether the ordered pair is currently linked.
func (m *LinkMatrix) Linked(source, dest Object) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.links[pairKey{source: source, dest: dest}]
	return ok
}

// LinkCount returns the total number of links.
func (m *LinkMatrix) LinkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

func (m *LinkMatrix) forObject(obj Object) *objectLinks {
	ol, ok := m.byObject[obj]
	if !ok {
		ol = &objectLinks{
			sources: make(map[*Link]struct{}),
			dests:   make(map[*Link]struct{}),
		}
		m.byObject[obj] = ol
	}
	return ol
}

func (m *LinkMatrix) removeLocked(match func(*Link) bool) []*Link {
	var removed []*Link
	for key, l := range m.links {
		if !match(l) {
			continue
		}
		delete(m.links, key)
		if ol, ok := m.byObject[l.Source]; ok {
			delete(ol.dests, l)
		}
		if ol, ok := m.byObject[l.Dest]; ok {
			delete(ol.sources, l)
		}
		removed = append(removed, l)
	}
	return removed
}

func notifyRemoved(links []*Link) {
	for _, l := range links {
		l.Source.OnLinkRemoved(l)
		l.Dest.OnLinkRemoved(l)
	}
}
