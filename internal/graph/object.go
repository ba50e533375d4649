// Package graph maintains the live audio graph: typed endpoint objects and
// the directed, mixer-bearing links between them. Link storage is owned by
// the LinkMatrix rather than the endpoints, so the control domain can
// invalidate an object's links while a mix pass works from its own snapshot.
package graph

import (
	"github.com/smazurov/audionode/internal/format"
)

// ObjectType classifies a graph node.
type ObjectType int

const (
	// TypeRenderer is a client playback stream; it only sources links.
	TypeRenderer ObjectType = iota
	// TypeCapturer is a client recording stream; it only receives links.
	TypeCapturer
	// TypeOutput is an output device; it receives renderer links and can
	// source loopback links.
	TypeOutput
	// TypeInput is an input device; it sources links to capturers.
	TypeInput
)

func (t ObjectType) String() string {
	switch t {
	case TypeRenderer:
		return "renderer"
	case TypeCapturer:
		return "capturer"
	case TypeOutput:
		return "output"
	case TypeInput:
		return "input"
	default:
		return "unknown"
	}
}

// Object is a node in the audio graph.
type Object interface {
	// ID returns a stable unique identifier for diagnostics and routing.
	ID() string

	// ObjectType reports the node's role in the graph.
	ObjectType() ObjectType

	// Format returns the negotiated PCM format, if any.
	Format() (format.Format, bool)

	// OnLinkAdded runs synchronously on the destination object right
	// after a link to it is created.
	OnLinkAdded(l *Link)

	// OnLinkRemoved runs synchronously on both endpoints right after a
	// link is destroyed.
	OnLinkRemoved(l *Link)
}
