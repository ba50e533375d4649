// Package route owns routing policy: which output every renderer feeds,
// which device every capturer drains, recomputed as devices come and go.
package route

import (
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/graph"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/metrics"
	"github.com/smazurov/audionode/internal/volume"
)

// RoutingProfile controls whether and where an object is routed.
type RoutingProfile struct {
	Routable bool
	Usage    volume.Usage
}

// Renderer is what the graph needs from a registered renderer beyond the
// object contract.
type Renderer interface {
	graph.Object
	RecomputeMinLeadTime()
}

// Graph is the routing policy layer. Devices are kept most-recently-added
// first; the front of each list is the routing target. A throttle output
// sits permanently at the back of the outputs list so renderers always
// have somewhere to flow, and it is skipped for loopback selection.
type Graph struct {
	log      *slog.Logger
	bus      *events.Bus
	matrix   *graph.LinkMatrix
	throttle graph.Object

	mu        sync.Mutex
	outputs   []graph.Object
	inputs    []graph.Object
	noAuto    map[graph.Object]bool
	renderers map[graph.Object]RoutingProfile
	capturers map[graph.Object]RoutingProfile
	loopbacks map[graph.Object]RoutingProfile

	renderTarget   graph.Object
	loopbackTarget graph.Object
	captureTarget  graph.Object
}

// NewGraph creates a routing graph with the given always-present throttle
// output.
func NewGraph(matrix *graph.LinkMatrix, bus *events.Bus, throttle graph.Object) *Graph {
	return &Graph{
		log:          logging.GetLogger("route"),
		bus:          bus,
		matrix:       matrix,
		throttle:     throttle,
		outputs:      []graph.Object{throttle},
		noAuto:       make(map[graph.Object]bool),
		renderers:    make(map[graph.Object]RoutingProfile),
		capturers:    make(map[graph.Object]RoutingProfile),
		loopbacks:    make(map[graph.Object]RoutingProfile),
		renderTarget: throttle,
	}
}

// AddOutput inserts a new output at the front of the list and rewires
// whichever categories now have a different target.
func (g *Graph) AddOutput(dev graph.Object) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outputs = append([]graph.Object{dev}, g.outputs...)
	g.updateLocked()
}

// SetDeviceAutoRouting controls whether a device can be selected as a
// routing target. A device with auto routing disabled stays in the list
// but is skipped during target selection.
func (g *Graph) SetDeviceAutoRouting(dev graph.Object, enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if enabled {
		delete(g.noAuto, dev)
	} else {
		g.noAuto[dev] = true
	}
	g.updateLocked()
}

// RemoveOutput drops an output. Removing an unknown device logs a warning
// and no-ops.
func (g *Graph) RemoveOutput(dev graph.Object) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := indexOf(g.outputs, dev)
	if idx < 0 || dev == g.throttle {
		g.log.Warn("Remove of unregistered output ignored", "device", dev.ID())
		return
	}
	g.outputs = append(g.outputs[:idx], g.outputs[idx+1:]...)
	delete(g.noAuto, dev)
	g.matrix.Unlink(dev)
	g.updateLocked()
}

// AddInput inserts a new input at the front of the list.
func (g *Graph) AddInput(dev graph.Object) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inputs = append([]graph.Object{dev}, g.inputs...)
	g.updateLocked()
}

// RemoveInput drops an input. Unknown devices log a warning and no-op.
func (g *Graph) RemoveInput(dev graph.Object) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := indexOf(g.inputs, dev)
	if idx < 0 {
		g.log.Warn("Remove of unregistered input ignored", "device", dev.ID())
		return
	}
	g.inputs = append(g.inputs[:idx], g.inputs[idx+1:]...)
	delete(g.noAuto, dev)
	g.matrix.Unlink(dev)
	g.updateLocked()
}

// AddRenderer registers a renderer, unroutable until a profile is set.
func (g *Graph) AddRenderer(r Renderer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.renderers[r] = RoutingProfile{Usage: volume.UsageRenderMedia}
}

// RemoveRenderer unlinks and deregisters. Unknown renderers log a warning
// and no-op.
func (g *Graph) RemoveRenderer(r Renderer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.renderers[r]; !ok {
		g.log.Warn("Remove of unregistered renderer ignored", "renderer", r.ID())
		return
	}
	delete(g.renderers, r)
	g.matrix.Unlink(r)
}

// SetRendererRoutingProfile links or unlinks one renderer against the
// current render target. Setting the same routable profile twice is a
// no-op when the link already exists.
func (g *Graph) SetRendererRoutingProfile(r Renderer, p RoutingProfile) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.renderers[r]; !ok {
		g.log.Warn("Routing profile for unregistered renderer ignored", "renderer", r.ID())
		return
	}
	g.renderers[r] = p

	if !p.Routable || !p.Usage.IsRender() {
		g.matrix.Unlink(r)
		return
	}
	target := g.renderTarget
	if target == nil {
		g.log.Warn("No render target available", "renderer", r.ID())
		return
	}
	if g.matrix.Linked(r, target) {
		return
	}
	g.matrix.Unlink(r)
	if _, err := g.matrix.LinkObjects(r, target); err != nil {
		g.log.Warn("Failed to link renderer", "renderer", r.ID(), "device", target.ID(), "error", err)
		return
	}
	r.RecomputeMinLeadTime()
}

// AddCapturer registers a capturer, unroutable until a profile is set.
func (g *Graph) AddCapturer(c graph.Object) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.capturers[c] = RoutingProfile{Usage: volume.UsageCaptureForeground}
}

// RemoveCapturer unlinks and deregisters. Unknown capturers log a warning
// and no-op.
func (g *Graph) RemoveCapturer(c graph.Object) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.capturers[c]; !ok {
		g.log.Warn("Remove of unregistered capturer ignored", "capturer", c.ID())
		return
	}
	delete(g.capturers, c)
	g.matrix.Unlink(c)
}

// SetCapturerRoutingProfile links or unlinks one capturer against the
// current capture target.
func (g *Graph) SetCapturerRoutingProfile(c graph.Object, p RoutingProfile) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.capturers[c]; !ok {
		g.log.Warn("Routing profile for unregistered capturer ignored", "capturer", c.ID())
		return
	}
	g.capturers[c] = p
	g.applyCaptureProfileLocked(c, p, g.captureTarget, "capture")
}

// AddLoopbackCapturer registers a loopback capturer.
func (g *Graph) AddLoopbackCapturer(c graph.Object) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loopbacks[c] = RoutingProfile{Usage: volume.UsageCaptureLoopback}
}

// RemoveLoopbackCapturer unlinks and deregisters.
func (g *Graph) RemoveLoopbackCapturer(c graph.Object) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.loopbacks[c]; !ok {
		g.log.Warn("Remove of unregistered loopback capturer ignored", "capturer", c.ID())
		return
	}
	delete(g.loopbacks, c)
	g.matrix.Unlink(c)
}

// SetLoopbackCapturerRoutingProfile links or unlinks one loopback
// capturer against the current loopback target.
func (g *Graph) SetLoopbackCapturerRoutingProfile(c graph.Object, p RoutingProfile) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.loopbacks[c]; !ok {
		g.log.Warn("Routing profile for unregistered loopback capturer ignored", "capturer", c.ID())
		return
	}
	g.loopbacks[c] = p
	g.applyCaptureProfileLocked(c, p, g.loopbackTarget, "loopback")
}

// RenderTarget returns the device renderers currently route to.
func (g *Graph) RenderTarget() graph.Object {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.renderTarget
}

// CaptureTarget returns the device capturers currently route to.
func (g *Graph) CaptureTarget() graph.Object {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.captureTarget
}

// LoopbackTarget returns the output loopback capturers currently tap.
func (g *Graph) LoopbackTarget() graph.Object {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loopbackTarget
}

// Outputs returns the output list, most recently added first.
func (g *Graph) Outputs() []graph.Object {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]graph.Object, len(g.outputs))
	copy(out, g.outputs)
	return out
}

// Inputs returns the input list, most recently added first.
func (g *Graph) Inputs() []graph.Object {
	g.mu.Lock()
	defer g.mu.Unlock()
	in := make([]graph.Object, len(g.inputs))
	copy(in, g.inputs)
	return in
}

// applyCaptureProfileLocked is the shared half of the two capture-side
// profile setters; device is source, capturer is dest.
func (g *Graph) applyCaptureProfileLocked(c graph.Object, p RoutingProfile, target graph.Object, category string) {
	if !p.Routable || !p.Usage.IsCapture() {
		g.matrix.Unlink(c)
		return
	}
	if target == nil {
		g.log.Warn("No target available", "category", category, "capturer", c.ID())
		return
	}
	if g.matrix.Linked(target, c) {
		return
	}
	g.matrix.Unlink(c)
	if _, err := g.matrix.LinkObjects(target, c); err != nil {
		g.log.Warn("Failed to link capturer", "capturer", c.ID(), "device", target.ID(), "error", err)
	}
}

// updateLocked recomputes the three routing targets and rewires exactly
// the categories whose target changed. Categories are independent: a new
// output never touches capturer links.
func (g *Graph) updateLocked() {
	var render, loopback, capture graph.Object
	for _, dev := range g.outputs {
		if g.noAuto[dev] {
			continue
		}
		if render == nil {
			render = dev
		}
		if loopback == nil && dev != g.throttle {
			loopback = dev
		}
	}
	for _, dev := range g.inputs {
		if !g.noAuto[dev] {
			capture = dev
			break
		}
	}

	if render != g.renderTarget {
		g.renderTarget = render
		g.relinkRenderersLocked()
		g.publishRouteChange("render", render)
	}
	if loopback != g.loopbackTarget {
		g.loopbackTarget = loopback
		g.relinkCaptureLocked(g.loopbacks, loopback)
		g.publishRouteChange("loopback", loopback)
	}
	if capture != g.captureTarget {
		g.captureTarget = capture
		g.relinkCaptureLocked(g.capturers, capture)
		g.publishRouteChange("capture", capture)
	}

	metrics.SetDeviceCount("output", len(g.outputs)-1)
	metrics.SetDeviceCount("input", len(g.inputs))
}

func (g *Graph) relinkRenderersLocked() {
	for r, p := range g.renderers {
		if !p.Routable || !p.Usage.IsRender() {
			continue
		}
		g.matrix.Unlink(r)
		if g.renderTarget == nil {
			continue
		}
		if _, err := g.matrix.LinkObjects(r, g.renderTarget); err != nil {
			g.log.Warn("Failed to relink renderer", "renderer", r.ID(), "device", g.renderTarget.ID(), "error", err)
			continue
		}
		if rr, ok := r.(Renderer); ok {
			rr.RecomputeMinLeadTime()
		}
	}
}

func (g *Graph) relinkCaptureLocked(set map[graph.Object]RoutingProfile, target graph.Object) {
	for c, p := range set {
		if !p.Routable || !p.Usage.IsCapture() {
			continue
		}
		g.matrix.Unlink(c)
		if target == nil {
			continue
		}
		if _, err := g.matrix.LinkObjects(target, c); err != nil {
			g.log.Warn("Failed to relink capturer", "capturer", c.ID(), "device", target.ID(), "error", err)
		}
	}
}

func (g *Graph) publishRouteChange(category string, target graph.Object) {
	id := ""
	if target != nil {
		id = target.ID()
	}
	g.log.Info("Routing target changed", "category", category, "device", id)
	if g.bus != nil {
		g.bus.Publish(events.RouteChangedEvent{
			Category:  category,
			DeviceID:  id,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func indexOf(list []graph.Object, obj graph.Object) int {
	for i, o := range list {
		if o == obj {
			return i
		}
	}
	return -1
}
