package device

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/audionode/internal/exec"
	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/graph"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/timeline"
)

// trimPeriod is the cadence of the throttle's release task.
const trimPeriod = 10 * time.Millisecond

// TimedTrimSource is a linked source the throttle can pace. Renderers
// implement it.
type TimedTrimSource interface {
	TrimByTime(refTime int64)
}

// ThrottleOutput paces renderer packet release when no real output is
// routed. It never mixes; it only trims linked sources at the rate a real
// device would have consumed them, so packet completion timing stays the
// same whether or not hardware is present.
type ThrottleOutput struct {
	id     string
	log    *slog.Logger
	matrix *graph.LinkMatrix
	domain *exec.Domain
	clock  *timeline.Clock

	mu      sync.Mutex
	running bool
	timer   *exec.Timer
}

// throttleFormat is fixed; links to the throttle always succeed.
var throttleFormat = format.Format{
	SampleFormat:    format.Float32,
	Channels:        2,
	FramesPerSecond: 48000,
}

// NewThrottleOutput creates the always-present pacing output.
func NewThrottleOutput(matrix *graph.LinkMatrix, domain *exec.Domain) *ThrottleOutput {
	return &ThrottleOutput{
		id:     uuid.NewString(),
		log:    logging.GetLogger("device"),
		matrix: matrix,
		domain: domain,
		clock:  timeline.NewClock(nil, false),
	}
}

// ID implements graph.Object.
func (t *ThrottleOutput) ID() string { return t.id }

// Name returns the device name.
func (t *ThrottleOutput) Name() string { return "throttle" }

// ObjectType implements graph.Object.
func (t *ThrottleOutput) ObjectType() graph.ObjectType { return graph.TypeOutput }

// Format implements graph.Object.
func (t *ThrottleOutput) Format() (format.Format, bool) { return throttleFormat, true }

// OnLinkAdded implements graph.Object.
func (t *ThrottleOutput) OnLinkAdded(*graph.Link) {}

// OnLinkRemoved implements graph.Object.
func (t *ThrottleOutput) OnLinkRemoved(*graph.Link) {}

// PresentationDelay implements the renderer lead-time contract. The
// throttle adds no hardware pipeline.
func (t *ThrottleOutput) PresentationDelay() time.Duration { return 0 }

// StartMixJob never produces work; the throttle renders nothing.
func (t *ThrottleOutput) StartMixJob(int64) (*MixJob, bool) { return nil, false }

// FinishMixJob must never be reached.
func (t *ThrottleOutput) FinishMixJob(*MixJob) {
	panic("throttle output cannot finish a mix job")
}

// Start begins the trim loop on the mix domain.
func (t *ThrottleOutput) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()
	_ = t.domain.Post(t.trimPass)
}

// Shutdown stops the trim loop. Idempotent.
func (t *ThrottleOutput) Shutdown() {
	t.mu.Lock()
	running := t.running
	t.running = false
	t.mu.Unlock()
	if !running {
		return
	}
	_ = t.domain.Post(func() {
		if t.timer != nil {
			t.timer.Cancel()
			t.timer = nil
		}
	})
}

func (t *ThrottleOutput) trimPass() {
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()
	if !running {
		return
	}

	now := t.clock.Now()
	for _, l := range t.matrix.SourceLinks(t) {
		if src, ok := l.Source.(TimedTrimSource); ok {
			src.TrimByTime(now)
		}
	}

	if timer, err := t.domain.PostAfter(trimPeriod, t.trimPass); err == nil {
		t.timer = timer
	}
}
