// Package volume maps stream usages, policy gain adjustments, and user
// volume settings onto the per-link gain applied at mix time.
package volume

// Usage declares what a stream is for. Routing eligibility and volume
// policy both key off it.
type Usage int

const (
	UsageRenderBackground Usage = iota
	UsageRenderMedia
	UsageRenderInterruption
	UsageRenderSystemAgent
	UsageRenderCommunication

	UsageCaptureBackground
	UsageCaptureForeground
	UsageCaptureSystemAgent
	UsageCaptureCommunication
	UsageCaptureLoopback
)

// IsRender reports whether the usage belongs to a playback stream.
func (u Usage) IsRender() bool {
	return u <= UsageRenderCommunication
}

// IsCapture reports whether the usage belongs to a recording stream,
// loopback included.
func (u Usage) IsCapture() bool {
	return u >= UsageCaptureBackground
}

// IsLoopback reports whether the usage captures a device's post-mix output.
func (u Usage) IsLoopback() bool {
	return u == UsageCaptureLoopback
}

func (u Usage) String() string {
	switch u {
	case UsageRenderBackground:
		return "render-background"
	case UsageRenderMedia:
		return "render-media"
	case UsageRenderInterruption:
		return "render-interruption"
	case UsageRenderSystemAgent:
		return "render-system-agent"
	case UsageRenderCommunication:
		return "render-communication"
	case UsageCaptureBackground:
		return "capture-background"
	case UsageCaptureForeground:
		return "capture-foreground"
	case UsageCaptureSystemAgent:
		return "capture-system-agent"
	case UsageCaptureCommunication:
		return "capture-communication"
	case UsageCaptureLoopback:
		return "capture-loopback"
	default:
		return "unknown"
	}
}

// ParseUsage maps a usage name back to its value. The second return is
// false for unknown names.
func ParseUsage(s string) (Usage, bool) {
	for _, u := range Usages() {
		if u.String() == s {
			return u, true
		}
	}
	return 0, false
}

// Usages lists every defined usage, for table initialization.
func Usages() []Usage {
	return []Usage{
		UsageRenderBackground, UsageRenderMedia, UsageRenderInterruption,
		UsageRenderSystemAgent, UsageRenderCommunication,
		UsageCaptureBackground, UsageCaptureForeground,
		UsageCaptureSystemAgent, UsageCaptureCommunication,
		UsageCaptureLoopback,
	}
}
