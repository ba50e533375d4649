package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/audionode/internal/events"
)

// registerEventRoutes registers the audio event SSE endpoint.
func (s *Server) registerEventRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events/stream",
		Summary:     "Event Stream",
		Description: "Real-time audio events via Server-Sent Events: device arrivals, route changes, volume changes, and mix/capture anomalies.",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"device-added":     events.DeviceAddedEvent{},
		"device-removed":   events.DeviceRemovedEvent{},
		"route-changed":    events.RouteChangedEvent{},
		"volume-changed":   events.VolumeChangedEvent{},
		"mix-overrun":      events.MixOverrunEvent{},
		"capture-overflow": events.CaptureOverflowEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 100)
		forward := func(e any) {
			select {
			case eventCh <- e:
			default:
				// A slow consumer drops events rather than stalling the bus.
			}
		}

		unsubs := []func(){
			s.bus.Subscribe(func(e events.DeviceAddedEvent) { forward(e) }),
			s.bus.Subscribe(func(e events.DeviceRemovedEvent) { forward(e) }),
			s.bus.Subscribe(func(e events.RouteChangedEvent) { forward(e) }),
			s.bus.Subscribe(func(e events.VolumeChangedEvent) { forward(e) }),
			s.bus.Subscribe(func(e events.MixOverrunEvent) { forward(e) }),
			s.bus.Subscribe(func(e events.CaptureOverflowEvent) { forward(e) }),
		}
		defer func() {
			for _, u := range unsubs {
				u()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case e := <-eventCh:
				if err := send.Data(e); err != nil {
					return
				}
			}
		}
	})
}
