package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/graph"
)

// RouteEndpoint summarizes one graph node for the route view.
type RouteEndpoint struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Format string `json:"format,omitempty"`
}

// RouteStateResponse reports the current routing targets and device lists.
type RouteStateResponse struct {
	Body struct {
		RenderTarget   *RouteEndpoint  `json:"render_target"`
		CaptureTarget  *RouteEndpoint  `json:"capture_target"`
		LoopbackTarget *RouteEndpoint  `json:"loopback_target"`
		Outputs        []RouteEndpoint `json:"outputs"`
		Inputs         []RouteEndpoint `json:"inputs"`
	}
}

func routeEndpoint(obj graph.Object) *RouteEndpoint {
	if obj == nil {
		return nil
	}
	ep := &RouteEndpoint{
		ID:   obj.ID(),
		Type: obj.ObjectType().String(),
	}
	if f, ok := obj.Format(); ok {
		ep.Format = f.String()
	}
	return ep
}

func (s *Server) registerRouteRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-routes",
		Method:      http.MethodGet,
		Path:        "/api/routes",
		Summary:     "Get Route State",
		Description: "Report the current render, capture and loopback targets",
		Tags:        []string{"routes"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*RouteStateResponse, error) {
		resp := &RouteStateResponse{}
		resp.Body.RenderTarget = routeEndpoint(s.routes.RenderTarget())
		resp.Body.CaptureTarget = routeEndpoint(s.routes.CaptureTarget())
		resp.Body.LoopbackTarget = routeEndpoint(s.routes.LoopbackTarget())

		outs := s.routes.Outputs()
		resp.Body.Outputs = make([]RouteEndpoint, 0, len(outs))
		for _, o := range outs {
			resp.Body.Outputs = append(resp.Body.Outputs, *routeEndpoint(o))
		}
		ins := s.routes.Inputs()
		resp.Body.Inputs = make([]RouteEndpoint, 0, len(ins))
		for _, i := range ins {
			resp.Body.Inputs = append(resp.Body.Inputs, *routeEndpoint(i))
		}
		return resp, nil
	})
}
