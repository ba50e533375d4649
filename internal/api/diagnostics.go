package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/audionode/internal/logging"
)

// DiagnosticsResponse is a point-in-time snapshot of the audio core.
type DiagnosticsResponse struct {
	Body struct {
		LinkCount   int             `json:"link_count"`
		OutputCount int             `json:"output_count"`
		InputCount  int             `json:"input_count"`
		Logs        []logging.Entry `json:"logs"`
	}
}

func (s *Server) registerDiagnosticsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-diagnostics",
		Method:      http.MethodGet,
		Path:        "/api/diagnostics",
		Summary:     "Get Diagnostics",
		Description: "Graph counters plus recent buffered log entries",
		Tags:        []string{"diagnostics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*DiagnosticsResponse, error) {
		resp := &DiagnosticsResponse{}
		if s.matrix != nil {
			resp.Body.LinkCount = s.matrix.LinkCount()
		}
		resp.Body.OutputCount = len(s.routes.Outputs())
		resp.Body.InputCount = len(s.routes.Inputs())
		if ring := logging.History(); ring != nil {
			resp.Body.Logs = ring.Snapshot()
		}
		return resp, nil
	})
}
