// Package api exposes the admin HTTP surface: device and route
// inspection, volume control, and diagnostics.
package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/audionode/internal/device"
	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/graph"
	"github.com/smazurov/audionode/internal/logging"
	"github.com/smazurov/audionode/internal/route"
	"github.com/smazurov/audionode/internal/version"
	"github.com/smazurov/audionode/internal/volume"
)

// Options configures the API server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Manager           *device.Manager
	Routes            *route.Graph
	Volumes           *volume.Manager
	Matrix            *graph.LinkMatrix
	Bus               *events.Bus
	PrometheusHandler http.Handler
}

// Server is the Huma v2 admin API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	manager    *device.Manager
	routes     *route.Graph
	volumes    *volume.Manager
	matrix     *graph.LinkMatrix
	bus        *events.Bus
	logger     *slog.Logger
}

// NewServer creates the admin API server using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	config := huma.DefaultConfig("AudioNode API", "1.0.0")
	config.Info.Description = "Audio routing and mixing admin API"
	// Empty servers list keeps OpenAPI paths relative.
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:     api,
		mux:     mux,
		manager: opts.Manager,
		routes:  opts.Routes,
		volumes: opts.Volumes,
		matrix:  opts.Matrix,
		bus:     opts.Bus,
		logger:  logging.GetLogger("api"),
	}

	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Metrics stays outside huma so prometheus serves its own wire format.
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// GetAPI returns the Huma API instance, used by tests.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves the API on the given address.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting AudioNode API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down immediately.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		authHeader := ctx.Header("Authorization")
		const prefix = "Basic "
		if !strings.HasPrefix(authHeader, prefix) {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="AudioNode API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid authentication type")
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
		if err != nil {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="AudioNode API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials format", err)
			return
		}
		parts := strings.SplitN(string(decoded), ":", 2)
		if len(parts) != 2 || parts[0] != username || parts[1] != password {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="AudioNode API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		next(ctx)
	}
}

func withAuth() []map[string][]string {
	return []map[string][]string{{"basicAuth": {}}}
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Body struct {
		Status  string       `json:"status" example:"ok"`
		Version version.Info `json:"version"`
	}
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*HealthResponse, error) {
		resp := &HealthResponse{}
		resp.Body.Status = "ok"
		resp.Body.Version = version.Get()
		return resp, nil
	})

	s.registerDeviceRoutes()
	s.registerRouteRoutes()
	s.registerVolumeRoutes()
	s.registerDiagnosticsRoutes()
	s.registerEventRoutes()
}
