package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smazurov/audionode/internal/events"
	"github.com/smazurov/audionode/internal/format"
	"github.com/smazurov/audionode/internal/graph"
	"github.com/smazurov/audionode/internal/route"
	"github.com/smazurov/audionode/internal/volume"
)

// throttleStub stands in for the routing graph's always-present output.
type throttleStub struct{}

func (throttleStub) ID() string                   { return "throttle" }
func (throttleStub) ObjectType() graph.ObjectType { return graph.TypeOutput }
func (throttleStub) Format() (format.Format, bool) {
	return format.Format{SampleFormat: format.Float32, Channels: 2, FramesPerSecond: 48000}, true
}
func (throttleStub) OnLinkAdded(*graph.Link)   {}
func (throttleStub) OnLinkRemoved(*graph.Link) {}

func newTestServer(username, password string) *Server {
	matrix := graph.NewLinkMatrix(nil)
	return NewServer(&Options{
		AuthUsername: username,
		AuthPassword: password,
		Routes:       route.NewGraph(matrix, nil, throttleStub{}),
		Volumes:      volume.NewManager(nil),
		Matrix:       matrix,
		Bus:          events.New(),
	})
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func basicAuth(req *http.Request, user, pass string) {
	req.Header.Set("Authorization",
		"Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(data)
}

func TestHealthNeedsNoAuth(t *testing.T) {
	s := newTestServer("admin", "secret")
	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s := newTestServer("admin", "secret")

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/routes", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("401 missing WWW-Authenticate header")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/routes", nil)
	basicAuth(req, "admin", "wrong")
	if rec := do(s, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/routes", nil)
	basicAuth(req, "admin", "secret")
	if rec := do(s, req); rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", rec.Code)
	}
}

func TestNoAuthConfiguredAllowsAll(t *testing.T) {
	s := newTestServer("", "")
	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/routes", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with auth disabled", rec.Code)
	}
}

func TestRouteStateReportsThrottle(t *testing.T) {
	s := newTestServer("", "")
	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/routes", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		RenderTarget   *RouteEndpoint  `json:"render_target"`
		LoopbackTarget *RouteEndpoint  `json:"loopback_target"`
		Outputs        []RouteEndpoint `json:"outputs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.RenderTarget == nil || body.RenderTarget.ID != "throttle" {
		t.Errorf("render target = %+v, want the throttle output", body.RenderTarget)
	}
	if body.LoopbackTarget != nil {
		t.Errorf("loopback target = %+v, want null with no real output", body.LoopbackTarget)
	}
	if len(body.Outputs) != 1 {
		t.Errorf("outputs = %v, want the single throttle entry", body.Outputs)
	}
}

func TestVolumeRoundTrip(t *testing.T) {
	s := newTestServer("", "")

	req := httptest.NewRequest(http.MethodPut, "/api/volume/render-media",
		jsonBody(t, map[string]any{"volume": 0.5}))
	req.Header.Set("Content-Type", "application/json")
	if rec := do(s, req); rec.Code != http.StatusOK {
		t.Fatalf("set volume status = %d: %s", rec.Code, rec.Body.String())
	}

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/volume", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list volumes status = %d", rec.Code)
	}
	var body struct {
		Usages []UsageVolumeState `json:"usages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	found := false
	for _, u := range body.Usages {
		if u.Usage == "render-media" {
			found = true
			if u.Volume != 0.5 {
				t.Errorf("render-media volume = %v, want 0.5", u.Volume)
			}
		}
	}
	if !found {
		t.Error("render-media missing from the usage list")
	}
}

func TestVolumeUnknownUsage(t *testing.T) {
	s := newTestServer("", "")
	req := httptest.NewRequest(http.MethodPut, "/api/volume/render-nonsense",
		jsonBody(t, map[string]any{"volume": 0.5}))
	req.Header.Set("Content-Type", "application/json")
	if rec := do(s, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown usage status = %d, want 400", rec.Code)
	}
}

func TestRouteEndpointNil(t *testing.T) {
	if routeEndpoint(nil) != nil {
		t.Fatal("routeEndpoint(nil) should be nil")
	}
	ep := routeEndpoint(throttleStub{})
	if ep.ID != "throttle" || ep.Type != "output" || ep.Format == "" {
		t.Fatalf("routeEndpoint = %+v", ep)
	}
}
