package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/tesquery/internal/api/tessie"
	"github.com/langchou/tesquery/internal/cache"
	"github.com/langchou/tesquery/internal/config"
	"github.com/langchou/tesquery/internal/models"
	"github.com/langchou/tesquery/internal/service"
)

type fakeClient struct {
	vehicles []tessie.Vehicle
	drives   []models.RawDriveSegment
}

func (f *fakeClient) ListVehicles(ctx context.Context) ([]tessie.Vehicle, error) {
	return f.vehicles, nil
}

func (f *fakeClient) GetDrives(ctx context.Context, vin string, from, to time.Time, limit int) ([]models.RawDriveSegment, error) {
	return f.drives, nil
}

func (f *fakeClient) GetState(ctx context.Context, vin string) (*tessie.VehicleState, error) {
	return &tessie.VehicleState{State: "online"}, nil
}

func (f *fakeClient) GetBatteryHealth(ctx context.Context, vin string) (*tessie.BatteryHealth, error) {
	return &tessie.BatteryHealth{}, nil
}

func newTestServer(client service.TelemetryClient) (*Server, *bytes.Buffer) {
	cfg := &config.Config{
		DefaultVIN:      "5YJ3TEST",
		NominalPackKWh:  75,
		CacheTTL:        time.Minute,
		CacheMaxEntries: 10,
		MaxResponseKB:   50,
	}
	dispatcher := service.NewDispatcher(cfg, zap.NewNop(), client, cache.New(cfg.CacheTTL, cfg.CacheMaxEntries), nil)
	srv := NewServer(dispatcher, zap.NewNop(), "test")

	out := &bytes.Buffer{}
	return srv, out
}

// runSession 把若干请求写入服务端并收集逐行响应
func runSession(t *testing.T, srv *Server, out *bytes.Buffer, requests ...string) []Message {
	t.Helper()

	srv.SetStreams(strings.NewReader(strings.Join(requests, "\n")+"\n"), out)
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var responses []Message
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			t.Fatalf("bad response line %q: %v", scanner.Text(), err)
		}
		responses = append(responses, msg)
	}
	return responses
}

func TestInitializeHandshake(t *testing.T) {
	srv, out := newTestServer(&fakeClient{})

	responses := runSession(t, srv, out,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
	)

	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1 (notification must not be answered)", len(responses))
	}

	result, ok := responses[0].Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result type = %T", responses[0].Result)
	}
	if result["protocolVersion"] != ProtocolVersion {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}
	info, _ := result["serverInfo"].(map[string]interface{})
	if info["name"] != "tesquery" {
		t.Errorf("serverInfo = %v", info)
	}
}

func TestToolsListExposesAllTools(t *testing.T) {
	srv, out := newTestServer(&fakeClient{})

	responses := runSession(t, srv, out,
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
	)

	result := responses[0].Result.(map[string]interface{})
	tools, ok := result["tools"].([]interface{})
	if !ok {
		t.Fatalf("tools type = %T", result["tools"])
	}
	if len(tools) != 7 {
		t.Errorf("tools = %d, want 7", len(tools))
	}

	names := make(map[string]bool)
	for _, raw := range tools {
		tool := raw.(map[string]interface{})
		names[tool["name"].(string)] = true
		if tool["inputSchema"] == nil {
			t.Errorf("tool %v missing inputSchema", tool["name"])
		}
	}
	for _, want := range []string{"query", "analyze_latest_drive", "get_vehicles"} {
		if !names[want] {
			t.Errorf("tool %q not exposed", want)
		}
	}
}

func TestToolCallGetVehicles(t *testing.T) {
	srv, out := newTestServer(&fakeClient{
		vehicles: []tessie.Vehicle{{VIN: "5YJ3TEST", DisplayName: "Rocket"}},
	})

	responses := runSession(t, srv, out,
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"get_vehicles","arguments":{}}}`,
	)

	result := responses[0].Result.(map[string]interface{})
	content := result["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)
	if !strings.Contains(text, "Rocket") {
		t.Errorf("tool result missing vehicle data: %s", text)
	}
	if result["isError"] != nil {
		t.Error("unexpected isError flag")
	}
}

func TestToolCallQueryLowConfidence(t *testing.T) {
	srv, out := newTestServer(&fakeClient{})

	responses := runSession(t, srv, out,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"query","arguments":{"question":"sing me a song"}}}`,
	)

	result := responses[0].Result.(map[string]interface{})
	content := result["content"].([]interface{})
	text := content[0].(map[string]interface{})["text"].(string)

	var parsed struct {
		Executed    bool     `json:"executed"`
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		t.Fatalf("tool text is not JSON: %v", err)
	}
	if parsed.Executed {
		t.Error("low-confidence query was executed")
	}
	if len(parsed.Suggestions) == 0 {
		t.Error("no suggestions for an unparseable query")
	}
}

func TestToolCallUnknownTool(t *testing.T) {
	srv, out := newTestServer(&fakeClient{})

	responses := runSession(t, srv, out,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"launch_rocket","arguments":{}}}`,
	)

	result := responses[0].Result.(map[string]interface{})
	if result["isError"] != true {
		t.Errorf("expected isError result, got %v", result)
	}
}

func TestMalformedLineIsRecoverable(t *testing.T) {
	srv, out := newTestServer(&fakeClient{})

	responses := runSession(t, srv, out,
		`this is not json`,
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
	)

	if len(responses) != 2 {
		t.Fatalf("responses = %d, want 2", len(responses))
	}
	if responses[0].Error == nil || responses[0].Error.Code != ParseError {
		t.Errorf("error = %+v, want parse error", responses[0].Error)
	}
	// 坏行之后的请求仍要被处理
	if responses[1].Result == nil {
		t.Errorf("ping after bad line not answered: %+v", responses[1])
	}
}

func TestOversizedLineStopsServer(t *testing.T) {
	srv, out := newTestServer(&fakeClient{})

	// 超过扫描器缓冲的一行会让 Scan 永久失败，服务端必须退出而不是空转
	srv.SetStreams(strings.NewReader(strings.Repeat("x", MaxMessageSize+1)+"\n"), out)
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("Run returned nil for an unrecoverable scanner error")
	}

	if got := bytes.Count(out.Bytes(), []byte("\n")); got != 0 {
		t.Errorf("responses written = %d, want 0", got)
	}
}

func TestMethodNotFound(t *testing.T) {
	srv, out := newTestServer(&fakeClient{})

	responses := runSession(t, srv, out,
		`{"jsonrpc":"2.0","id":4,"method":"resources/list"}`,
	)

	if responses[0].Error == nil || responses[0].Error.Code != MethodNotFound {
		t.Errorf("error = %+v, want method-not-found", responses[0].Error)
	}
}
