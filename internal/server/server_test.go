package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"strings"
	"testing"

	"github.com/ironsheep/label-propagator/internal/labels"
)

func TestNew(t *testing.T) {
	s, _ := newTestServer(t, nil)
	if s.project == nil {
		t.Fatal("New() did not keep the project")
	}
	if s.inflight == nil {
		t.Fatal("New() did not initialize the in-flight table")
	}
}

func TestMCPRequest_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantID     interface{}
		wantMethod string
	}{
		{
			"string id",
			`{"jsonrpc":"2.0","id":"test-1","method":"tools/list"}`,
			"test-1",
			"tools/list",
		},
		{
			"number id",
			`{"jsonrpc":"2.0","id":42,"method":"ping"}`,
			float64(42), // JSON numbers decode as float64
			"ping",
		},
		{
			"null id",
			`{"jsonrpc":"2.0","id":null,"method":"initialize"}`,
			nil,
			"initialize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req MCPRequest
			if err := json.Unmarshal([]byte(tt.json), &req); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}

			if req.ID != tt.wantID {
				t.Errorf("ID: got %v (%T), want %v (%T)", req.ID, req.ID, tt.wantID, tt.wantID)
			}
			if req.Method != tt.wantMethod {
				t.Errorf("Method: got %s, want %s", req.Method, tt.wantMethod)
			}
		})
	}
}

func TestToolCallParams_ProgressToken(t *testing.T) {
	raw := `{"name":"propagate_image","arguments":{"sources":["a.png"]},"_meta":{"progressToken":"run-1"}}`

	var params ToolCallParams
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if params.Name != "propagate_image" {
		t.Errorf("Name: got %s", params.Name)
	}
	if params.Meta == nil || params.Meta.ProgressToken != "run-1" {
		t.Errorf("progress token not decoded: %+v", params.Meta)
	}
}

func TestHandleRequest_Initialize(t *testing.T) {
	s, _ := newTestServer(t, nil)
	resp := s.handleRequest(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Method: "initialize"})

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	if result["protocolVersion"] != "2024-11-05" {
		t.Errorf("protocolVersion: got %v", result["protocolVersion"])
	}

	serverInfo := result["serverInfo"].(map[string]interface{})
	if serverInfo["name"] != "label-propagator" {
		t.Errorf("serverInfo.name: got %v", serverInfo["name"])
	}
	if serverInfo["version"] != "test" {
		t.Errorf("serverInfo.version: got %v", serverInfo["version"])
	}
}

func TestHandleRequest_Simple(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tests := []struct {
		name     string
		method   string
		id       interface{}
		wantNil  bool
		wantCode int
	}{
		{"ping", "ping", "ping-1", false, 0},
		{"tools list", "tools/list", 2, false, 0},
		{"initialized notification", "notifications/initialized", nil, true, 0},
		{"cancelled notification", "notifications/cancelled", nil, true, 0},
		{"unknown method", "nonexistent/method", 3, false, -32601},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.handleRequest(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: tt.id, Method: tt.method})
			if tt.wantNil {
				if resp != nil {
					t.Errorf("%s should not be answered", tt.method)
				}
				return
			}
			if resp == nil {
				t.Fatal("handleRequest returned nil")
			}
			if resp.ID != tt.id {
				t.Errorf("ID: got %v, want %v", resp.ID, tt.id)
			}
			switch {
			case tt.wantCode == 0 && resp.Error != nil:
				t.Errorf("Unexpected error: %v", resp.Error)
			case tt.wantCode != 0 && (resp.Error == nil || resp.Error.Code != tt.wantCode):
				t.Errorf("Error: got %+v, want code %d", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestHandleCancelled(t *testing.T) {
	s, _ := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.inflight[requestKey(float64(9))] = cancel

	params, _ := json.Marshal(map[string]interface{}{"requestId": 9, "reason": "user abort"})
	s.handleCancelled(&MCPRequest{Method: "notifications/cancelled", Params: params})

	select {
	case <-ctx.Done():
	default:
		t.Error("in-flight call was not cancelled")
	}

	// Unknown or malformed ids are ignored
	s.handleCancelled(&MCPRequest{Params: json.RawMessage(`{"requestId":"nope"}`)})
	s.handleCancelled(&MCPRequest{Params: json.RawMessage(`{bad`)})
}

// readMessages splits Serve output into one decoded object per line.
func readMessages(t *testing.T, out *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var msgs []map[string]interface{}
	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var m map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("invalid output line %q: %v", scanner.Text(), err)
		}
		msgs = append(msgs, m)
	}
	return msgs
}

func TestServe(t *testing.T) {
	s, _ := newTestServer(t, nil)

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"suggestions_list","arguments":{}}}`,
	}, "\n")

	var out bytes.Buffer
	if err := s.Serve(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	msgs := readMessages(t, &out)
	if len(msgs) != 3 {
		t.Fatalf("responses: got %d, want 3", len(msgs))
	}
	seen := map[float64]bool{}
	for _, m := range msgs {
		if m["error"] != nil {
			t.Errorf("unexpected error response: %v", m)
		}
		seen[m["id"].(float64)] = true
	}
	for _, id := range []float64{1, 2, 3} {
		if !seen[id] {
			t.Errorf("no response for id %v", id)
		}
	}
}

func TestServe_ProgressNotifications(t *testing.T) {
	a := noiseImage(64, 64, 51)
	s, _ := newTestServer(t, map[string]image.Image{"a.png": a, "b.png": a, "c.png": a})
	setLabel(t, s, "a.png", labels.Rect{X: 8, Y: 8, W: 16, H: 16})

	in := `{"jsonrpc":"2.0","id":"run","method":"tools/call","params":{"name":"propagate_image","arguments":{"sources":["a.png"]},"_meta":{"progressToken":"tok"}}}`

	var out bytes.Buffer
	if err := s.Serve(context.Background(), strings.NewReader(in), &out); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	var progress []map[string]interface{}
	var answered bool
	for _, m := range readMessages(t, &out) {
		if m["method"] == "notifications/progress" {
			progress = append(progress, m["params"].(map[string]interface{}))
			continue
		}
		if m["id"] == "run" {
			answered = true
		}
	}
	if !answered {
		t.Fatal("tool call was not answered")
	}
	if len(progress) == 0 {
		t.Fatal("no progress notifications sent")
	}
	last := progress[len(progress)-1]
	if last["progressToken"] != "tok" {
		t.Errorf("progressToken: got %v", last["progressToken"])
	}
	if last["progress"] != last["total"] {
		t.Errorf("final progress: got %v of %v", last["progress"], last["total"])
	}
}
