package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/miktos/realtime-viewer/internal/geom"
	"github.com/miktos/realtime-viewer/internal/scene"
)

func testConfig() Config {
	return Config{
		Host:      "127.0.0.1",
		HTTPPort:  18080,
		WSPort:    18081,
		FPSTarget: 120,
		// Keep the poll loop quiet; tests drive updates by hand.
		SyncInterval: time.Hour,
	}
}

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	s := New(cfg, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	st := s.ViewerState()
	u := fmt.Sprintf("ws://127.0.0.1:%d/ws", st.WSPort)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return m
}

// readUntil skips unrelated broadcasts until a message of the wanted type
// arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		m := readMessage(t, conn)
		if m["type"] == msgType {
			return m
		}
	}
	t.Fatalf("no %q message before deadline", msgType)
	return nil
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func twoObjectScene() *scene.RawScene {
	return &scene.RawScene{
		SceneName: "Test",
		Objects: []scene.RawObject{
			{Name: "Cube", Type: "MESH", Location: geom.Vec3{1, 2, 3}},
			{Name: "Lamp", Type: "LIGHT"},
		},
	}
}

func TestLifecycle(t *testing.T) {
	s := New(testConfig(), nil)
	if st := s.ViewerState(); st.State != StateStopped {
		t.Fatalf("fresh server state = %s", st.State)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st := s.ViewerState()
	if st.State != StateRunning {
		t.Errorf("state after start = %s", st.State)
	}
	if st.HTTPPort == 0 || st.WSPort == 0 || st.HTTPPort == st.WSPort {
		t.Errorf("bad port pair %d/%d", st.HTTPPort, st.WSPort)
	}

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}

	s.Stop()
	if st := s.ViewerState(); st.State != StateStopped {
		t.Errorf("state after stop = %s", st.State)
	}
	s.Stop() // idempotent

	// A stopped server can start again.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	s.Stop()
}

func TestFullStateOnConnect(t *testing.T) {
	s := startServer(t, testConfig())
	s.UpdateScene(twoObjectScene())

	conn := dial(t, s)
	m := readMessage(t, conn)
	if m["type"] != "scene_state" {
		t.Fatalf("first message type = %v, want scene_state", m["type"])
	}
	objs, ok := m["objects"].([]any)
	if !ok || len(objs) != 2 {
		t.Fatalf("scene_state objects = %v, want 2 entries", m["objects"])
	}
	if m["quality"] != "high" {
		t.Errorf("quality = %v, want high", m["quality"])
	}
	if _, ok := m["camera"].(map[string]any); !ok {
		t.Error("scene_state missing camera")
	}
}

func TestZeroClientsThenLateJoin(t *testing.T) {
	s := startServer(t, testConfig())

	// Update with nobody connected: the tick must cope and a later client
	// still sees the full scene.
	s.UpdateScene(twoObjectScene())
	time.Sleep(50 * time.Millisecond)

	conn := dial(t, s)
	m := readMessage(t, conn)
	if objs, ok := m["objects"].([]any); !ok || len(objs) != 2 {
		t.Fatalf("late joiner got %v objects, want 2", m["objects"])
	}
}

func TestOccupiedPreferredPorts(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPPort, cfg.WSPort = 18200, 18201

	lnHTTP, err := net.Listen("tcp", "127.0.0.1:18200")
	if err != nil {
		t.Skipf("cannot bind 18200: %v", err)
	}
	defer lnHTTP.Close()
	lnWS, err := net.Listen("tcp", "127.0.0.1:18201")
	if err != nil {
		t.Skipf("cannot bind 18201: %v", err)
	}
	defer lnWS.Close()

	s := startServer(t, cfg)
	st := s.ViewerState()
	if st.HTTPPort == 18200 || st.WSPort == 18201 {
		t.Fatalf("server took occupied ports %d/%d", st.HTTPPort, st.WSPort)
	}

	// The discovery endpoint must report the reassigned channel address.
	resp, err := http.Get("http://127.0.0.1:" + strconv.Itoa(st.HTTPPort) + "/config.json")
	if err != nil {
		t.Fatalf("config.json: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode config.json: %v", err)
	}
	if int(body["ws_port"].(float64)) != st.WSPort {
		t.Errorf("config.json ws_port = %v, want %d", body["ws_port"], st.WSPort)
	}

	// Clients can actually connect on the reassigned pair.
	conn := dial(t, s)
	if m := readMessage(t, conn); m["type"] != "scene_state" {
		t.Errorf("first message type = %v", m["type"])
	}
}

func TestFanOutSurvivesDeadClient(t *testing.T) {
	s := startServer(t, testConfig())

	dead := dial(t, s)
	readMessage(t, dead)
	alive := dial(t, s)
	readMessage(t, alive)

	dead.Close()

	s.UpdateScene(twoObjectScene())
	m := readUntil(t, alive, "scene_update")
	changes, ok := m["changes"].([]any)
	if !ok || len(changes) != 2 {
		t.Fatalf("scene_update changes = %v, want 2", m["changes"])
	}
}

func TestSingleChangeIsObjectUpdate(t *testing.T) {
	s := startServer(t, testConfig())
	s.UpdateScene(twoObjectScene())

	conn := dial(t, s)
	readMessage(t, conn)

	if _, err := s.DeleteObject("Lamp"); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	m := readUntil(t, conn, "object_update")
	if m["kind"] != "deleted" || m["name"] != "Lamp" {
		t.Errorf("object_update = kind %v name %v, want deleted Lamp", m["kind"], m["name"])
	}
}

func TestUnknownAndMalformedMessagesTolerated(t *testing.T) {
	s := startServer(t, testConfig())
	conn := dial(t, s)
	readMessage(t, conn)

	send(t, conn, map[string]any{"type": "warp_drive"})
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	// The connection must still answer a state request.
	send(t, conn, map[string]any{"type": "get_scene_state"})
	if m := readUntil(t, conn, "scene_state"); m["type"] != "scene_state" {
		t.Fatal("connection died after unknown message")
	}
}

func TestQualityRoundTrip(t *testing.T) {
	s := startServer(t, testConfig())
	conn := dial(t, s)
	readMessage(t, conn)

	send(t, conn, map[string]any{"type": "set_quality", "quality": "ultra"})
	m := readUntil(t, conn, "quality_changed")
	if m["quality"] != "ultra" {
		t.Errorf("quality_changed = %v, want ultra", m["quality"])
	}

	deadline := time.Now().Add(time.Second)
	for s.ViewerState().Quality != "ultra" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if q := s.ViewerState().Quality; q != "ultra" {
		t.Errorf("ViewerState quality = %q, want ultra", q)
	}

	send(t, conn, map[string]any{"type": "set_quality", "quality": "cinematic"})
	if m := readUntil(t, conn, "error"); m["message"] == "" {
		t.Error("expected error payload for unknown quality")
	}
}

func TestResetViewBroadcast(t *testing.T) {
	s := startServer(t, testConfig())
	conn := dial(t, s)
	readMessage(t, conn)

	send(t, conn, map[string]any{"type": "reset_view"})
	m := readUntil(t, conn, "camera_reset")
	if _, ok := m["viewports"].(map[string]any); !ok {
		t.Error("camera_reset missing viewports snapshot")
	}
}

func TestNavigateBroadcastsCamera(t *testing.T) {
	s := startServer(t, testConfig())
	conn := dial(t, s)
	readMessage(t, conn)

	send(t, conn, map[string]any{
		"type":  "navigate",
		"event": map[string]any{"event": "wheel", "wheel_delta": 2.0},
	})
	m := readUntil(t, conn, "camera_update")
	if m["viewport"] != "main" {
		t.Errorf("camera_update viewport = %v, want main", m["viewport"])
	}
	cam, ok := m["camera"].(map[string]any)
	if !ok {
		t.Fatal("camera_update missing camera")
	}
	if d := cam["distance"].(float64); d >= 12.0 {
		t.Errorf("zoom-in left distance at %v", d)
	}
}

func TestPlatformSceneAPI(t *testing.T) {
	s := startServer(t, testConfig())

	changes := s.AddObject(scene.RawObject{Name: "Cube"})
	if len(changes) != 1 || changes[0].Kind != scene.ChangeAdded {
		t.Fatalf("AddObject changes = %v", changes)
	}

	changes, err := s.ModifyObject(scene.RawObject{Name: "Cube", Location: geom.Vec3{5, 0, 0}})
	if err != nil {
		t.Fatalf("ModifyObject: %v", err)
	}
	if len(changes) != 1 || changes[0].Kind != scene.ChangeModified {
		t.Fatalf("ModifyObject changes = %v", changes)
	}

	if _, err := s.ModifyObject(scene.RawObject{Name: "Ghost"}); !errors.Is(err, ErrUnknownObject) {
		t.Errorf("ModifyObject(Ghost) = %v, want ErrUnknownObject", err)
	}
	if _, err := s.DeleteObject("Ghost"); !errors.Is(err, ErrUnknownObject) {
		t.Errorf("DeleteObject(Ghost) = %v, want ErrUnknownObject", err)
	}

	s.ClearScene()
	if n := s.ViewerState().Scene.Objects; n != 0 {
		t.Errorf("objects after clear = %d", n)
	}

	if _, err := s.TakeScreenshot(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("TakeScreenshot with no frame = %v, want ErrNoFrame", err)
	}
}
