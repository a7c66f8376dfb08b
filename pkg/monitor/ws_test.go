package monitor

import (
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/teslashibe/go-fatigue/pkg/fatigue"
	"github.com/teslashibe/go-fatigue/pkg/protocol"
)

// startWSServer serves the hub's WebSocket routes on a free local port
func startWSServer(t *testing.T, h *Hub) string {
	t.Helper()
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	h.RegisterRoutes(app)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { _ = app.Shutdown() })

	return "ws://" + ln.Addr().String()
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatalf("parse %s: %v", data, err)
	}
	return msg
}

func send(t *testing.T, ws *websocket.Conn, msg *protocol.Message, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	data, err := msg.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWS_SessionAndResults(t *testing.T) {
	h := newTestHub(t, Options{})
	ws := dial(t, startWSServer(t, h)+"/ws/subject/driver-1")

	hello := readMessage(t, ws)
	if hello.Type != protocol.TypeSession {
		t.Fatalf("first message type = %s, want session", hello.Type)
	}
	sess, err := hello.GetSessionData()
	if err != nil || sess.SubjectID != "driver-1" || sess.SessionID == "" {
		t.Fatalf("session = %+v, err %v", sess, err)
	}

	msg, err := protocol.NewMeasurementMessage(twoIndicators(), 42)
	send(t, ws, msg, err)

	reply := readMessage(t, ws)
	if reply.Type != protocol.TypeResult {
		t.Fatalf("reply type = %s, want result", reply.Type)
	}
	res, err := reply.GetResultData()
	if err != nil {
		t.Fatal(err)
	}
	if res.Level != fatigue.ModerateFatigue || res.FrameID != 42 || res.Frame != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestWS_BinaryMeasurement(t *testing.T) {
	h := newTestHub(t, Options{})
	ws := dial(t, startWSServer(t, h)+"/ws/subject/driver-1")
	readMessage(t, ws)

	data, err := protocol.EncodeMeasurement(protocol.FromMeasurement(neutral(), 3))
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatal(err)
	}

	res, err := readMessage(t, ws).GetResultData()
	if err != nil {
		t.Fatal(err)
	}
	if res.Level != fatigue.Alert || res.FrameID != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestWS_ErrorsKeepConnectionOpen(t *testing.T) {
	h := newTestHub(t, Options{})
	ws := dial(t, startWSServer(t, h)+"/ws/subject/driver-1")
	readMessage(t, ws)

	ws.WriteMessage(websocket.TextMessage, []byte("{not json"))
	if e, _ := readMessage(t, ws).GetErrorData(); e == nil || e.Code != protocol.ErrCodeBadMessage {
		t.Errorf("garbage: error = %+v", e)
	}

	msg, err := protocol.NewMessage(protocol.TypeResult, nil)
	send(t, ws, msg, err)
	if e, _ := readMessage(t, ws).GetErrorData(); e == nil || e.Code != protocol.ErrCodeUnsupported {
		t.Errorf("unsupported: error = %+v", e)
	}

	frame, err := protocol.NewFrameMessage(2, 2, []byte("jpeg"), 0.5, 0.1, 1)
	send(t, ws, frame, err)
	if e, _ := readMessage(t, ws).GetErrorData(); e == nil || e.Code != protocol.ErrCodeUnsupported {
		t.Errorf("frame without estimator: error = %+v", e)
	}

	ping, err := protocol.NewPingMessage("p1", 1000)
	send(t, ws, ping, err)
	pong, err := readMessage(t, ws).GetPongData()
	if err != nil || pong.ID != "p1" || pong.PingTS != 1000 {
		t.Errorf("pong = %+v, err %v", pong, err)
	}

	if got := h.Stats().Rejected; got != 3 {
		t.Errorf("Rejected = %d, want 3", got)
	}
}

func TestWS_Reset(t *testing.T) {
	h := newTestHub(t, Options{})
	ws := dial(t, startWSServer(t, h)+"/ws/subject/driver-1")
	readMessage(t, ws)

	m, err := protocol.NewMeasurementMessage(neutral(), 0)
	send(t, ws, m, err)
	readMessage(t, ws)

	reset, err := protocol.NewMessage(protocol.TypeReset, nil)
	send(t, ws, reset, err)
	if reply := readMessage(t, ws); reply.Type != protocol.TypeSession {
		t.Errorf("reset reply = %s, want session", reply.Type)
	}

	info, err := h.Session("driver-1")
	if err != nil || info.Frames != 0 {
		t.Errorf("after reset = %+v, err %v", info, err)
	}
}

func TestWS_GeneratedSubjectAndDisconnect(t *testing.T) {
	h := newTestHub(t, Options{})
	url := startWSServer(t, h)

	ws := dial(t, url+"/ws/subject")
	sess, err := readMessage(t, ws).GetSessionData()
	if err != nil || sess.SubjectID == "" {
		t.Fatalf("session = %+v, err %v", sess, err)
	}

	second := dial(t, url+"/ws/subject/"+sess.SubjectID)
	readMessage(t, second)
	waitFor(t, func() bool {
		info, err := h.Session(sess.SubjectID)
		return err == nil && info.Connections == 2
	})

	ws.Close()
	time.Sleep(50 * time.Millisecond)
	if h.SessionCount() != 1 {
		t.Errorf("session closed while a connection remains")
	}

	second.Close()
	waitFor(t, func() bool { return h.SessionCount() == 0 })
}
