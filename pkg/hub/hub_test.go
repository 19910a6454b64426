package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	fws "github.com/gofiber/websocket/v2"
	"github.com/gorilla/websocket"
)

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()
	h := New("test", WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", fws.New(h.Serve))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go app.Listener(ln)

	t.Cleanup(func() {
		cancel()
		app.Shutdown()
	})
	return h, "ws://" + ln.Addr().String() + "/ws"
}

func waitCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("ClientCount = %d, want %d", h.ClientCount(), want)
}

func readFrame(t *testing.T, ws *websocket.Conn) Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestNew(t *testing.T) {
	h := New("idle")
	if h.ClientCount() != 0 {
		t.Error("ClientCount should be 0 initially")
	}
	if h.IsRunning() {
		t.Error("hub should not be running before Run")
	}
}

func TestBroadcast(t *testing.T) {
	h, url := newTestHub(t)

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer ws.Close()
	waitCount(t, h, 1)

	if err := h.BroadcastJSON("snapshot", map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}

	msg := readFrame(t, ws)
	if msg.Event != "snapshot" || string(msg.Data) != `{"n":1}` {
		t.Errorf("frame = %s %s", msg.Event, msg.Data)
	}
}

func TestReplayLatest(t *testing.T) {
	h, url := newTestHub(t)

	h.BroadcastJSON("snapshot", map[string]int{"n": 1})
	h.BroadcastJSON("snapshot", map[string]int{"n": 2})
	time.Sleep(50 * time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer ws.Close()

	msg := readFrame(t, ws)
	if string(msg.Data) != `{"n":2}` {
		t.Errorf("replayed frame = %s, want latest", msg.Data)
	}
}

func TestDisconnect(t *testing.T) {
	h, url := newTestHub(t)

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	waitCount(t, h, 1)

	ws.Close()
	waitCount(t, h, 0)
}

func TestNewMessageError(t *testing.T) {
	if _, err := NewMessage("bad", make(chan int)); err == nil {
		t.Error("NewMessage should fail for unencodable data")
	}
}
