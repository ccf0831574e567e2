package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor-server/internal/ban"
	"github.com/parlorchat/parlor-server/internal/config"
	"github.com/parlorchat/parlor-server/internal/core"
	"github.com/parlorchat/parlor-server/internal/proto"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zerolog.Nop()
	cfg := config.Default()
	cfg.BanDBPath = ""

	bans, err := ban.NewStore(&logger, nil, nil)
	if err != nil {
		t.Fatalf("ban store: %v", err)
	}
	reg := core.NewRegistry(cfg, bans, &logger)
	bans.SetKicker(reg)
	coord := core.NewCoordinator(cfg.Reconnect, reg, &logger, nil)

	server := NewServer(reg, coord, cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

type outboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// readUntil discards frames until one with the wanted event arrives.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, event string) outboundFrame {
	t.Helper()
	for {
		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read waiting for %q: %v", event, err)
		}
		if frame.Event == event {
			return frame
		}
	}
}

func dial(ctx context.Context, t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendLogin(ctx context.Context, t *testing.T, conn *websocket.Conn, room, name string) {
	t.Helper()
	payload, _ := json.Marshal(proto.LoginData{Room: room, Name: name})
	if err := wsjson.Write(ctx, conn, proto.Inbound{Event: proto.InboundLogin, Data: payload}); err != nil {
		t.Fatalf("send login: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestHelloFrameCarriesResumeToken(t *testing.T) {
	ts := startTestServer(t)

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	conn := dial(ctx, t, ts)
	frame := readUntil(ctx, t, conn, proto.OutboundHello)

	var hello proto.HelloData
	if err := json.Unmarshal(frame.Data, &hello); err != nil {
		t.Fatalf("unmarshal hello: %v", err)
	}
	if hello.GUID == "" {
		t.Fatal("hello frame missing guid")
	}
	if !hello.Reconnect.Enabled || hello.Reconnect.MaxAttempts == 0 {
		t.Fatalf("unexpected reconnect block: %+v", hello.Reconnect)
	}
}

func TestLoginAndTalkBetweenConnections(t *testing.T) {
	ts := startTestServer(t)

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	connA := dial(ctx, t, ts)
	connB := dial(ctx, t, ts)

	helloA := readUntil(ctx, t, connA, proto.OutboundHello)
	readUntil(ctx, t, connB, proto.OutboundHello)

	var a proto.HelloData
	if err := json.Unmarshal(helloA.Data, &a); err != nil {
		t.Fatalf("unmarshal hello: %v", err)
	}

	sendLogin(ctx, t, connA, "den", "alice")
	readUntil(ctx, t, connA, "room")
	sendLogin(ctx, t, connB, "den", "bob")
	readUntil(ctx, t, connB, "room")

	payload, _ := json.Marshal(proto.TalkData{Text: "hi there"})
	if err := wsjson.Write(ctx, connA, proto.Inbound{Event: proto.InboundTalk, Data: payload}); err != nil {
		t.Fatalf("send talk: %v", err)
	}

	frame := readUntil(ctx, t, connB, "talk")
	var talk struct {
		GUID string `json:"guid"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(frame.Data, &talk); err != nil {
		t.Fatalf("unmarshal talk: %v", err)
	}
	if talk.GUID != a.GUID || talk.Text != "hi there" {
		t.Fatalf("unexpected talk payload: %+v", talk)
	}
}

func TestMalformedTalkGetsPlaceholder(t *testing.T) {
	ts := startTestServer(t)

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	conn := dial(ctx, t, ts)
	readUntil(ctx, t, conn, proto.OutboundHello)
	sendLogin(ctx, t, conn, "den", "alice")
	readUntil(ctx, t, conn, "room")

	// Wrong shape for talk data: text should be a string.
	raw := json.RawMessage(`{"text": 42}`)
	if err := wsjson.Write(ctx, conn, proto.Inbound{Event: proto.InboundTalk, Data: raw}); err != nil {
		t.Fatalf("send talk: %v", err)
	}

	frame := readUntil(ctx, t, conn, "talk")
	var talk struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(frame.Data, &talk); err != nil {
		t.Fatalf("unmarshal talk: %v", err)
	}
	// The placeholder passes through the sender's sanitize filter like any
	// other line, so compare against its escaped form.
	if want := core.Sanitize(core.TalkPlaceholder); talk.Text != want {
		t.Fatalf("talk text = %q, want %q", talk.Text, want)
	}
}

func TestResumeReusesSessionGUID(t *testing.T) {
	ts := startTestServer(t)

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	// connB keeps the room alive while connA drops.
	connB := dial(ctx, t, ts)
	readUntil(ctx, t, connB, proto.OutboundHello)
	sendLogin(ctx, t, connB, "den", "bob")
	readUntil(ctx, t, connB, "room")

	connA := dial(ctx, t, ts)
	helloA := readUntil(ctx, t, connA, proto.OutboundHello)
	var a proto.HelloData
	if err := json.Unmarshal(helloA.Data, &a); err != nil {
		t.Fatalf("unmarshal hello: %v", err)
	}
	sendLogin(ctx, t, connA, "den", "alice")
	readUntil(ctx, t, connA, "room")

	connA.Close(websocket.StatusGoingAway, "dropped")
	readUntil(ctx, t, connB, "leave")

	connA2 := dial(ctx, t, ts)
	readUntil(ctx, t, connA2, proto.OutboundHello)

	payload, _ := json.Marshal(proto.ResumeData{GUID: a.GUID})
	if err := wsjson.Write(ctx, connA2, proto.Inbound{Event: proto.InboundResume, Data: payload}); err != nil {
		t.Fatalf("send resume: %v", err)
	}

	frame := readUntil(ctx, t, connA2, "room")
	var room struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(frame.Data, &room); err != nil {
		t.Fatalf("unmarshal room: %v", err)
	}
	if room.Room != "den" {
		t.Fatalf("resumed into wrong room: %q", room.Room)
	}
	// bob sees alice return under her original guid.
	update := readUntil(ctx, t, connB, "update")
	var up struct {
		GUID string `json:"guid"`
	}
	if err := json.Unmarshal(update.Data, &up); err != nil {
		t.Fatalf("unmarshal update: %v", err)
	}
	if up.GUID != a.GUID {
		t.Fatalf("rejoin guid = %q, want %q", up.GUID, a.GUID)
	}
}
