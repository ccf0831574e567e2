package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/parlorchat/parlor-server/internal/proto"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	name := flag.String("name", "smoke-tester", "display name to log in with")
	room := flag.String("room", "", "room id (empty joins the public pool)")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	mustSend := func(event string, data any) {
		payload, err := json.Marshal(data)
		if err != nil {
			log.Fatalf("marshal %s: %v", event, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: payload}); err != nil {
			log.Fatalf("send %s: %v", event, err)
		}
	}

	mustSend(proto.InboundLogin, proto.LoginData{Room: *room, Name: *name})
	mustSend(proto.InboundTalk, proto.TalkData{Text: *text})
	mustSend(proto.InboundCommand, proto.CommandData{List: []string{"color"}})

	for {
		var frame proto.Outbound
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			log.Printf("read: %v", err)
			return
		}
		raw, _ := json.Marshal(frame.Data)
		fmt.Printf("<- %s %s\n", frame.Event, raw)
		if frame.Event == "talk" {
			return
		}
	}
}
