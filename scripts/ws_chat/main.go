package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/parlorchat/parlor-server/internal/core"
	"github.com/parlorchat/parlor-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	name := flag.String("name", "cli-user", "display name")
	room := flag.String("room", "", "room id (empty joins the public pool)")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(event string, data any) {
		payload, err := json.Marshal(data)
		if err != nil {
			log.Printf("marshal %s: %v", event, err)
			return
		}
		if writeErr := wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: payload}); writeErr != nil {
			cancel()
			log.Printf("send: %v", writeErr)
		}
	}

	send(proto.InboundLogin, proto.LoginData{Room: *room, Name: *name})

	fmt.Printf("Connected to %s as %s\n", *addr, *name)
	fmt.Println("Type messages and press Enter to send. Lines starting with / run commands. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, send)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		raw, err := json.Marshal(outbound.Data)
		if err != nil {
			log.Printf("marshal outbound data: %v", err)
			continue
		}

		switch outbound.Event {
		case core.EventTalk:
			var evt core.TalkPayload
			if err := json.Unmarshal(raw, &evt); err != nil {
				log.Printf("unmarshal talk: %v", err)
				continue
			}
			fmt.Printf("%s: %s\n", evt.GUID, evt.Text)
		case core.EventUpdate:
			var evt core.UpdatePayload
			if err := json.Unmarshal(raw, &evt); err != nil {
				log.Printf("unmarshal update: %v", err)
				continue
			}
			fmt.Printf("* %s is now %s (%s)\n", evt.GUID, evt.UserPublic.Name, evt.UserPublic.Color)
		case core.EventLeave:
			var evt core.LeavePayload
			if err := json.Unmarshal(raw, &evt); err != nil {
				log.Printf("unmarshal leave: %v", err)
				continue
			}
			fmt.Printf("* %s left\n", evt.GUID)
		case core.EventAlert:
			var evt core.AlertPayload
			if err := json.Unmarshal(raw, &evt); err != nil {
				log.Printf("unmarshal alert: %v", err)
				continue
			}
			fmt.Printf("! %s\n", evt.Text)
		default:
			fmt.Printf("event=%s data=%s\n", outbound.Event, raw)
		}
	}
}

func writeLoop(ctx context.Context, _ *websocket.Conn, send func(event string, data any)) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			if rest, isCmd := strings.CutPrefix(text, "/"); isCmd {
				send(proto.InboundCommand, proto.CommandData{List: strings.Fields(rest)})
				continue
			}
			send(proto.InboundTalk, proto.TalkData{Text: text})
		}
	}
}
