// Package ws bridges WebSocket connections to core sessions.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	stdhttp "net/http"
	"strings"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor-server/internal/core"
	"github.com/parlorchat/parlor-server/internal/proto"
)

// Handler upgrades HTTP connections and runs one session per connection.
type Handler struct {
	reg      *core.Registry
	coord    *core.Coordinator
	msgLimit int
	log      *zerolog.Logger
}

// NewHandler builds a new WebSocket handler. msgLimit caps inbound frames
// per connection per minute; zero disables the cap.
func NewHandler(reg *core.Registry, coord *core.Coordinator, msgLimit int, logger *zerolog.Logger) stdhttp.Handler {
	return &Handler{reg: reg, coord: coord, msgLimit: msgLimit, log: logger}
}

func (h *Handler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The event sink outlives session swaps: a resumed session is attached
	// to this same channel, so the write loop never needs to know.
	out := make(chan core.Event, 64)
	closer := func() { cancel() }

	var cur atomic.Pointer[core.Session]
	cur.Store(core.NewSession(h.reg, h.log, remoteIP(r), out, closer))

	rc := h.coord.Config()
	hello := proto.Outbound{Event: proto.OutboundHello, Data: proto.HelloData{
		GUID: cur.Load().GUID,
		Reconnect: proto.ReconnectData{
			Enabled:     rc.Enabled,
			MaxAttempts: rc.MaxAttempts,
			TimeoutMS:   rc.Timeout.Milliseconds(),
		},
	}}
	if err := wsjson.Write(ctx, conn, hello); err != nil {
		h.log.Warn().Err(err).Msg("write hello")
		return
	}

	rl := newRateLimiter(h.msgLimit)
	rl.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, out, closer, &cur, rl)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, out)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	sess := cur.Load()
	sess.HandleDisconnect()
	h.coord.Suspend(sess)

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop parses inbound frames and routes them to the current session.
// Wrong-shape payloads are answered or dropped per-event; they never
// propagate an error that would kill the connection.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, out chan core.Event, closer func(), cur *atomic.Pointer[core.Session], rl *rateLimiter) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		sess := cur.Load()
		if !rl.allow() {
			h.log.Debug().Str("guid", sess.GUID).Str("event", inbound.Event).Msg("rate limited frame dropped")
			continue
		}
		switch inbound.Event {
		case proto.InboundLogin:
			var data proto.LoginData
			if err := json.Unmarshal(inbound.Data, &data); err != nil {
				h.log.Debug().Str("guid", sess.GUID).Msg("malformed login payload")
				continue
			}
			sess.HandleLogin(core.LoginRequest{Room: data.Room, Name: data.Name})

		case proto.InboundTalk:
			var data proto.TalkData
			if err := json.Unmarshal(inbound.Data, &data); err != nil {
				data.Text = core.TalkPlaceholder
			}
			sess.HandleTalk(data.Text)

		case proto.InboundCommand:
			var data proto.CommandData
			if err := json.Unmarshal(inbound.Data, &data); err != nil {
				h.log.Debug().Str("guid", sess.GUID).Msg("malformed command payload")
				continue
			}
			sess.HandleCommand(data.List)

		case proto.InboundResume:
			var data proto.ResumeData
			if err := json.Unmarshal(inbound.Data, &data); err != nil || data.GUID == "" {
				continue
			}
			if sess.State() != core.StateAwaitingLogin || sess.Quarantined() {
				continue
			}
			if resumed, _ := h.coord.Resume(data.GUID, out, closer); resumed != nil {
				sess.Abandon()
				cur.Store(resumed)
			}

		default:
			h.log.Debug().Str("event", inbound.Event).Msg("unknown inbound event")
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan core.Event) error {
	for {
		select {
		case ev := <-out:
			frame := proto.Outbound{Event: ev.Name, Data: ev.Data}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// remoteIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func remoteIP(r *stdhttp.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(ip)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
