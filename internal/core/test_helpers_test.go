package core

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor-server/internal/ban"
	"github.com/parlorchat/parlor-server/internal/config"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// newTestRegistry builds a registry over an in-memory ban store. mutate may
// adjust the default config before construction.
func newTestRegistry(t *testing.T, mutate func(*config.Config)) *Registry {
	t.Helper()

	cfg := config.Default()
	cfg.BanDBPath = ""
	if mutate != nil {
		mutate(&cfg)
	}

	bans, err := ban.NewStore(testLogger(), nil, nil)
	if err != nil {
		t.Fatalf("ban store: %v", err)
	}
	reg := NewRegistry(cfg, bans, testLogger())
	bans.SetKicker(reg)
	return reg
}

// connect creates a session the way the transport would, with a buffered
// sink standing in for the write loop.
func connect(t *testing.T, reg *Registry, ip string) (*Session, chan Event) {
	t.Helper()
	sink := make(chan Event, 64)
	s := NewSession(reg, testLogger(), ip, sink, nil)
	return s, sink
}

// mustLogin logs a session in and fails the test on any rejection.
func mustLogin(t *testing.T, s *Session, sink chan Event, room, name string) *Room {
	t.Helper()
	s.HandleLogin(LoginRequest{Room: room, Name: name})
	if s.State() != StateActive {
		t.Fatalf("login did not activate session (state %v, events %v)", s.State(), drain(sink))
	}
	return s.Room()
}

func mustEvent(t *testing.T, ch <-chan Event, name string) Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev.Name == name {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event %q not received", name)
	return Event{}
}

// drain empties the sink and returns the queued event names.
func drain(ch <-chan Event) []string {
	var names []string
	for {
		select {
		case ev := <-ch:
			names = append(names, ev.Name)
		default:
			return names
		}
	}
}

// hasEvent reports whether the currently queued events include name.
func hasEvent(ch <-chan Event, name string) bool {
	for {
		select {
		case ev := <-ch:
			if ev.Name == name {
				return true
			}
		default:
			return false
		}
	}
}
