package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor-server/internal/config"
)

// Coordinator bridges a dropped transport back to its session within the
// grace window. Expiry is lazy: dormant sessions are purged when the next
// suspend or resume looks at the table, never by a background sweeper.
type Coordinator struct {
	cfg config.ReconnectConfig
	reg *Registry
	now func() time.Time
	log *zerolog.Logger

	mu      sync.Mutex
	dormant map[string]dormantEntry
}

type dormantEntry struct {
	session  *Session
	deadline time.Time
}

// NewCoordinator builds a coordinator with an injected clock (nil means
// time.Now).
func NewCoordinator(cfg config.ReconnectConfig, reg *Registry, logger *zerolog.Logger, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		cfg:     cfg,
		reg:     reg,
		now:     now,
		log:     logger,
		dormant: make(map[string]dormantEntry),
	}
}

// Config returns the reconnect settings, advisory to the transport and
// surfaced to clients in the hello frame.
func (c *Coordinator) Config() config.ReconnectConfig { return c.cfg }

// Suspend parks a disconnected session for the grace window. Disabled
// coordinators and kicked sessions discard immediately.
func (c *Coordinator) Suspend(s *Session) {
	if !c.cfg.Enabled {
		s.expire()
		return
	}
	s.mu.Lock()
	kicked := s.kicked
	s.mu.Unlock()
	if kicked {
		s.expire()
		return
	}

	c.mu.Lock()
	c.purgeLocked()
	c.dormant[s.GUID] = dormantEntry{session: s, deadline: c.now().Add(c.cfg.GraceWindow())}
	c.mu.Unlock()

	c.log.Debug().Str("guid", s.GUID).Msg("session suspended for grace window")
}

// Resume hands a resumed transport back its session. A miss — unknown guid,
// elapsed window, vanished room — is not an error; the caller falls back to
// a fresh session awaiting login. The bool reports whether the session
// rejoined its room (false means it is back in AwaitingLogin).
func (c *Coordinator) Resume(guid string, sink chan<- Event, closer func()) (*Session, bool) {
	c.mu.Lock()
	entry, ok := c.dormant[guid]
	if ok {
		delete(c.dormant, guid)
	}
	c.purgeLocked()
	c.mu.Unlock()

	if !ok {
		return nil, false
	}
	if !entry.deadline.After(c.now()) {
		entry.session.expire()
		return nil, false
	}

	rejoined := entry.session.reattach(sink, closer)
	c.log.Info().Str("guid", guid).Bool("rejoined", rejoined).Msg("session resumed")
	return entry.session, rejoined
}

// purgeLocked drops entries past their deadline; c.mu must be held.
func (c *Coordinator) purgeLocked() {
	now := c.now()
	for guid, entry := range c.dormant {
		if !entry.deadline.After(now) {
			entry.session.expire()
			delete(c.dormant, guid)
		}
	}
}
