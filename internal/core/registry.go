package core

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor-server/internal/ban"
	"github.com/parlorchat/parlor-server/internal/config"
)

// ErrRoomFull rejects a login into a private room at capacity.
var ErrRoomFull = errors.New("room full")

// Registry owns every live room and the public pool, plus an index of live
// sessions used by the moderation kick path. It is constructed once at
// process start and injected; nothing in the package reaches for it as a
// global.
type Registry struct {
	prefs     config.PrefsConfig
	colors    []string
	banLength int
	bans      *ban.Store
	log       *zerolog.Logger

	mu         sync.Mutex
	rooms      map[string]*Room
	publicPool []string // room ids, creation order

	sessMu   sync.Mutex
	sessions map[*Session]struct{}
}

// NewRegistry builds an empty registry from the room preference templates.
func NewRegistry(cfg config.Config, bans *ban.Store, logger *zerolog.Logger) *Registry {
	return &Registry{
		prefs:     cfg.Prefs,
		colors:    cfg.Colors,
		banLength: cfg.DefaultBanLength,
		bans:      bans,
		log:       logger,
		rooms:     make(map[string]*Room),
		sessions:  make(map[*Session]struct{}),
	}
}

// ResolveForLogin maps a login's room reference to a room.
//
// An empty id means "public": the most recently created pool room is reused
// until it fills, then a fresh room with a generated id is pushed onto the
// pool. A non-empty id is a private reference, created lazily with the
// requester as owner; an existing full private room rejects with
// ErrRoomFull.
func (g *Registry) ResolveForLogin(requestedID, ownerGUID string) (room *Room, isPublic bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if requestedID == "" {
		if n := len(g.publicPool); n > 0 {
			if r, ok := g.rooms[g.publicPool[n-1]]; ok && !r.IsFull() {
				return r, true, nil
			}
		}
		id := uuid.NewString()
		r := newRoom(id, g.prefs.Public, "", g)
		g.rooms[id] = r
		g.publicPool = append(g.publicPool, id)
		g.log.Debug().Str("rid", id).Msg("new public room")
		return r, true, nil
	}

	if r, ok := g.rooms[requestedID]; ok {
		if r.IsFull() {
			return nil, false, ErrRoomFull
		}
		_, public := g.poolIndex(requestedID)
		return r, public, nil
	}

	r := newRoom(requestedID, g.prefs.Private, ownerGUID, g)
	g.rooms[requestedID] = r
	g.log.Debug().Str("rid", requestedID).Msg("new private room")
	return r, false, nil
}

// Get returns a live room by id.
func (g *Registry) Get(id string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[id]
	return r, ok
}

// DestroyIfEmpty removes a room from the registry (and the public pool) once
// its membership is empty. Redundant calls are safe.
func (g *Registry) DestroyIfEmpty(r *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.rooms[r.ID]; !ok || cur != r {
		return
	}

	// Marking the room destroyed under its own lock closes the window where
	// a concurrent login could join a room already gone from the registry.
	r.mu.Lock()
	if len(r.members) > 0 {
		r.mu.Unlock()
		return
	}
	r.destroyed = true
	r.mu.Unlock()

	delete(g.rooms, r.ID)
	if idx, ok := g.poolIndex(r.ID); ok {
		g.publicPool = append(g.publicPool[:idx], g.publicPool[idx+1:]...)
	}
	g.log.Debug().Str("rid", r.ID).Msg("room removed")
}

func (g *Registry) poolContains(id string) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.poolIndex(id)
}

// poolIndex must be called with g.mu held.
func (g *Registry) poolIndex(id string) (int, bool) {
	for i, rid := range g.publicPool {
		if rid == id {
			return i, true
		}
	}
	return 0, false
}

// RoomCount returns the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

func (g *Registry) addSession(s *Session) {
	g.sessMu.Lock()
	g.sessions[s] = struct{}{}
	g.sessMu.Unlock()
}

func (g *Registry) removeSession(s *Session) {
	g.sessMu.Lock()
	delete(g.sessions, s)
	g.sessMu.Unlock()
}

// KickIP severs every live session whose source IP matches, with a
// best-effort notice first. Implements ban.Kicker.
func (g *Registry) KickIP(ip, reason string) int {
	g.sessMu.Lock()
	targets := make([]*Session, 0, 1)
	for s := range g.sessions {
		if s.IP() == ip {
			targets = append(targets, s)
		}
	}
	g.sessMu.Unlock()

	for _, s := range targets {
		s.ForceDisconnect(reason)
	}
	return len(targets)
}
