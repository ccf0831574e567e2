package core

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parlorchat/parlor-server/internal/config"
)

// State is a session's position in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAwaitingLogin
	StateActive
	StateDisconnected
	StateExpired
)

// PopeColor is the reserved color value that authorizes moderation commands.
// It is deliberately a public, visible attribute: anyone in the room can see
// who holds it, and any color change revokes it.
const PopeColor = "pope"

// TalkPlaceholder replaces the text of a malformed talk payload instead of
// letting it near the parser.
const TalkPlaceholder = "HEY EVERYONE LOOK AT ME I'M TRYING TO SCREW WITH THE SERVER LMAO"

// locationFlags decorate the cosmetic location tag. Real geolocation is the
// client's problem.
var locationFlags = []string{"🇺🇸", "🇬🇧", "🇨🇦", "🇦🇺", "🇯🇵", "🇩🇪", "🇫🇷", "🇮🇳", "🇧🇷", "🇲🇽"}

// Public is the state a session broadcasts to its room.
type Public struct {
	Name     string `json:"name"`
	Color    string `json:"color"`
	Pitch    int    `json:"pitch"`
	Speed    int    `json:"speed"`
	Location string `json:"location"`
}

// LoginRequest is a parsed login frame.
type LoginRequest struct {
	Room string
	Name string
}

// Session is the server-side state for one participant's connection,
// surviving a bridged reconnection under the same guid. Its handlers run on
// the connection's goroutine; only forced disconnects and room broadcasts
// touch it from outside, through the mutex.
type Session struct {
	GUID string

	reg *Registry
	log *zerolog.Logger
	ip  string

	mu          sync.Mutex
	sink        chan<- Event
	closer      func()
	state       State
	quarantined bool
	kicked      bool
	login       bool
	sanitize    bool
	runlevel    int
	public      Public
	room        *Room

	// remembered across the reconnect grace window
	lastRoomID  string
	wasLoggedIn bool
}

// NewSession creates the session for a fresh connection and checks the ban
// store. A banned IP is quarantined, not dropped: it gets a banned notice
// and no login, and the transport decides final disposal.
func NewSession(reg *Registry, logger *zerolog.Logger, ip string, sink chan<- Event, closer func()) *Session {
	s := &Session{
		GUID:     uuid.NewString(),
		reg:      reg,
		log:      logger,
		ip:       ip,
		sink:     sink,
		closer:   closer,
		state:    StateAwaitingLogin,
		sanitize: true,
		public: Public{
			Color:    reg.colors[rand.IntN(len(reg.colors))],
			Location: locationFlags[rand.IntN(len(locationFlags))] + " " + ip,
		},
	}

	logger.Info().Str("guid", s.GUID).Str("ip", ip).Msg("connect")

	if reason, minutes, ok := reg.bans.Remaining(ip); ok {
		s.quarantined = true
		s.send(Event{Name: EventBanned, Data: BannedPayload{Reason: reason, Minutes: minutes}})
		logger.Info().Str("guid", s.GUID).Str("ip", ip).Str("reason", reason).Msg("banned connection quarantined")
	}

	reg.addSession(s)
	return s
}

// IP returns the connection's source address.
func (s *Session) IP() string { return s.ip }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Public returns a copy of the broadcastable state.
func (s *Session) Public() Public {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.public
}

// Room returns the joined room, nil before login or after disconnect.
func (s *Session) Room() *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Runlevel returns the private privilege tier.
func (s *Session) Runlevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runlevel
}

// Quarantined reports whether the connecting IP was banned.
func (s *Session) Quarantined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quarantined
}

// send queues an event for the transport, dropping it if the sink is gone
// or full. Delivery is never acknowledged.
func (s *Session) send(ev Event) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return
	}
	select {
	case sink <- ev:
	default:
	}
}

// HandleLogin moves AwaitingLogin -> Active. Rejections emit loginFail and
// leave the state untouched.
func (s *Session) HandleLogin(req LoginRequest) {
	s.mu.Lock()
	if s.quarantined || s.login || s.state != StateAwaitingLogin {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.log.Info().Str("guid", s.GUID).Msg("login")

	rid := req.Room
	specified := rid != ""

	// A room id that sanitization would alter is rejected outright; ids are
	// echoed back to clients and must round-trip clean.
	if specified && Sanitize(rid) != rid {
		s.send(Event{Name: EventLoginFail, Data: FailPayload{Reason: FailReasonNameMal}})
		return
	}

	room, isPublic, err := s.reg.ResolveForLogin(rid, s.GUID)
	if err != nil {
		s.send(Event{Name: EventLoginFail, Data: FailPayload{Reason: FailReasonFull}})
		return
	}

	name := Sanitize(req.Name)
	if name == "" {
		name = room.Prefs.DefaultName
	}
	if utf8.RuneCountInString(name) > room.Prefs.NameLimit {
		s.send(Event{Name: EventLoginFail, Data: FailPayload{Reason: FailReasonNameLength}})
		s.reg.DestroyIfEmpty(room) // may have been created just for this login
		return
	}

	s.mu.Lock()
	s.public.Name = name
	s.public.Pitch = pickRange(room.Prefs.Pitch)
	s.public.Speed = pickRange(room.Prefs.Speed)
	s.room = room
	s.mu.Unlock()

	if !room.Join(s) {
		// Filled (or died) between resolution and join. A public login just
		// spills into a fresh pool room; a private one is rejected.
		if !specified {
			if room, isPublic, err = s.reg.ResolveForLogin("", s.GUID); err == nil && room.Join(s) {
				s.completeLogin(room, isPublic)
				return
			}
		}
		s.mu.Lock()
		s.room = nil
		s.mu.Unlock()
		s.send(Event{Name: EventLoginFail, Data: FailPayload{Reason: FailReasonFull}})
		return
	}

	s.completeLogin(room, isPublic)
}

func (s *Session) completeLogin(room *Room, isPublic bool) {
	s.mu.Lock()
	s.room = room
	s.login = true
	s.state = StateActive
	s.mu.Unlock()

	s.send(Event{Name: EventUpdateAll, Data: UpdateAllPayload{UsersPublic: room.Snapshot()}})
	s.send(Event{Name: EventRoom, Data: RoomPayload{
		Room:     room.ID,
		IsOwner:  room.ownerGUID == s.GUID,
		IsPublic: isPublic,
	}})
}

// HandleTalk broadcasts a chat line, sanitized when the session's sanitize
// flag is on and dropped unless 0 < length <= the room's char limit.
func (s *Session) HandleTalk(text string) {
	s.mu.Lock()
	if !s.login || s.state != StateActive {
		s.mu.Unlock()
		return
	}
	room := s.room
	sanitize := s.sanitize
	s.mu.Unlock()

	s.log.Debug().Str("guid", s.GUID).Str("text", text).Msg("talk")

	if sanitize {
		text = Sanitize(text)
	}
	if n := utf8.RuneCountInString(text); n == 0 || n > room.Prefs.CharLimit {
		return
	}
	room.Broadcast(EventTalk, TalkPayload{GUID: s.GUID, Text: text})
}

// HandleCommand hands a parsed command list to the dispatcher.
func (s *Session) HandleCommand(list []string) {
	s.mu.Lock()
	active := s.login && s.state == StateActive
	s.mu.Unlock()
	if !active {
		return
	}
	dispatch(s, list)
}

// HandleDisconnect runs the Active -> Disconnected transition: the room
// leave broadcast goes out before detachment, and the room id and login
// flag are remembered for the grace window. Safe to call more than once.
func (s *Session) HandleDisconnect() {
	s.mu.Lock()
	if s.state == StateDisconnected || s.state == StateExpired {
		s.mu.Unlock()
		return
	}
	room := s.room
	s.wasLoggedIn = s.login
	if room != nil {
		s.lastRoomID = room.ID
	}
	s.room = nil
	s.login = false
	s.state = StateDisconnected
	s.sink = nil
	s.mu.Unlock()

	s.log.Info().Str("guid", s.GUID).Str("ip", s.ip).Msg("disconnect")

	s.reg.removeSession(s)
	if room != nil {
		room.Leave(s)
	}
}

// ForceDisconnect delivers a best-effort kick notice and severs the
// transport. Kicked sessions are not eligible for grace-window resumption.
func (s *Session) ForceDisconnect(reason string) {
	s.mu.Lock()
	s.kicked = true
	closer := s.closer
	s.mu.Unlock()

	s.send(Event{Name: EventKick, Data: KickPayload{Reason: reason}})
	s.log.Info().Str("guid", s.GUID).Str("ip", s.ip).Str("reason", reason).Msg("forced disconnect")

	if closer != nil {
		closer()
	} else {
		s.HandleDisconnect()
	}
}

// reattach binds a resumed transport to the dormant session and, if it had
// been logged in and the room survived, rejoins and re-sends the snapshot.
// Returns false when the session must go back through login.
func (s *Session) reattach(sink chan<- Event, closer func()) bool {
	s.mu.Lock()
	s.sink = sink
	s.closer = closer
	wasLoggedIn := s.wasLoggedIn
	lastRoomID := s.lastRoomID
	s.state = StateAwaitingLogin
	s.mu.Unlock()

	s.reg.addSession(s)

	if !wasLoggedIn {
		return false
	}
	room, ok := s.reg.Get(lastRoomID)
	if !ok || !room.Join(s) {
		return false
	}

	s.mu.Lock()
	s.room = room
	s.login = true
	s.state = StateActive
	s.mu.Unlock()

	_, isPublic := s.reg.poolContains(lastRoomID)
	s.send(Event{Name: EventUpdateAll, Data: UpdateAllPayload{UsersPublic: room.Snapshot()}})
	s.send(Event{Name: EventRoom, Data: RoomPayload{
		Room:     room.ID,
		IsOwner:  room.ownerGUID == s.GUID,
		IsPublic: isPublic,
	}})
	return true
}

// Abandon discards a session that never got past AwaitingLogin, such as the
// fresh session a transport creates before a successful resume swap.
func (s *Session) Abandon() {
	s.reg.removeSession(s)
	s.expire()
}

func (s *Session) expire() {
	s.mu.Lock()
	s.state = StateExpired
	s.sink = nil
	s.mu.Unlock()
}

// alert sends a private notice to this session only.
func (s *Session) alert(text string) {
	s.send(Event{Name: EventAlert, Data: AlertPayload{Text: text}})
}

func (s *Session) alertf(format string, args ...any) {
	s.alert(fmt.Sprintf(format, args...))
}

// pickRange evaluates a voice parameter policy: "random" picks uniformly in
// [min, max], otherwise the configured default literal applies.
func pickRange(p config.RangePref) int {
	if p.Default == "random" {
		if p.Max <= p.Min {
			return p.Min
		}
		return p.Min + rand.IntN(p.Max-p.Min+1)
	}
	n, err := strconv.Atoi(p.Default)
	if err != nil {
		return p.Min
	}
	return n
}
