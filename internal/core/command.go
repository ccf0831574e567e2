package core

import (
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/parlorchat/parlor-server/internal/ban"
)

// handlerFunc runs a command bound to the invoking session with positional
// arguments. Missing arguments arrive as empty strings.
type handlerFunc func(s *Session, args []string)

// commandEntry is a tagged variant: either a handler or a passthrough that
// re-broadcasts the command name with only the sender's identity attached.
type commandEntry struct {
	passthrough bool
	fn          handlerFunc
}

func passthrough() commandEntry           { return commandEntry{passthrough: true} }
func handler(fn handlerFunc) commandEntry { return commandEntry{fn: fn} }

// sanitizeOffTerms are the only arguments that turn the sanitize flag off.
var sanitizeOffTerms = []string{"false", "off", "disable", "disabled", "f", "no", "n"}

var commandTable = map[string]commandEntry{
	"godmode":     handler(cmdGodmode),
	"sanitize":    handler(cmdSanitize),
	"joke":        handler(cmdJoke),
	"fact":        handler(cmdFact),
	"youtube":     handler(cmdYoutube),
	"image":       handler(cmdImage),
	"video":       handler(cmdVideo),
	"backflip":    handler(cmdBackflip),
	"color":       handler(cmdColor),
	"pope":        handler(cmdPope),
	"asshole":     handler(cmdAsshole),
	"owo":         handler(cmdOwo),
	"vaporwave":   handler(cmdVaporwave),
	"unvaporwave": handler(cmdUnvaporwave),
	"name":        handler(cmdName),
	"pitch":       handler(cmdPitch),
	"speed":       handler(cmdSpeed),
	"kick":        handler(cmdKick),
	"ban":         handler(cmdBan),
	"showip":      handler(cmdShowIP),
	"linux":       passthrough(),
	"pawn":        passthrough(),
	"bees":        passthrough(),
	"triggered":   passthrough(),
}

// dispatch resolves and runs a command. The runlevel gate is checked before
// lookup; a failing handler is caught here, logged, and answered with a
// generic failure so no command can take its session down.
func dispatch(s *Session, list []string) {
	if len(list) == 0 {
		s.send(Event{Name: EventCommandFail, Data: FailPayload{Reason: FailReasonUnknown}})
		return
	}
	name := strings.ToLower(list[0])
	args := list[1:]

	s.log.Debug().Str("guid", s.GUID).Str("command", name).Strs("args", args).Msg("command")

	room := s.Room()
	if room == nil {
		return
	}
	if s.Runlevel() < room.Prefs.Runlevel[name] {
		s.send(Event{Name: EventCommandFail, Data: FailPayload{Reason: FailReasonRunlevel}})
		return
	}

	entry, ok := commandTable[name]
	if !ok {
		s.send(Event{Name: EventCommandFail, Data: FailPayload{Reason: FailReasonUnknown}})
		return
	}

	if entry.passthrough {
		room.Broadcast(name, GUIDPayload{GUID: s.GUID})
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.log.Warn().Str("guid", s.GUID).Str("command", name).Strs("args", args).
				Any("panic", rec).Msg("command handler fault")
			s.send(Event{Name: EventCommandFail, Data: FailPayload{Reason: FailReasonUnknown}})
		}
	}()
	entry.fn(s, args)
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func argsString(args []string) string {
	return strings.Join(args, " ")
}

func cmdGodmode(s *Session, args []string) {
	word := arg(args, 0)
	godword := s.Room().Prefs.GodWord
	success := godword != "" && word == godword

	s.mu.Lock()
	if success {
		s.runlevel = 3
	}
	s.mu.Unlock()

	s.log.Debug().Str("guid", s.GUID).Bool("success", success).Msg("godmode")
}

func cmdSanitize(s *Session, args []string) {
	off := slices.Contains(sanitizeOffTerms, strings.ToLower(argsString(args)))
	s.mu.Lock()
	s.sanitize = !off
	s.mu.Unlock()
}

func cmdJoke(s *Session, _ []string) {
	s.Room().Broadcast("joke", RNGPayload{GUID: s.GUID, RNG: rand.Float64()})
}

func cmdFact(s *Session, _ []string) {
	s.Room().Broadcast("fact", RNGPayload{GUID: s.GUID, RNG: rand.Float64()})
}

func cmdYoutube(s *Session, args []string) { emitMedia(s, "youtube", arg(args, 0)) }
func cmdImage(s *Session, args []string)   { emitMedia(s, "image", arg(args, 0)) }
func cmdVideo(s *Session, args []string)   { emitMedia(s, "video", arg(args, 0)) }

func emitMedia(s *Session, event, vid string) {
	s.mu.Lock()
	sanitize := s.sanitize
	s.mu.Unlock()
	if sanitize {
		vid = Sanitize(vid)
	}
	s.Room().Broadcast(event, MediaPayload{GUID: s.GUID, Vid: vid})
}

func cmdBackflip(s *Session, args []string) {
	s.Room().Broadcast("backflip", BackflipPayload{GUID: s.GUID, Swag: arg(args, 0) == "swag"})
}

func cmdColor(s *Session, args []string) {
	color := arg(args, 0)
	if color != "" {
		// Explicit values outside the palette are silently ignored; this is
		// also what strips pope status from anyone careless with /color.
		if !slices.Contains(s.reg.colors, color) {
			return
		}
	} else {
		color = s.reg.colors[rand.IntN(len(s.reg.colors))]
	}

	s.mu.Lock()
	s.public.Color = color
	s.mu.Unlock()
	s.Room().UpdateUser(s)
}

func cmdPope(s *Session, _ []string) {
	s.mu.Lock()
	s.public.Color = PopeColor
	s.mu.Unlock()
	s.Room().UpdateUser(s)
}

func cmdAsshole(s *Session, args []string) {
	s.Room().Broadcast("asshole", TargetPayload{GUID: s.GUID, Target: Sanitize(argsString(args))})
}

func cmdOwo(s *Session, args []string) {
	s.Room().Broadcast("owo", TargetPayload{GUID: s.GUID, Target: Sanitize(argsString(args))})
}

func cmdVaporwave(s *Session, _ []string) {
	s.send(Event{Name: "vaporwave"})
	s.Room().Broadcast("youtube", MediaPayload{GUID: s.GUID, Vid: "_4gl-FX2RvI"})
}

func cmdUnvaporwave(s *Session, _ []string) {
	s.send(Event{Name: "unvaporwave"})
}

func cmdName(s *Session, args []string) {
	raw := argsString(args)
	room := s.Room()
	if utf8.RuneCountInString(raw) > room.Prefs.NameLimit {
		return
	}
	name := raw
	if name == "" {
		name = room.Prefs.DefaultName
	}

	s.mu.Lock()
	if s.sanitize {
		name = Sanitize(name)
	}
	s.public.Name = name
	s.mu.Unlock()
	room.UpdateUser(s)
}

func cmdPitch(s *Session, args []string) {
	n, err := strconv.Atoi(arg(args, 0))
	if err != nil {
		return
	}
	room := s.Room()
	s.mu.Lock()
	s.public.Pitch = clamp(n, room.Prefs.Pitch.Min, room.Prefs.Pitch.Max)
	s.mu.Unlock()
	room.UpdateUser(s)
}

func cmdSpeed(s *Session, args []string) {
	n, err := strconv.Atoi(arg(args, 0))
	if err != nil {
		return
	}
	room := s.Room()
	s.mu.Lock()
	s.public.Speed = clamp(n, room.Prefs.Speed.Min, room.Prefs.Speed.Max)
	s.mu.Unlock()
	room.UpdateUser(s)
}

// isPope is the privilege gate for moderation commands. Runlevel plays no
// part here: holding the reserved color is the authorization, visible to
// everyone in the room and revoked by any color change.
func isPope(s *Session) bool {
	return s.Public().Color == PopeColor
}

func cmdKick(s *Session, args []string) {
	if !isPope(s) {
		return
	}
	username := arg(args, 0)
	if username == "" {
		return
	}

	room := s.Room()
	target, ok := findByName(room, username)
	if !ok {
		s.alertf("Could not find user: %s", username)
		return
	}

	self := s.Public().Name
	s.reg.bans.Kick(target.IP(), "Kicked by "+self)
	room.Broadcast(EventAlert, AlertPayload{Text: username + " has been kicked by " + self})
}

func cmdBan(s *Session, args []string) {
	if !isPope(s) {
		return
	}
	ip, username := arg(args, 0), arg(args, 1)
	if ip == "" || username == "" {
		return
	}

	reason := arg(args, 2)
	if reason == "" {
		reason = "No reason provided"
	}
	minutes := ban.ParseLength(arg(args, 3), s.reg.banLength)

	room := s.Room()
	if ip == "auto" {
		target, ok := findByName(room, username)
		if !ok {
			s.alertf("Could not find user: %s", username)
			return
		}
		ip = target.IP()
	}

	s.reg.bans.AddBan(ip, minutes, reason)
	room.Broadcast(EventAlert, AlertPayload{
		Text: username + " has been banned by " + s.Public().Name + " for: " + reason,
	})
}

func cmdShowIP(s *Session, args []string) {
	if !isPope(s) {
		return
	}
	username := arg(args, 0)
	if username == "" {
		return
	}

	target, ok := findByName(s.Room(), username)
	if !ok {
		s.alertf("Could not find user: %s", username)
		return
	}
	s.alertf("%s's IP: %s | Location: %s", username, target.IP(), target.Public().Location)
}

// findByName resolves a room member by case-insensitive exact name match.
func findByName(room *Room, username string) (*Session, bool) {
	for _, m := range room.Members() {
		if strings.EqualFold(m.Public().Name, username) {
			return m, true
		}
	}
	return nil, false
}

func clamp(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
