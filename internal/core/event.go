package core

// Event is a named notification delivered to a session's transport, either
// addressed to one session or broadcast to a room. Delivery is
// fire-and-forget.
type Event struct {
	Name string
	Data any
}

// Outbound event names. Passthrough commands broadcast under their own
// command name and are not listed here.
const (
	EventUpdate      = "update"
	EventUpdateAll   = "updateAll"
	EventLeave       = "leave"
	EventRoom        = "room"
	EventTalk        = "talk"
	EventAlert       = "alert"
	EventLoginFail   = "loginFail"
	EventCommandFail = "commandFail"
	EventBanned      = "banned"
	EventKick        = "kick"
)

// Login failure reasons.
const (
	FailReasonNameMal    = "nameMal"
	FailReasonFull       = "full"
	FailReasonNameLength = "nameLength"
)

// Command failure reasons.
const (
	FailReasonRunlevel = "runlevel"
	FailReasonUnknown  = "unknown"
)

// UpdatePayload carries one member's public state.
type UpdatePayload struct {
	GUID       string `json:"guid"`
	UserPublic Public `json:"userPublic"`
}

// UpdateAllPayload bootstraps a newly joined or resumed viewer.
type UpdateAllPayload struct {
	UsersPublic map[string]Public `json:"usersPublic"`
}

// LeavePayload announces a departure.
type LeavePayload struct {
	GUID string `json:"guid"`
}

// RoomPayload tells the joiner which room it landed in.
type RoomPayload struct {
	Room     string `json:"room"`
	IsOwner  bool   `json:"isOwner"`
	IsPublic bool   `json:"isPublic"`
}

// TalkPayload is a chat line.
type TalkPayload struct {
	GUID string `json:"guid"`
	Text string `json:"text"`
}

// AlertPayload is a room-wide or private notice.
type AlertPayload struct {
	Text string `json:"text"`
}

// FailPayload carries a machine-readable rejection reason.
type FailPayload struct {
	Reason string `json:"reason"`
}

// BannedPayload notifies a quarantined connection of its ban status.
type BannedPayload struct {
	Reason  string `json:"reason"`
	Minutes int    `json:"minutes"`
}

// KickPayload precedes a forced disconnect.
type KickPayload struct {
	Reason string `json:"reason"`
}

// GUIDPayload is the whole payload of a passthrough broadcast.
type GUIDPayload struct {
	GUID string `json:"guid"`
}

// RNGPayload seeds client-side joke/fact selection so every viewer shows the
// same line.
type RNGPayload struct {
	GUID string  `json:"guid"`
	RNG  float64 `json:"rng"`
}

// MediaPayload carries a media id for youtube/image/video commands.
type MediaPayload struct {
	GUID string `json:"guid"`
	Vid  string `json:"vid"`
}

// BackflipPayload is the backflip command broadcast.
type BackflipPayload struct {
	GUID string `json:"guid"`
	Swag bool   `json:"swag"`
}

// TargetPayload carries a sanitized free-text target for novelty commands.
type TargetPayload struct {
	GUID   string `json:"guid"`
	Target string `json:"target"`
}
