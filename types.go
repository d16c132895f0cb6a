package derailed

// Status is a user's presence status.
type Status string

const (
	StatusOnline    Status = "online"
	StatusDND       Status = "dnd"
	StatusAFK       Status = "afk"
	StatusInvisible Status = "invisible"
)

// Theme is a user's client theme preference.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ClientStatus identifies which kind of client a user is connected with.
type ClientStatus string

const (
	ClientStatusMobile  ClientStatus = "mobile"
	ClientStatusWeb     ClientStatus = "web"
	ClientStatusDesktop ClientStatus = "desktop"
)

// RelationshipType describes the kind of relationship between two users.
type RelationshipType int

const (
	RelationshipFriend RelationshipType = iota
	RelationshipBlocked
	RelationshipIncomingRequest
	RelationshipOutgoingRequest
)

// TrackType describes the kind of messaging destination a track is.
type TrackType int

const (
	TrackTypeText TrackType = iota
	TrackTypeVoice
	TrackTypeCategory
	TrackTypeGroupDM
)

// Verification holds a user's contact verification flags.
type Verification struct {
	Email bool `json:"email"`
	Phone bool `json:"phone"`
}

// User represents a Derailed user account.
type User struct {
	ID            string       `json:"id"`
	Username      string       `json:"username"`
	Discriminator string       `json:"discriminator"`
	Email         string       `json:"email,omitempty"`
	Verification  Verification `json:"verification"`
}

// Settings holds a user's account-wide settings.
type Settings struct {
	Status       Status       `json:"status"`
	Theme        Theme        `json:"theme"`
	ClientStatus ClientStatus `json:"client_status"`
}

// Profile is the public profile attached to a user.
type Profile struct {
	Bio           string   `json:"bio"`
	MutualFriends []string `json:"mutual_friends"`
}

// Guild is a community container owning tracks, roles, and members. The
// client passes these records through from the API without interpreting
// them.
type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	NSFW        bool   `json:"nsfw,omitempty"`
	OwnerID     string `json:"owner_id,omitempty"`
}

// Role is a permission grouping within a guild.
type Role struct {
	ID          string `json:"id"`
	GuildID     string `json:"guild_id,omitempty"`
	Name        string `json:"name"`
	Permissions int    `json:"permissions"`
	Position    int    `json:"position"`
	Hoist       bool   `json:"hoist,omitempty"`
}

// Track is a channel-like messaging destination, either within a guild or a
// group DM.
type Track struct {
	ID       string    `json:"id"`
	GuildID  string    `json:"guild_id,omitempty"`
	Name     string    `json:"name"`
	Type     TrackType `json:"type"`
	Position int       `json:"position,omitempty"`
	ParentID string    `json:"parent_id,omitempty"`
	Topic    string    `json:"topic,omitempty"`
}

// Relationship links the current user to another user.
type Relationship struct {
	UserID string           `json:"user_id"`
	Type   RelationshipType `json:"type"`
}

// Relatable reports whether a relationship can be formed with a user.
type Relatable struct {
	UserID    string `json:"user_id"`
	Relatable bool   `json:"relatable"`
}

// TrackModification describes one entry of a bulk track update.
type TrackModification struct {
	ID       string  `json:"id"`
	Position int     `json:"position"`
	Sync     bool    `json:"sync"`
	ParentID *string `json:"parent_id"`
}
