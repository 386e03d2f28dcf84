// Package chat defines the chat platform operations the bot relies on and provides the Discord implementation
// of them. Plugins and workflows only depend on the interfaces of this package which keeps them testable
// without a live gateway connection
package chat

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a chat entity (member, channel, message) doesn't exist
var ErrNotFound = errors.New("not found")

// Channel represents a text channel or a category (when Category is true)
type Channel struct {
	ID       string
	Name     string
	ParentID string
	Category bool
}

// Role represents a server role
type Role struct {
	ID   string
	Name string
}

// Message represents a chat message. GuildID is empty for direct messages
type Message struct {
	ID         string
	ChannelID  string
	GuildID    string
	AuthorID   string
	AuthorName string
	AuthorBot  bool
	Content    string
}

// Member represents a server member
type Member struct {
	UserID   string
	Username string
	Nick     string
	Bot      bool
	RoleIDs  []string
}

// DisplayName returns the member's nickname if set or its username otherwise
func (m Member) DisplayName() string {
	if m.Nick != "" {
		return m.Nick
	}

	return m.Username
}

// Reaction represents an emoji reaction added to a message
type Reaction struct {
	ChannelID string
	MessageID string
	GuildID   string
	UserID    string
	Emoji     string
}

// RoleSpec holds the attributes of a role to create
type RoleSpec struct {
	Name        string
	Color       int
	Mentionable bool
}

// ChannelSpec holds the attributes of a restricted text channel to create. The channel is hidden from
// everyone except administrators and holders of the VisibleTo roles
type ChannelSpec struct {
	Name      string
	ParentID  string
	VisibleTo []string
}

// ScheduledEventSpec holds the attributes of an external scheduled event. Image is a data URI or empty
type ScheduledEventSpec struct {
	Name        string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Image       string
}

// EmbedField is a name/value pair rendered in an Embed
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed is a rich message card
type Embed struct {
	Title        string
	URL          string
	Description  string
	Color        int
	ThumbnailURL string
	Fields       []EmbedField
}

// ChannelManager is implemented by any value able to read and organize channels and categories
type ChannelManager interface {
	// Channels returns all channels and categories of the server
	Channels(ctx context.Context) (channels []Channel, err error)

	// Channel returns a single channel or ErrNotFound
	Channel(ctx context.Context, channelID string) (ch Channel, err error)

	// CreateCategory creates a new category
	CreateCategory(ctx context.Context, name string) (category Channel, err error)

	// CreateRestrictedChannel creates a text channel only visible to the given roles
	CreateRestrictedChannel(ctx context.Context, spec ChannelSpec) (ch Channel, err error)

	// MoveChannel moves a channel under a new parent category
	MoveChannel(ctx context.Context, channelID string, parentID string) (err error)
}

// RoleManager is implemented by any value able to read, create and grant roles
type RoleManager interface {
	Roles(ctx context.Context) (roles []Role, err error)
	CreateRole(ctx context.Context, spec RoleSpec) (role Role, err error)
	GrantRole(ctx context.Context, userID string, roleID string) (err error)
}

// EventScheduler is implemented by any value able to create server scheduled events
type EventScheduler interface {
	CreateScheduledEvent(ctx context.Context, spec ScheduledEventSpec) (err error)
}

// Messenger is implemented by any value able to send and read messages
type Messenger interface {
	Send(ctx context.Context, channelID string, text string) (msg Message, err error)
	SendEmbed(ctx context.Context, channelID string, embed Embed) (msg Message, err error)
	SendDirect(ctx context.Context, userID string, text string) (err error)
	AddReaction(ctx context.Context, channelID string, messageID string, emoji string) (err error)
	Message(ctx context.Context, channelID string, messageID string) (msg Message, err error)

	// History returns up to limit messages of a channel, most recent first
	History(ctx context.Context, channelID string, limit int) (msgs []Message, err error)
}

// MemberFinder is implemented by any value able to find server members
type MemberFinder interface {
	// Member returns the server member or ErrNotFound if the user isn't a member
	Member(ctx context.Context, userID string) (m Member, err error)
}

// PermissionChecker is implemented by any value able to evaluate a user's permissions in a channel
type PermissionChecker interface {
	IsAdministrator(ctx context.Context, userID string, channelID string) (admin bool, err error)
}

// Driver encompasses all chat platform operations
type Driver interface {
	ChannelManager
	RoleManager
	EventScheduler
	Messenger
	MemberFinder
	PermissionChecker
}

// FindByName returns the first channel with exactly the given name. When category is true, only
// categories are considered, otherwise only regular channels are
func FindByName(channels []Channel, name string, category bool) (ch Channel, ok bool) {
	for _, c := range channels {
		if c.Category == category && c.Name == name {
			return c, true
		}
	}

	return ch, false
}

// FindRole returns the role with exactly the given name
func FindRole(roles []Role, name string) (role Role, ok bool) {
	for _, r := range roles {
		if r.Name == name {
			return r, true
		}
	}

	return role, false
}
