package chat

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	pkgerrors "github.com/pkg/errors"
	"github.com/weixuan0110/ctfbot/retry"
)

// historyPageSize is the maximum number of messages returned by one history request
const historyPageSize = 100

// discordAPI is the subset of discordgo.Session used by Session. *discordgo.Session implements it
type discordAPI interface {
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildRoleCreate(guildID string, data *discordgo.RoleParams, options ...discordgo.RequestOption) (*discordgo.Role, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildScheduledEventCreate(guildID string, event *discordgo.GuildScheduledEventParams, options ...discordgo.RequestOption) (*discordgo.GuildScheduledEvent, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	UserChannelPermissions(userID, channelID string, fetchOptions ...discordgo.RequestOption) (int64, error)
}

// Session implements Driver on top of a discordgo session scoped to a single server
type Session struct {
	api     discordAPI
	guildID string
	timeout time.Duration
	policy  retry.Policy
}

// SessionOption defines an option for a Session
type SessionOption func(s *Session)

// OptionTimeout sets the timeout applied to every call
func OptionTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.timeout = timeout
	}
}

// OptionRetryPolicy sets the retry policy applied to read calls
func OptionRetryPolicy(p retry.Policy) SessionOption {
	return func(s *Session) {
		s.policy = p
	}
}

// NewSession returns a new Session for the given server. Reads are retried according to the retry
// policy, writes are attempted once
func NewSession(api discordAPI, guildID string, options ...SessionOption) (s *Session) {
	s = new(Session)
	s.api = api
	s.guildID = guildID
	s.timeout = 15 * time.Second
	s.policy = retry.None

	for _, opt := range options {
		opt(s)
	}

	return s
}

// call runs fn with a context bounded by the session timeout
func (s *Session) call(ctx context.Context, fn func(opt discordgo.RequestOption) error) error {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return translateError(fn(discordgo.WithContext(cctx)))
}

// read runs fn like call but retries transient failures
func (s *Session) read(ctx context.Context, fn func(opt discordgo.RequestOption) error) error {
	return retry.Do(ctx, s.policy, func(ctx context.Context) error {
		err := s.call(ctx, fn)
		if err != nil && !isTransient(err) {
			return retry.Permanent(err)
		}

		return err
	})
}

// Channels returns all channels and categories of the server
func (s *Session) Channels(ctx context.Context) (channels []Channel, err error) {
	var dcs []*discordgo.Channel
	err = s.read(ctx, func(opt discordgo.RequestOption) (err error) {
		dcs, err = s.api.GuildChannels(s.guildID, opt)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list channels of guild [%s]", s.guildID)
	}

	channels = make([]Channel, 0, len(dcs))
	for _, dc := range dcs {
		channels = append(channels, toChannel(dc))
	}

	return channels, nil
}

// Channel returns a single channel
func (s *Session) Channel(ctx context.Context, channelID string) (ch Channel, err error) {
	var dc *discordgo.Channel
	err = s.read(ctx, func(opt discordgo.RequestOption) (err error) {
		dc, err = s.api.Channel(channelID, opt)
		return err
	})
	if err != nil {
		return ch, pkgerrors.Wrapf(err, "failed to get channel [%s]", channelID)
	}

	return toChannel(dc), nil
}

// CreateCategory creates a new category
func (s *Session) CreateCategory(ctx context.Context, name string) (category Channel, err error) {
	var dc *discordgo.Channel
	err = s.call(ctx, func(opt discordgo.RequestOption) (err error) {
		dc, err = s.api.GuildChannelCreateComplex(s.guildID, discordgo.GuildChannelCreateData{Name: name, Type: discordgo.ChannelTypeGuildCategory}, opt)
		return err
	})
	if err != nil {
		return category, pkgerrors.Wrapf(err, "failed to create category [%s]", name)
	}

	return toChannel(dc), nil
}

// CreateRestrictedChannel creates a text channel hidden from @everyone and visible to the given roles
func (s *Session) CreateRestrictedChannel(ctx context.Context, spec ChannelSpec) (ch Channel, err error) {
	overwrites := []*discordgo.PermissionOverwrite{
		// The @everyone role shares the guild's identifier
		{ID: s.guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
	}
	for _, roleID := range spec.VisibleTo {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{ID: roleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages})
	}

	data := discordgo.GuildChannelCreateData{Name: spec.Name, Type: discordgo.ChannelTypeGuildText, ParentID: spec.ParentID, PermissionOverwrites: overwrites}

	var dc *discordgo.Channel
	err = s.call(ctx, func(opt discordgo.RequestOption) (err error) {
		dc, err = s.api.GuildChannelCreateComplex(s.guildID, data, opt)
		return err
	})
	if err != nil {
		return ch, pkgerrors.Wrapf(err, "failed to create channel [%s]", spec.Name)
	}

	return toChannel(dc), nil
}

// MoveChannel moves a channel under a new parent category
func (s *Session) MoveChannel(ctx context.Context, channelID string, parentID string) (err error) {
	err = s.call(ctx, func(opt discordgo.RequestOption) (err error) {
		_, err = s.api.ChannelEdit(channelID, &discordgo.ChannelEdit{ParentID: parentID}, opt)
		return err
	})

	return pkgerrors.Wrapf(err, "failed to move channel [%s] to [%s]", channelID, parentID)
}

// Roles returns all roles of the server
func (s *Session) Roles(ctx context.Context) (roles []Role, err error) {
	var drs []*discordgo.Role
	err = s.read(ctx, func(opt discordgo.RequestOption) (err error) {
		drs, err = s.api.GuildRoles(s.guildID, opt)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list roles of guild [%s]", s.guildID)
	}

	roles = make([]Role, 0, len(drs))
	for _, dr := range drs {
		roles = append(roles, Role{ID: dr.ID, Name: dr.Name})
	}

	return roles, nil
}

// CreateRole creates a new role
func (s *Session) CreateRole(ctx context.Context, spec RoleSpec) (role Role, err error) {
	color := spec.Color
	mentionable := spec.Mentionable

	var dr *discordgo.Role
	err = s.call(ctx, func(opt discordgo.RequestOption) (err error) {
		dr, err = s.api.GuildRoleCreate(s.guildID, &discordgo.RoleParams{Name: spec.Name, Color: &color, Mentionable: &mentionable}, opt)
		return err
	})
	if err != nil {
		return role, pkgerrors.Wrapf(err, "failed to create role [%s]", spec.Name)
	}

	return Role{ID: dr.ID, Name: dr.Name}, nil
}

// GrantRole adds a role to a member
func (s *Session) GrantRole(ctx context.Context, userID string, roleID string) (err error) {
	err = s.call(ctx, func(opt discordgo.RequestOption) error {
		return s.api.GuildMemberRoleAdd(s.guildID, userID, roleID, opt)
	})

	return pkgerrors.Wrapf(err, "failed to grant role [%s] to [%s]", roleID, userID)
}

// CreateScheduledEvent creates an external, server-only, scheduled event
func (s *Session) CreateScheduledEvent(ctx context.Context, spec ScheduledEventSpec) (err error) {
	start := spec.Start
	end := spec.End
	params := &discordgo.GuildScheduledEventParams{
		Name:               spec.Name,
		Description:        spec.Description,
		ScheduledStartTime: &start,
		ScheduledEndTime:   &end,
		EntityType:         discordgo.GuildScheduledEventEntityTypeExternal,
		PrivacyLevel:       discordgo.GuildScheduledEventPrivacyLevelGuildOnly,
		EntityMetadata:     &discordgo.GuildScheduledEventEntityMetadata{Location: spec.Location},
		Image:              spec.Image,
	}

	err = s.call(ctx, func(opt discordgo.RequestOption) (err error) {
		_, err = s.api.GuildScheduledEventCreate(s.guildID, params, opt)
		return err
	})

	return pkgerrors.Wrapf(err, "failed to create scheduled event [%s]", spec.Name)
}

// Send sends a text message to a channel
func (s *Session) Send(ctx context.Context, channelID string, text string) (msg Message, err error) {
	var dm *discordgo.Message
	err = s.call(ctx, func(opt discordgo.RequestOption) (err error) {
		dm, err = s.api.ChannelMessageSend(channelID, text, opt)
		return err
	})
	if err != nil {
		return msg, pkgerrors.Wrapf(err, "failed to send message to [%s]", channelID)
	}

	return toMessage(dm), nil
}

// SendEmbed sends an embed card to a channel
func (s *Session) SendEmbed(ctx context.Context, channelID string, embed Embed) (msg Message, err error) {
	var dm *discordgo.Message
	err = s.call(ctx, func(opt discordgo.RequestOption) (err error) {
		dm, err = s.api.ChannelMessageSendEmbed(channelID, toDiscordEmbed(embed), opt)
		return err
	})
	if err != nil {
		return msg, pkgerrors.Wrapf(err, "failed to send embed to [%s]", channelID)
	}

	return toMessage(dm), nil
}

// SendDirect sends a private message to a user
func (s *Session) SendDirect(ctx context.Context, userID string, text string) (err error) {
	var dc *discordgo.Channel
	err = s.read(ctx, func(opt discordgo.RequestOption) (err error) {
		dc, err = s.api.UserChannelCreate(userID, opt)
		return err
	})
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open direct channel with [%s]", userID)
	}

	_, err = s.Send(ctx, dc.ID, text)

	return err
}

// AddReaction adds an emoji reaction to a message
func (s *Session) AddReaction(ctx context.Context, channelID string, messageID string, emoji string) (err error) {
	err = s.read(ctx, func(opt discordgo.RequestOption) error {
		return s.api.MessageReactionAdd(channelID, messageID, emoji, opt)
	})

	return pkgerrors.Wrapf(err, "failed to add reaction [%s] to message [%s]", emoji, messageID)
}

// Message returns a single message
func (s *Session) Message(ctx context.Context, channelID string, messageID string) (msg Message, err error) {
	var dm *discordgo.Message
	err = s.read(ctx, func(opt discordgo.RequestOption) (err error) {
		dm, err = s.api.ChannelMessage(channelID, messageID, opt)
		return err
	})
	if err != nil {
		return msg, pkgerrors.Wrapf(err, "failed to get message [%s] in [%s]", messageID, channelID)
	}

	return toMessage(dm), nil
}

// History returns up to limit messages of a channel, most recent first. Pages are requested until
// the limit is reached or the channel has no older messages
func (s *Session) History(ctx context.Context, channelID string, limit int) (msgs []Message, err error) {
	msgs = make([]Message, 0)
	before := ""

	for len(msgs) < limit {
		pageSize := historyPageSize
		if remaining := limit - len(msgs); remaining < pageSize {
			pageSize = remaining
		}

		var page []*discordgo.Message
		err = s.read(ctx, func(opt discordgo.RequestOption) (err error) {
			page, err = s.api.ChannelMessages(channelID, pageSize, before, "", "", opt)
			return err
		})
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "failed to read history of [%s] before [%s]", channelID, before)
		}

		for _, dm := range page {
			msgs = append(msgs, toMessage(dm))
		}

		if len(page) < pageSize {
			break
		}

		before = page[len(page)-1].ID
	}

	return msgs, nil
}

// Member returns the server member or ErrNotFound
func (s *Session) Member(ctx context.Context, userID string) (m Member, err error) {
	var dm *discordgo.Member
	err = s.read(ctx, func(opt discordgo.RequestOption) (err error) {
		dm, err = s.api.GuildMember(s.guildID, userID, opt)
		return err
	})
	if err != nil {
		return m, pkgerrors.Wrapf(err, "failed to get member [%s]", userID)
	}

	m = Member{Nick: dm.Nick, RoleIDs: dm.Roles}
	if dm.User != nil {
		m.UserID = dm.User.ID
		m.Username = dm.User.Username
		m.Bot = dm.User.Bot
	}

	return m, nil
}

// IsAdministrator returns true if the user has the administrator permission in the channel
func (s *Session) IsAdministrator(ctx context.Context, userID string, channelID string) (admin bool, err error) {
	var perms int64
	err = s.read(ctx, func(opt discordgo.RequestOption) (err error) {
		perms, err = s.api.UserChannelPermissions(userID, channelID, opt)
		return err
	})
	if err != nil {
		return false, pkgerrors.Wrapf(err, "failed to get permissions of [%s] in [%s]", userID, channelID)
	}

	return perms&discordgo.PermissionAdministrator == discordgo.PermissionAdministrator, nil
}

// translateError maps a 404 REST error to ErrNotFound
func translateError(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return pkgerrors.Wrap(ErrNotFound, err.Error())
	}

	return err
}

// isTransient returns true for errors worth retrying: anything but a client side (4xx) REST error
func isTransient(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}

	return true
}

// ToMessage converts a discordgo message
func ToMessage(dm *discordgo.Message) Message {
	return toMessage(dm)
}

func toMessage(dm *discordgo.Message) (m Message) {
	if dm == nil {
		return m
	}

	m = Message{ID: dm.ID, ChannelID: dm.ChannelID, GuildID: dm.GuildID, Content: dm.Content}
	if dm.Author != nil {
		m.AuthorID = dm.Author.ID
		m.AuthorName = dm.Author.Username
		m.AuthorBot = dm.Author.Bot
	}

	return m
}

func toChannel(dc *discordgo.Channel) Channel {
	return Channel{ID: dc.ID, Name: dc.Name, ParentID: dc.ParentID, Category: dc.Type == discordgo.ChannelTypeGuildCategory}
}

func toDiscordEmbed(e Embed) (de *discordgo.MessageEmbed) {
	de = &discordgo.MessageEmbed{Title: e.Title, URL: e.URL, Description: e.Description, Color: e.Color}
	if e.ThumbnailURL != "" {
		de.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbnailURL}
	}

	for _, f := range e.Fields {
		de.Fields = append(de.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}

	return de
}
