// Package capture provides in-memory fakes of the bot collaborators that capture every call for
// post-execution validation
package capture

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/weixuan0110/ctfbot/chat"
)

// SentMessage holds a captured message sent to a channel. Embed is nil for text messages
type SentMessage struct {
	ChannelID string
	Text      string
	Embed     *chat.Embed
}

// DirectMessage holds a captured private message
type DirectMessage struct {
	UserID string
	Text   string
}

// Grant holds a captured role grant
type Grant struct {
	UserID string
	RoleID string
}

// Move holds a captured channel move
type Move struct {
	ChannelID string
	ParentID  string
}

// Driver is an in-memory chat.Driver. Its channels, roles and members can be seeded directly and every
// call is captured. Failures are injected by setting Errors keyed by method name
type Driver struct {
	mu sync.Mutex

	SelfID      string
	ChannelList []chat.Channel
	RoleList    []chat.Role
	Members     map[string]chat.Member
	Admins      map[string]bool
	Posts       map[string][]chat.Message

	Sent              []SentMessage
	Directs           []DirectMessage
	Reactions         []chat.Reaction
	Grants            []Grant
	Moves             []Move
	CreatedCategories []string
	CreatedChannels   []chat.ChannelSpec
	CreatedRoles      []chat.RoleSpec
	ScheduledEvents   []chat.ScheduledEventSpec
	Calls             map[string]int

	Errors map[string]error

	nextID int
}

// NewDriver returns a new empty Driver with selfID as the author of the messages it sends
func NewDriver(selfID string) (d *Driver) {
	d = new(Driver)
	d.SelfID = selfID
	d.Members = make(map[string]chat.Member)
	d.Admins = make(map[string]bool)
	d.Posts = make(map[string][]chat.Message)
	d.Calls = make(map[string]int)
	d.Errors = make(map[string]error)
	d.nextID = 1000

	return d
}

// AddChannel seeds a channel and returns it
func (d *Driver) AddChannel(name string, parentID string) chat.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := chat.Channel{ID: d.newID(), Name: name, ParentID: parentID}
	d.ChannelList = append(d.ChannelList, c)

	return c
}

// AddCategory seeds a category and returns it
func (d *Driver) AddCategory(name string) chat.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := chat.Channel{ID: d.newID(), Name: name, Category: true}
	d.ChannelList = append(d.ChannelList, c)

	return c
}

// AddRole seeds a role and returns it
func (d *Driver) AddRole(name string) chat.Role {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := chat.Role{ID: d.newID(), Name: name}
	d.RoleList = append(d.RoleList, r)

	return r
}

// AddMember seeds a server member
func (d *Driver) AddMember(m chat.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.Members[m.UserID] = m
}

// Post seeds a message in a channel history (appended as the most recent) and returns it with its id set
func (d *Driver) Post(m chat.Message) chat.Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	if m.ID == "" {
		m.ID = d.newID()
	}
	d.Posts[m.ChannelID] = append(d.Posts[m.ChannelID], m)

	return m
}

// Mutations returns the number of captured calls that changed the server structure or memberships
func (d *Driver) Mutations() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.CreatedCategories) + len(d.CreatedChannels) + len(d.CreatedRoles) + len(d.ScheduledEvents) + len(d.Grants) + len(d.Moves)
}

// SentTo returns the texts of messages sent to a channel
func (d *Driver) SentTo(channelID string) (texts []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	texts = make([]string, 0)
	for _, s := range d.Sent {
		if s.ChannelID == channelID && s.Embed == nil {
			texts = append(texts, s.Text)
		}
	}

	return texts
}

func (d *Driver) newID() string {
	d.nextID++
	return strconv.Itoa(d.nextID)
}

// begin records the call and returns the injected error for method, if any. Callers must hold the lock
func (d *Driver) begin(method string) error {
	d.Calls[method]++
	return d.Errors[method]
}

// Channels implements chat.ChannelManager
func (d *Driver) Channels(ctx context.Context) (channels []chat.Channel, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("Channels"); err != nil {
		return nil, err
	}

	return append([]chat.Channel{}, d.ChannelList...), nil
}

// Channel implements chat.ChannelManager
func (d *Driver) Channel(ctx context.Context, channelID string) (ch chat.Channel, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("Channel"); err != nil {
		return ch, err
	}

	for _, c := range d.ChannelList {
		if c.ID == channelID {
			return c, nil
		}
	}

	return ch, fmt.Errorf("channel [%s]: %w", channelID, chat.ErrNotFound)
}

// CreateCategory implements chat.ChannelManager
func (d *Driver) CreateCategory(ctx context.Context, name string) (category chat.Channel, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("CreateCategory"); err != nil {
		return category, err
	}

	d.CreatedCategories = append(d.CreatedCategories, name)
	category = chat.Channel{ID: d.newID(), Name: name, Category: true}
	d.ChannelList = append(d.ChannelList, category)

	return category, nil
}

// CreateRestrictedChannel implements chat.ChannelManager
func (d *Driver) CreateRestrictedChannel(ctx context.Context, spec chat.ChannelSpec) (ch chat.Channel, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("CreateRestrictedChannel"); err != nil {
		return ch, err
	}

	d.CreatedChannels = append(d.CreatedChannels, spec)
	ch = chat.Channel{ID: d.newID(), Name: spec.Name, ParentID: spec.ParentID}
	d.ChannelList = append(d.ChannelList, ch)

	return ch, nil
}

// MoveChannel implements chat.ChannelManager
func (d *Driver) MoveChannel(ctx context.Context, channelID string, parentID string) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("MoveChannel"); err != nil {
		return err
	}

	for i, c := range d.ChannelList {
		if c.ID == channelID {
			d.ChannelList[i].ParentID = parentID
			d.Moves = append(d.Moves, Move{ChannelID: channelID, ParentID: parentID})
			return nil
		}
	}

	return fmt.Errorf("channel [%s]: %w", channelID, chat.ErrNotFound)
}

// Roles implements chat.RoleManager
func (d *Driver) Roles(ctx context.Context) (roles []chat.Role, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("Roles"); err != nil {
		return nil, err
	}

	return append([]chat.Role{}, d.RoleList...), nil
}

// CreateRole implements chat.RoleManager
func (d *Driver) CreateRole(ctx context.Context, spec chat.RoleSpec) (role chat.Role, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("CreateRole"); err != nil {
		return role, err
	}

	d.CreatedRoles = append(d.CreatedRoles, spec)
	role = chat.Role{ID: d.newID(), Name: spec.Name}
	d.RoleList = append(d.RoleList, role)

	return role, nil
}

// GrantRole implements chat.RoleManager
func (d *Driver) GrantRole(ctx context.Context, userID string, roleID string) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("GrantRole"); err != nil {
		return err
	}

	d.Grants = append(d.Grants, Grant{UserID: userID, RoleID: roleID})

	return nil
}

// CreateScheduledEvent implements chat.EventScheduler
func (d *Driver) CreateScheduledEvent(ctx context.Context, spec chat.ScheduledEventSpec) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("CreateScheduledEvent"); err != nil {
		return err
	}

	d.ScheduledEvents = append(d.ScheduledEvents, spec)

	return nil
}

// Send implements chat.Messenger
func (d *Driver) Send(ctx context.Context, channelID string, text string) (msg chat.Message, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("Send"); err != nil {
		return msg, err
	}

	d.Sent = append(d.Sent, SentMessage{ChannelID: channelID, Text: text})
	msg = chat.Message{ID: d.newID(), ChannelID: channelID, AuthorID: d.SelfID, AuthorBot: true, Content: text}
	d.Posts[channelID] = append(d.Posts[channelID], msg)

	return msg, nil
}

// SendEmbed implements chat.Messenger
func (d *Driver) SendEmbed(ctx context.Context, channelID string, embed chat.Embed) (msg chat.Message, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("SendEmbed"); err != nil {
		return msg, err
	}

	e := embed
	d.Sent = append(d.Sent, SentMessage{ChannelID: channelID, Embed: &e})

	return chat.Message{ID: d.newID(), ChannelID: channelID, AuthorID: d.SelfID, AuthorBot: true}, nil
}

// SendDirect implements chat.Messenger
func (d *Driver) SendDirect(ctx context.Context, userID string, text string) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("SendDirect"); err != nil {
		return err
	}

	d.Directs = append(d.Directs, DirectMessage{UserID: userID, Text: text})

	return nil
}

// AddReaction implements chat.Messenger
func (d *Driver) AddReaction(ctx context.Context, channelID string, messageID string, emoji string) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("AddReaction"); err != nil {
		return err
	}

	d.Reactions = append(d.Reactions, chat.Reaction{ChannelID: channelID, MessageID: messageID, UserID: d.SelfID, Emoji: emoji})

	return nil
}

// Message implements chat.Messenger
func (d *Driver) Message(ctx context.Context, channelID string, messageID string) (msg chat.Message, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("Message"); err != nil {
		return msg, err
	}

	for _, m := range d.Posts[channelID] {
		if m.ID == messageID {
			return m, nil
		}
	}

	return msg, fmt.Errorf("message [%s]: %w", messageID, chat.ErrNotFound)
}

// History implements chat.Messenger
func (d *Driver) History(ctx context.Context, channelID string, limit int) (msgs []chat.Message, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("History"); err != nil {
		return nil, err
	}

	msgs = make([]chat.Message, 0)
	h := d.Posts[channelID]
	for i := len(h) - 1; i >= 0 && len(msgs) < limit; i-- {
		msgs = append(msgs, h[i])
	}

	return msgs, nil
}

// Member implements chat.MemberFinder
func (d *Driver) Member(ctx context.Context, userID string) (m chat.Member, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("Member"); err != nil {
		return m, err
	}

	m, ok := d.Members[userID]
	if !ok {
		return m, fmt.Errorf("member [%s]: %w", userID, chat.ErrNotFound)
	}

	return m, nil
}

// IsAdministrator implements chat.PermissionChecker
func (d *Driver) IsAdministrator(ctx context.Context, userID string, channelID string) (admin bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err = d.begin("IsAdministrator"); err != nil {
		return false, err
	}

	return d.Admins[userID], nil
}
