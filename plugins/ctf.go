package plugins

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/weixuan0110/ctfbot"
	"github.com/weixuan0110/ctfbot/actions"
	"github.com/weixuan0110/ctfbot/chat"
	"github.com/weixuan0110/ctfbot/command"
	"github.com/weixuan0110/ctfbot/ctftime"
	"github.com/weixuan0110/ctfbot/plugin"
	"github.com/weixuan0110/ctfbot/tracker"
	"github.com/weixuan0110/ctfbot/workflow"
)

const (
	// CTFPluginName holds the identifying name of the event management plugin
	CTFPluginName = "ctf"

	defaultRoleColor     = 0x0000FF
	maxDescriptionLength = 1000
	displayTimeLayout    = "2006-01-02 15:04:05"

	announcementFormat = "@everyone Successfully created CTF \"%s\"! React with %s if you're playing or want to access the channel."
	grantedFormat      = "You have been granted access to the CTF channel for %s."
	fetchFailedAnswer  = "Failed to fetch event data. Please check the event ID."
	duplicateFormat    = "Cannot create CTF '%s', duplicate event."
	createDenied       = "You do not have permission to create channels."
	archiveDenied      = "You do not have permission to archive channels."
	archiveWrongPlace  = "This command can only be used in channels within the current year's CTF category."
	archivedFormat     = "Channel '%s' has been moved to the archive."
	noUpcomingAnswer   = "No upcoming CTF events found."
)

// Event creation steps
const (
	stepFetch     = "fetch event"
	stepDuplicate = "check duplicate"
	stepRole      = "create role"
	stepChannel   = "create channel"
	stepImage     = "resolve image"
	stepSchedule  = "schedule event"
	stepAnnounce  = "announce"
)

var (
	// ErrPermissionDenied is returned when the author of a command isn't an administrator
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDuplicateEvent is returned when the channel of an event already exists in the current year's category
	ErrDuplicateEvent = errors.New("duplicate event")
)

// Events manages the lifecycle of event channels: creation from a ctftime event, interest reactions,
// archival and the listing of upcoming events
type Events struct {
	*ctfbot.Plugin

	driver   chat.Driver
	feed     ctftime.Feed
	tracker  *tracker.Tracker
	settings Settings
	now      func() time.Time
}

// EventsOption defines an option for the Events plugin
type EventsOption func(e *Events)

// OptionClock sets the clock used to query upcoming events. Defaults to time.Now
func OptionClock(now func() time.Time) EventsOption {
	return func(e *Events) {
		e.now = now
	}
}

// creation holds the state shared by the steps of an event creation
type creation struct {
	eventID string
	year    int
	event   ctftime.Event
	role    chat.Role
	channel chat.Channel
	image   string
}

// NewEvents creates a new instance of the event management plugin
func NewEvents(driver chat.Driver, feed ctftime.Feed, t *tracker.Tracker, s Settings, options ...EventsOption) (e *Events) {
	e = new(Events)
	e.driver = driver
	e.feed = feed
	e.tracker = t
	e.settings = s
	e.now = time.Now

	for _, opt := range options {
		opt(e)
	}

	e.Plugin = plugin.New(CTFPluginName).
		WithCommand(actions.NewCommand().
			WithMatcher(func(m *ctfbot.IncomingMessage) bool {
				_, ok := m.Command.(command.CreateCTF)
				return ok && m.ChannelID == e.settings.StagingChannelID
			}).
			WithUsage("ctf create <event_id>").
			WithDescription("Create the channel, role and scheduled event of a ctftime event (staging channel, administrators only)").
			WithAnswerer(e.create).
			Build()).
		WithCommand(actions.NewCommand().
			WithMatcher(func(m *ctfbot.IncomingMessage) bool {
				_, ok := m.Command.(command.ArchiveCTF)
				return ok && !m.Direct
			}).
			WithUsage("ctf archive").
			WithDescription("Move the current CTF channel to this year's archive (administrators only)").
			WithAnswerer(e.archive).
			Build()).
		WithCommand(actions.NewCommand().
			WithMatcher(actions.MatchCommand[command.UpcomingCTF]()).
			WithUsage("ctf upcoming").
			WithDescriptionf("List the next %d upcoming CTFs from ctftime", e.settings.UpcomingLimit).
			WithAnswerer(e.upcoming).
			Build()).
		WithReactionAction(actions.NewReactionAction().
			WithEmoji(e.settings.ReactionEmoji).
			WithDescription("Grant access to an event channel when reacting to its announcement").
			WithAction(e.grantAccess).
			Build()).
		Build()

	return e
}

// ChannelName returns the channel name of an event: its lowercase title with spaces replaced by hyphens
func ChannelName(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "-")
}

// RoleName returns the name of the role giving access to the channel of an event
func RoleName(title string, year int) string {
	return fmt.Sprintf("%s %s", title, tracker.ShortYear(year))
}

func (e *Events) create(ctx context.Context, m *ctfbot.IncomingMessage) *ctfbot.Answer {
	if err := e.requireAdministrator(ctx, m); err != nil {
		return &ctfbot.Answer{Text: deniedAnswer(err, createDenied)}
	}

	c := &creation{eventID: m.Command.(command.CreateCTF).EventID, year: e.tracker.Epoch().Year()}
	runner := workflow.NewRunner(fmt.Sprintf("create %s", c.eventID), e.Logger)
	report := runner.Run(ctx, e.creationSteps(c))

	return &ctfbot.Answer{Text: summarize(c, report)}
}

// creationSteps declares the creation of an event. Nothing is created before the duplicate check and a
// role left behind by a failed channel creation is reported, not removed
func (e *Events) creationSteps(c *creation) []workflow.Step {
	return []workflow.Step{
		{Name: stepFetch, Policy: workflow.Abort, Run: func(ctx context.Context) (err error) {
			c.event, err = e.feed.Event(ctx, c.eventID)
			return err
		}},
		{Name: stepDuplicate, Policy: workflow.Abort, Run: func(ctx context.Context) error {
			_, found, err := e.tracker.FindChannel(ctx, ChannelName(c.event.Title), tracker.ActiveCategoryName(c.year))
			if err != nil {
				return err
			}

			if found {
				return ErrDuplicateEvent
			}

			return nil
		}},
		{Name: stepRole, Policy: workflow.Abort, Orphan: "interest role", Run: func(ctx context.Context) (err error) {
			c.role, err = e.driver.CreateRole(ctx, chat.RoleSpec{Name: RoleName(c.event.Title, c.year), Color: e.settings.RoleColor, Mentionable: true})
			if err == nil {
				e.Logger.Printf("[%s] Created role [%s]", CTFPluginName, c.role.Name)
			}

			return err
		}},
		{Name: stepChannel, Policy: workflow.Abort, Run: func(ctx context.Context) error {
			category, err := e.tracker.EnsureCategory(ctx, tracker.ActiveCategoryName(c.year))
			if err != nil {
				return err
			}

			c.channel, err = e.driver.CreateRestrictedChannel(ctx, chat.ChannelSpec{Name: ChannelName(c.event.Title), ParentID: category.ID, VisibleTo: []string{c.role.ID}})
			return err
		}},
		{Name: stepImage, Policy: workflow.Continue, Run: func(ctx context.Context) error {
			c.image = e.resolveImage(ctx, c.event.Logo)
			return nil
		}},
		{Name: stepSchedule, Policy: workflow.Continue, Run: func(ctx context.Context) error {
			return e.driver.CreateScheduledEvent(ctx, chat.ScheduledEventSpec{
				Name:        c.event.Title,
				Description: truncateDescription(c.event.Description),
				Location:    c.event.URL,
				Start:       c.event.Start.In(e.settings.TimeLocation),
				End:         c.event.Finish.In(e.settings.TimeLocation),
				Image:       c.image,
			})
		}},
		{Name: stepAnnounce, Policy: workflow.Continue, Run: func(ctx context.Context) error {
			msg, err := e.driver.Send(ctx, e.settings.AnnounceChannelID, fmt.Sprintf(announcementFormat, c.event.Title, e.settings.ReactionEmoji))
			if err != nil {
				return err
			}

			return e.driver.AddReaction(ctx, e.settings.AnnounceChannelID, msg.ID, e.settings.ReactionEmoji)
		}},
	}
}

// resolveImage returns the event logo as a data uri, falling back to the default image and then to no image
func (e *Events) resolveImage(ctx context.Context, logo string) string {
	for _, url := range []string{logo, e.settings.DefaultImageURL} {
		if url == "" {
			continue
		}

		img, err := e.feed.Image(ctx, url)
		if err == nil {
			return img
		}

		e.Logger.Printf("[%s] Unable to fetch image [%s]: %v", CTFPluginName, url, err)
	}

	return ""
}

func summarize(c *creation, report workflow.Report) string {
	if err := report.Err(); err != nil {
		switch {
		case errors.Is(err, ctftime.ErrEventNotFound):
			return fetchFailedAnswer
		case errors.Is(err, ErrDuplicateEvent):
			return fmt.Sprintf(duplicateFormat, c.event.Title)
		case report.Stopped == stepFetch:
			return fmt.Sprintf("Failed to fetch event [%s]: %v", c.eventID, err)
		}

		text := fmt.Sprintf("Failed to create CTF '%s' at step [%s]: %v", c.event.Title, report.Stopped, err)
		if len(report.Orphans) > 0 {
			text += fmt.Sprintf("\nLeft behind for manual cleanup: %s `%s`", strings.Join(report.Orphans, ", "), c.role.Name)
		}

		return text
	}

	text := fmt.Sprintf("Created CTF '%s' in <#%s> with role `%s`.", c.event.Title, c.channel.ID, c.role.Name)
	if !report.Succeeded() {
		text += "\nSome steps failed:\n" + report.Summary()
	}

	return text
}

func truncateDescription(description string) string {
	runes := []rune(description)
	if len(runes) <= maxDescriptionLength {
		return description
	}

	return string(runes[:maxDescriptionLength-3]) + "..."
}

func (e *Events) archive(ctx context.Context, m *ctfbot.IncomingMessage) *ctfbot.Answer {
	epoch := e.tracker.Epoch()

	category, err := e.tracker.CategoryName(ctx, m.ChannelID)
	if err != nil {
		e.Logger.Printf("[%s] Unable to find category of [%s]: %v", CTFPluginName, m.ChannelID, err)
		return &ctfbot.Answer{Text: fmt.Sprintf("Failed to archive channel: %v", err)}
	}

	if category != epoch.ActiveCategory() {
		return &ctfbot.Answer{Text: archiveWrongPlace}
	}

	if err = e.requireAdministrator(ctx, m); err != nil {
		return &ctfbot.Answer{Text: deniedAnswer(err, archiveDenied)}
	}

	ch, err := e.driver.Channel(ctx, m.ChannelID)
	if err != nil {
		return &ctfbot.Answer{Text: fmt.Sprintf("Failed to archive channel: %v", err)}
	}

	archive, err := e.tracker.EnsureCategory(ctx, epoch.ArchiveCategory())
	if err != nil {
		return &ctfbot.Answer{Text: fmt.Sprintf("Failed to archive channel '%s': %v", ch.Name, err)}
	}

	if err = e.driver.MoveChannel(ctx, ch.ID, archive.ID); err != nil {
		e.Logger.Printf("[%s] Unable to move [%s] to [%s]: %v", CTFPluginName, ch.Name, archive.Name, err)
		return &ctfbot.Answer{Text: fmt.Sprintf("Failed to archive channel '%s': %v", ch.Name, err)}
	}

	e.Logger.Printf("[%s] Moved channel [%s] to [%s]", CTFPluginName, ch.Name, archive.Name)
	return &ctfbot.Answer{Text: fmt.Sprintf(archivedFormat, ch.Name)}
}

// requireAdministrator returns ErrPermissionDenied if the author of m isn't an administrator
func (e *Events) requireAdministrator(ctx context.Context, m *ctfbot.IncomingMessage) error {
	admin, err := e.driver.IsAdministrator(ctx, m.AuthorID, m.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to check permissions of [%s]: %w", m.AuthorID, err)
	}

	if !admin {
		return ErrPermissionDenied
	}

	return nil
}

func deniedAnswer(err error, denied string) string {
	if errors.Is(err, ErrPermissionDenied) {
		return denied
	}

	return err.Error()
}

func (e *Events) upcoming(ctx context.Context, m *ctfbot.IncomingMessage) *ctfbot.Answer {
	events, err := e.feed.Upcoming(ctx, e.now(), e.settings.UpcomingWindow, e.settings.UpcomingLimit)
	if err != nil {
		e.Logger.Printf("[%s] Unable to fetch upcoming events: %v", CTFPluginName, err)
		return &ctfbot.Answer{Text: fmt.Sprintf("Failed to fetch upcoming events: %v", err)}
	}

	seen := make(map[int]bool)
	embeds := make([]chat.Embed, 0, len(events))
	for _, ev := range events {
		if seen[ev.ID] {
			continue
		}

		seen[ev.ID] = true
		embeds = append(embeds, e.eventEmbed(ev))
	}

	if len(embeds) == 0 {
		return &ctfbot.Answer{Text: noUpcomingAnswer}
	}

	return &ctfbot.Answer{Embeds: embeds}
}

func (e *Events) eventEmbed(ev ctftime.Event) chat.Embed {
	var b strings.Builder

	fmt.Fprintf(&b, "**Event ID:** %d\n", ev.ID)
	fmt.Fprintf(&b, "**Weight:** %s\n", strconv.FormatFloat(ev.Weight, 'f', -1, 64))
	fmt.Fprintf(&b, "**Duration:** %s\n", ev.Duration)
	fmt.Fprintf(&b, "**Start Time:** %s\n", e.displayTime(ev.Start))
	fmt.Fprintf(&b, "**End Time:** %s\n", e.displayTime(ev.Finish))
	fmt.Fprintf(&b, "**Format:** %s\n", ev.Format)
	fmt.Fprintf(&b, "**[More Info](%s)**", ev.URL)

	return chat.Embed{Title: ev.Title, Description: b.String(), Color: rand.Intn(0xFFFFFF + 1), ThumbnailURL: ev.Logo}
}

func (e *Events) displayTime(t time.Time) string {
	return fmt.Sprintf("%s %s", t.In(e.settings.TimeLocation).Format(displayTimeLayout), e.settings.TimeZoneLabel)
}

// grantAccess gives the role of an event to a member reacting to its announcement. Reactions on other
// messages, from bots or for events without a role are ignored
func (e *Events) grantAccess(ctx context.Context, r *ctfbot.IncomingReaction) {
	if r.GuildID == "" {
		return
	}

	member, err := e.driver.Member(ctx, r.UserID)
	if err != nil {
		e.Logger.Printf("[%s] Unable to find member [%s]: %v", CTFPluginName, r.UserID, err)
		return
	}

	if member.Bot {
		return
	}

	msg, err := e.driver.Message(ctx, r.ChannelID, r.MessageID)
	if err != nil {
		e.Logger.Printf("[%s] Unable to fetch message [%s]: %v", CTFPluginName, r.MessageID, err)
		return
	}

	if msg.AuthorID != r.SelfID {
		return
	}

	title, ok := announcedTitle(msg.Content)
	if !ok {
		return
	}

	roleName := RoleName(title, e.tracker.Epoch().Year())
	roles, err := e.driver.Roles(ctx)
	if err != nil {
		e.Logger.Printf("[%s] Unable to list roles: %v", CTFPluginName, err)
		return
	}

	role, ok := chat.FindRole(roles, roleName)
	if !ok {
		e.Logger.Debugf("[%s] No role [%s] to grant to [%s]", CTFPluginName, roleName, r.UserID)
		return
	}

	if err = e.driver.GrantRole(ctx, r.UserID, role.ID); err != nil {
		e.Logger.Printf("[%s] Unable to grant role [%s] to [%s]: %v", CTFPluginName, roleName, r.UserID, err)
		return
	}

	e.Logger.Printf("[%s] Granted role [%s] to [%s]", CTFPluginName, roleName, member.DisplayName())
	if err = e.driver.SendDirect(ctx, r.UserID, fmt.Sprintf(grantedFormat, title)); err != nil {
		e.Logger.Printf("[%s] Unable to notify [%s]: %v", CTFPluginName, r.UserID, err)
	}
}

// announcedTitle extracts the event title between the first pair of double quotes of an announcement
func announcedTitle(content string) (title string, ok bool) {
	parts := strings.SplitN(content, `"`, 3)
	if len(parts) < 3 || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}
