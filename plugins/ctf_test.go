package plugins_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/weixuan0110/ctfbot"
	"github.com/weixuan0110/ctfbot/chat"
	"github.com/weixuan0110/ctfbot/ctftime"
	"github.com/weixuan0110/ctfbot/plugins"
	"github.com/weixuan0110/ctfbot/test/assertanswer"
	"github.com/weixuan0110/ctfbot/test/assertplugin"
	"github.com/weixuan0110/ctfbot/test/capture"
)

const (
	logoURL      = "https://ctftime.org/media/events/htp.png"
	logoData     = "data:image/png;base64,iVBORw0KGgo="
	fallbackData = "data:image/png;base64,ZmFsbGJhY2s="
	announcement = "@everyone Successfully created CTF \"Hack The Planet\"! React with 👍 if you're playing or want to access the channel."
)

func hackThePlanet() ctftime.Event {
	return ctftime.Event{
		ID:          2345,
		Title:       "Hack The Planet",
		Description: strings.Repeat("a", 1200),
		URL:         "https://htp.example",
		Logo:        logoURL,
		Weight:      24.5,
		Format:      "Jeopardy",
		Start:       time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC),
		Finish:      time.Date(2025, time.June, 12, 0, 0, 0, 0, time.UTC),
		Duration:    ctftime.Duration{Days: 2},
	}
}

func newEvents(s *server, feed ctftime.Feed) *plugins.Events {
	return plugins.NewEvents(s.driver, feed, s.tracker, s.settings, plugins.OptionClock(func() time.Time { return fixedNow }))
}

// single validates that exactly one answer was given and stores it in answer
func single(answer **ctfbot.Answer) assertplugin.ResultValidator {
	return func(t *testing.T, answers []*ctfbot.Answer) bool {
		if !assert.Len(t, answers, 1) {
			return false
		}

		*answer = answers[0]
		return true
	}
}

func noAnswer(t *testing.T, answers []*ctfbot.Answer) bool {
	return assert.Empty(t, answers)
}

func answersWith(text string) assertplugin.ResultValidator {
	return func(t *testing.T, answers []*ctfbot.Answer) bool {
		return assert.Len(t, answers, 1) && assertanswer.HasText(t, answers[0], text)
	}
}

func TestCreateCTF(t *testing.T) {
	s := newServer(t)
	s.driver.Admins["U1"] = true

	feed := new(mockFeed)
	feed.On("Event", "2345").Return(hackThePlanet(), nil)
	feed.On("Image", logoURL).Return(logoData, nil)

	e := newEvents(s, feed)
	assertplugin := assertplugin.New(t)

	var answer *ctfbot.Answer
	require.True(t, assertplugin.Answers(e.Plugin, guildMessage(s.staging.ID, ">ctf create 2345"), single(&answer)))

	require.Len(t, s.driver.CreatedRoles, 1)
	assert.Equal(t, chat.RoleSpec{Name: "Hack The Planet 25", Color: 0x0000FF, Mentionable: true}, s.driver.CreatedRoles[0])
	role, ok := chat.FindRole(s.driver.RoleList, "Hack The Planet 25")
	require.True(t, ok)

	require.Len(t, s.driver.CreatedChannels, 1)
	assert.Equal(t, chat.ChannelSpec{Name: "hack-the-planet", ParentID: s.active.ID, VisibleTo: []string{role.ID}}, s.driver.CreatedChannels[0])
	ch, ok := chat.FindByName(s.driver.ChannelList, "hack-the-planet", false)
	require.True(t, ok)

	require.Len(t, s.driver.ScheduledEvents, 1)
	scheduled := s.driver.ScheduledEvents[0]
	assert.Equal(t, "Hack The Planet", scheduled.Name)
	assert.Equal(t, "https://htp.example", scheduled.Location)
	assert.Equal(t, logoData, scheduled.Image)
	assert.Equal(t, 1000, utf8.RuneCountInString(scheduled.Description))
	assert.True(t, strings.HasSuffix(scheduled.Description, "..."))
	assert.True(t, scheduled.Start.Equal(hackThePlanet().Start))
	assert.True(t, scheduled.End.Equal(hackThePlanet().Finish))
	assert.Equal(t, s.settings.TimeLocation, scheduled.Start.Location())

	assert.Equal(t, []string{announcement}, s.driver.SentTo(s.announce.ID))
	require.Len(t, s.driver.Reactions, 1)
	assert.Equal(t, s.announce.ID, s.driver.Reactions[0].ChannelID)
	assert.Equal(t, "👍", s.driver.Reactions[0].Emoji)

	assertanswer.HasText(t, answer, fmt.Sprintf("Created CTF 'Hack The Planet' in <#%s> with role `Hack The Planet 25`.", ch.ID))
	feed.AssertExpectations(t)
}

func TestCreateCTFKeepsShortDescription(t *testing.T) {
	s := newServer(t)
	s.driver.Admins["U1"] = true

	ev := hackThePlanet()
	ev.Description = "A short description"

	feed := new(mockFeed)
	feed.On("Event", "2345").Return(ev, nil)
	feed.On("Image", logoURL).Return(logoData, nil)

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newEvents(s, feed).Plugin, guildMessage(s.staging.ID, ">ctf create 2345"), single(new(*ctfbot.Answer)))

	require.Len(t, s.driver.ScheduledEvents, 1)
	assert.Equal(t, "A short description", s.driver.ScheduledEvents[0].Description)
}

func TestCreateCTFDuplicate(t *testing.T) {
	s := newServer(t)
	s.driver.Admins["U1"] = true
	s.driver.AddChannel("hack-the-planet", s.active.ID)

	feed := new(mockFeed)
	feed.On("Event", "2345").Return(hackThePlanet(), nil)

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newEvents(s, feed).Plugin, guildMessage(s.staging.ID, ">ctf create 2345"), answersWith("Cannot create CTF 'Hack The Planet', duplicate event."))

	assert.Equal(t, 0, s.driver.Mutations())
	assert.Empty(t, s.driver.Sent)
	feed.AssertNotCalled(t, "Image", mock.Anything)
}

func TestCreateCTFWithArchivedChannelOfSameName(t *testing.T) {
	s := newServer(t)
	s.driver.Admins["U1"] = true
	s.driver.AddChannel("hack-the-planet", s.archive.ID)

	feed := new(mockFeed)
	feed.On("Event", "2345").Return(hackThePlanet(), nil)
	feed.On("Image", logoURL).Return(logoData, nil)

	var answer *ctfbot.Answer
	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newEvents(s, feed).Plugin, guildMessage(s.staging.ID, ">ctf create 2345"), single(&answer))

	assertanswer.HasTextContaining(t, answer, "Created CTF 'Hack The Planet'")
	assert.Len(t, s.driver.CreatedChannels, 1)
}

func TestCreateCTFFetchFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"notFound", fmt.Errorf("unreadable data for event [2345]: %w", ctftime.ErrEventNotFound), "Failed to fetch event data. Please check the event ID."},
		{"unavailable", errors.New("ctftime: http 503"), "Failed to fetch event [2345]: ctftime: http 503"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newServer(t)
			s.driver.Admins["U1"] = true

			feed := new(mockFeed)
			feed.On("Event", "2345").Return(ctftime.Event{}, tc.err)

			assertplugin := assertplugin.New(t)
			assertplugin.Answers(newEvents(s, feed).Plugin, guildMessage(s.staging.ID, ">ctf create 2345"), answersWith(tc.expected))

			assert.Equal(t, 0, s.driver.Mutations())
			assert.Empty(t, s.driver.Sent)
		})
	}
}

func TestCreateCTFRequiresAdministrator(t *testing.T) {
	s := newServer(t)
	feed := new(mockFeed)

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newEvents(s, feed).Plugin, guildMessage(s.staging.ID, ">ctf create 2345"), answersWith("You do not have permission to create channels."))

	assert.Equal(t, 0, s.driver.Mutations())
	feed.AssertNotCalled(t, "Event", mock.Anything)
}

func TestCreateCTFOutsideStagingChannelIsIgnored(t *testing.T) {
	s := newServer(t)
	s.driver.Admins["U1"] = true
	feed := new(mockFeed)

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newEvents(s, feed).Plugin, guildMessage(s.help.ID, ">ctf create 2345"), noAnswer)

	feed.AssertNotCalled(t, "Event", mock.Anything)
}

func TestCreateCTFWithInvalidEventID(t *testing.T) {
	s := newServer(t)

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newEvents(s, new(mockFeed)).Plugin, guildMessage(s.staging.ID, ">ctf create abc"), answersWith("Invalid event id [abc]. Usage: >ctf create <event_id>"))
}

func TestCreateCTFChannelFailureReportsOrphanedRole(t *testing.T) {
	s := newServer(t)
	s.driver.Admins["U1"] = true
	s.driver.Errors["CreateRestrictedChannel"] = errors.New("missing permissions")

	feed := new(mockFeed)
	feed.On("Event", "2345").Return(hackThePlanet(), nil)

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newEvents(s, feed).Plugin, guildMessage(s.staging.ID, ">ctf create 2345"),
		answersWith("Failed to create CTF 'Hack The Planet' at step [create channel]: missing permissions\nLeft behind for manual cleanup: interest role `Hack The Planet 25`"))

	assert.Len(t, s.driver.CreatedRoles, 1)
	assert.Empty(t, s.driver.ScheduledEvents)
	assert.Empty(t, s.driver.SentTo(s.announce.ID))
}

func TestCreateCTFScheduleFailureContinues(t *testing.T) {
	s := newServer(t)
	s.driver.Admins["U1"] = true
	s.driver.Errors["CreateScheduledEvent"] = errors.New("invalid image")

	feed := new(mockFeed)
	feed.On("Event", "2345").Return(hackThePlanet(), nil)
	feed.On("Image", logoURL).Return(logoData, nil)

	var answer *ctfbot.Answer
	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newEvents(s, feed).Plugin, guildMessage(s.staging.ID, ">ctf create 2345"), single(&answer))

	assertanswer.HasTextContaining(t, answer, "Created CTF 'Hack The Planet'")
	assertanswer.HasTextContaining(t, answer, "\nSome steps failed:\n- schedule event: invalid image")
	assert.Equal(t, []string{announcement}, s.driver.SentTo(s.announce.ID))
}

func TestCreateCTFImageFallback(t *testing.T) {
	tests := []struct {
		name          string
		fallbackErr   error
		expectedImage string
	}{
		{"defaultImage", nil, fallbackData},
		{"noImage", errors.New("not an image"), ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newServer(t)
			s.driver.Admins["U1"] = true

			feed := new(mockFeed)
			feed.On("Event", "2345").Return(hackThePlanet(), nil)
			feed.On("Image", logoURL).Return("", errors.New("ctftime: http 404"))
			feed.On("Image", s.settings.DefaultImageURL).Return(fallbackData, tc.fallbackErr)

			assertplugin := assertplugin.New(t)
			assertplugin.Answers(newEvents(s, feed).Plugin, guildMessage(s.staging.ID, ">ctf create 2345"), single(new(*ctfbot.Answer)))

			require.Len(t, s.driver.ScheduledEvents, 1)
			assert.Equal(t, tc.expectedImage, s.driver.ScheduledEvents[0].Image)
		})
	}
}

func TestChannelAndRoleNames(t *testing.T) {
	assert.Equal(t, "hack-the-planet", plugins.ChannelName("Hack The Planet"))
	assert.Equal(t, "wanictf-2025", plugins.ChannelName("WaniCTF 2025"))
	assert.Equal(t, "Hack The Planet 25", plugins.RoleName("Hack The Planet", 2025))
	assert.Equal(t, "Hack The Planet 09", plugins.RoleName("Hack The Planet", 2009))
}

// announced seeds the announcement of Hack The Planet as posted by author and returns its reaction by bob
func announced(s *server, author string) chat.Reaction {
	msg := s.driver.Post(chat.Message{ChannelID: s.announce.ID, GuildID: guildID, AuthorID: author, AuthorBot: true, Content: announcement})

	return chat.Reaction{ChannelID: s.announce.ID, MessageID: msg.ID, GuildID: guildID, UserID: "U2", Emoji: "👍"}
}

func TestReactionGrantsAccess(t *testing.T) {
	s := newServer(t)
	role := s.driver.AddRole("Hack The Planet 25")
	s.driver.AddMember(chat.Member{UserID: "U2", Username: "bob"})
	r := announced(s, botID)

	assertplugin := assertplugin.New(t)
	assertplugin.HandlesReaction(newEvents(s, new(mockFeed)).Plugin, r, botID)

	assert.Equal(t, []capture.Grant{{UserID: "U2", RoleID: role.ID}}, s.driver.Grants)
	assert.Equal(t, []capture.DirectMessage{{UserID: "U2", Text: "You have been granted access to the CTF channel for Hack The Planet."}}, s.driver.Directs)
}

func TestCreatedAnnouncementGrantsAccess(t *testing.T) {
	s := newServer(t)
	s.driver.Admins["U1"] = true
	s.driver.AddMember(chat.Member{UserID: "U2", Username: "bob"})

	feed := new(mockFeed)
	feed.On("Event", "2345").Return(hackThePlanet(), nil)
	feed.On("Image", logoURL).Return(logoData, nil)

	e := newEvents(s, feed)
	assertplugin := assertplugin.New(t)
	assertplugin.Answers(e.Plugin, guildMessage(s.staging.ID, ">ctf create 2345"), single(new(*ctfbot.Answer)))

	require.Len(t, s.driver.Reactions, 1)
	r := s.driver.Reactions[0]
	r.GuildID = guildID
	r.UserID = "U2"

	assertplugin.HandlesReaction(e.Plugin, r, botID)

	role, ok := chat.FindRole(s.driver.RoleList, "Hack The Planet 25")
	require.True(t, ok)
	assert.Equal(t, []capture.Grant{{UserID: "U2", RoleID: role.ID}}, s.driver.Grants)
}

func TestReactionsIgnored(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(s *server) chat.Reaction
	}{
		{"byBot", func(s *server) chat.Reaction {
			s.driver.AddRole("Hack The Planet 25")
			s.driver.AddMember(chat.Member{UserID: "U2", Username: "other-bot", Bot: true})
			return announced(s, botID)
		}},
		{"onSomeoneElsesMessage", func(s *server) chat.Reaction {
			s.driver.AddRole("Hack The Planet 25")
			s.driver.AddMember(chat.Member{UserID: "U2", Username: "bob"})
			return announced(s, "U3")
		}},
		{"withoutRole", func(s *server) chat.Reaction {
			s.driver.AddMember(chat.Member{UserID: "U2", Username: "bob"})
			return announced(s, botID)
		}},
		{"fromUnknownMember", func(s *server) chat.Reaction {
			s.driver.AddRole("Hack The Planet 25")
			return announced(s, botID)
		}},
		{"inDirectMessage", func(s *server) chat.Reaction {
			s.driver.AddRole("Hack The Planet 25")
			s.driver.AddMember(chat.Member{UserID: "U2", Username: "bob"})
			r := announced(s, botID)
			r.GuildID = ""
			return r
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newServer(t)
			r := tc.prepare(s)

			assertplugin := assertplugin.New(t)
			assertplugin.HandlesReaction(newEvents(s, new(mockFeed)).Plugin, r, botID)

			assert.Empty(t, s.driver.Grants)
			assert.Empty(t, s.driver.Directs)
		})
	}
}

func TestArchiveCTF(t *testing.T) {
	s := newServer(t)
	s.driver.Admins["U1"] = true
	ch := s.driver.AddChannel("hack-the-planet", s.active.ID)

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newEvents(s, new(mockFeed)).Plugin, guildMessage(ch.ID, ">ctf archive"), answersWith("Channel 'hack-the-planet' has been moved to the archive."))

	assert.Equal(t, []capture.Move{{ChannelID: ch.ID, ParentID: s.archive.ID}}, s.driver.Moves)
}

func TestArchiveCTFCreatesMissingArchiveCategory(t *testing.T) {
	d := capture.NewDriver(botID)
	active := d.AddCategory("ctf-2025")
	ch := d.AddChannel("hack-the-planet", active.ID)
	d.Admins["U1"] = true

	s := newServer(t)
	s.driver = d
	s.tracker = newTracker(d)

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newEvents(s, new(mockFeed)).Plugin, guildMessage(ch.ID, ">ctf archive"), answersWith("Channel 'hack-the-planet' has been moved to the archive."))

	assert.Equal(t, []string{"archive-2025"}, d.CreatedCategories)
	require.Len(t, d.Moves, 1)
	archive, ok := chat.FindByName(d.ChannelList, "archive-2025", true)
	require.True(t, ok)
	assert.Equal(t, archive.ID, d.Moves[0].ParentID)
}

func TestArchiveCTFRefused(t *testing.T) {
	tests := []struct {
		name     string
		admin    bool
		category string
		expected string
	}{
		{"previousYear", true, "ctf-2024", "This command can only be used in channels within the current year's CTF category."},
		{"archived", true, "archive-2025", "This command can only be used in channels within the current year's CTF category."},
		{"notAdministrator", false, "ctf-2025", "You do not have permission to archive channels."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newServer(t)
			s.driver.Admins["U1"] = tc.admin

			parent, ok := chat.FindByName(s.driver.ChannelList, tc.category, true)
			if !ok {
				parent = s.driver.AddCategory(tc.category)
			}
			ch := s.driver.AddChannel("hack-the-planet", parent.ID)

			assertplugin := assertplugin.New(t)
			assertplugin.Answers(newEvents(s, new(mockFeed)).Plugin, guildMessage(ch.ID, ">ctf archive"), answersWith(tc.expected))

			assert.Empty(t, s.driver.Moves)
		})
	}
}

func TestArchiveCTFInDirectMessageIsIgnored(t *testing.T) {
	s := newServer(t)

	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newEvents(s, new(mockFeed)).Plugin, directMessage(">ctf archive"), noAnswer)
}

func TestUpcomingCTF(t *testing.T) {
	s := newServer(t)

	other := hackThePlanet()
	other.ID = 2346
	other.Title = "Pwn2Win"
	other.Logo = ""

	feed := new(mockFeed)
	feed.On("Upcoming", fixedNow, 14*24*time.Hour, 5).Return([]ctftime.Event{hackThePlanet(), hackThePlanet(), other}, nil)

	var answer *ctfbot.Answer
	assertplugin := assertplugin.New(t)
	assertplugin.Answers(newEvents(s, feed).Plugin, guildMessage(s.help.ID, ">ctf upcoming"), single(&answer))

	require.True(t, assertanswer.HasEmbedTitles(t, answer, "Hack The Planet", "Pwn2Win"))
	assert.Equal(t, "**Event ID:** 2345\n**Weight:** 24.5\n**Duration:** 2d 0h\n**Start Time:** 2025-06-10 08:00:00 MYT\n"+
		"**End Time:** 2025-06-12 08:00:00 MYT\n**Format:** Jeopardy\n**[More Info](https://htp.example)**", answer.Embeds[0].Description)
	assert.Equal(t, logoURL, answer.Embeds[0].ThumbnailURL)
	assert.Empty(t, answer.Embeds[1].ThumbnailURL)
	assert.True(t, answer.Embeds[0].Color >= 0 && answer.Embeds[0].Color <= 0xFFFFFF)
}

func TestUpcomingCTFWithoutEvents(t *testing.T) {
	tests := []struct {
		name     string
		events   []ctftime.Event
		err      error
		expected string
	}{
		{"none", []ctftime.Event{}, nil, "No upcoming CTF events found."},
		{"unavailable", []ctftime.Event(nil), errors.New("ctftime: http 503"), "Failed to fetch upcoming events: ctftime: http 503"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newServer(t)
			feed := new(mockFeed)
			feed.On("Upcoming", fixedNow, 14*24*time.Hour, 5).Return(tc.events, tc.err)

			assertplugin := assertplugin.New(t)
			assertplugin.Answers(newEvents(s, feed).Plugin, directMessage(">ctf upcoming"), answersWith(tc.expected))
		})
	}
}
