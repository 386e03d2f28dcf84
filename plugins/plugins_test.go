package plugins_test

import (
	"io"
	"log"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weixuan0110/ctfbot/chat"
	"github.com/weixuan0110/ctfbot/config"
	"github.com/weixuan0110/ctfbot/plugins"
	"github.com/weixuan0110/ctfbot/schedule"
	"github.com/weixuan0110/ctfbot/slog"
	"github.com/weixuan0110/ctfbot/test/capture"
	"github.com/weixuan0110/ctfbot/tracker"
)

const (
	botID   = "B1"
	guildID = "G1"
)

var fixedNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

// server holds a seeded fake server with this year's categories and the configured channels
type server struct {
	driver   *capture.Driver
	tracker  *tracker.Tracker
	settings plugins.Settings

	active   chat.Channel
	archive  chat.Channel
	staging  chat.Channel
	help     chat.Channel
	announce chat.Channel
}

func newServer(t *testing.T) (s *server) {
	s = new(server)
	s.driver = capture.NewDriver(botID)
	s.active = s.driver.AddCategory("ctf-2025")
	s.archive = s.driver.AddCategory("archive-2025")
	s.staging = s.driver.AddChannel("bot-spam", "")
	s.help = s.driver.AddChannel("ctf-helpme", "")
	s.announce = s.driver.AddChannel("announcements", "")

	v := config.NewViperWithDefaults()
	v.Set(config.StagingChannelIDKey, s.staging.ID)
	v.Set(config.HelpChannelIDKey, s.help.ID)
	v.Set(config.AnnounceChannelIDKey, s.announce.ID)

	var err error
	s.settings, err = plugins.NewSettings(v)
	require.NoError(t, err)

	s.tracker = newTracker(s.driver)

	return s
}

func newTracker(d *capture.Driver) *tracker.Tracker {
	return tracker.New(tracker.NewEpoch(2025), d, discardLogger(), tracker.OptionNow(func() time.Time { return fixedNow }))
}

func discardLogger() slog.Logger {
	return slog.New(log.New(io.Discard, "", 0), false)
}

// guildMessage returns a message posted on the server by alice
func guildMessage(channelID string, content string) chat.Message {
	return chat.Message{ChannelID: channelID, GuildID: guildID, AuthorID: "U1", AuthorName: "alice", Content: content}
}

// directMessage returns a message sent in private to the bot by alice
func directMessage(content string) chat.Message {
	return chat.Message{ChannelID: "D1", AuthorID: "U1", AuthorName: "alice", Content: content}
}

func TestNewSettingsWithDefaults(t *testing.T) {
	s, err := plugins.NewSettings(config.NewViperWithDefaults())
	require.NoError(t, err)

	assert.Equal(t, "Asia/Kuala_Lumpur", s.TimeLocation.String())
	assert.Equal(t, "MYT", s.TimeZoneLabel)
	assert.Equal(t, "👍", s.ReactionEmoji)
	assert.Equal(t, 10000, s.HistoryLimit)
	assert.Equal(t, 5, s.UpcomingLimit)
	assert.Equal(t, 14*24*time.Hour, s.UpcomingWindow)
	assert.Equal(t, config.DefaultEventImageURL, s.DefaultImageURL)
	assert.Equal(t, 0x0000FF, s.RoleColor)
	assert.Equal(t, schedule.Daily(), s.ReconcileSchedule)
}

func TestNewSettingsWithPluginConfig(t *testing.T) {
	v := config.NewViperWithDefaults()
	v.Set(config.PluginsKey, map[string]interface{}{
		"ctf":    map[string]interface{}{"roleColor": 0xFF0000},
		"yearly": map[string]interface{}{"reconcileInterval": "6h"},
	})

	s, err := plugins.NewSettings(v)
	require.NoError(t, err)

	assert.Equal(t, 0xFF0000, s.RoleColor)
	assert.Equal(t, schedule.Definition{Interval: 6, Unit: schedule.Hours}, s.ReconcileSchedule)
}

func TestNewSettingsWithInvalidReconcileInterval(t *testing.T) {
	v := config.NewViperWithDefaults()
	v.Set(config.PluginsKey, map[string]interface{}{
		"yearly": map[string]interface{}{"reconcileInterval": "500ms"},
	})

	_, err := plugins.NewSettings(v)
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "at least one second")
	}
}

func TestNewSettingsWithInvalidTimeLocation(t *testing.T) {
	v := config.NewViperWithDefaults()
	v.Set(config.TimeLocationKey, "Nowhere/Atlantis")

	_, err := plugins.NewSettings(v)
	assert.Error(t, err)
}
