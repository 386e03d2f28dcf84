// Package plugins provides the plugins of the CTF bot: anonymous questions, event channel management,
// writeup publishing and the yearly category rollover
package plugins

import (
	"time"

	"github.com/spf13/viper"
	"github.com/weixuan0110/ctfbot/config"
	"github.com/weixuan0110/ctfbot/schedule"
)

// Keys of the plugin specific configuration, under plugins.<name>
const (
	roleColorKey         = "roleColor"         // Colour of the interest roles of the ctf plugin. Defaults to blue
	reconcileIntervalKey = "reconcileInterval" // Period of the yearly category check, duration value. Defaults to a day
)

// Settings holds the configuration values shared by the plugins
type Settings struct {
	StagingChannelID  string
	HelpChannelID     string
	AnnounceChannelID string
	DefaultImageURL   string
	ReactionEmoji     string
	TimeLocation      *time.Location
	TimeZoneLabel     string
	HistoryLimit      int
	UpcomingLimit     int
	UpcomingWindow    time.Duration
	RoleColor         int
	ReconcileSchedule schedule.Definition
}

// NewSettings reads the plugin settings from the bot configuration
func NewSettings(v *viper.Viper) (s Settings, err error) {
	v = config.LayerConfigWithDefaults(v)

	s.TimeLocation, err = config.GetTimeLocation(v)
	if err != nil {
		return s, err
	}

	s.StagingChannelID = v.GetString(config.StagingChannelIDKey)
	s.HelpChannelID = v.GetString(config.HelpChannelIDKey)
	s.AnnounceChannelID = v.GetString(config.AnnounceChannelIDKey)
	s.DefaultImageURL = v.GetString(config.DefaultEventImageURLKey)
	s.ReactionEmoji = v.GetString(config.ReactionEmojiKey)
	s.TimeZoneLabel = v.GetString(config.TimeZoneLabelKey)
	s.HistoryLimit = v.GetInt(config.HistoryLimitKey)
	s.UpcomingLimit = v.GetInt(config.CtftimeUpcomingLimitKey)
	s.UpcomingWindow = v.GetDuration(config.CtftimeUpcomingWindowKey)

	s.RoleColor = defaultRoleColor
	if pc, err := config.GetPluginConfig(v, CTFPluginName); err == nil && pc.IsSet(roleColorKey) {
		s.RoleColor = pc.GetInt(roleColorKey)
	}

	s.ReconcileSchedule = schedule.Daily()
	if pc, err := config.GetPluginConfig(v, YearlyPluginName); err == nil && pc.IsSet(reconcileIntervalKey) {
		if s.ReconcileSchedule, err = schedule.FromDuration(pc.GetDuration(reconcileIntervalKey)); err != nil {
			return s, err
		}
	}

	return s, nil
}
