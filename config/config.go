// Package config provides the configuration keys, defaults and loading helpers for ctfbot. Configuration
// is layered with viper: built-in defaults, an optional configuration file, a .env file and finally the
// environment variables historically used to deploy the bot
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

const (
	TokenKey                 = "token"                  // Discord bot token, string value
	GuildIDKey               = "guildID"                // Server (guild) identifier, string value
	StagingChannelIDKey      = "stagingChannelID"       // Channel where ctf create is accepted, string value
	HelpChannelIDKey         = "helpChannelID"          // Default channel receiving anonymous questions, string value
	AnnounceChannelIDKey     = "announceChannelID"      // Channel receiving event announcements, string value
	CommandPrefixKey         = "commandPrefix"          // Prefix of every command, string value. Defaults to ">"
	TimeLocationKey          = "timeLocation"           // Display and scheduling time zone, string value. Defaults to "Asia/Kuala_Lumpur"
	TimeZoneLabelKey         = "timeZoneLabel"          // Short label appended to rendered times, string value. Defaults to "MYT"
	DebugKey                 = "debug"                  // Debug mode, boolean value. Defaults to false
	HTTPTimeoutKey           = "httpTimeout"            // Timeout applied to each collaborator call, duration value. Defaults to 15s
	RetryAttemptsKey         = "retryAttempts"          // Attempts for idempotent collaborator calls, int value. Defaults to 3
	HistoryLimitKey          = "historyLimit"           // Maximum number of messages scanned by ctf writeup, int value. Defaults to 10000
	DefaultEventImageURLKey  = "defaultEventImageURL"   // Fallback cover image of scheduled events, string value
	ReactionEmojiKey         = "reactionEmoji"          // Interest reaction marker, string value. Defaults to 👍
	UserInfoCacheSizeKey     = "userInfoCacheSize"      // Number of member entries kept in cache, int value. 0 disables caching
	PartitionCountKey        = "messageProcessingPartitionCount"
	PartitionBufferKey       = "messageProcessingBufferedMessageCount"
	StoragePathKey           = "storagePath"            // Directory of local databases, string value. Defaults to ~/.ctfbot
	WriteupBackendKey        = "writeups.backend"       // Writeup content store backend, one of "github" or "leveldb"
	GithubOwnerKey           = "github.owner"           // Owner of the writeup repository
	GithubRepoKey            = "github.repo"            // Name of the writeup repository
	GithubTokenKey           = "github.token"           // Personal access token used to push writeups
	GithubBranchKey          = "github.branch"          // Branch receiving writeups. Defaults to "main"
	GithubParentFolderKey    = "github.parentFolder"    // Root folder of writeups in the repository
	CtftimeBaseURLKey        = "ctftime.baseURL"        // Event feed API root. Defaults to https://ctftime.org/api/v1
	CtftimeUpcomingLimitKey  = "ctftime.upcomingLimit"  // Number of upcoming events listed. Defaults to 5
	CtftimeUpcomingWindowKey = "ctftime.upcomingWindow" // Look-ahead window of upcoming events. Defaults to 2 weeks
	MetricsListenAddressKey  = "metrics.listenAddress"  // Address of the monitoring endpoint. Empty disables it
	PluginsKey               = "plugins"                // Root of plugin specific configuration
)

// Writeup backends
const (
	GithubBackend  = "github"
	LevelDBBackend = "leveldb"
)

// DefaultEventImageURL is the cover image used when an event has no usable logo
const DefaultEventImageURL = "https://raw.githubusercontent.com/vicevirus/front-end-ctf-sharing-materials/main/ctf_event.png"

// envBindings maps configuration keys to the environment variables used by existing deployments
var envBindings = map[string]string{
	TokenKey:              "DISCORD_BOT_TOKEN",
	GuildIDKey:            "DISCORD_GUILD_ID",
	GithubOwnerKey:        "GITHUB_REPO_OWNER",
	GithubRepoKey:         "GITHUB_REPO_NAME",
	GithubTokenKey:        "GITHUB_PAT",
	GithubParentFolderKey: "PARENT_FOLDER",
}

// identifierKeys are snowflake identifiers which yaml and env sources may deliver as numbers
var identifierKeys = []string{GuildIDKey, StagingChannelIDKey, HelpChannelIDKey, AnnounceChannelIDKey}

// NewViperWithDefaults creates a new viper instance with all default values set
func NewViperWithDefaults() (v *viper.Viper) {
	v = viper.New()
	setDefaults(v)

	return v
}

// LayerConfigWithDefaults sets the defaults on an existing viper instance. Values already set explicitly
// keep precedence over the defaults
func LayerConfigWithDefaults(v *viper.Viper) (lv *viper.Viper) {
	setDefaults(v)

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(CommandPrefixKey, ">")
	v.SetDefault(TimeLocationKey, "Asia/Kuala_Lumpur")
	v.SetDefault(TimeZoneLabelKey, "MYT")
	v.SetDefault(DebugKey, false)
	v.SetDefault(HTTPTimeoutKey, 15*time.Second)
	v.SetDefault(RetryAttemptsKey, 3)
	v.SetDefault(HistoryLimitKey, 10000)
	v.SetDefault(DefaultEventImageURLKey, DefaultEventImageURL)
	v.SetDefault(ReactionEmojiKey, "👍")
	v.SetDefault(UserInfoCacheSizeKey, 256)
	v.SetDefault(PartitionCountKey, 16)
	v.SetDefault(PartitionBufferKey, 100)
	v.SetDefault(StoragePathKey, "~/.ctfbot")
	v.SetDefault(WriteupBackendKey, GithubBackend)
	v.SetDefault(GithubBranchKey, "main")
	v.SetDefault(GithubParentFolderKey, "writeups")
	v.SetDefault(CtftimeBaseURLKey, "https://ctftime.org/api/v1")
	v.SetDefault(CtftimeUpcomingLimitKey, 5)
	v.SetDefault(CtftimeUpcomingWindowKey, 14*24*time.Hour)
}

// Load reads the configuration file at path (if not empty), the .env files (if present) and the
// environment then layers the defaults. The resulting viper is meant to be treated as immutable
func Load(path string, envFiles ...string) (v *viper.Viper, err error) {
	v = viper.New()

	if err = LoadEnv(envFiles...); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err = v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read configuration file [%s]", path)
		}
	}

	for key, env := range envBindings {
		if err = v.BindEnv(key, env); err != nil {
			return nil, errors.Wrapf(err, "failed to bind [%s] to env [%s]", key, env)
		}
	}

	v = LayerConfigWithDefaults(v)
	normalizeIdentifiers(v)

	return v, Validate(v)
}

// LoadEnv loads the given .env files into the process environment. Missing files are ignored so that
// deployments relying solely on real environment variables keep working
func LoadEnv(files ...string) (err error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		path, err := homedir.Expand(f)
		if err != nil {
			return err
		}

		if err = godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to load env file [%s]", path)
		}
	}

	return nil
}

// normalizeIdentifiers turns numeric snowflakes into their string form
func normalizeIdentifiers(v *viper.Viper) {
	for _, k := range identifierKeys {
		if raw := v.Get(k); raw != nil {
			v.Set(k, cast.ToString(raw))
		}
	}
}

// Validate returns an error naming every required key that is missing
func Validate(v *viper.Viper) (err error) {
	required := []string{TokenKey, GuildIDKey, StagingChannelIDKey, HelpChannelIDKey, AnnounceChannelIDKey}
	if v.GetString(WriteupBackendKey) == GithubBackend {
		required = append(required, GithubOwnerKey, GithubRepoKey, GithubTokenKey)
	}

	missing := make([]string, 0)
	for _, k := range required {
		if strings.TrimSpace(v.GetString(k)) == "" {
			missing = append(missing, k)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("Missing required configuration [%s]", strings.Join(missing, ", "))
	}

	switch b := v.GetString(WriteupBackendKey); b {
	case GithubBackend, LevelDBBackend:
	default:
		return fmt.Errorf("Invalid writeup backend [%s], must be one of [%s, %s]", b, GithubBackend, LevelDBBackend)
	}

	return nil
}

// GetTimeLocation returns the time location from the configuration
func GetTimeLocation(v *viper.Viper) (timeLoc *time.Location, err error) {
	timeLocName := v.GetString(TimeLocationKey)
	timeLoc, err = time.LoadLocation(timeLocName)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to load time location [%s]", timeLocName)
	}

	return timeLoc, nil
}

// GetPluginConfig returns the viper sub-tree for a named plugin configuration
func GetPluginConfig(v *viper.Viper, name string) (pluginConfig *viper.Viper, err error) {
	pluginConfigKey := fmt.Sprintf("%s.%s", PluginsKey, name)

	if pluginConfig = v.Sub(pluginConfigKey); pluginConfig == nil {
		return nil, fmt.Errorf("Missing plugin configuration for plugin [%s] at [%s]", name, pluginConfigKey)
	}

	return pluginConfig, nil
}
